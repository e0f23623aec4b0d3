// Package api contains the HTTP handlers for the flowmarket service
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"flowmarket/internal/auth"
	"flowmarket/internal/hub"
	"flowmarket/internal/ledger"
	"flowmarket/internal/scheduler"
	"flowmarket/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Hub   *hub.Hub
	Sched *scheduler.Scheduler
}

// NewServer creates a new Server.
func NewServer(h *hub.Hub, sched *scheduler.Scheduler) *Server {
	return &Server{Hub: h, Sched: sched}
}

// RegisterRoutes mounts every handler on the (auth-protected) group.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.GET("/workflows", s.ListWorkflows)
	g.POST("/workflows", s.RegisterWorkflow)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.GET("/workflows/:id/forks", s.ListForks)
	g.PATCH("/workflows/:id", s.UpdateWorkflow)
	g.PUT("/workflows/:id/config-defaults", s.UpdateConfigDefaults)
	g.PUT("/workflows/:id/price", s.SetPrice)
	g.PUT("/workflows/:id/listing", s.SetListing)
	g.PUT("/workflows/:id/image", s.SetImage)
	g.POST("/workflows/:id/image/lock", s.LockImage)
	g.POST("/workflows/:id/clones/lock", s.LockClones)
	g.POST("/workflows/:id/tickets", s.IssueTicket)
	g.DELETE("/tickets/:ticketId", s.CancelTicket)

	g.GET("/portfolio/workflows", s.ListOwned)
	g.POST("/portfolio/workflows/:id/clone", s.CloneWorkflow)
	g.POST("/portfolio/workflows/:id/run", s.RunWorkflow)
	g.DELETE("/portfolio/workflows/:id", s.RemoveWorkflow)
	g.PUT("/portfolio/workflows/:id/schedule", s.AttachSchedule)
	g.DELETE("/portfolio/workflows/:id/schedule", s.DetachSchedule)
	g.GET("/portfolio/balance", s.GetBalance)
	g.POST("/portfolio/deposit", s.Deposit)

	g.GET("/market/listings", s.ListListings)
	g.POST("/market/listings", s.CreateListing)
	g.GET("/market/listings/:listingId", s.GetListing)
	g.PATCH("/market/listings/:listingId", s.UpdateListingPrice)
	g.DELETE("/market/listings/:listingId", s.WithdrawListing)
	g.POST("/market/listings/:listingId/purchase", s.PurchaseListing)
}

// caller resolves the authenticated account from the request context.
func caller(c echo.Context) (models.AccountID, error) {
	account, ok := auth.AccountFromContext(c.Request().Context())
	if !ok || account == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "no account in request context")
	}
	return account, nil
}

// workflowID parses the :id path parameter.
func workflowID(c echo.Context) (models.WorkflowID, error) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid workflow id: "+raw)
	}
	return models.WorkflowID(id), nil
}

// parseAmount parses an optional decimal field.
func parseAmount(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid amount: "+*raw)
	}
	return &d, nil
}

// httpError translates a ledger rejection into the matching HTTP status.
func httpError(err error) error {
	if _, ok := err.(*echo.HTTPError); ok {
		return err
	}
	status := http.StatusInternalServerError
	switch ledger.KindOf(err) {
	case ledger.KindNotFound:
		status = http.StatusNotFound
	case ledger.KindDuplicateCode, ledger.KindDuplicateName, ledger.KindAlreadyOwned,
		ledger.KindHasClones, ledger.KindAlreadyLocked, ledger.KindPriceChanged,
		ledger.KindCodeTampered:
		status = http.StatusConflict
	case ledger.KindUnlisted, ledger.KindLocked, ledger.KindNotSeller:
		status = http.StatusForbidden
	case ledger.KindPaymentMismatch, ledger.KindUnexpectedPayment, ledger.KindInsufficientFunds:
		status = http.StatusPaymentRequired
	case ledger.KindParentNotFound, ledger.KindTicketMismatch, ledger.KindInvalidPrice:
		status = http.StatusUnprocessableEntity
	}
	return echo.NewHTTPError(status, err.Error())
}
