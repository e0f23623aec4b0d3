package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"flowmarket/pkg/models"
)

type registerRequest struct {
	Name           string             `json:"name"`
	Category       string             `json:"category"`
	Description    string             `json:"description"`
	StrategyRef    string             `json:"strategy_ref"`
	CodeRef        string             `json:"code_ref"`
	Metadata       map[string]any     `json:"metadata"`
	ConfigDefaults map[string]any     `json:"config_defaults"`
	ParentID       *models.WorkflowID `json:"parent_id"`
	Capabilities   map[string]string  `json:"capabilities"`
	Price          *string            `json:"price"`
	ImageRef       *string            `json:"image_ref"`
	IsListed       bool               `json:"is_listed"`
}

// RegisterWorkflow publishes a new workflow record
// (POST /api/v1/workflows)
func (s *Server) RegisterWorkflow(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.Name == "" || req.CodeRef == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and code_ref are required")
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		return err
	}

	meta := models.WorkflowMeta{
		Name:           req.Name,
		Category:       req.Category,
		Description:    req.Description,
		StrategyRef:    req.StrategyRef,
		Metadata:       req.Metadata,
		ConfigDefaults: req.ConfigDefaults,
		ParentID:       req.ParentID,
		Capabilities:   req.Capabilities,
		Price:          price,
		ImageRef:       req.ImageRef,
		IsListed:       req.IsListed,
	}
	rec, err := s.Hub.RegisterWorkflow(c.Request().Context(), account, meta, req.CodeRef)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// ListWorkflows returns registry records, optionally filtered by category
// (listed only) or creator
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	if category := c.QueryParam("category"); category != "" {
		return c.JSON(http.StatusOK, s.Hub.WorkflowsByCategory(category))
	}
	if creator := c.QueryParam("creator"); creator != "" {
		return c.JSON(http.StatusOK, s.Hub.WorkflowsByCreator(models.AccountID(creator)))
	}
	if codeRef := c.QueryParam("code_ref"); codeRef != "" {
		return c.JSON(http.StatusOK, s.Hub.WorkflowsByCodeRef(codeRef))
	}
	return c.JSON(http.StatusOK, s.Hub.Workflows())
}

// GetWorkflow returns one record by id
// (GET /api/v1/workflows/{id})
func (s *Server) GetWorkflow(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	rec, err := s.Hub.GetWorkflow(id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// ListForks returns the records registered with this record as parent
// (GET /api/v1/workflows/{id}/forks)
func (s *Server) ListForks(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Hub.Forks(id))
}

type updateRequest struct {
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

// UpdateWorkflow rewrites a record's description and metadata. Creator only.
// (PATCH /api/v1/workflows/{id})
func (s *Server) UpdateWorkflow(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if err := s.Hub.UpdateMetadata(c.Request().Context(), account, id, req.Description, req.Metadata); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateConfigDefaults replaces a record's default configuration. Creator only.
// (PUT /api/v1/workflows/{id}/config-defaults)
func (s *Server) UpdateConfigDefaults(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	var defaults map[string]any
	if err := c.Bind(&defaults); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if err := s.Hub.UpdateConfigDefaults(c.Request().Context(), account, id, defaults); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type priceRequest struct {
	Price *string `json:"price"`
}

// SetPrice updates a record's clone price. Creator only.
// (PUT /api/v1/workflows/{id}/price)
func (s *Server) SetPrice(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	var req priceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		return err
	}
	if err := s.Hub.SetPrice(c.Request().Context(), account, id, price); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type listingFlagRequest struct {
	Listed bool `json:"listed"`
}

// SetListing toggles a record's listed flag. Creator only.
// (PUT /api/v1/workflows/{id}/listing)
func (s *Server) SetListing(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	var req listingFlagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if err := s.Hub.SetListing(c.Request().Context(), account, id, req.Listed); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type imageRequest struct {
	ImageRef *string `json:"image_ref"`
}

// SetImage updates a record's image reference. Creator only.
// (PUT /api/v1/workflows/{id}/image)
func (s *Server) SetImage(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	var req imageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if err := s.Hub.SetImage(c.Request().Context(), account, id, req.ImageRef); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LockImage makes a record's image immutable. Creator only, one-way.
// (POST /api/v1/workflows/{id}/image/lock)
func (s *Server) LockImage(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	if err := s.Hub.LockImage(c.Request().Context(), account, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LockClones forbids all further clones. Creator only, one-way.
// (POST /api/v1/workflows/{id}/clones/lock)
func (s *Server) LockClones(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	if err := s.Hub.LockClones(c.Request().Context(), account, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type ticketRequest struct {
	Offer *string `json:"offer"`
}

type ticketResponse struct {
	ID         string            `json:"id"`
	WorkflowID models.WorkflowID `json:"workflow_id"`
	Price      string            `json:"price"`
}

// IssueTicket buys the right-to-clone: the offered amount is withdrawn from
// the caller's balance and escrowed in the ticket
// (POST /api/v1/workflows/{id}/tickets)
func (s *Server) IssueTicket(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	var req ticketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	offer, err := parseAmount(req.Offer)
	if err != nil {
		return err
	}
	ticket, err := s.Hub.IssueTicket(c.Request().Context(), account, id, offer)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ticketResponse{
		ID:         ticket.ID,
		WorkflowID: ticket.WorkflowID,
		Price:      ticket.Price.String(),
	})
}

// CancelTicket destroys a pending ticket, refunding its escrow
// (DELETE /api/v1/tickets/{ticketId})
func (s *Server) CancelTicket(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	if err := s.Hub.CancelTicket(account, c.Param("ticketId")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
