package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"flowmarket/pkg/models"
)

type cloneRequest struct {
	TicketID string `json:"ticket_id"`
}

// CloneWorkflow redeems a ticket (or self-clones for the creator) into the
// caller's portfolio
// (POST /api/v1/portfolio/workflows/{id}/clone)
func (s *Server) CloneWorkflow(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	var req cloneRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	token, err := s.Hub.CloneWorkflow(c.Request().Context(), account, id, req.TicketID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"workflow_id": token.ID,
		"creator":     token.Creator,
	})
}

// ListOwned returns the workflow ids the caller owns
// (GET /api/v1/portfolio/workflows)
func (s *Server) ListOwned(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	ids := s.Hub.OwnedWorkflows(account)
	if ids == nil {
		ids = []models.WorkflowID{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"workflow_ids": ids,
		"count":        len(ids),
	})
}

// RunWorkflow invokes an owned workflow with the manual trigger
// (POST /api/v1/portfolio/workflows/{id}/run)
func (s *Server) RunWorkflow(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	if err := s.Hub.RunWorkflow(c.Request().Context(), account, id, models.TriggerManual); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveWorkflow moves the token out of the caller's portfolio and discards it
// (DELETE /api/v1/portfolio/workflows/{id})
func (s *Server) RemoveWorkflow(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	if _, err := s.Hub.RemoveWorkflow(account, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type scheduleRequest struct {
	Cadence string `json:"cadence"`
}

// AttachSchedule registers a recurring run for an owned workflow
// (PUT /api/v1/portfolio/workflows/{id}/schedule)
func (s *Server) AttachSchedule(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	// Only owners may schedule.
	if _, err := s.Hub.OwnedToken(account, id); err != nil {
		return httpError(err)
	}
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if err := s.Sched.Attach(account, id, req.Cadence); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid cadence: "+err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// DetachSchedule removes a workflow's recurring run
// (DELETE /api/v1/portfolio/workflows/{id}/schedule)
func (s *Server) DetachSchedule(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	id, err := workflowID(c)
	if err != nil {
		return err
	}
	// Only owners may unschedule, mirroring AttachSchedule.
	if _, err := s.Hub.OwnedToken(account, id); err != nil {
		return httpError(err)
	}
	s.Sched.Detach(account, id)
	return c.NoContent(http.StatusNoContent)
}

// GetBalance reports the caller's vault balance
// (GET /api/v1/portfolio/balance)
func (s *Server) GetBalance(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"balance": s.Hub.Balance(account).String(),
	})
}

type depositRequest struct {
	Amount string `json:"amount"`
}

// Deposit credits the caller's vault balance
// (POST /api/v1/portfolio/deposit)
func (s *Server) Deposit(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	var req depositRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid amount: "+req.Amount)
	}
	s.Hub.Credit(account, amount)
	return c.JSON(http.StatusOK, map[string]string{
		"balance": s.Hub.Balance(account).String(),
	})
}
