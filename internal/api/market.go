package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"flowmarket/pkg/models"
)

type createListingRequest struct {
	WorkflowID models.WorkflowID `json:"workflow_id"`
	Price      string            `json:"price"`
}

// CreateListing escrows an owned token for resale
// (POST /api/v1/market/listings)
func (s *Server) CreateListing(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	var req createListingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid price: "+req.Price)
	}
	listing, err := s.Hub.CreateListing(c.Request().Context(), account, req.WorkflowID, price)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, listing)
}

// ListListings returns every open listing, or one seller's with ?seller=
// (GET /api/v1/market/listings)
func (s *Server) ListListings(c echo.Context) error {
	if seller := c.QueryParam("seller"); seller != "" {
		return c.JSON(http.StatusOK, s.Hub.ListingsBySeller(models.AccountID(seller)))
	}
	return c.JSON(http.StatusOK, s.Hub.Listings())
}

// GetListing returns one open listing
// (GET /api/v1/market/listings/{listingId})
func (s *Server) GetListing(c echo.Context) error {
	listing, err := s.Hub.Listing(c.Param("listingId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, listing)
}

type listingPriceRequest struct {
	Price string `json:"price"`
}

// UpdateListingPrice changes the asking price. Seller only.
// (PATCH /api/v1/market/listings/{listingId})
func (s *Server) UpdateListingPrice(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	var req listingPriceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid price: "+req.Price)
	}
	if err := s.Hub.UpdateListingPrice(c.Request().Context(), account, c.Param("listingId"), price); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// WithdrawListing returns the escrowed token to the seller. Seller only.
// (DELETE /api/v1/market/listings/{listingId})
func (s *Server) WithdrawListing(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	if err := s.Hub.WithdrawListing(c.Request().Context(), account, c.Param("listingId")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type purchaseRequest struct {
	Offer string `json:"offer"`
}

// PurchaseListing exchanges the escrowed token for the offered payment
// (POST /api/v1/market/listings/{listingId}/purchase)
func (s *Server) PurchaseListing(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return err
	}
	var req purchaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	offer, err := decimal.NewFromString(req.Offer)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid offer: "+req.Offer)
	}
	if err := s.Hub.PurchaseListing(c.Request().Context(), account, c.Param("listingId"), offer); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
