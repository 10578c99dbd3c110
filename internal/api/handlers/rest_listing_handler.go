package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"greendrake/rentals/internal/api/middleware"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/services"
	"greendrake/rentals/internal/utils"
	"greendrake/rentals/internal/validation"
)

// RestListingHandler handles REST requests for listings.
type RestListingHandler struct {
	listingService services.IListingService
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(listingService services.IListingService) *RestListingHandler {
	return &RestListingHandler{listingService: listingService}
}

// CreateListing handles POST /v1/listing
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	ownerID, _ := middleware.UserID(c)

	var in models.CreateListingInput
	if err := validation.DecodeJSON(c.Request.Body, &in); err != nil {
		respondError(c, err)
		return
	}

	listing, err := h.listingService.CreateListing(c.Request.Context(), ownerID, in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, listing)
}

// GetListingByID handles GET /v1/listing/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
	listingID, ok := parseIDParam(c, "id", "listing")
	if !ok {
		return
	}

	var viewerID *utils.SixID
	if id, ok := middleware.UserID(c); ok {
		viewerID = &id
	}

	listing, err := h.listingService.GetListing(c.Request.Context(), viewerID, listingID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// PublishListing handles POST /v1/listing/:id/publish
func (h *RestListingHandler) PublishListing(c *gin.Context) {
	h.ownerAction(c, h.listingService.PublishListing)
}

// UnpublishListing handles POST /v1/listing/:id/unpublish
func (h *RestListingHandler) UnpublishListing(c *gin.Context) {
	h.ownerAction(c, h.listingService.UnpublishListing)
}

// AdminUnpublishListing handles POST /v1/admin/listing/:id/unpublish
func (h *RestListingHandler) AdminUnpublishListing(c *gin.Context) {
	listingID, ok := parseIDParam(c, "id", "listing")
	if !ok {
		return
	}

	listing, err := h.listingService.AdminUnpublishListing(c.Request.Context(), middleware.Session(c), listingID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

type listingAction func(ctx context.Context, ownerID, listingID utils.SixID) (*models.Listing, error)

func (h *RestListingHandler) ownerAction(c *gin.Context, action listingAction) {
	listingID, ok := parseIDParam(c, "id", "listing")
	if !ok {
		return
	}
	ownerID, _ := middleware.UserID(c)

	listing, err := action(c.Request.Context(), ownerID, listingID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}
