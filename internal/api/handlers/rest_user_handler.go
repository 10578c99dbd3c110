package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/services"
	"greendrake/rentals/internal/validation"
)

// RestUserHandler handles REST requests related to users.
type RestUserHandler struct {
	userService services.IUserService
}

// NewRestUserHandler creates a new RestUserHandler.
func NewRestUserHandler(userService services.IUserService) *RestUserHandler {
	return &RestUserHandler{userService: userService}
}

// PublicUser represents the data returned for a user profile.
type PublicUser struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DateJoined string `json:"date_joined"`
}

func publicUser(user *models.User) PublicUser {
	return PublicUser{
		ID:         user.ID.String(),
		Name:       user.Name,
		DateJoined: user.CreatedAt.Format("2006-01-02"),
	}
}

// Register handles POST /v1/user
func (h *RestUserHandler) Register(c *gin.Context) {
	var in models.RegisterUserInput
	if err := validation.DecodeJSON(c.Request.Body, &in); err != nil {
		respondError(c, err)
		return
	}

	user, err := h.userService.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// GetUserByID handles GET /v1/user/:id
func (h *RestUserHandler) GetUserByID(c *gin.Context) {
	userID, ok := parseIDParam(c, "id", "user")
	if !ok {
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, publicUser(user))
}
