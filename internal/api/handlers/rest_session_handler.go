package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"greendrake/rentals/internal/api/middleware"
	"greendrake/rentals/internal/auth"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/services"
	"greendrake/rentals/internal/validation"
)

// RestSessionHandler signs users in and hands out session tokens.
type RestSessionHandler struct {
	userService services.IUserService
	sessions    auth.ISessionService
	validator   *validation.Validator
}

func NewRestSessionHandler(userService services.IUserService, sessions auth.ISessionService) *RestSessionHandler {
	return &RestSessionHandler{
		userService: userService,
		sessions:    sessions,
		validator:   validation.New(),
	}
}

// SessionResponse is returned by both sign-in and refresh.
type SessionResponse struct {
	auth.IssuedSession
	User PublicUser `json:"user"`
}

// CreateSession handles POST /v1/session
func (h *RestSessionHandler) CreateSession(c *gin.Context) {
	var in models.CreateSessionInput
	if err := validation.DecodeJSON(c.Request.Body, &in); err != nil {
		respondError(c, err)
		return
	}
	if err := h.validator.Struct(&in); err != nil {
		respondError(c, err)
		return
	}

	user, err := h.userService.Authenticate(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	h.issue(c, http.StatusCreated, user)
}

// RefreshSession handles POST /v1/session/refresh. The account is re-read so
// suspension and admin changes apply to the new token.
func (h *RestSessionHandler) RefreshSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, auth.ErrMissingToken)
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if user.Suspended {
		respondError(c, services.ErrUserSuspended)
		return
	}

	h.issue(c, http.StatusOK, user)
}

func (h *RestSessionHandler) issue(c *gin.Context, status int, user *models.User) {
	issued, err := h.sessions.Issue(user.ID, user.IsAdmin)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Printf("Issued session for user %s until %s", user.ID, issued.ExpiresAt.Format(time.RFC3339))
	c.JSON(status, SessionResponse{IssuedSession: *issued, User: publicUser(user)})
}
