package handlers_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"greendrake/rentals/internal/api/handlers"
	"greendrake/rentals/internal/auth"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/services"
	"greendrake/rentals/internal/utils"
)

func setupSessionRouter(users *MockUserService, sessions *MockSessionService, session *auth.Session) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewRestSessionHandler(users, sessions)

	r := gin.New()
	r.POST("/v1/session", handler.CreateSession)
	r.POST("/v1/session/refresh", asUser(session), handler.RefreshSession)
	return r
}

func TestRestSessionHandler_CreateSession(t *testing.T) {
	users, sessions := new(MockUserService), new(MockSessionService)
	r := setupSessionRouter(users, sessions, nil)

	user := &models.User{Base: models.Base{ID: utils.NewSixID()}, Name: "Ana", IsAdmin: true}
	expires := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	users.On("Authenticate", mock.Anything, "ana@example.com", "pw").Return(user, nil)
	sessions.On("Issue", user.ID, true).Return(&auth.IssuedSession{Token: "signed.token.value", ExpiresAt: expires}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/session", bytes.NewBufferString(`{"email":"ana@example.com","password":"pw"}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	respBody := decodeBody(t, w)
	assert.Equal(t, "signed.token.value", respBody["token"])
	assert.Equal(t, "2024-05-01T12:00:00Z", respBody["expires_at"])
	assert.Equal(t, "Ana", respBody["user"].(map[string]interface{})["name"])
	users.AssertExpectations(t)
	sessions.AssertExpectations(t)
}

func TestRestSessionHandler_CreateSession_BadCredentials(t *testing.T) {
	users, sessions := new(MockUserService), new(MockSessionService)
	r := setupSessionRouter(users, sessions, nil)

	users.On("Authenticate", mock.Anything, "ana@example.com", "nope").Return(nil, services.ErrInvalidCredentials)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/session", bytes.NewBufferString(`{"email":"ana@example.com","password":"nope"}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", decodeBody(t, w)["code"])
	sessions.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
}

func TestRestSessionHandler_CreateSession_Validation(t *testing.T) {
	users, sessions := new(MockUserService), new(MockSessionService)
	r := setupSessionRouter(users, sessions, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/session", bytes.NewBufferString(`{"email":"not-an-email","password":""}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	details := decodeBody(t, w)["details"].(map[string]interface{})
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")
	users.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything, mock.Anything)
}

func TestRestSessionHandler_RefreshSession(t *testing.T) {
	users, sessions := new(MockUserService), new(MockSessionService)
	current := &auth.Session{UserID: utils.NewSixID(), IsAdmin: true}
	r := setupSessionRouter(users, sessions, current)

	// Admin rights were revoked since the old token was issued.
	user := &models.User{Base: models.Base{ID: current.UserID}, Name: "Ana", IsAdmin: false}
	users.On("FindByID", mock.Anything, current.UserID).Return(user, nil)
	sessions.On("Issue", current.UserID, false).Return(&auth.IssuedSession{Token: "fresh", ExpiresAt: time.Now().Add(time.Hour)}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/session/refresh", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fresh", decodeBody(t, w)["token"])
	sessions.AssertExpectations(t)
}

func TestRestSessionHandler_RefreshSession_Suspended(t *testing.T) {
	users, sessions := new(MockUserService), new(MockSessionService)
	current := &auth.Session{UserID: utils.NewSixID()}
	r := setupSessionRouter(users, sessions, current)

	users.On("FindByID", mock.Anything, current.UserID).Return(&models.User{Base: models.Base{ID: current.UserID}, Suspended: true}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/session/refresh", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "user_suspended", decodeBody(t, w)["code"])
	sessions.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
}

func TestRestSessionHandler_RefreshSession_Anonymous(t *testing.T) {
	users, sessions := new(MockUserService), new(MockSessionService)
	r := setupSessionRouter(users, sessions, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/session/refresh", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_token", decodeBody(t, w)["code"])
}
