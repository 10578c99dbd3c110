package handlers_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"greendrake/rentals/internal/api/handlers"
	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/auth"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/services"
	"greendrake/rentals/internal/utils"
)

func setupBookingRouter(svc *MockBookingService, session *auth.Session) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewRestBookingHandler(svc)

	r := gin.New()
	r.Use(asUser(session))
	r.POST("/v1/listing/:id/booking", handler.CreateBooking)
	r.GET("/v1/listing/:id/booking", handler.ListBookings)
	r.POST("/v1/listing/:id/booking/:booking_id/confirm", handler.ConfirmBooking)
	r.POST("/v1/listing/:id/booking/:booking_id/reject", handler.RejectBooking)
	return r
}

func TestRestBookingHandler_CreateBooking(t *testing.T) {
	mockBookingSvc := new(MockBookingService)
	session := &auth.Session{UserID: utils.NewSixID()}
	r := setupBookingRouter(mockBookingSvc, session)

	listingID := utils.NewSixID()
	expected := models.CreateBookingInput{
		ListingID: listingID,
		DateRange: models.DateRange{
			From: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		},
		ProposedPrice: models.AskingPrice{Value: 610, CurrencyCode: "NZD"},
		Message:       "Hi",
	}
	created := &models.BookingRequest{Base: models.Base{ID: utils.NewSixID()}, ListingID: listingID, Status: models.BookingStatusPending}
	mockBookingSvc.On("CreateBooking", mock.Anything, session.UserID, expected).Return(created, nil)

	body := `{"date_range":{"from":"2024-07-01T00:00:00Z","to":"2024-12-31T00:00:00Z"},"proposed_price":{"value":610,"currency_code":"NZD"},"message":"Hi"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing/"+listingID.String()+"/booking", bytes.NewBufferString(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	respBody := decodeBody(t, w)
	assert.Equal(t, created.ID.String(), respBody["id"])
	assert.Equal(t, "pending", respBody["status"])
	mockBookingSvc.AssertExpectations(t)
}

func TestRestBookingHandler_CreateBooking_ListingIDComesFromPath(t *testing.T) {
	mockBookingSvc := new(MockBookingService)
	r := setupBookingRouter(mockBookingSvc, &auth.Session{UserID: utils.NewSixID()})

	listingID := utils.NewSixID()
	body := `{"listing_id":"` + utils.NewSixID().String() + `"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing/"+listingID.String()+"/booking", bytes.NewBufferString(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	mockBookingSvc.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestRestBookingHandler_ConfirmBooking(t *testing.T) {
	owner := &auth.Session{UserID: utils.NewSixID()}
	listingID, bookingID := utils.NewSixID(), utils.NewSixID()
	path := "/v1/listing/" + listingID.String() + "/booking/" + bookingID.String() + "/confirm"

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"confirmed", nil, http.StatusOK, ""},
		{"not owner", services.ErrNotListingOwner, http.StatusForbidden, "not_owner"},
		{"not pending", services.ErrBookingNotPending, http.StatusConflict, "not_pending"},
		{"unknown booking", apperrors.NotFound("booking"), http.StatusNotFound, "not_found"},
		{"store down", apperrors.Transient("store unavailable", errors.New("timeout")), http.StatusServiceUnavailable, "store_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockBookingSvc := new(MockBookingService)
			r := setupBookingRouter(mockBookingSvc, owner)
			if tc.err == nil {
				mockBookingSvc.On("ConfirmBooking", mock.Anything, owner.UserID, listingID, bookingID).
					Return(&models.BookingRequest{Base: models.Base{ID: bookingID}, Status: models.BookingStatusConfirmed}, nil)
			} else {
				mockBookingSvc.On("ConfirmBooking", mock.Anything, owner.UserID, listingID, bookingID).Return(nil, tc.err)
			}

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", path, nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			respBody := decodeBody(t, w)
			if tc.err == nil {
				assert.Equal(t, "confirmed", respBody["status"])
			} else {
				assert.Equal(t, tc.wantCode, respBody["code"])
			}
			if apperrors.IsRetryable(tc.err) {
				assert.Equal(t, true, respBody["retryable"])
			} else {
				assert.NotContains(t, respBody, "retryable")
			}
			mockBookingSvc.AssertExpectations(t)
		})
	}
}

func TestRestBookingHandler_RejectBooking(t *testing.T) {
	mockBookingSvc := new(MockBookingService)
	owner := &auth.Session{UserID: utils.NewSixID()}
	r := setupBookingRouter(mockBookingSvc, owner)

	listingID, bookingID := utils.NewSixID(), utils.NewSixID()
	mockBookingSvc.On("RejectBooking", mock.Anything, owner.UserID, listingID, bookingID).
		Return(&models.BookingRequest{Base: models.Base{ID: bookingID}, Status: models.BookingStatusCancelled}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing/"+listingID.String()+"/booking/"+bookingID.String()+"/reject", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decodeBody(t, w)["status"])
	mockBookingSvc.AssertExpectations(t)
}

func TestRestBookingHandler_InvalidBookingID(t *testing.T) {
	mockBookingSvc := new(MockBookingService)
	r := setupBookingRouter(mockBookingSvc, &auth.Session{UserID: utils.NewSixID()})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing/"+utils.NewSixID().String()+"/booking/nope/confirm", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid booking ID format", decodeBody(t, w)["error"])
}

func TestRestBookingHandler_ListBookings(t *testing.T) {
	mockBookingSvc := new(MockBookingService)
	owner := &auth.Session{UserID: utils.NewSixID()}
	r := setupBookingRouter(mockBookingSvc, owner)

	listingID := utils.NewSixID()
	requester := &models.UserSummary{ID: utils.NewSixID(), Name: "Mere"}
	views := []*models.BookingView{
		{BookingRequest: models.BookingRequest{Base: models.Base{ID: utils.NewSixID()}, Status: models.BookingStatusPending}, Requester: requester},
	}
	mockBookingSvc.On("ListBookingsForListing", mock.Anything, owner.UserID, listingID).Return(views, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/listing/"+listingID.String()+"/booking", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data, ok := decodeBody(t, w)["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 1)
	first := data[0].(map[string]interface{})
	assert.Equal(t, "Mere", first["requester"].(map[string]interface{})["name"])
	mockBookingSvc.AssertExpectations(t)
}

func TestRestBookingHandler_ListBookings_Empty(t *testing.T) {
	mockBookingSvc := new(MockBookingService)
	owner := &auth.Session{UserID: utils.NewSixID()}
	r := setupBookingRouter(mockBookingSvc, owner)

	listingID := utils.NewSixID()
	mockBookingSvc.On("ListBookingsForListing", mock.Anything, owner.UserID, listingID).Return([]*models.BookingView(nil), nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/listing/"+listingID.String()+"/booking", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}
