package handlers_test

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"greendrake/rentals/internal/api/middleware"
	"greendrake/rentals/internal/auth"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/utils"
)

// --- Mocks ---

// MockUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, in models.RegisterUserInput) (*models.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateListing(ctx context.Context, ownerID utils.SixID, in models.CreateListingInput) (*models.Listing, error) {
	args := m.Called(ctx, ownerID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) GetListing(ctx context.Context, viewerID *utils.SixID, listingID utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, viewerID, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) PublishListing(ctx context.Context, ownerID, listingID utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, ownerID, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) UnpublishListing(ctx context.Context, ownerID, listingID utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, ownerID, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) AdminUnpublishListing(ctx context.Context, session *auth.Session, listingID utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, session, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

// MockBookingService
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) CreateBooking(ctx context.Context, requesterID utils.SixID, in models.CreateBookingInput) (*models.BookingRequest, error) {
	args := m.Called(ctx, requesterID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingRequest), args.Error(1)
}

func (m *MockBookingService) ConfirmBooking(ctx context.Context, ownerID, listingID, bookingID utils.SixID) (*models.BookingRequest, error) {
	args := m.Called(ctx, ownerID, listingID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingRequest), args.Error(1)
}

func (m *MockBookingService) RejectBooking(ctx context.Context, ownerID, listingID, bookingID utils.SixID) (*models.BookingRequest, error) {
	args := m.Called(ctx, ownerID, listingID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingRequest), args.Error(1)
}

func (m *MockBookingService) ListBookingsForListing(ctx context.Context, ownerID, listingID utils.SixID) ([]*models.BookingView, error) {
	args := m.Called(ctx, ownerID, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BookingView), args.Error(1)
}

func (m *MockBookingService) ExpireStaleBookings(ctx context.Context, before time.Time, limit int) (int, error) {
	args := m.Called(ctx, before, limit)
	return args.Int(0), args.Error(1)
}

// MockSessionService
type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Issue(userID utils.SixID, isAdmin bool) (*auth.IssuedSession, error) {
	args := m.Called(userID, isAdmin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.IssuedSession), args.Error(1)
}

func (m *MockSessionService) Verify(token string) (*auth.Session, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

// asUser stands in for AuthMiddleware in handler tests.
func asUser(session *auth.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if session != nil {
			c.Set(middleware.ContextKeyUserID, session.UserID)
			c.Set(middleware.ContextKeyIsAdmin, session.IsAdmin)
			c.Set(middleware.ContextKeySession, session)
		}
		c.Next()
	}
}
