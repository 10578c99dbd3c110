package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/auth"
	"greendrake/rentals/internal/config"
	"greendrake/rentals/internal/db"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/store"
	"greendrake/rentals/internal/utils"
	"greendrake/rentals/internal/validation"
)

var (
	ErrInvalidCredentials = apperrors.New(apperrors.KindUnauthenticated, "invalid_credentials", "email or password is incorrect")
	ErrUserSuspended      = apperrors.New(apperrors.KindUnauthorized, "user_suspended", "user account is suspended")
)

// IUserService defines the interface for user-related operations.
// This allows for easier mocking in tests.
type IUserService interface {
	Register(ctx context.Context, in models.RegisterUserInput) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
}

// userService implements IUserService.
type userService struct {
	store         store.Store
	validator     *validation.Validator
	retryAttempts int
}

// NewUserService creates a new UserService.
func NewUserService(st store.Store, cfg *config.Config) IUserService {
	return &userService{store: st, validator: validation.New(), retryAttempts: cfg.StoreRetryAttempts}
}

// Register creates a user with a bcrypt password hash.
func (s *userService) Register(ctx context.Context, in models.RegisterUserInput) (*models.User, error) {
	if err := s.validator.Struct(&in); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = db.RetryTransient(ctx, s.retryAttempts, func(ctx context.Context) error {
		return db.Try(func() error {
			now := time.Now().UTC()
			user = &models.User{
				Name:         strings.TrimSpace(in.Name),
				Email:        strings.ToLower(strings.TrimSpace(in.Email)),
				PasswordHash: hash,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			user.GenID()
			return s.store.InsertUser(ctx, user)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	log.Printf("Registered user %s", user.ID)
	return user, nil
}

// Authenticate checks credentials. Unknown email and wrong password are indistinguishable.
func (s *userService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user *models.User
	err := db.RetryTransient(ctx, s.retryAttempts, func(ctx context.Context) error {
		var err error
		user, err = s.store.FindUserByEmail(ctx, strings.TrimSpace(email))
		return err
	})
	if apperrors.KindOf(err) == apperrors.KindNotFound {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if user.Suspended {
		return nil, ErrUserSuspended
	}
	return user, nil
}

func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user *models.User
	err := db.RetryTransient(ctx, s.retryAttempts, func(ctx context.Context) error {
		var err error
		user, err = s.store.FindUserByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", userID, err)
	}
	return user, nil
}
