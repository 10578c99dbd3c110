package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/metrics"
	"greendrake/rentals/internal/utils"
)

// Verification failures. All are Unauthenticated; Code tells them apart.
var (
	ErrMissingToken     = apperrors.New(apperrors.KindUnauthenticated, "missing_token", "session token is missing")
	ErrInvalidSignature = apperrors.New(apperrors.KindUnauthenticated, "invalid_signature", "session token signature is invalid")
	ErrExpired          = apperrors.New(apperrors.KindUnauthenticated, "expired", "session token is expired")
	ErrIssuerMismatch   = apperrors.New(apperrors.KindUnauthenticated, "issuer_mismatch", "session token issuer does not match")
)

// Claims defines the structure of the JWT claims.
type Claims struct {
	IsAdmin bool `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// Session is the verified identity carried by a token.
type Session struct {
	UserID    utils.SixID
	IsAdmin   bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssuedSession is a freshly signed token and its expiry.
type IssuedSession struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ISessionService issues and verifies session tokens.
type ISessionService interface {
	Issue(userID utils.SixID, isAdmin bool) (*IssuedSession, error)
	Verify(token string) (*Session, error)
}

// SessionService signs tokens with HS256. Secret, issuer and TTL are fixed at construction.
type SessionService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionService(secret, issuer string, ttl time.Duration) *SessionService {
	return &SessionService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock returns a copy of s that reads the current time from now.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	cp := *s
	cp.now = now
	return &cp
}

// Issue creates a signed token for userID valid for [now, now+TTL).
func (s *SessionService) Issue(userID utils.SixID, isAdmin bool) (*IssuedSession, error) {
	if userID.IsZero() {
		return nil, apperrors.Validation("cannot issue a session for an empty user id")
	}
	// NumericDate has second precision; truncate so the returned expiry matches the token.
	issuedAt := s.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)
	claims := &Claims{
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign JWT: %w", err)
	}

	metrics.SessionsIssued.Inc()
	return &IssuedSession{Token: tokenString, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, validity window and issuer, in that order, and
// returns the session subject. No partially trusted result is ever returned.
func (s *SessionService) Verify(tokenString string) (*Session, error) {
	sess, err := s.verify(tokenString)
	if err != nil {
		metrics.SessionVerifyFailures.WithLabelValues(apperrors.CodeOf(err)).Inc()
		return nil, err
	}
	return sess, nil
}

func (s *SessionService) verify(tokenString string) (*Session, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	userID, err := utils.ParseSixID(claims.Subject)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnauthenticated, ErrInvalidSignature.Code, "session token subject is malformed", err)
	}

	return &Session{
		UserID:    userID,
		IsAdmin:   claims.IsAdmin,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return apperrors.Wrap(apperrors.KindUnauthenticated, ErrExpired.Code, ErrExpired.Message, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return apperrors.Wrap(apperrors.KindUnauthenticated, ErrIssuerMismatch.Code, ErrIssuerMismatch.Message, err)
	default:
		// Bad signature, malformed token, disallowed alg, missing exp.
		return apperrors.Wrap(apperrors.KindUnauthenticated, ErrInvalidSignature.Code, ErrInvalidSignature.Message, err)
	}
}
