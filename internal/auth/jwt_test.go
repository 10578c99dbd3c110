package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/utils"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestSessions(clock *fakeClock) *SessionService {
	return NewSessionService("test-secret", "rentals", 2*time.Hour).WithClock(clock.Now)
}

func TestSession_IssueAndVerify(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	svc := newTestSessions(clock)
	userID := utils.NewSixID()

	issued, err := svc.Issue(userID, false)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(2*time.Hour), issued.ExpiresAt)

	sess, err := svc.Verify(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, sess.UserID)
	assert.False(t, sess.IsAdmin)
	assert.True(t, sess.IssuedAt.Equal(clock.t))
}

func TestSession_ExpiryWindow(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: t0}
	svc := newTestSessions(clock)
	userID := utils.NewSixID()

	issued, err := svc.Issue(userID, false)
	require.NoError(t, err)

	clock.t = t0.Add(time.Hour + 59*time.Minute)
	sess, err := svc.Verify(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, sess.UserID)

	clock.t = t0.Add(2*time.Hour + time.Minute)
	_, err = svc.Verify(issued.Token)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, apperrors.KindUnauthenticated, apperrors.KindOf(err))

	// The upper bound is exclusive.
	clock.t = t0.Add(2 * time.Hour)
	_, err = svc.Verify(issued.Token)
	assert.ErrorIs(t, err, ErrExpired)

	// Before issuance is outside the window too.
	clock.t = t0.Add(-time.Minute)
	_, err = svc.Verify(issued.Token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestSession_MissingToken(t *testing.T) {
	svc := newTestSessions(&fakeClock{t: time.Now()})

	_, err := svc.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestSession_InvalidSignature(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestSessions(clock)
	other := NewSessionService("other-secret", "rentals", 2*time.Hour).WithClock(clock.Now)

	issued, err := other.Issue(utils.NewSixID(), true)
	require.NoError(t, err)

	_, err = svc.Verify(issued.Token)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = svc.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// Tampered payload with the original signature.
	own, err := svc.Issue(utils.NewSixID(), false)
	require.NoError(t, err)
	parts := strings.Split(own.Token, ".")
	parts[1] = parts[1][:len(parts[1])-2] + "AA"
	_, err = svc.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSession_RejectsNoneAlgorithm(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestSessions(clock)

	claims := &Claims{
		IsAdmin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   utils.NewSixID().String(),
			Issuer:    "rentals",
			IssuedAt:  jwt.NewNumericDate(clock.t),
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSession_IssuerMismatch(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestSessions(clock)
	foreign := NewSessionService("test-secret", "someone-else", 2*time.Hour).WithClock(clock.Now)

	issued, err := foreign.Issue(utils.NewSixID(), false)
	require.NoError(t, err)

	_, err = svc.Verify(issued.Token)
	assert.ErrorIs(t, err, ErrIssuerMismatch)
}

func TestSession_AdminClaim(t *testing.T) {
	svc := newTestSessions(&fakeClock{t: time.Now()})

	issued, err := svc.Issue(utils.NewSixID(), true)
	require.NoError(t, err)

	sess, err := svc.Verify(issued.Token)
	require.NoError(t, err)
	assert.True(t, sess.IsAdmin)
}

func TestSession_IssueRejectsZeroUser(t *testing.T) {
	svc := newTestSessions(&fakeClock{t: time.Now()})

	_, err := svc.Issue(utils.SixID{}, false)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
