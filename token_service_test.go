package gateway_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gateway "github.com/goliatone/go-auth-gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://app.example.com/"

func newTokenService(t *testing.T) (*gateway.ActionTokenService, *gateway.MemoryActionKeyStore, *captureDispatcher) {
	t.Helper()
	store := gateway.NewMemoryActionKeyStore()
	mail := &captureDispatcher{}
	svc := gateway.NewActionTokenService(store, mail, testBaseURL).WithLogger(testLogger{})
	return svc, store, mail
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestActionTokenService_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	svc, store, mail := newTokenService(t)

	issued, err := svc.Issue(ctx, gateway.ActionVerifyEmail, "jane@example.com", "uid-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(issued.Link, "https://app.example.com/verify-email?token="))
	assert.Equal(t, issued.Token, tokenFromLink(t, issued.Link))
	assert.Equal(t, 1, store.Len())

	sent := mail.last()
	assert.Equal(t, "verify", sent.Kind)
	assert.Equal(t, "jane@example.com", sent.Email)
	assert.Equal(t, issued.Link, sent.Link)

	record, err := store.Get(ctx, gateway.ActionVerifyEmail, "jane@example.com")
	require.NoError(t, err)
	assert.Len(t, record.SigningKey, gateway.DefaultSigningKeyLength)
	assert.Equal(t, "uid-1", record.OwnerID)
	assert.NotEmpty(t, record.ID)
	assert.WithinDuration(t, record.CreatedAt.Add(24*time.Hour), record.ExpiresAt, time.Second)

	action, err := svc.Verify(ctx, gateway.ActionVerifyEmail, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", action.Email)
	assert.Equal(t, "uid-1", action.OwnerID)
	assert.Equal(t, gateway.ActionVerifyEmail, action.ActionType)
	assert.Equal(t, 0, store.Len())
}

func TestActionTokenService_SingleUse(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTokenService(t)

	issued, err := svc.Issue(ctx, gateway.ActionResetPassword, "jane@example.com", "uid-1")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, gateway.ActionResetPassword, issued.Token)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, gateway.ActionResetPassword, issued.Token)
	require.Error(t, err)
	assert.True(t, gateway.IsKeyNotFound(err))
}

func TestActionTokenService_ReissueInvalidatesPreviousToken(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTokenService(t)

	first, err := svc.Issue(ctx, gateway.ActionResetPassword, "jane@example.com", "uid-1")
	require.NoError(t, err)
	second, err := svc.Issue(ctx, gateway.ActionResetPassword, "jane@example.com", "uid-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	_, err = svc.Verify(ctx, gateway.ActionResetPassword, first.Token)
	require.Error(t, err)
	assert.True(t, gateway.IsSignatureInvalid(err))

	_, err = svc.Verify(ctx, gateway.ActionResetPassword, second.Token)
	require.NoError(t, err)
}

func TestActionTokenService_ReissueIgnoresEmailCase(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTokenService(t)

	first, err := svc.Issue(ctx, gateway.ActionResetPassword, "Jane@Example.com", "uid-1")
	require.NoError(t, err)
	second, err := svc.Issue(ctx, gateway.ActionResetPassword, "jane@example.com", "uid-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	_, err = svc.Verify(ctx, gateway.ActionResetPassword, first.Token)
	require.Error(t, err)
	assert.True(t, gateway.IsSignatureInvalid(err))

	_, err = svc.Verify(ctx, gateway.ActionResetPassword, second.Token)
	require.NoError(t, err)
}

func TestActionTokenService_ActionTypesAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc, _, mail := newTokenService(t)

	issued, err := svc.Issue(ctx, gateway.ActionResetPassword, "jane@example.com", "uid-1")
	require.NoError(t, err)
	assert.Equal(t, "reset", mail.last().Kind)
	assert.Contains(t, issued.Link, "/reset-password?token=")

	_, err = svc.Verify(ctx, gateway.ActionVerifyEmail, issued.Token)
	require.Error(t, err)
	assert.True(t, gateway.IsKeyNotFound(err))
}

func TestActionTokenService_Expired(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTokenService(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	issued, err := svc.Issue(ctx, gateway.ActionResetPassword, "jane@example.com", "uid-1")
	require.NoError(t, err)

	now = now.Add(61 * time.Minute)

	_, err = svc.Verify(ctx, gateway.ActionResetPassword, issued.Token)
	require.Error(t, err)
	assert.True(t, gateway.IsTokenExpired(err))
	assert.Equal(t, 1, store.Len(), "failed verification must not consume the key")
}

func TestActionTokenService_Malformed(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTokenService(t)

	_, err := svc.Verify(ctx, gateway.ActionVerifyEmail, "not-a-jwt")
	require.Error(t, err)
	assert.True(t, gateway.IsTokenMalformed(err))

	noEmail, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("whatever-key-123"))
	require.NoError(t, err)

	_, err = svc.Verify(ctx, gateway.ActionVerifyEmail, noEmail)
	require.Error(t, err)
	assert.True(t, gateway.IsTokenMalformed(err))
}

func TestActionTokenService_ForgedSignature(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTokenService(t)

	_, err := svc.Issue(ctx, gateway.ActionVerifyEmail, "jane@example.com", "uid-1")
	require.NoError(t, err)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, gateway.ActionClaims{
		Email: "jane@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("attacker-chosen-key"))
	require.NoError(t, err)

	_, err = svc.Verify(ctx, gateway.ActionVerifyEmail, forged)
	require.Error(t, err)
	assert.True(t, gateway.IsSignatureInvalid(err))
}

func TestActionTokenService_IssueValidation(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTokenService(t)

	_, err := svc.Issue(ctx, gateway.ActionType("delete-account"), "jane@example.com", "uid-1")
	require.Error(t, err)

	_, err = svc.Issue(ctx, gateway.ActionVerifyEmail, "jane@example.com", "")
	require.Error(t, err)
	assert.True(t, gateway.HasTextCode(err, gateway.TextCodeOwnerMissing))
	assert.Equal(t, 0, store.Len())
}

func TestActionTokenService_MailFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	store := gateway.NewMemoryActionKeyStore()
	mail := &captureDispatcher{err: errors.New("smtp down")}
	svc := gateway.NewActionTokenService(store, mail, testBaseURL).WithLogger(testLogger{})

	_, err := svc.Issue(ctx, gateway.ActionVerifyEmail, "jane@example.com", "uid-1")
	require.Error(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestGenerateSigningKey(t *testing.T) {
	key, err := gateway.GenerateSigningKey(32)
	require.NoError(t, err)
	assert.Len(t, key, 32)
	for _, r := range key {
		assert.True(t, (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}

	short, err := gateway.GenerateSigningKey(4)
	require.NoError(t, err)
	assert.Len(t, short, gateway.MinSigningKeyLength)

	other, err := gateway.GenerateSigningKey(32)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestActionTokenService_WithKeyLength(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		length int
		want   int
	}{
		{name: "configured", length: 48, want: 48},
		{name: "clamped to minimum", length: 8, want: gateway.MinSigningKeyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := gateway.NewMemoryActionKeyStore()
			svc := gateway.NewActionTokenService(store, &captureDispatcher{}, testBaseURL).
				WithKeyLength(tt.length)

			issued, err := svc.Issue(ctx, gateway.ActionVerifyEmail, "jane@example.com", "uid-1")
			require.NoError(t, err)

			record, err := store.Get(ctx, gateway.ActionVerifyEmail, "jane@example.com")
			require.NoError(t, err)
			assert.Len(t, record.SigningKey, tt.want)

			_, err = svc.Verify(ctx, gateway.ActionVerifyEmail, issued.Token)
			assert.NoError(t, err)
		})
	}
}
