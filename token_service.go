package gateway

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	DefaultSigningKeyLength = 32
	MinSigningKeyLength     = 16

	signingKeyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ActionClaims is the payload of an action token.
type ActionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssuedActionToken is the result of a successful issuance.
type IssuedActionToken struct {
	Token     string
	Link      string
	ExpiresAt time.Time
}

// VerifiedAction is returned once a token has been verified and consumed.
type VerifiedAction struct {
	ActionType ActionType
	Email      string
	OwnerID    string
	ExpiresAt  time.Time
}

// ActionTokenService issues and verifies single use action tokens. Each token
// is signed with its own key, stored per action type and email.
type ActionTokenService struct {
	store     ActionKeyStore
	mailer    EmailDispatcher
	baseURL   string
	keyLength int
	now       func() time.Time
	logger    Logger
}

// NewActionTokenService creates an ActionTokenService. baseURL is the front
// end origin hosting the verify-email and reset-password pages.
func NewActionTokenService(store ActionKeyStore, mailer EmailDispatcher, baseURL string) *ActionTokenService {
	return &ActionTokenService{
		store:     store,
		mailer:    mailer,
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyLength: DefaultSigningKeyLength,
		now:       time.Now,
		logger:    defLogger{},
	}
}

func (s *ActionTokenService) WithLogger(logger Logger) *ActionTokenService {
	s.logger = normalizeLogger(logger)
	return s
}

// WithClock overrides the time source used for expiry.
func (s *ActionTokenService) WithClock(now func() time.Time) *ActionTokenService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithKeyLength sets the signing key length, never below MinSigningKeyLength.
func (s *ActionTokenService) WithKeyLength(n int) *ActionTokenService {
	if n < MinSigningKeyLength {
		n = MinSigningKeyLength
	}
	s.keyLength = n
	return s
}

// Issue stores a fresh signing key for (actionType, email), replacing any
// previous one, and mails the action link. The record is written before the
// email is sent.
func (s *ActionTokenService) Issue(ctx context.Context, actionType ActionType, email, ownerID string) (*IssuedActionToken, error) {
	if !actionType.Valid() {
		return nil, goerrors.New("unknown action type", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"action_type": string(actionType)})
	}

	if ownerID == "" {
		return nil, ErrOwnerMissing.Clone().WithMetadata(map[string]any{"email": email})
	}

	key, err := GenerateSigningKey(s.keyLength)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate signing key")
	}

	now := s.now()
	expiresAt := now.Add(actionType.TTL())

	record := &ActionKeyRecord{
		ID:         uuid.NewString(),
		ActionType: actionType,
		Email:      email,
		SigningKey: key,
		OwnerID:    ownerID,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}

	if err := s.store.Put(ctx, record); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store action key")
	}

	claims := &ActionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign action token")
	}

	issued := &IssuedActionToken{
		Token:     signed,
		Link:      s.link(actionType, signed),
		ExpiresAt: expiresAt,
	}

	if err := s.dispatch(ctx, actionType, email, issued.Link); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to send action email").
			WithMetadata(map[string]any{"action_type": string(actionType)})
	}

	s.logger.Info("issued %s token for %s", actionType, email)

	return issued, nil
}

// Verify checks tokenString against the live key for its email and consumes
// the key on success. A second call with the same token fails with
// ErrKeyNotFound.
func (s *ActionTokenService) Verify(ctx context.Context, actionType ActionType, tokenString string) (*VerifiedAction, error) {
	// untrusted decode, only used to find the key
	routing := &ActionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, routing); err != nil {
		return nil, WithCause(ErrTokenMalformed, err)
	}

	if routing.Email == "" {
		return nil, ErrTokenMalformed.Clone().WithMetadata(map[string]any{"reason": "missing email claim"})
	}

	record, err := s.store.Get(ctx, actionType, routing.Email)
	if err != nil {
		if IsKeyNotFound(err) {
			return nil, WithCause(ErrKeyNotFound, err).WithMetadata(map[string]any{
				"action_type": string(actionType),
			})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load action key")
	}

	verified := &ActionClaims{}
	_, err = jwt.ParseWithClaims(tokenString, verified, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(record.SigningKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, WithCause(ErrTokenExpired, err)
		}
		return nil, WithCause(ErrSignatureInvalid, err)
	}

	if !strings.EqualFold(verified.Email, record.Email) {
		return nil, ErrSignatureInvalid.Clone().WithMetadata(map[string]any{"reason": "email mismatch"})
	}

	if record.OwnerID == "" {
		return nil, ErrOwnerMissing.Clone()
	}

	if err := s.store.Delete(ctx, actionType, record.Email); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume action key")
	}

	result := &VerifiedAction{
		ActionType: actionType,
		Email:      verified.Email,
		OwnerID:    record.OwnerID,
	}
	if verified.ExpiresAt != nil {
		result.ExpiresAt = verified.ExpiresAt.Time
	}

	return result, nil
}

func (s *ActionTokenService) link(actionType ActionType, token string) string {
	return s.baseURL + actionType.Path() + "?token=" + url.QueryEscape(token)
}

func (s *ActionTokenService) dispatch(ctx context.Context, actionType ActionType, email, link string) error {
	if s.mailer == nil {
		return nil
	}
	switch actionType {
	case ActionVerifyEmail:
		return s.mailer.SendVerificationEmail(ctx, email, link)
	case ActionResetPassword:
		return s.mailer.SendPasswordResetEmail(ctx, email, link)
	}
	return nil
}

// GenerateSigningKey returns n random alphanumeric characters.
func GenerateSigningKey(n int) (string, error) {
	if n < MinSigningKeyLength {
		n = MinSigningKeyLength
	}

	limit := big.NewInt(int64(len(signingKeyAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = signingKeyAlphabet[idx.Int64()]
	}
	return string(b), nil
}
