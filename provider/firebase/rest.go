package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gateway "github.com/goliatone/go-auth-gateway"
	goerrors "github.com/goliatone/go-errors"
	"github.com/sethvargo/go-retry"
)

// RESTClient calls the Identity Toolkit and Secure Token endpoints.
type RESTClient struct {
	apiKey             string
	identityToolkitURL string
	secureTokenURL     string
	httpClient         *http.Client
	backoff            func() retry.Backoff
}

func NewRESTClient(cfg Config) *RESTClient {
	cfg = cfg.withDefaults()
	return &RESTClient{
		apiKey:             cfg.WebAPIKey,
		identityToolkitURL: cfg.IdentityToolkitURL,
		secureTokenURL:     cfg.SecureTokenURL,
		httpClient:         cfg.HTTPClient,
		backoff:            defaultBackoff,
	}
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
}

// WithBackoff replaces the retry policy. The factory is called once per
// request because backoffs are stateful.
func (c *RESTClient) WithBackoff(fn func() retry.Backoff) *RESTClient {
	if fn != nil {
		c.backoff = fn
	}
	return c
}

type passwordGrantRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type customTokenRequest struct {
	Token             string `json:"token"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}

type signInResponse struct {
	LocalID      string `json:"localId"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type refreshResponse struct {
	UserID       string `json:"user_id"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

// APIError is a non 2xx answer from the REST endpoints.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firebase rest: status %d: %s", e.Status, e.Message)
}

// Code is the upper case error code that prefixes the message, for example
// "WEAK_PASSWORD" in "WEAK_PASSWORD : Password should be at least 6
// characters".
func (e *APIError) Code() string {
	code, _, _ := strings.Cut(e.Message, " ")
	return strings.TrimSpace(code)
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignInWithPassword runs the password grant. It returns the session and
// the account uid.
func (c *RESTClient) SignInWithPassword(ctx context.Context, email, password string) (*gateway.SessionTokenPair, string, error) {
	var out signInResponse
	err := c.post(ctx, c.identityToolkitURL+"/accounts:signInWithPassword", passwordGrantRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &out)
	if err != nil {
		return nil, "", mapSignInError(err)
	}

	return &gateway.SessionTokenPair{
		AccessToken:  out.IDToken,
		RefreshToken: out.RefreshToken,
	}, out.LocalID, nil
}

func (c *RESTClient) SignInWithCustomToken(ctx context.Context, customToken string) (*gateway.SessionTokenPair, error) {
	var out signInResponse
	err := c.post(ctx, c.identityToolkitURL+"/accounts:signInWithCustomToken", customTokenRequest{
		Token:             customToken,
		ReturnSecureToken: true,
	}, &out)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "custom token exchange failed")
	}

	return &gateway.SessionTokenPair{
		AccessToken:  out.IDToken,
		RefreshToken: out.RefreshToken,
	}, nil
}

func (c *RESTClient) Refresh(ctx context.Context, refreshToken string) (*gateway.SessionTokenPair, error) {
	var out refreshResponse
	err := c.post(ctx, c.secureTokenURL+"/token", refreshRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	}, &out)
	if err != nil {
		return nil, mapRefreshError(err)
	}

	return &gateway.SessionTokenPair{
		AccessToken:  out.IDToken,
		RefreshToken: out.RefreshToken,
	}, nil
}

func (c *RESTClient) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	target := endpoint + "?" + url.Values{"key": {c.apiKey}}.Encode()

	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}

		if resp.StatusCode >= http.StatusBadRequest {
			apiErr := parseAPIError(resp.StatusCode, raw)
			if resp.StatusCode >= http.StatusInternalServerError {
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}

		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("firebase rest: failed to decode response: %w", err)
		}
		return nil
	})
}

func parseAPIError(status int, raw []byte) *APIError {
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return &APIError{Status: status, Message: body.Error.Message}
	}
	return &APIError{Status: status, Message: http.StatusText(status)}
}

func apiErrorCode(err error) string {
	var apiErr *APIError
	if goerrors.As(err, &apiErr) {
		return apiErr.Code()
	}
	return ""
}

func mapSignInError(err error) error {
	switch apiErrorCode(err) {
	case "EMAIL_NOT_FOUND", "INVALID_EMAIL":
		return gateway.WithCause(gateway.ErrUserNotFound, err)
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return gateway.WithCause(gateway.ErrInvalidCredentials, err)
	case "USER_DISABLED":
		return gateway.WithCause(gateway.ErrAccountDisabled, err)
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "password sign in failed")
}

func mapRefreshError(err error) error {
	var apiErr *APIError
	if !goerrors.As(err, &apiErr) {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "token refresh failed")
	}

	if apiErr.Code() == "USER_DISABLED" {
		return gateway.WithCause(gateway.ErrAccountDisabled, err)
	}
	if apiErr.Status < http.StatusInternalServerError {
		return gateway.WithCause(gateway.ErrInvalidRefreshToken, err)
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "token refresh failed")
}
