package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-auth-gateway/middleware/bearer"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// AuthOperations is the set of operations the HTTP layer exposes. *Service
// implements it.
type AuthOperations interface {
	Health() HealthStatus
	Register(ctx context.Context, req RegisterRequest) (*SessionTokenPair, error)
	Login(ctx context.Context, req LoginRequest) (*Session, error)
	ForgotPassword(ctx context.Context, req ForgotPasswordRequest) (*MessageResponse, error)
	ResendVerification(ctx context.Context, accessToken string) (*MessageResponse, error)
	VerifyEmail(ctx context.Context, req VerifyEmailRequest) (*VerifyEmailResponse, error)
	ResetPassword(ctx context.Context, req ResetPasswordRequest) (*SuccessResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*Session, error)
	Logout(ctx context.Context, accessToken string) *SuccessResponse
	VerifyAccessToken(ctx context.Context, req VerifyAccessTokenRequest) (*VerifyAccessTokenResponse, error)
}

const (
	MsgInvalidRequestBody   = "Invalid request body"
	accessTokenLocal        = "access_token"
	verifyAccessTokenMaxAge = "private, max-age=600"
)

type HTTPControllerRoutes struct {
	Health             string
	Register           string
	Login              string
	ForgotPassword     string
	ResendVerification string
	VerifyEmail        string
	ResetPassword      string
	RefreshToken       string
	Logout             string
	VerifyAccessToken  string
}

// RefreshCookie describes the cookie that carries the refresh token.
type RefreshCookie struct {
	Name     string
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

type HTTPController struct {
	Prefix string
	Routes *HTTPControllerRoutes
	Cookie RefreshCookie
	Logger Logger
	ops    AuthOperations
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithControllerPrefix(prefix string) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Prefix = prefix
		return c
	}
}

func WithCookieDomain(domain string) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Cookie.Domain = domain
		return c
	}
}

func WithCookieSecure(secure bool) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Cookie.Secure = secure
		return c
	}
}

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func NewHTTPController(ops AuthOperations, opts ...HTTPControllerOption) *HTTPController {
	if ops == nil {
		panic("Missing AuthOperations in http controller...")
	}

	c := &HTTPController{
		Prefix: "/auth",
		Logger: defLogger{},
		ops:    ops,
		Routes: &HTTPControllerRoutes{
			Health:             "/health",
			Register:           "/register",
			Login:              "/login",
			ForgotPassword:     "/forgot-password",
			ResendVerification: "/resend-verification",
			VerifyEmail:        "/verify-email",
			ResetPassword:      "/reset-password",
			RefreshToken:       "/refresh-token",
			Logout:             "/logout",
			VerifyAccessToken:  "/verify-access-token",
		},
		Cookie: RefreshCookie{
			Name:     "refresh_token",
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
			MaxAge:   30 * 24 * time.Hour,
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Cookie.Path == "" {
		c.Cookie.Path = c.Prefix + c.Routes.RefreshToken
	}

	return c
}

// RegisterAuthRoutes mounts every auth route of ctrl under its prefix.
func RegisterAuthRoutes[T any](r router.Router[T], ctrl *HTTPController) {
	g := r.Group(ctrl.Prefix)

	withToken := bearer.New(bearer.Config{
		ContextKey: accessTokenLocal,
		Optional:   true,
	})

	g.Get(ctrl.Routes.Health, ctrl.Health)
	g.Post(ctrl.Routes.Register, ctrl.Register)
	g.Post(ctrl.Routes.Login, ctrl.Login)
	g.Post(ctrl.Routes.ForgotPassword, ctrl.ForgotPassword)
	g.Get(ctrl.Routes.ResendVerification, ctrl.ResendVerification, withToken)
	g.Post(ctrl.Routes.VerifyEmail, ctrl.VerifyEmail)
	g.Post(ctrl.Routes.ResetPassword, ctrl.ResetPassword)
	g.Get(ctrl.Routes.RefreshToken, ctrl.RefreshToken)
	g.Get(ctrl.Routes.Logout, ctrl.Logout, withToken)
	g.Post(ctrl.Routes.VerifyAccessToken, ctrl.VerifyAccessToken)
}

func (a *HTTPController) Health(c router.Context) error {
	return sendData(c, http.StatusOK, a.ops.Health())
}

func (a *HTTPController) Register(c router.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return sendInvalidBody(c)
	}

	tokens, err := a.ops.Register(c.Context(), req)
	if err != nil {
		return sendError(c, err)
	}

	return sendData(c, http.StatusCreated, tokens)
}

func (a *HTTPController) Login(c router.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return sendInvalidBody(c)
	}

	session, err := a.ops.Login(c.Context(), req)
	if err != nil {
		return sendError(c, err)
	}

	a.setRefreshCookie(c, session.RefreshToken)
	return sendData(c, http.StatusOK, session.Tokens)
}

func (a *HTTPController) ForgotPassword(c router.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return sendInvalidBody(c)
	}

	resp, err := a.ops.ForgotPassword(c.Context(), req)
	if err != nil {
		return sendError(c, err)
	}

	return sendData(c, http.StatusOK, resp)
}

func (a *HTTPController) ResendVerification(c router.Context) error {
	resp, err := a.ops.ResendVerification(c.Context(), bearer.Token(c, accessTokenLocal))
	if err != nil {
		return sendError(c, err)
	}

	return sendData(c, http.StatusOK, resp)
}

func (a *HTTPController) VerifyEmail(c router.Context) error {
	var req VerifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return sendInvalidBody(c)
	}

	resp, err := a.ops.VerifyEmail(c.Context(), req)
	if err != nil {
		return sendError(c, err)
	}

	return sendData(c, http.StatusOK, resp)
}

func (a *HTTPController) ResetPassword(c router.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return sendInvalidBody(c)
	}

	resp, err := a.ops.ResetPassword(c.Context(), req)
	if err != nil {
		return sendError(c, err)
	}

	return sendData(c, http.StatusOK, resp)
}

func (a *HTTPController) RefreshToken(c router.Context) error {
	session, err := a.ops.RefreshToken(c.Context(), bearer.Cookie(c, a.Cookie.Name))
	if err != nil {
		return sendError(c, err)
	}

	a.setRefreshCookie(c, session.RefreshToken)
	return sendData(c, http.StatusOK, session.Tokens)
}

// Logout always succeeds and always clears the refresh cookie.
func (a *HTTPController) Logout(c router.Context) error {
	resp := a.ops.Logout(c.Context(), bearer.Token(c, accessTokenLocal))
	a.clearRefreshCookie(c)
	return sendData(c, http.StatusOK, resp)
}

func (a *HTTPController) VerifyAccessToken(c router.Context) error {
	var req VerifyAccessTokenRequest
	if err := c.Bind(&req); err != nil {
		return sendInvalidBody(c)
	}

	resp, err := a.ops.VerifyAccessToken(c.Context(), req)
	if err != nil {
		return sendError(c, err)
	}

	c.SetHeader(fiber.HeaderCacheControl, verifyAccessTokenMaxAge)
	return sendData(c, http.StatusOK, resp)
}

func (a *HTTPController) setRefreshCookie(c router.Context, token string) {
	if token == "" {
		return
	}
	a.writeCookie(c, &http.Cookie{
		Name:    a.Cookie.Name,
		Value:   token,
		MaxAge:  int(a.Cookie.MaxAge.Seconds()),
		Expires: time.Now().Add(a.Cookie.MaxAge),
	})
}

func (a *HTTPController) clearRefreshCookie(c router.Context) {
	a.writeCookie(c, &http.Cookie{
		Name:    a.Cookie.Name,
		Value:   "",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
}

func (a *HTTPController) writeCookie(c router.Context, cookie *http.Cookie) {
	cookie.Domain = a.Cookie.Domain
	cookie.Path = a.Cookie.Path
	cookie.Secure = a.Cookie.Secure
	cookie.HttpOnly = true
	cookie.SameSite = a.Cookie.SameSite
	c.SetHeader(fiber.HeaderSetCookie, cookie.String())
}

func sendData(c router.Context, status int, data any) error {
	return c.JSON(status, map[string]any{"data": data})
}

func sendError(c router.Context, err error) error {
	return c.JSON(StatusCode(err), errorBody(PublicMessage(err)))
}

func sendInvalidBody(c router.Context) error {
	return sendError(c, InvalidInputError(MsgInvalidRequestBody, nil))
}

func errorBody(message string) map[string]any {
	return map[string]any{
		"error": map[string]any{"message": message},
	}
}

// FiberErrorHandler renders errors that never reach a route, such as 404 and
// 405, with the same envelope as the auth routes.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if goerrors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorBody(fe.Message))
	}
	return c.Status(StatusCode(err)).JSON(errorBody(PublicMessage(err)))
}
