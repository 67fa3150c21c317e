// Package bearer extracts raw access tokens from router requests and stores
// them in the request context store. Verification is left to the handler so
// that routes can decide how to treat a bad token.
package bearer

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup         = "header:" + router.HeaderAuthorization
	ErrTokenMissingOrMalformed = errors.New("missing or malformed access token")
)

type ErrorHandler func(router.Context, error) error

type Config struct {
	// Filter skips the middleware when it returns true.
	Filter       func(router.Context) bool
	ErrorHandler ErrorHandler
	// ContextKey is the context store key the raw token is stored under.
	ContextKey string
	// TokenLookup is a comma separated list of "<source>:<name>" pairs.
	// Supported sources are header, query and cookie.
	TokenLookup string
	AuthScheme  string
	// Optional lets requests without a token through with an empty value.
	Optional bool
}

func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if cfg.Filter != nil && cfg.Filter(c) {
				return next(c)
			}

			raw, err := ExtractRawToken(c, extractors)
			if err != nil && !cfg.Optional {
				return cfg.ErrorHandler(c, err)
			}

			c.Set(cfg.ContextKey, raw)
			return next(c)
		}
	}
}

// Token returns the raw token stored by New under key, or an empty string.
func Token(c router.Context, key string) string {
	return c.GetString(key, "")
}

// Cookie returns the value of the named request cookie, or an empty string.
func Cookie(c router.Context, name string) string {
	raw := c.Header("Cookie")
	if raw == "" {
		return ""
	}
	req := http.Request{Header: http.Header{"Cookie": {raw}}}
	cookie, err := req.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func ExtractRawToken(c router.Context, extractors []Extractor) (string, error) {
	raw := ""
	err := ErrTokenMissingOrMalformed

	for _, extractor := range extractors {
		raw, err = extractor(c)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]any{
				"error": map[string]any{"message": err.Error()},
			})
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "access_token"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

type Extractor func(c router.Context) (string, error)

func GetExtractors(tokenLookup string, authScheme string) []Extractor {
	extractors := make([]Extractor, 0)

	// header:Authorization,cookie:access_token,query:access_token
	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}

		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		}
	}

	return extractors
}

func fromHeader(header string, authScheme string) Extractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c router.Context) (string, error) {
		a := c.Header(header)
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			if token := strings.TrimSpace(a[l:]); token != "" {
				return token, nil
			}
		}
		return "", ErrTokenMissingOrMalformed
	}
}

func fromQuery(param string) Extractor {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func fromCookie(name string) Extractor {
	return func(c router.Context) (string, error) {
		token := Cookie(c, name)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}
