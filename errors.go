package gateway

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeKeyNotFound          = "ACTION_KEY_NOT_FOUND"
	TextCodeSignatureInvalid     = "TOKEN_SIGNATURE_INVALID"
	TextCodeEmailAlreadyExists   = "EMAIL_ALREADY_EXISTS"
	TextCodeInvalidEmail         = "INVALID_EMAIL"
	TextCodeWeakPassword         = "WEAK_PASSWORD"
	TextCodeRegistrationFailed   = "REGISTRATION_FAILED"
	TextCodeUserNotFound         = "USER_NOT_FOUND"
	TextCodeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"
	TextCodeAccessTokenInvalid   = "ACCESS_TOKEN_INVALID"
	TextCodeEmailAlreadyVerified = "EMAIL_ALREADY_VERIFIED"
	TextCodeOwnerMissing         = "ACTION_OWNER_MISSING"
)

var (
	// ErrTokenMalformed is returned when an action token cannot be decoded
	// or carries no email claim.
	ErrTokenMalformed = goerrors.New("action token is malformed", goerrors.CategoryBadInput).
				WithTextCode(goerrors.TextCodeTokenMalformed)

	ErrKeyNotFound = goerrors.New("action key not found", goerrors.CategoryNotFound).
			WithTextCode(TextCodeKeyNotFound)

	ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
			WithTextCode(goerrors.TextCodeTokenExpired)

	ErrSignatureInvalid = goerrors.New("token signature is invalid", goerrors.CategoryAuth).
				WithTextCode(TextCodeSignatureInvalid)

	ErrOwnerMissing = goerrors.New("action key has no owner", goerrors.CategoryInternal).
			WithTextCode(TextCodeOwnerMissing)
)

// provider errors
var (
	ErrEmailAlreadyExists = goerrors.New("email already exists", goerrors.CategoryConflict).
				WithTextCode(TextCodeEmailAlreadyExists)

	ErrInvalidEmail = goerrors.New("invalid email", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidEmail)

	ErrWeakPassword = goerrors.New("password is too weak", goerrors.CategoryValidation).
			WithTextCode(TextCodeWeakPassword)

	ErrRegistrationFailed = goerrors.New("registration failed", goerrors.CategoryExternal).
				WithTextCode(TextCodeRegistrationFailed)

	ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
				WithTextCode(goerrors.TextCodeInvalidCredentials)

	ErrAccountDisabled = goerrors.New("account has been disabled", goerrors.CategoryAuthz).
				WithTextCode(goerrors.TextCodeAccountDisabled)

	ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
			WithTextCode(TextCodeUserNotFound)

	ErrInvalidRefreshToken = goerrors.New("invalid or expired refresh token", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidRefreshToken)

	ErrAccessTokenInvalid = goerrors.New("invalid access token", goerrors.CategoryAuth).
				WithTextCode(TextCodeAccessTokenInvalid)

	ErrEmailAlreadyVerified = goerrors.New("email is already verified", goerrors.CategoryBadInput).
				WithTextCode(TextCodeEmailAlreadyVerified)
)

// WithCause clones a sentinel and attaches the underlying error.
func WithCause(sentinel *goerrors.Error, cause error) *goerrors.Error {
	clone := sentinel.Clone()
	if clone == nil {
		return nil
	}
	clone.Source = cause
	return clone
}

// HasTextCode walks the Source chain of rich errors looking for code.
func HasTextCode(err error, code string) bool {
	for err != nil {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			return false
		}
		if rich.TextCode == code {
			return true
		}
		err = rich.Source
	}
	return false
}

func IsKeyNotFound(err error) bool { return HasTextCode(err, TextCodeKeyNotFound) }

func IsTokenExpired(err error) bool { return HasTextCode(err, goerrors.TextCodeTokenExpired) }

func IsTokenMalformed(err error) bool { return HasTextCode(err, goerrors.TextCodeTokenMalformed) }

func IsSignatureInvalid(err error) bool { return HasTextCode(err, TextCodeSignatureInvalid) }

func IsEmailAlreadyExists(err error) bool { return HasTextCode(err, TextCodeEmailAlreadyExists) }

func IsInvalidEmail(err error) bool { return HasTextCode(err, TextCodeInvalidEmail) }

func IsWeakPassword(err error) bool { return HasTextCode(err, TextCodeWeakPassword) }

func IsInvalidCredentials(err error) bool {
	return HasTextCode(err, goerrors.TextCodeInvalidCredentials)
}

func IsAccountDisabled(err error) bool { return HasTextCode(err, goerrors.TextCodeAccountDisabled) }

func IsUserNotFound(err error) bool { return HasTextCode(err, TextCodeUserNotFound) }

func IsInvalidRefreshToken(err error) bool { return HasTextCode(err, TextCodeInvalidRefreshToken) }

func IsEmailAlreadyVerified(err error) bool {
	return HasTextCode(err, TextCodeEmailAlreadyVerified)
}

// IsActionTokenError reports whether err is one of the action token
// verification failures.
func IsActionTokenError(err error) bool {
	return IsTokenMalformed(err) || IsKeyNotFound(err) || IsTokenExpired(err) || IsSignatureInvalid(err)
}
