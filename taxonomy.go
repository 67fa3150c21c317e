package gateway

import (
	goerrors "github.com/goliatone/go-errors"
)

// Client facing error taxonomy. Message is safe to show, Source keeps the
// cause for logs.

func InvalidInputError(message string, cause error) *goerrors.Error {
	return publicError(goerrors.CategoryBadInput, goerrors.CodeBadRequest, message, cause)
}

func UnauthorizedError(message string, cause error) *goerrors.Error {
	return publicError(goerrors.CategoryAuth, goerrors.CodeUnauthorized, message, cause)
}

func ForbiddenError(message string, cause error) *goerrors.Error {
	return publicError(goerrors.CategoryAuthz, goerrors.CodeForbidden, message, cause)
}

func ConflictError(message string, cause error) *goerrors.Error {
	return publicError(goerrors.CategoryConflict, goerrors.CodeConflict, message, cause)
}

func InternalError(cause error) *goerrors.Error {
	return publicError(goerrors.CategoryInternal, goerrors.CodeInternal, MsgInternal, cause)
}

func publicError(category goerrors.Category, code int, message string, cause error) *goerrors.Error {
	e := goerrors.New(message, category).WithCode(code)
	e.Source = cause
	return e
}

// StatusCode returns the HTTP status carried by err, 500 when it has none.
func StatusCode(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code >= 400 && rich.Code < 600 {
		return rich.Code
	}
	return goerrors.CodeInternal
}

// PublicMessage returns the message of a taxonomy error. Errors that never
// went through the taxonomy yield the generic internal message.
func PublicMessage(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code != 0 {
		return rich.Message
	}
	return MsgInternal
}
