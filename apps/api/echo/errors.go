package echoapi

import (
	"net/http"
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/kodomo/core"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")

	errValidationFailed = "one or more fields are invalid"
)

// resultError carries data to send along with an error response.
type resultError struct {
	err  error
	data interface{}
}

func withData(err error, data interface{}) error {
	return &resultError{err: err, data: data}
}

func (e *resultError) Error() string { return e.err.Error() }
func (e *resultError) Cause() error  { return e.err }

func statusOf(code core.ErrorCode) int {
	switch code {
	case core.CodeNotConfigured, core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeConflict:
		return http.StatusConflict
	case core.CodeInvalidState:
		return http.StatusUnprocessableEntity
	case core.CodePreconditionFailed:
		return http.StatusPreconditionFailed
	}
	return http.StatusBadRequest
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message string
		var fldErrs []core.FieldError
		var data interface{}

		if rErr, ok := err.(*resultError); ok {
			data = rErr.data
		}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
			}
			if m, ok := origErr.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(code)
			}
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = errValidationFailed
			fldErrs = core.TranslateValidationErrors(origErr, translator)
		case *core.ValidationError:
			code = http.StatusBadRequest
			if origErr.Fields != nil {
				message = errValidationFailed
				fldErrs = origErr.Fields
			} else {
				message = origErr.Error()
			}
		case *core.StateError:
			code = statusOf(origErr.Code)
			message = origErr.Message
		default: // any other error is a server error
			code = http.StatusInternalServerError
			message = http.StatusText(http.StatusInternalServerError)

			var person core.Person
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				person.ID = claims.Subject
			}
			logger.Error(message, errors.Wrap(err, message), person)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, newResponse(false, message, data, fldErrs...))
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func parseIntParam(ctx echo.Context, name string) (int, error) {
	return parseInt(name, ctx.Param(name))
}

func parseIntQuery(ctx echo.Context, name string) (int, error) {
	return parseInt(name, ctx.QueryParam(name))
}

func parseInt(name, value string) (int, error) {
	if value == "" {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: "this field is required"})
	}
	v, err := strconv.Atoi(value)
	if err != nil || v < 1 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be a positive number"})
	}
	return v, nil
}
