package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/kodomo/core"
)

// Response is the envelope of every API response.
type Response struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Data      interface{}       `json:"data"`
	Errors    []core.FieldError `json:"errors"`
	Timestamp time.Time         `json:"timestamp"`
}

func newResponse(success bool, message string, data interface{}, errs ...core.FieldError) Response {
	if errs == nil {
		errs = []core.FieldError{}
	}
	return Response{
		Success:   success,
		Message:   message,
		Data:      data,
		Errors:    errs,
		Timestamp: time.Now().UTC(),
	}
}

func respondOK(ctx echo.Context, message string, data interface{}) error {
	return ctx.JSON(http.StatusOK, newResponse(true, message, data))
}

func respondCreated(ctx echo.Context, message string, data interface{}) error {
	return ctx.JSON(http.StatusCreated, newResponse(true, message, data))
}
