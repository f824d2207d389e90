package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the wire shape of every API reply. Code is 0 on success
// and mirrors the HTTP status on failure so clients can switch on one
// field.
type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AppError pairs a client-facing message with the HTTP status it should
// travel under. Services return sentinel errors; handlers wrap them into
// AppError at the edge.
type AppError struct {
	Status  int
	Message string
}

func (e *AppError) Error() string { return e.Message }

func NewBadRequest(msg string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Message: msg}
}

func NewUnauthorized(msg string) *AppError {
	return &AppError{Status: http.StatusUnauthorized, Message: msg}
}

func NewForbidden(msg string) *AppError {
	return &AppError{Status: http.StatusForbidden, Message: msg}
}

func NewNotFound(msg string) *AppError {
	return &AppError{Status: http.StatusNotFound, Message: msg}
}

func NewConflict(msg string) *AppError {
	return &AppError{Status: http.StatusConflict, Message: msg}
}

func NewServerError(msg string) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Message: msg}
}

func write(c *gin.Context, status int, code int, msg string, data interface{}) {
	c.JSON(status, Envelope{Code: code, Message: msg, Data: data})
}

// Success replies 200 with data under the standard envelope.
func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, 0, "ok", data)
}

// Created replies 201 with the newly created resource.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, 0, "created", data)
}

// Error replies with the status carried by an *AppError, or 500 for
// anything else.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		write(c, appErr.Status, appErr.Status, appErr.Message, nil)
		return
	}
	write(c, http.StatusInternalServerError, http.StatusInternalServerError, err.Error(), nil)
}

func BadRequest(c *gin.Context, msg string) {
	write(c, http.StatusBadRequest, http.StatusBadRequest, msg, nil)
}

func Unauthorized(c *gin.Context, msg string) {
	write(c, http.StatusUnauthorized, http.StatusUnauthorized, msg, nil)
}

func Forbidden(c *gin.Context, msg string) {
	write(c, http.StatusForbidden, http.StatusForbidden, msg, nil)
}

func NotFound(c *gin.Context, msg string) {
	write(c, http.StatusNotFound, http.StatusNotFound, msg, nil)
}

func ServerError(c *gin.Context, msg string) {
	write(c, http.StatusInternalServerError, http.StatusInternalServerError, msg, nil)
}
