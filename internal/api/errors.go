package api

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest      = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized    = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrNotFound        = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrInternalServer  = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrInvalidToken    = &AppError{Code: http.StatusUnauthorized, Message: "invalid or expired token"}
	ErrInvalidUserID   = &AppError{Code: http.StatusBadRequest, Message: "user id must be a positive integer"}
	ErrEventsDisabled  = &AppError{Code: http.StatusNotImplemented, Message: "event history needs postgres and nats"}
	ErrDeliveryBlocked = &AppError{Code: http.StatusConflict, Message: "user has blocked the bot"}
	ErrBadGateway      = &AppError{Code: http.StatusBadGateway, Message: "message delivery failed"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONErrorMessage(w, appErr.Code, appErr.Message)
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
