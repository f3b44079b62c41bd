package responses

import (
	"fmt"
	"net/http"
)

const (
	CodeUnknownHandler = 1
	CodeInvalidJSON    = 2
	CodeInternal       = 3
	CodeInvalidHeader  = 4
	CodeNotFound       = 5
	CodeInvalidInput   = 6
)

// Error describes an error for humans and machines
type Error struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return fmt.Sprintf("status:%d, code:%d, message:%q", e.Status, e.Code, e.Message)
}

// NewError - a brand new error
func NewError(code int, message string) *Error {
	status := http.StatusInternalServerError
	switch code {
	case CodeNotFound:
		status = http.StatusNotFound
	case CodeUnknownHandler, CodeInvalidJSON, CodeInvalidHeader, CodeInvalidInput:
		status = http.StatusBadRequest
	}
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
	}
}
