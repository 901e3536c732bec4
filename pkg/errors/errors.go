package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Processing stages a failure can be attributed to.
const (
	StageParse     = "parse"
	StagePersist   = "persist"
	StageIncrement = "increment"
	StageNotify    = "notify"
	StageCleanup   = "cleanup"
	StageReconcile = "reconcile"
)

var (
	ErrNotFound           = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrPersistence        = NewError("PERSISTENCE_ERROR", "message store write failed", http.StatusServiceUnavailable)
	ErrCounter            = NewError("COUNTER_ERROR", "campaign counter operation failed", http.StatusServiceUnavailable)
	ErrNotification       = NewError("NOTIFICATION_ERROR", "campaign completion notification failed", http.StatusBadGateway)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrTimeout            = NewError("TIMEOUT", "operation timed out", http.StatusRequestTimeout)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Status    int
	Stage     string
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	prefix := e.Code
	if e.Stage != "" {
		prefix = fmt.Sprintf("%s[%s]", e.Code, e.Stage)
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two *Error values by code so errors.Is(err, ErrCounter) works
// on derived copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsRetryable reports whether re-running the whole message is safe. Only
// failures that happen before the counter was touched qualify.
func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	switch e.Code {
	case ErrPersistence.Code, ErrTimeout.Code, ErrServiceUnavailable.Code:
		return true
	default:
		return false
	}
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := e.clone()
	err.Cause = cause
	return err
}

func (e *Error) WithStage(stage string) *Error {
	err := e.clone()
	err.Stage = stage
	return err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := e.clone()
	err.Details[key] = value
	return err
}

func (e *Error) WithDetails(details map[string]interface{}) *Error {
	err := e.clone()
	err.Details = details
	return err
}

func (e *Error) AsRetryable() *Error {
	err := e.clone()
	retryable := true
	err.retryable = &retryable
	return err
}

func (e *Error) AsFatal() *Error {
	err := e.clone()
	retryable := false
	err.retryable = &retryable
	return err
}

func (e *Error) clone() *Error {
	err := *e
	err.Details = make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		err.Details[k] = v
	}
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound.Code)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrValidation.Code)
}

func IsPersistence(err error) bool {
	return hasCode(err, ErrPersistence.Code)
}

func IsCounter(err error) bool {
	return hasCode(err, ErrCounter.Code)
}

func IsNotification(err error) bool {
	return hasCode(err, ErrNotification.Code)
}

// StageOf returns the stage recorded on err, or "" for foreign errors.
func StageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Stage
	}
	return ""
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the JSON body of every admin API error.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	ErrorCode string                 `json:"error_code"`
	Stage     string                 `json:"stage,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func ToErrorResponse(err error) ErrorResponse {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}
	return ErrorResponse{
		Error:     appErr.Message,
		ErrorCode: appErr.Code,
		Stage:     appErr.Stage,
		Details:   appErr.Details,
	}
}
