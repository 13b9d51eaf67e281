package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest        ErrorCode = "BAD_REQUEST"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError     ErrorCode = "DATABASE_ERROR"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeAdapterFailure    ErrorCode = "ADAPTER_FAILURE"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is позволяет сверять обёрнутые ошибки с sentinel-значениями по коду и сообщению.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case ErrCodeAdapterFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeForbidden
}

func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeValidation
}

func IsConflict(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeConflict
}

func IsInvalidTransition(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeInvalidTransition
}

var (
	ErrThreadNotFound  = New(ErrCodeNotFound, "торг не найден")
	ErrItemNotFound    = New(ErrCodeNotFound, "товар не найден")
	ErrUserNotFound    = New(ErrCodeNotFound, "пользователь не найден")
	ErrOrderNotFound   = New(ErrCodeNotFound, "заказ не найден")
	ErrUnauthorized    = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden       = New(ErrCodeForbidden, "недостаточно прав")
	ErrNotParticipant  = New(ErrCodeForbidden, "пользователь не является участником торга")
	ErrSelfNegotiation = New(ErrCodeBadRequest, "нельзя торговаться с самим собой")
	ErrInvalidSubject  = New(ErrCodeValidation, "предмет торга не найден или не указан")
	// ErrStaleNegotiation возвращается при попытке действия над уже закрытым торгом.
	ErrStaleNegotiation = New(ErrCodeConflict, "торг уже завершён")
	// ErrSequenceConflict означает проигрыш гонки за очередной номер записи журнала.
	ErrSequenceConflict = New(ErrCodeConflict, "конкурентная запись в журнал торга")
	ErrAdapterFailure   = New(ErrCodeAdapterFailure, "не удалось сконвертировать торг в заказ")
	ErrAccountInactive  = New(ErrCodeForbidden, "аккаунт деактивирован")
)

// InvalidTransition создаёт ошибку бизнес-правила с причиной отказа автомата.
func InvalidTransition(reason string) *AppError {
	return New(ErrCodeInvalidTransition, reason)
}
