// Пакет errors — ответы HTTP API flashshare с ошибками.
// Формат тела: {"error": {"code": "...", "message": "..."}}.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/Yhyb24P/flashshare/internal/domain/model"
)

// Коды ошибок API.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeForbidden       = "FORBIDDEN"
	CodeInternalError   = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Code: code, Message: message},
	})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Forbidden — 403 запрос отклонён политикой доступа.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromDomain отображает ошибку сервисного слоя в HTTP-ответ.
// Для ошибок ввода клиенту уходит их текст; детали ввода-вывода
// (пути артефактов) наружу не передаются, вместо них internalMsg.
// Возвращает HTTP-статус записанного ответа.
func FromDomain(w http.ResponseWriter, err error, notFoundMsg, internalMsg string) int {
	switch {
	case stderrors.Is(err, model.ErrNotFound):
		NotFound(w, notFoundMsg)
		return http.StatusNotFound
	case stderrors.Is(err, model.ErrInvalidInput):
		ValidationError(w, err.Error())
		return http.StatusBadRequest
	default:
		InternalError(w, internalMsg)
		return http.StatusInternalServerError
	}
}
