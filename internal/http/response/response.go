// Package response writes JSON bodies and maps domain errors to statuses.
package response

import (
	"encoding/json"
	"net/http"

	domainerrors "diary/internal/errors"
)

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes err as {"code", "message", "details"}. Anything that is not a
// domain error becomes an opaque 500 so internals never leak to clients.
func Error(w http.ResponseWriter, err error) {
	var domainErr *domainerrors.Error
	if !domainerrors.As(err, &domainErr) || domainErr.Code == domainerrors.CodeInternal {
		JSON(w, http.StatusInternalServerError, domainerrors.ErrInternal)
		return
	}
	JSON(w, domainErr.HTTPStatus(), domainErr)
}

// IsInternal reports whether Error would answer err with a 500.
func IsInternal(err error) bool {
	var domainErr *domainerrors.Error
	return !domainerrors.As(err, &domainErr) || domainErr.Code == domainerrors.CodeInternal
}
