// Package apperr holds the error kinds shared by the scheduling packages.
// Domain packages wrap one of these so handlers can classify any failure
// with errors.Is without knowing the concrete sentinel.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrMissingFields    = errors.New("missing required fields")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrNoCapacity       = errors.New("no capacity")
	ErrSlotConflict     = errors.New("slot conflict")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInternal         = errors.New("internal error")
)

type kind struct {
	err    error
	code   string
	status int
}

var kinds = []kind{
	{ErrMissingFields, "missing_fields", http.StatusBadRequest},
	{ErrInvalidInput, "invalid_parameter", http.StatusBadRequest},
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrQuotaExceeded, "quota_exceeded", http.StatusForbidden},
	{ErrNoCapacity, "no_capacity", http.StatusConflict},
	{ErrSlotConflict, "slot_conflict", http.StatusConflict},
	{ErrPermissionDenied, "no_permission", http.StatusForbidden},
	{ErrInternal, "internal_error", http.StatusInternalServerError},
}

// Classify returns the HTTP status and stable error code for err.
// Errors that wrap no known kind are reported as internal errors.
func Classify(err error) (int, string) {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
