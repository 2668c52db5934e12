package server

import (
	"encoding/json"
	"errors"
	"net/http"

	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
)

type errorBody struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

// statusFor maps pool errors onto HTTP statuses, falling back to the error
// class.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lending.ErrAssetNotListed):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrUnauthorized),
		errors.Is(err, lending.ErrCallerNotPositionManager),
		errors.Is(err, lending.ErrBorrowAllowanceExceeded):
		return http.StatusForbidden
	case errors.Is(err, nativecommon.ErrModulePaused), errors.Is(err, lending.ErrReservePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrZeroAddress),
		errors.Is(err, lending.ErrInvalidInterestRateMode),
		errors.Is(err, lending.ErrSameAccount):
		return http.StatusBadRequest
	}
	switch lending.Classify(err) {
	case lending.ClassConfiguration:
		return http.StatusBadRequest
	case lending.ClassPrecondition:
		return http.StatusConflict
	case lending.ClassRisk, lending.ClassArithmetic:
		return http.StatusUnprocessableEntity
	case lending.ClassExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message, class string) {
	writeJSON(w, status, errorBody{Error: message, Class: class})
}

// writePoolError reports a pool failure. Internal failures hide their cause.
func writePoolError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	class := lending.Classify(err).String()
	if status == http.StatusInternalServerError {
		writeJSONError(w, status, "internal error", class)
		return
	}
	writeJSONError(w, status, err.Error(), class)
}
