package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/native/lending/wadray"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "not listed", err: fmt.Errorf("wrap: %w", lending.ErrAssetNotListed), code: http.StatusNotFound},
		{name: "unauthorized", err: lending.ErrUnauthorized, code: http.StatusForbidden},
		{name: "allowance", err: lending.ErrBorrowAllowanceExceeded, code: http.StatusForbidden},
		{name: "module paused", err: nativecommon.ErrModulePaused, code: http.StatusServiceUnavailable},
		{name: "reserve paused", err: lending.ErrReservePaused, code: http.StatusServiceUnavailable},
		{name: "invalid amount", err: lending.ErrInvalidAmount, code: http.StatusBadRequest},
		{name: "configuration", err: lending.ErrInvalidReserveParams, code: http.StatusBadRequest},
		{name: "precondition", err: lending.ErrReserveFrozen, code: http.StatusConflict},
		{name: "risk", err: lending.ErrHealthFactorLowerThanLiquidationThreshold, code: http.StatusUnprocessableEntity},
		{name: "arithmetic", err: wadray.ErrArithmeticOverflow, code: http.StatusUnprocessableEntity},
		{name: "external", err: lending.ErrZeroPrice, code: http.StatusBadGateway},
		{name: "unknown", err: errors.New("boom"), code: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.code, statusFor(tc.err))
		})
	}
}

func TestWritePoolErrorHidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	writePoolError(rec, errors.New("leveldb: corrupted block"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "internal error", body.Error)
	require.Equal(t, "unknown", body.Class)

	rec = httptest.NewRecorder()
	writePoolError(rec, lending.ErrSupplyCapExceeded)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, lending.ErrSupplyCapExceeded.Error(), body.Error)
	require.Equal(t, "risk", body.Class)
}
