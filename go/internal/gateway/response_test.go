package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcdev12/planning-poker/go/internal/room"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: fmt.Errorf("vote: %w", room.ErrValidation), want: http.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("failed to get room: %w", room.ErrRoomNotFound), want: http.StatusNotFound},
		{name: "store down", err: fmt.Errorf("get room: %w: %w", room.ErrStoreUnavailable, errors.New("dial tcp: refused")), want: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWriteError_CancelledRequestWritesNothing(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/vote", nil)

	writeError(rec, req, fmt.Errorf("failed to load room: get room: %w", context.Canceled))

	assert.False(t, rec.Flushed)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Type"))
}

func TestWriteError_InternalErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/state", nil)

	writeError(rec, req, errors.New("secret detail"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","message":"internal error"}`, rec.Body.String())
}
