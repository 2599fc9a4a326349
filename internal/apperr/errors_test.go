package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[string]int{
		CodeValidation:        http.StatusBadRequest,
		CodeInsufficientStock: http.StatusBadRequest,
		CodeInvalidTransition: http.StatusConflict,
		CodePaymentNotSettled: http.StatusConflict,
		CodeNotFound:          http.StatusNotFound,
		CodeUnauthorized:      http.StatusUnauthorized,
		CodeForbidden:         http.StatusForbidden,
		CodeInternal:          http.StatusInternalServerError,
		"Unknown":             http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, New(code, "m", "").HTTPStatus(), code)
	}
}

func TestInsufficientStockDetails(t *testing.T) {
	err := NewInsufficientStock("Lamp", 0, 1)

	assert.Equal(t, CodeInsufficientStock, err.Code)
	assert.Equal(t, "insufficient stock for Lamp", err.Message)
	assert.Equal(t, "Available: 0, Requested: 1", err.Details)
}

func TestInvalidTransitionListsAllowed(t *testing.T) {
	err := NewInvalidTransition("pending", "shipped", []string{"confirmed", "cancelled"})
	assert.Equal(t, "Allowed: confirmed, cancelled", err.Details)

	terminal := NewInvalidTransition("delivered", "cancelled", nil)
	assert.Equal(t, "Allowed: none", terminal.Details)
}

func TestCodeOfThroughWrapping(t *testing.T) {
	base := NewNotFound("order", "o-1")
	wrapped := fmt.Errorf("load: %w", base)

	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CodeNotFound))
	assert.False(t, Is(nil, CodeNotFound))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestWrapKeepsTaxonomyErrors(t *testing.T) {
	v := NewValidation("quantity must be positive", "quantity")
	assert.Same(t, v, Wrap("ctx", v))

	raw := errors.New("connection reset")
	w := Wrap("load order", raw)
	assert.Equal(t, CodeInternal, CodeOf(w))
	assert.ErrorIs(t, w, raw)
	assert.Nil(t, Wrap("x", nil))
}
