package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := NotFound("doctor %s", "abc")
	if KindOf(err) != KindNotFound {
		t.Errorf("expected KindNotFound, got %v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("expected KindUnknown for foreign error")
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := Conflict("slot already booked")
	wrapped := fmt.Errorf("booking failed: %w", inner)
	if KindOf(wrapped) != KindConflict {
		t.Errorf("expected KindConflict through wrap, got %v", KindOf(wrapped))
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Invalid("x"), http.StatusBadRequest},
		{InsufficientStock("Paracetamol"), http.StatusBadRequest},
		{Conflict("x"), http.StatusConflict},
		{Unauthorized("x"), http.StatusUnauthorized},
		{Forbidden("x"), http.StatusForbidden},
		{Gateway(errors.New("timeout"), "order create failed"), http.StatusBadGateway},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestInsufficientStock_Message(t *testing.T) {
	err := InsufficientStock("Amoxicillin 500mg")
	if Message(err) != "insufficient stock for Amoxicillin 500mg" {
		t.Errorf("unexpected message: %s", Message(err))
	}
}

func TestGateway_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Gateway(cause, "refund failed")
	if !errors.Is(err, cause) {
		t.Error("expected cause to be preserved in chain")
	}
	if Message(err) != "refund failed" {
		t.Errorf("message should not leak cause, got %s", Message(err))
	}
}
