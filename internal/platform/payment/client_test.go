package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders" {
			t.Errorf("path = %s, want /v1/orders", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key_id" || pass != "key_secret" {
			t.Error("expected basic auth with configured credentials")
		}

		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Amount != 50000 || req.Currency != "INR" {
			t.Errorf("request = %+v", req)
		}

		json.NewEncoder(w).Encode(orderResponse{
			ID:        "order_Nxq1",
			Amount:    req.Amount,
			Currency:  req.Currency,
			Receipt:   req.Receipt,
			Status:    "created",
			CreatedAt: time.Now().Unix(),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key_id", "key_secret", 5*time.Second, testLogger())
	order, err := client.CreateOrder(context.Background(), 50000, "INR", "appt_123")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "order_Nxq1" {
		t.Errorf("order id = %s", order.ID)
	}
	if order.Status != "created" {
		t.Errorf("order status = %s", order.Status)
	}
}

func TestCreateOrder_RejectsNonPositiveAmount(t *testing.T) {
	client := NewClient("http://unused", "k", "s", time.Second, testLogger())
	_, err := client.CreateOrder(context.Background(), 0, "INR", "r")
	if !apperr.IsKind(err, apperr.KindInvalid) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestCreateOrder_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount exceeds maximum"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k", "s", time.Second, testLogger())
	_, err := client.CreateOrder(context.Background(), 100, "INR", "r")
	if !apperr.IsKind(err, apperr.KindGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if got := apperr.Message(err); got != "gateway rejected request: amount exceeds maximum" {
		t.Errorf("message = %q", got)
	}
}

func TestCreateOrder_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "k", "s", 500*time.Millisecond, testLogger())
	_, err := client.CreateOrder(context.Background(), 100, "INR", "r")
	if !apperr.IsKind(err, apperr.KindGateway) {
		t.Errorf("expected gateway error, got %v", err)
	}
}

func TestRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/pay_abc/refund" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(refundResponse{
			ID:        "rfnd_1",
			PaymentID: "pay_abc",
			Amount:    50000,
			Status:    "processed",
			CreatedAt: time.Now().Unix(),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k", "s", time.Second, testLogger())
	refund, err := client.Refund(context.Background(), "pay_abc", 50000)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.ID != "rfnd_1" || refund.PaymentID != "pay_abc" {
		t.Errorf("refund = %+v", refund)
	}
}

func TestRefund_RequiresPaymentID(t *testing.T) {
	client := NewClient("http://unused", "k", "s", time.Second, testLogger())
	_, err := client.Refund(context.Background(), "", 100)
	if !apperr.IsKind(err, apperr.KindInvalid) {
		t.Errorf("expected invalid error, got %v", err)
	}
}
