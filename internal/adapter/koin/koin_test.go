package koin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/gateway-fallback/internal/adapter/koin"
	"github.com/yourorg/gateway-fallback/internal/gateway"
)

func testConfig() gateway.GatewayConfig {
	return gateway.GatewayConfig{
		Type:        gateway.Koin,
		Credentials: gateway.Credentials{SecretKey: "sk_test_koin"},
		Sandbox:     true,
		Active:      true,
	}
}

func baseRequest(data gateway.MethodData) gateway.PaymentRequest {
	return gateway.PaymentRequest{
		SaleID:      "sale-7",
		AmountCents: 9900,
		Customer: gateway.Customer{
			Name:     "Bruno Lima",
			Email:    "bruno@example.com",
			Document: "98765432100",
		},
		Data: data,
	}
}

func TestProcessPaymentPixReusesExistingCustomer(t *testing.T) {
	var customerCreates int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "sk_test_koin", user)

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			assert.Equal(t, "98765432100", r.URL.Query().Get("document"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]string{{"id": "cus_1"}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/customers":
			customerCreates++
			json.NewEncoder(w).Encode(map[string]string{"id": "cus_2"})
		case r.Method == http.MethodPost && r.URL.Path == "/charges":
			assert.Equal(t, "sale-sale-7", r.Header.Get("X-Idempotency-Key"))
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "cus_1", body["customer_id"])
			assert.Equal(t, "pix", body["payment_method"])
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     "ch_1",
				"status": "waiting_payment",
				"pix": map[string]string{
					"qr_code":    "data:image/png;base64,xyz",
					"copy_paste": "00020126580014br.gov.bcb.pix",
				},
			})
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	a := koin.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.PixData{}))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "ch_1", resp.TransactionID)
	assert.Equal(t, gateway.StatusPending, resp.Status)
	require.NotNil(t, resp.Pix)
	assert.Equal(t, "00020126580014br.gov.bcb.pix", resp.Pix.QRCodeText)
	assert.Equal(t, 0, customerCreates, "existing customer must not be recreated")
}

func TestProcessPaymentCreatesMissingCustomer(t *testing.T) {
	var createdCustomer map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{}})
		case r.Method == http.MethodPost && r.URL.Path == "/customers":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createdCustomer))
			json.NewEncoder(w).Encode(map[string]string{"id": "cus_new"})
		case r.Method == http.MethodPost && r.URL.Path == "/charges":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "cus_new", body["customer_id"])
			json.NewEncoder(w).Encode(map[string]string{"id": "ch_2", "status": "paid"})
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	a := koin.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.PixData{}))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "98765432100", createdCustomer["document"])
}

func TestProcessPaymentCardRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]string{{"id": "cus_1"}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/charges":
			json.NewEncoder(w).Encode(map[string]string{
				"id":            "ch_3",
				"status":        "refused",
				"refuse_reason": "charge_insufficient_balance",
			})
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	a := koin.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.CardData{Token: "tok_1"}))
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, gateway.ErrInsufficientFunds, resp.ErrorCode)
}

func TestProcessPaymentMapsErrorList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]string{{"id": "cus_1"}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/charges":
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"errors": []map[string]string{
					{"code": "customer_document_invalid", "description": "invalid CPF"},
				},
			})
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	a := koin.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.PixData{}))
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, gateway.ErrInvalidDocument, resp.ErrorCode)
	assert.Equal(t, "invalid CPF", resp.ErrorMessage)
}

func TestProcessPaymentBoletoArtifacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]string{{"id": "cus_1"}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/charges":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "boleto", body["payment_method"])
			assert.NotEmpty(t, body["boleto_due_date"])
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     "ch_4",
				"status": "waiting_payment",
				"boleto": map[string]string{
					"barcode":        "34191790010104351004",
					"digitable_line": "34191.79001 01043.510047",
					"url":            "https://api.sandbox.koin.com.br/boletos/ch_4",
				},
			})
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	a := koin.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.BoletoData{}))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Boleto)
	assert.Equal(t, "https://api.sandbox.koin.com.br/boletos/ch_4", resp.PaymentURL)
}

func TestProcessPaymentServerErrorMapsToServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := koin.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.PixData{}))
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, gateway.ErrServiceUnavailable, resp.ErrorCode)
}
