package vectra_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/gateway-fallback/internal/adapter/vectra"
	"github.com/yourorg/gateway-fallback/internal/gateway"
)

func testConfig() gateway.GatewayConfig {
	return gateway.GatewayConfig{
		Type:        gateway.Vectra,
		Credentials: gateway.Credentials{APIKey: "vt_test_token"},
		Sandbox:     true,
		Active:      true,
	}
}

func baseRequest(data gateway.MethodData) gateway.PaymentRequest {
	return gateway.PaymentRequest{
		SaleID:      "sale-11",
		AmountCents: 48000,
		Customer: gateway.Customer{
			Name:     "Clara Dias",
			Email:    "clara@example.com",
			Document: "11122233344",
		},
		Data: data,
	}
}

func TestProcessPaymentPixCreatesMissingCustomer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "vt_test_token", r.Header.Get("X-Api-Token"))

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers/document/11122233344":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/customers":
			json.NewEncoder(w).Encode(map[string]string{"id": "cus_9"})
		case r.Method == http.MethodPost && r.URL.Path == "/pix_payments":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "cus_9", body["customer_id"])
			assert.Equal(t, "sale-11", body["external_reference"])
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     "pix_1",
				"status": "created",
				"qr_code": map[string]string{
					"payload":   "00020126440014br.gov.bcb.pix",
					"image_url": "https://sandbox-api.vectra.tech/qr/pix_1.png",
				},
			})
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	a := vectra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.PixData{}))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "pix_1", resp.TransactionID)
	assert.Equal(t, gateway.StatusPending, resp.Status)
	require.NotNil(t, resp.Pix)
	assert.Equal(t, "00020126440014br.gov.bcb.pix", resp.Pix.QRCodeText)
}

func TestProcessPaymentCardDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers/document/11122233344":
			json.NewEncoder(w).Encode(map[string]string{"id": "cus_9"})
		case r.Method == http.MethodPost && r.URL.Path == "/card_payments":
			json.NewEncoder(w).Encode(map[string]string{
				"id":           "card_1",
				"status":       "declined",
				"decline_code": "do_not_honor",
			})
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	a := vectra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.CardData{Token: "tok_9"}))
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, gateway.ErrCardDeclined, resp.ErrorCode)
}

func TestProcessPaymentRawCardRequiresAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers/document/11122233344":
			json.NewEncoder(w).Encode(map[string]string{"id": "cus_9"})
		default:
			t.Fatalf("raw card without address must not reach %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	a := vectra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	data := gateway.CardData{Raw: &gateway.RawCard{Number: "4111111111111111", HolderName: "CLARA DIAS", ExpMonth: "12", ExpYear: "2030", CVV: "123"}}
	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(data))
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, gateway.ErrInvalidRequest, resp.ErrorCode)
}

func TestProcessPaymentRawCardSendsBillingAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers/document/11122233344":
			json.NewEncoder(w).Encode(map[string]string{"id": "cus_9"})
		case r.Method == http.MethodPost && r.URL.Path == "/card_payments":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			addr, ok := body["billing_address"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "01310-100", addr["zip_code"])
			json.NewEncoder(w).Encode(map[string]string{"id": "card_2", "status": "confirmed"})
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	a := vectra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	req := baseRequest(gateway.CardData{Raw: &gateway.RawCard{Number: "4111111111111111", HolderName: "CLARA DIAS", ExpMonth: "12", ExpYear: "2030", CVV: "123"}})
	req.Customer.Address = &gateway.Address{
		Street:   "Av. Paulista",
		Number:   "1000",
		District: "Bela Vista",
		City:     "Sao Paulo",
		State:    "SP",
		ZipCode:  "01310-100",
	}

	resp, err := a.ProcessPayment(context.Background(), testConfig(), req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, gateway.StatusPaid, resp.Status)
}

func TestProcessPaymentBoleto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers/document/11122233344":
			json.NewEncoder(w).Encode(map[string]string{"id": "cus_9"})
		case r.Method == http.MethodPost && r.URL.Path == "/boletos":
			json.NewEncoder(w).Encode(map[string]string{
				"id":             "bol_7",
				"status":         "created",
				"barcode":        "23791790010104351004",
				"digitable_line": "23791.79001 01043.510047",
				"print_url":      "https://sandbox-api.vectra.tech/boletos/bol_7.pdf",
			})
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	a := vectra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.BoletoData{}))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Boleto)
	assert.Equal(t, "https://sandbox-api.vectra.tech/boletos/bol_7.pdf", resp.PaymentURL)
}

func TestProcessPaymentMapsFlatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "fraud_review",
			"message": "transaction held for review",
		})
	}))
	defer srv.Close()

	a := vectra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.PixData{}))
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, gateway.ErrSuspectedFraud, resp.ErrorCode)
	assert.Equal(t, "transaction held for review", resp.ErrorMessage)
}
