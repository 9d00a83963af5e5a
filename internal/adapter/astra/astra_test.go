package astra_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/gateway-fallback/internal/adapter/astra"
	"github.com/yourorg/gateway-fallback/internal/gateway"
)

func testConfig() gateway.GatewayConfig {
	return gateway.GatewayConfig{
		Type:        gateway.Astra,
		Credentials: gateway.Credentials{APIKey: "sk_test_astra"},
		Sandbox:     true,
		Active:      true,
	}
}

func baseRequest(data gateway.MethodData) gateway.PaymentRequest {
	return gateway.PaymentRequest{
		SaleID:         "sale-42",
		OrganizationID: "org-1",
		AmountCents:    25900,
		Customer: gateway.Customer{
			Name:     "Ana Souza",
			Email:    "ana@example.com",
			Document: "12345678909",
		},
		Data: data,
	}
}

func TestProcessPaymentPix(t *testing.T) {
	var orderBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test_astra", r.Header.Get("Authorization"))
		assert.Equal(t, "sale-sale-42", r.Header.Get("Idempotency-Key"))

		switch r.URL.Path {
		case "/orders":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&orderBody))
			json.NewEncoder(w).Encode(map[string]string{"id": "ord_123"})
		case "/orders/ord_123/pix":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":           "pix_456",
				"status":       "pending",
				"qr_code":      "data:image/png;base64,abc",
				"qr_code_text": "00020126360014br.gov.bcb.pix",
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := astra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.PixData{}))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "pix_456", resp.TransactionID)
	assert.Equal(t, gateway.StatusPending, resp.Status)
	require.NotNil(t, resp.Pix)
	assert.Equal(t, "00020126360014br.gov.bcb.pix", resp.Pix.QRCodeText)

	assert.Equal(t, "sale-42", orderBody["reference"])
	assert.Equal(t, float64(25900), orderBody["amount"])
}

func TestProcessPaymentCardRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders":
			json.NewEncoder(w).Encode(map[string]string{"id": "ord_123"})
		case "/orders/ord_123/charges":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":             "ch_789",
				"status":         "refused",
				"refusal_reason": "insufficient_funds",
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := astra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.CardData{Token: "tok_1"}))
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, gateway.StatusRefused, resp.Status)
	assert.Equal(t, gateway.ErrInsufficientFunds, resp.ErrorCode)
	assert.Equal(t, "ch_789", resp.TransactionID)
}

func TestProcessPaymentCardPaid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders":
			json.NewEncoder(w).Encode(map[string]string{"id": "ord_123"})
		case "/orders/ord_123/charges":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     "ch_789",
				"status": "paid",
				"card": map[string]string{
					"fingerprint": "fp_1",
					"brand":       "visa",
					"last4":       "4242",
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := astra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.CardData{Token: "tok_1"}))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, gateway.StatusPaid, resp.Status)
	require.NotNil(t, resp.Card)
	assert.Equal(t, "4242", resp.Card.LastDigits)
}

func TestProcessPaymentCardWithoutData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "ord_123"})
	}))
	defer srv.Close()

	a := astra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.CardData{}))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, gateway.ErrInvalidRequest, resp.ErrorCode)
}

func TestProcessPaymentBoleto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders":
			json.NewEncoder(w).Encode(map[string]string{"id": "ord_123"})
		case "/orders/ord_123/boletos":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":             "bol_1",
				"status":         "pending",
				"barcode":        "34191790010104351004791020150008191070026000",
				"digitable_line": "34191.79001 01043.510047 91020.150008 1 91070026000",
				"url":            "https://sandbox.astrapay.io/boletos/bol_1.pdf",
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := astra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.BoletoData{}))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Boleto)
	assert.Equal(t, "https://sandbox.astrapay.io/boletos/bol_1.pdf", resp.PaymentURL)
}

func TestProcessPaymentMapsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"code":    "invalid_tax_document",
				"message": "document failed checksum validation",
			},
		})
	}))
	defer srv.Close()

	a := astra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.PixData{}))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, gateway.ErrInvalidDocument, resp.ErrorCode)
	assert.Equal(t, "document failed checksum validation", resp.ErrorMessage)
}

func TestProcessPaymentMapsHTTPStatuses(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   gateway.ErrorCode
	}{
		{"rate limited", http.StatusTooManyRequests, gateway.ErrRateLimited},
		{"server error", http.StatusBadGateway, gateway.ErrServiceUnavailable},
		{"other failure", http.StatusBadRequest, gateway.ErrGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			a := astra.New(srv.Client())
			a.SetBaseURL(srv.URL)

			resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.PixData{}))
			require.NoError(t, err)
			assert.False(t, resp.Success)
			assert.Equal(t, tc.want, resp.ErrorCode)
		})
	}
}

func TestProcessPaymentNonJSONErrorBodyStaysMarshalable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html><body><h1>502 Bad Gateway</h1></body></html>"))
	}))
	defer srv.Close()

	a := astra.New(srv.Client())
	a.SetBaseURL(srv.URL)

	resp, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.PixData{}))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, gateway.ErrServiceUnavailable, resp.ErrorCode)

	// A proxy's HTML error page must not poison the response rendered to
	// the caller.
	assert.True(t, json.Valid(resp.Raw))
	_, err = json.Marshal(resp)
	require.NoError(t, err)
}

func TestProcessPaymentTransportErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	a := astra.New(http.DefaultClient)
	a.SetBaseURL(srv.URL)

	_, err := a.ProcessPayment(context.Background(), testConfig(), baseRequest(gateway.PixData{}))
	assert.Error(t, err)
}
