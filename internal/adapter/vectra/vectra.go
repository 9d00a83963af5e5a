// Package vectra integrates the Vectra payments API. Vectra authenticates
// with a custom X-Api-Token header and, like koin, requires a customer
// deduplicated by tax document before a charge. Each payment method has its
// own endpoint. Raw-card charges require a billing address.
package vectra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

const (
	productionBaseURL = "https://api.vectra.tech/v1"
	sandboxBaseURL    = "https://sandbox-api.vectra.tech/v1"

	pixExpiry       = 20 * time.Minute
	boletoDueOffset = 3 * 24 * time.Hour
)

// Adapter implements gateway.Adapter for Vectra.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
}

func New(client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{httpClient: client}
}

// SetBaseURL points the adapter at a test server.
func (a *Adapter) SetBaseURL(u string) { a.baseURL = u }

func (a *Adapter) Type() gateway.GatewayType { return gateway.Vectra }

func (a *Adapter) endpoint(cfg gateway.GatewayConfig) string {
	if a.baseURL != "" {
		return a.baseURL
	}
	if cfg.Sandbox {
		return sandboxBaseURL
	}
	return productionBaseURL
}

// Vectra errors are a flat code/message pair.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorCodes = map[string]gateway.ErrorCode{
	"insufficient_funds": gateway.ErrInsufficientFunds,
	"do_not_honor":       gateway.ErrCardDeclined,
	"invalid_card":       gateway.ErrInvalidCard,
	"expired_card":       gateway.ErrExpiredCard,
	"fraud_review":       gateway.ErrSuspectedFraud,
	"invalid_document":   gateway.ErrInvalidDocument,
	"unprocessable":      gateway.ErrInvalidRequest,
	"throttled":          gateway.ErrRateLimited,
	"unavailable":        gateway.ErrServiceUnavailable,
}

var statuses = map[string]gateway.Status{
	"created":   gateway.StatusPending,
	"pending":   gateway.StatusPending,
	"analyzing": gateway.StatusProcessing,
	"confirmed": gateway.StatusPaid,
	"reserved":  gateway.StatusAuthorized,
	"declined":  gateway.StatusRefused,
	"reversed":  gateway.StatusRefunded,
	"disputed":  gateway.StatusChargeback,
	"expired":   gateway.StatusCancelled,
}

func mapStatus(native string) gateway.Status {
	if s, ok := statuses[native]; ok {
		return s
	}
	return gateway.StatusPending
}

func (a *Adapter) ProcessPayment(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest) (gateway.GatewayResponse, error) {
	tracer := otel.Tracer("adapter.vectra")
	ctx, span := tracer.Start(ctx, "vectra.ProcessPayment")
	defer span.End()

	customerID, failure, err := a.findOrCreateCustomer(ctx, cfg, req.Customer)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if failure != nil {
		return *failure, nil
	}

	switch data := req.Data.(type) {
	case gateway.PixData:
		return a.createPixPayment(ctx, cfg, req, customerID)
	case gateway.CardData:
		return a.createCardPayment(ctx, cfg, req, customerID, data)
	case gateway.BoletoData:
		return a.createBoleto(ctx, cfg, req, customerID)
	default:
		return gateway.GatewayResponse{
			Success:      false,
			Status:       gateway.StatusRefused,
			ErrorCode:    gateway.ErrUnsupportedMethod,
			ErrorMessage: fmt.Sprintf("vectra does not support payment method %q", req.Method()),
		}, nil
	}
}

type customerResponse struct {
	ID string `json:"id"`
}

// findOrCreateCustomer looks the customer up by tax document; Vectra
// answers 404 for an unknown document, in which case the customer is
// created.
func (a *Adapter) findOrCreateCustomer(ctx context.Context, cfg gateway.GatewayConfig, c gateway.Customer) (string, *gateway.GatewayResponse, error) {
	status, body, err := a.do(ctx, cfg, http.MethodGet, "/customers/document/"+c.Document, "", nil)
	if err != nil {
		return "", nil, err
	}
	switch {
	case status >= 200 && status < 300:
		var existing customerResponse
		if err := json.Unmarshal(body, &existing); err != nil {
			return "", nil, fmt.Errorf("vectra: decoding customer lookup: %w", err)
		}
		return existing.ID, nil, nil
	case status != http.StatusNotFound:
		failure := failureResponse(status, body)
		return "", &failure, nil
	}

	payload := map[string]interface{}{
		"name":     c.Name,
		"email":    c.Email,
		"phone":    c.Phone,
		"document": c.Document,
	}
	status, body, err = a.do(ctx, cfg, http.MethodPost, "/customers", "", payload)
	if err != nil {
		return "", nil, err
	}
	if status < 200 || status >= 300 {
		failure := failureResponse(status, body)
		return "", &failure, nil
	}
	var created customerResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", nil, fmt.Errorf("vectra: decoding customer response: %w", err)
	}
	if created.ID == "" {
		return "", nil, fmt.Errorf("vectra: customer response missing id")
	}
	return created.ID, nil, nil
}

type pixPaymentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	QR     struct {
		Payload  string `json:"payload"`
		ImageURL string `json:"image_url"`
	} `json:"qr_code"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *Adapter) createPixPayment(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest, customerID string) (gateway.GatewayResponse, error) {
	payload := map[string]interface{}{
		"customer_id":        customerID,
		"amount_cents":       req.AmountCents,
		"expiration_seconds": int(pixExpiry.Seconds()),
		"callback_url":       req.CallbackURL,
		"external_reference": req.SaleID,
	}
	status, body, err := a.do(ctx, cfg, http.MethodPost, "/pix_payments", req.SaleID, payload)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if status < 200 || status >= 300 {
		return failureResponse(status, body), nil
	}

	var pix pixPaymentResponse
	if err := json.Unmarshal(body, &pix); err != nil {
		return gateway.GatewayResponse{}, fmt.Errorf("vectra: decoding pix response: %w", err)
	}
	return gateway.GatewayResponse{
		Success:       true,
		TransactionID: pix.ID,
		PaymentURL:    pix.QR.ImageURL,
		Status:        mapStatus(pix.Status),
		Pix: &gateway.PixArtifacts{
			QRCode:     pix.QR.ImageURL,
			QRCodeText: pix.QR.Payload,
			ExpiresAt:  pix.ExpiresAt,
		},
		Raw: body,
	}, nil
}

type cardPaymentResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	DeclineCode string `json:"decline_code"`
	Card        struct {
		Fingerprint string `json:"fingerprint"`
		Brand       string `json:"brand"`
		LastDigits  string `json:"last_digits"`
	} `json:"card"`
}

func (a *Adapter) createCardPayment(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest, customerID string, data gateway.CardData) (gateway.GatewayResponse, error) {
	inst := req.Installments
	if inst == 0 {
		inst = 1
	}
	payload := map[string]interface{}{
		"customer_id":        customerID,
		"amount_cents":       req.AmountCents,
		"installments":       inst,
		"callback_url":       req.CallbackURL,
		"external_reference": req.SaleID,
		"vault_card":         data.SaveCard,
	}
	switch {
	case data.Token != "":
		payload["card_token"] = data.Token
	case data.Raw != nil:
		// Vectra rejects raw-card charges without a billing address, so
		// catch the omission here instead of burning a provider call.
		if req.Customer.Address == nil {
			return gateway.GatewayResponse{
				Success:      false,
				Status:       gateway.StatusRefused,
				ErrorCode:    gateway.ErrInvalidRequest,
				ErrorMessage: "vectra requires a billing address for raw card payments",
			}, nil
		}
		payload["card"] = map[string]string{
			"number":      data.Raw.Number,
			"holder_name": data.Raw.HolderName,
			"exp_month":   data.Raw.ExpMonth,
			"exp_year":    data.Raw.ExpYear,
			"cvv":         data.Raw.CVV,
		}
		payload["billing_address"] = map[string]string{
			"street":   req.Customer.Address.Street,
			"number":   req.Customer.Address.Number,
			"district": req.Customer.Address.District,
			"city":     req.Customer.Address.City,
			"state":    req.Customer.Address.State,
			"zip_code": req.Customer.Address.ZipCode,
		}
	default:
		return gateway.GatewayResponse{
			Success:      false,
			Status:       gateway.StatusRefused,
			ErrorCode:    gateway.ErrInvalidRequest,
			ErrorMessage: "card payment requires a saved token or raw card data",
		}, nil
	}

	status, body, err := a.do(ctx, cfg, http.MethodPost, "/card_payments", req.SaleID, payload)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if status < 200 || status >= 300 {
		return failureResponse(status, body), nil
	}

	var card cardPaymentResponse
	if err := json.Unmarshal(body, &card); err != nil {
		return gateway.GatewayResponse{}, fmt.Errorf("vectra: decoding card response: %w", err)
	}

	resp := gateway.GatewayResponse{
		TransactionID: card.ID,
		Status:        mapStatus(card.Status),
		Card: &gateway.CardArtifacts{
			Fingerprint: card.Card.Fingerprint,
			Brand:       card.Card.Brand,
			LastDigits:  card.Card.LastDigits,
		},
		Raw: body,
	}
	if resp.Status == gateway.StatusRefused {
		resp.Success = false
		if code, ok := errorCodes[card.DeclineCode]; ok {
			resp.ErrorCode = code
		} else {
			resp.ErrorCode = gateway.ErrCardDeclined
		}
		resp.ErrorMessage = fmt.Sprintf("payment declined: %s", card.DeclineCode)
		return resp, nil
	}
	resp.Success = true
	return resp, nil
}

type boletoResponse struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	Barcode       string    `json:"barcode"`
	DigitableLine string    `json:"digitable_line"`
	PrintURL      string    `json:"print_url"`
	DueDate       time.Time `json:"due_date"`
}

func (a *Adapter) createBoleto(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest, customerID string) (gateway.GatewayResponse, error) {
	payload := map[string]interface{}{
		"customer_id":        customerID,
		"amount_cents":       req.AmountCents,
		"due_date":           time.Now().UTC().Add(boletoDueOffset).Format("2006-01-02"),
		"callback_url":       req.CallbackURL,
		"external_reference": req.SaleID,
	}
	status, body, err := a.do(ctx, cfg, http.MethodPost, "/boletos", req.SaleID, payload)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if status < 200 || status >= 300 {
		return failureResponse(status, body), nil
	}

	var boleto boletoResponse
	if err := json.Unmarshal(body, &boleto); err != nil {
		return gateway.GatewayResponse{}, fmt.Errorf("vectra: decoding boleto response: %w", err)
	}
	return gateway.GatewayResponse{
		Success:       true,
		TransactionID: boleto.ID,
		PaymentURL:    boleto.PrintURL,
		Status:        mapStatus(boleto.Status),
		Boleto: &gateway.BoletoArtifacts{
			Barcode:       boleto.Barcode,
			DigitableLine: boleto.DigitableLine,
			URL:           boleto.PrintURL,
			DueDate:       boleto.DueDate,
		},
		Raw: body,
	}, nil
}

func (a *Adapter) do(ctx context.Context, cfg gateway.GatewayConfig, method, path, saleID string, payload interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("vectra: encoding request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, a.endpoint(cfg)+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("vectra: building request: %w", err)
	}
	httpReq.Header.Set("X-Api-Token", cfg.Credentials.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if saleID != "" {
		httpReq.Header.Set("X-Idempotency-Key", "sale-"+saleID)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("vectra: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("vectra: reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func failureResponse(status int, body []byte) gateway.GatewayResponse {
	resp := gateway.GatewayResponse{
		Success: false,
		Status:  gateway.StatusRefused,
		Raw:     gateway.RawPayload(body),
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		if code, ok := errorCodes[apiErr.Code]; ok {
			resp.ErrorCode = code
		} else {
			resp.ErrorCode = gateway.ErrGateway
		}
		resp.ErrorMessage = apiErr.Message
		return resp
	}

	switch {
	case status == http.StatusTooManyRequests:
		resp.ErrorCode = gateway.ErrRateLimited
	case status >= http.StatusInternalServerError:
		resp.ErrorCode = gateway.ErrServiceUnavailable
	default:
		resp.ErrorCode = gateway.ErrGateway
	}
	resp.ErrorMessage = fmt.Sprintf("vectra returned HTTP %d", status)
	return resp
}
