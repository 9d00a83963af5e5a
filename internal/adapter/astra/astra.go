// Package astra integrates the Astra payments API. Astra is order-based:
// every payment first creates an order, then issues a method-specific
// sub-call against it (pix voucher, card charge or boleto).
package astra

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
	productionBaseURL = "https://api.astrapay.io/v1"
	sandboxBaseURL    = "https://sandbox.astrapay.io/v1"

	pixExpiry       = 30 * time.Minute
	boletoDueOffset = 3 * 24 * time.Hour
)

// Adapter implements gateway.Adapter for Astra.
type Adapter struct {
	httpClient *http.Client
	baseURL    string // overrides both environments, for tests
}

func New(client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{httpClient: client}
}

// SetBaseURL points the adapter at a test server.
func (a *Adapter) SetBaseURL(u string) { a.baseURL = u }

func (a *Adapter) Type() gateway.GatewayType { return gateway.Astra }

func (a *Adapter) endpoint(cfg gateway.GatewayConfig) string {
	if a.baseURL != "" {
		return a.baseURL
	}
	if cfg.Sandbox {
		return sandboxBaseURL
	}
	return productionBaseURL
}

type orderResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// errorCodes maps Astra's native error vocabulary onto the normalized set.
var errorCodes = map[string]gateway.ErrorCode{
	"insufficient_funds":   gateway.ErrInsufficientFunds,
	"card_declined":        gateway.ErrCardDeclined,
	"invalid_card":         gateway.ErrInvalidCard,
	"expired_card":         gateway.ErrExpiredCard,
	"fraud_suspected":      gateway.ErrSuspectedFraud,
	"invalid_tax_document": gateway.ErrInvalidDocument,
	"validation_error":     gateway.ErrInvalidRequest,
	"rate_limited":         gateway.ErrRateLimited,
}

// statuses maps Astra's native status vocabulary onto the normalized set.
var statuses = map[string]gateway.Status{
	"pending":     gateway.StatusPending,
	"processing":  gateway.StatusProcessing,
	"paid":        gateway.StatusPaid,
	"authorized":  gateway.StatusAuthorized,
	"refused":     gateway.StatusRefused,
	"refunded":    gateway.StatusRefunded,
	"chargedback": gateway.StatusChargeback,
	"canceled":    gateway.StatusCancelled,
}

func mapStatus(native string) gateway.Status {
	if s, ok := statuses[native]; ok {
		return s
	}
	return gateway.StatusPending
}

func mapErrorCode(native string) gateway.ErrorCode {
	if c, ok := errorCodes[native]; ok {
		return c
	}
	return gateway.ErrGateway
}

func (a *Adapter) ProcessPayment(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest) (gateway.GatewayResponse, error) {
	tracer := otel.Tracer("adapter.astra")
	ctx, span := tracer.Start(ctx, "astra.ProcessPayment")
	defer span.End()

	orderID, failure, err := a.createOrder(ctx, cfg, req)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if failure != nil {
		return *failure, nil
	}

	switch data := req.Data.(type) {
	case gateway.PixData:
		return a.requestPix(ctx, cfg, req, orderID)
	case gateway.CardData:
		return a.chargeCard(ctx, cfg, req, orderID, data)
	case gateway.BoletoData:
		return a.issueBoleto(ctx, cfg, req, orderID)
	default:
		return gateway.GatewayResponse{
			Success:      false,
			Status:       gateway.StatusRefused,
			ErrorCode:    gateway.ErrUnsupportedMethod,
			ErrorMessage: fmt.Sprintf("astra does not support payment method %q", req.Method()),
		}, nil
	}
}

func (a *Adapter) createOrder(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest) (string, *gateway.GatewayResponse, error) {
	payload := map[string]interface{}{
		"reference": req.SaleID,
		"amount":    req.AmountCents,
		"currency":  "BRL",
		"customer": map[string]interface{}{
			"name":     req.Customer.Name,
			"email":    req.Customer.Email,
			"phone":    req.Customer.Phone,
			"document": req.Customer.Document,
		},
		"notification_url": req.CallbackURL,
	}

	status, body, err := a.post(ctx, cfg, "/orders", req.SaleID, payload)
	if err != nil {
		return "", nil, err
	}
	if status < 200 || status >= 300 {
		failure := failureFromBody(status, body)
		return "", &failure, nil
	}

	var order orderResponse
	if err := json.Unmarshal(body, &order); err != nil {
		return "", nil, fmt.Errorf("astra: decoding order response: %w", err)
	}
	if order.ID == "" {
		return "", nil, fmt.Errorf("astra: order response missing id")
	}
	return order.ID, nil, nil
}

type pixResponse struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	QRCode     string    `json:"qr_code"`
	QRCodeText string    `json:"qr_code_text"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (a *Adapter) requestPix(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest, orderID string) (gateway.GatewayResponse, error) {
	payload := map[string]interface{}{
		"expires_in": int(pixExpiry.Seconds()),
	}
	status, body, err := a.post(ctx, cfg, "/orders/"+orderID+"/pix", req.SaleID, payload)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if status < 200 || status >= 300 {
		return failureFromBody(status, body), nil
	}

	var pix pixResponse
	if err := json.Unmarshal(body, &pix); err != nil {
		return gateway.GatewayResponse{}, fmt.Errorf("astra: decoding pix response: %w", err)
	}
	return gateway.GatewayResponse{
		Success:       true,
		TransactionID: pix.ID,
		Status:        mapStatus(pix.Status),
		Pix: &gateway.PixArtifacts{
			QRCode:     pix.QRCode,
			QRCodeText: pix.QRCodeText,
			ExpiresAt:  pix.ExpiresAt,
		},
		Raw: body,
	}, nil
}

type chargeResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	RefusalReason string `json:"refusal_reason"`
	Card          struct {
		Fingerprint string `json:"fingerprint"`
		Brand       string `json:"brand"`
		Last4       string `json:"last4"`
	} `json:"card"`
}

func (a *Adapter) chargeCard(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest, orderID string, data gateway.CardData) (gateway.GatewayResponse, error) {
	payload := map[string]interface{}{
		"installments": installments(req),
		"capture":      true,
		"save_card":    data.SaveCard,
	}
	switch {
	case data.Token != "":
		payload["card_token"] = data.Token
	case data.Raw != nil:
		payload["card"] = map[string]string{
			"number":      data.Raw.Number,
			"holder_name": data.Raw.HolderName,
			"exp_month":   data.Raw.ExpMonth,
			"exp_year":    data.Raw.ExpYear,
			"cvv":         data.Raw.CVV,
		}
	default:
		return gateway.GatewayResponse{
			Success:      false,
			Status:       gateway.StatusRefused,
			ErrorCode:    gateway.ErrInvalidRequest,
			ErrorMessage: "card payment requires a saved token or raw card data",
		}, nil
	}

	status, body, err := a.post(ctx, cfg, "/orders/"+orderID+"/charges", req.SaleID, payload)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if status < 200 || status >= 300 {
		return failureFromBody(status, body), nil
	}

	var charge chargeResponse
	if err := json.Unmarshal(body, &charge); err != nil {
		return gateway.GatewayResponse{}, fmt.Errorf("astra: decoding charge response: %w", err)
	}

	resp := gateway.GatewayResponse{
		TransactionID: charge.ID,
		Status:        mapStatus(charge.Status),
		Card: &gateway.CardArtifacts{
			Fingerprint: charge.Card.Fingerprint,
			Brand:       charge.Card.Brand,
			LastDigits:  charge.Card.Last4,
		},
		Raw: body,
	}
	// A refused charge is a normal provider answer, not an exception: the
	// refusal reason carries the business-level error code.
	if resp.Status == gateway.StatusRefused {
		resp.Success = false
		resp.ErrorCode = mapErrorCode(charge.RefusalReason)
		resp.ErrorMessage = fmt.Sprintf("charge refused: %s", charge.RefusalReason)
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
	URL           string    `json:"url"`
	DueDate       time.Time `json:"due_date"`
}

func (a *Adapter) issueBoleto(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest, orderID string) (gateway.GatewayResponse, error) {
	payload := map[string]interface{}{
		"due_date": time.Now().UTC().Add(boletoDueOffset).Format("2006-01-02"),
	}
	status, body, err := a.post(ctx, cfg, "/orders/"+orderID+"/boletos", req.SaleID, payload)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if status < 200 || status >= 300 {
		return failureFromBody(status, body), nil
	}

	var boleto boletoResponse
	if err := json.Unmarshal(body, &boleto); err != nil {
		return gateway.GatewayResponse{}, fmt.Errorf("astra: decoding boleto response: %w", err)
	}
	return gateway.GatewayResponse{
		Success:       true,
		TransactionID: boleto.ID,
		PaymentURL:    boleto.URL,
		Status:        mapStatus(boleto.Status),
		Boleto: &gateway.BoletoArtifacts{
			Barcode:       boleto.Barcode,
			DigitableLine: boleto.DigitableLine,
			URL:           boleto.URL,
			DueDate:       boleto.DueDate,
		},
		Raw: body,
	}, nil
}

// post issues one authenticated JSON request. Transport and read failures
// come back as errors for the engine's failure boundary to absorb.
func (a *Adapter) post(ctx context.Context, cfg gateway.GatewayConfig, path, saleID string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("astra: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(cfg)+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("astra: building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.Credentials.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", "sale-"+saleID)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("astra: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("astra: reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func failureFromBody(status int, body []byte) gateway.GatewayResponse {
	resp := gateway.GatewayResponse{
		Success: false,
		Status:  gateway.StatusRefused,
		Raw:     gateway.RawPayload(body),
	}

	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Code != "" {
		resp.ErrorCode = mapErrorCode(apiErr.Error.Code)
		resp.ErrorMessage = apiErr.Error.Message
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
	resp.ErrorMessage = fmt.Sprintf("astra returned HTTP %d", status)
	return resp
}

func installments(req gateway.PaymentRequest) int {
	if req.Installments > 0 {
		return req.Installments
	}
	return 1
}
