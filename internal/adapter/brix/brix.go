// Package brix integrates the Brix payments API. Brix is transaction-based
// with no separate customer object: the transaction is created first, then
// the instant-transfer voucher is fetched with a second call. Card payments
// settle on the create call itself. Brix does not issue bank slips.
package brix

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
	productionBaseURL = "https://gateway.brix.dev/v2"
	sandboxBaseURL    = "https://sandbox.brix.dev/v2"

	pixExpiry = 1 * time.Hour
)

// Adapter implements gateway.Adapter for Brix.
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

func (a *Adapter) Type() gateway.GatewayType { return gateway.Brix }

func (a *Adapter) endpoint(cfg gateway.GatewayConfig) string {
	if a.baseURL != "" {
		return a.baseURL
	}
	if cfg.Sandbox {
		return sandboxBaseURL
	}
	return productionBaseURL
}

type apiError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorCodes = map[string]gateway.ErrorCode{
	"no_funds":         gateway.ErrInsufficientFunds,
	"declined":         gateway.ErrCardDeclined,
	"bad_card":         gateway.ErrInvalidCard,
	"card_expired":     gateway.ErrExpiredCard,
	"risk_blocked":     gateway.ErrSuspectedFraud,
	"bad_document":     gateway.ErrInvalidDocument,
	"bad_request":      gateway.ErrInvalidRequest,
	"too_many":         gateway.ErrRateLimited,
	"maintenance":      gateway.ErrServiceUnavailable,
	"gateway_internal": gateway.ErrGateway,
}

var statuses = map[string]gateway.Status{
	"created":        gateway.StatusPending,
	"waiting":        gateway.StatusPending,
	"in_analysis":    gateway.StatusProcessing,
	"approved":       gateway.StatusPaid,
	"pre_authorized": gateway.StatusAuthorized,
	"declined":       gateway.StatusRefused,
	"refunded":       gateway.StatusRefunded,
	"chargeback":     gateway.StatusChargeback,
	"voided":         gateway.StatusCancelled,
}

func mapStatus(native string) gateway.Status {
	if s, ok := statuses[native]; ok {
		return s
	}
	return gateway.StatusPending
}

func (a *Adapter) ProcessPayment(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest) (gateway.GatewayResponse, error) {
	tracer := otel.Tracer("adapter.brix")
	ctx, span := tracer.Start(ctx, "brix.ProcessPayment")
	defer span.End()

	switch data := req.Data.(type) {
	case gateway.PixData:
		return a.processPix(ctx, cfg, req)
	case gateway.CardData:
		return a.processCard(ctx, cfg, req, data)
	default:
		return gateway.GatewayResponse{
			Success:      false,
			Status:       gateway.StatusRefused,
			ErrorCode:    gateway.ErrUnsupportedMethod,
			ErrorMessage: fmt.Sprintf("brix does not support payment method %q", req.Method()),
		}, nil
	}
}

type transactionResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	DeclineCode string `json:"decline_code"`
	Payment     struct {
		Card struct {
			Fingerprint string `json:"fingerprint"`
			Brand       string `json:"brand"`
			Last4       string `json:"last4"`
		} `json:"card"`
	} `json:"payment"`
}

func (a *Adapter) createTransaction(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest, payment map[string]interface{}) (transactionResponse, []byte, *gateway.GatewayResponse, error) {
	payload := map[string]interface{}{
		"reference_id": req.SaleID,
		"amount":       req.AmountCents,
		"customer": map[string]interface{}{
			"name":     req.Customer.Name,
			"email":    req.Customer.Email,
			"phone":    req.Customer.Phone,
			"document": req.Customer.Document,
		},
		"payment":    payment,
		"notify_url": req.CallbackURL,
	}

	status, body, err := a.post(ctx, cfg, "/transactions", req.SaleID, payload)
	if err != nil {
		return transactionResponse{}, nil, nil, err
	}
	if status < 200 || status >= 300 {
		failure := failureResponse(status, body)
		return transactionResponse{}, nil, &failure, nil
	}

	var tx transactionResponse
	if err := json.Unmarshal(body, &tx); err != nil {
		return transactionResponse{}, nil, nil, fmt.Errorf("brix: decoding transaction response: %w", err)
	}
	if tx.ID == "" {
		return transactionResponse{}, nil, nil, fmt.Errorf("brix: transaction response missing id")
	}
	return tx, body, nil, nil
}

type qrcodeResponse struct {
	Text      string    `json:"text"`
	ImageURL  string    `json:"image_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *Adapter) processPix(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest) (gateway.GatewayResponse, error) {
	payment := map[string]interface{}{
		"type":       "instant",
		"expires_in": int(pixExpiry.Seconds()),
	}
	tx, _, failure, err := a.createTransaction(ctx, cfg, req, payment)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if failure != nil {
		return *failure, nil
	}

	status, body, err := a.post(ctx, cfg, "/transactions/"+tx.ID+"/qrcode", req.SaleID, nil)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if status < 200 || status >= 300 {
		return failureResponse(status, body), nil
	}

	var qr qrcodeResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return gateway.GatewayResponse{}, fmt.Errorf("brix: decoding qrcode response: %w", err)
	}
	return gateway.GatewayResponse{
		Success:       true,
		TransactionID: tx.ID,
		PaymentURL:    qr.ImageURL,
		Status:        mapStatus(tx.Status),
		Pix: &gateway.PixArtifacts{
			QRCode:     qr.ImageURL,
			QRCodeText: qr.Text,
			ExpiresAt:  qr.ExpiresAt,
		},
		Raw: body,
	}, nil
}

func (a *Adapter) processCard(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest, data gateway.CardData) (gateway.GatewayResponse, error) {
	inst := req.Installments
	if inst == 0 {
		inst = 1
	}
	payment := map[string]interface{}{
		"type":         "card",
		"installments": inst,
		"store_card":   data.SaveCard,
	}
	switch {
	case data.Token != "":
		payment["card_id"] = data.Token
	case data.Raw != nil:
		payment["card"] = map[string]string{
			"number":    data.Raw.Number,
			"holder":    data.Raw.HolderName,
			"exp_month": data.Raw.ExpMonth,
			"exp_year":  data.Raw.ExpYear,
			"cvv":       data.Raw.CVV,
		}
	default:
		return gateway.GatewayResponse{
			Success:      false,
			Status:       gateway.StatusRefused,
			ErrorCode:    gateway.ErrInvalidRequest,
			ErrorMessage: "card payment requires a saved token or raw card data",
		}, nil
	}

	tx, body, failure, err := a.createTransaction(ctx, cfg, req, payment)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if failure != nil {
		return *failure, nil
	}

	resp := gateway.GatewayResponse{
		TransactionID: tx.ID,
		Status:        mapStatus(tx.Status),
		Card: &gateway.CardArtifacts{
			Fingerprint: tx.Payment.Card.Fingerprint,
			Brand:       tx.Payment.Card.Brand,
			LastDigits:  tx.Payment.Card.Last4,
		},
		Raw: body,
	}
	if resp.Status == gateway.StatusRefused {
		resp.Success = false
		if code, ok := errorCodes[tx.DeclineCode]; ok {
			resp.ErrorCode = code
		} else {
			resp.ErrorCode = gateway.ErrCardDeclined
		}
		resp.ErrorMessage = fmt.Sprintf("transaction declined: %s", tx.DeclineCode)
		return resp, nil
	}
	resp.Success = true
	return resp, nil
}

func (a *Adapter) post(ctx context.Context, cfg gateway.GatewayConfig, path, saleID string, payload interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("brix: encoding request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(cfg)+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("brix: building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.Credentials.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", "sale-"+saleID)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("brix: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("brix: reading response: %w", err)
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
	resp.ErrorMessage = fmt.Sprintf("brix returned HTTP %d", status)
	return resp
}
