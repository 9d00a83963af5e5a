// Package koin integrates the Koin payments API. Koin requires a customer
// object deduplicated by tax document before any charge: the adapter looks
// the customer up by document and creates one only when missing. Charges go
// through a single endpoint with a payment-method discriminator.
package koin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

const (
	productionBaseURL = "https://api.koin.com.br/v1"
	sandboxBaseURL    = "https://api.sandbox.koin.com.br/v1"

	pixExpiry       = 15 * time.Minute
	boletoDueOffset = 5 * 24 * time.Hour
)

// Adapter implements gateway.Adapter for Koin.
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

func (a *Adapter) Type() gateway.GatewayType { return gateway.Koin }

func (a *Adapter) endpoint(cfg gateway.GatewayConfig) string {
	if a.baseURL != "" {
		return a.baseURL
	}
	if cfg.Sandbox {
		return sandboxBaseURL
	}
	return productionBaseURL
}

// Koin reports errors as a list; the first entry drives classification.
type apiErrors struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

var errorCodes = map[string]gateway.ErrorCode{
	"charge_insufficient_balance": gateway.ErrInsufficientFunds,
	"charge_refused":              gateway.ErrCardDeclined,
	"card_invalid":                gateway.ErrInvalidCard,
	"card_expired":                gateway.ErrExpiredCard,
	"antifraud_reproved":          gateway.ErrSuspectedFraud,
	"customer_document_invalid":   gateway.ErrInvalidDocument,
	"request_invalid":             gateway.ErrInvalidRequest,
	"too_many_requests":           gateway.ErrRateLimited,
}

var statuses = map[string]gateway.Status{
	"waiting_payment": gateway.StatusPending,
	"processing":      gateway.StatusProcessing,
	"paid":            gateway.StatusPaid,
	"authorized":      gateway.StatusAuthorized,
	"refused":         gateway.StatusRefused,
	"refunded":        gateway.StatusRefunded,
	"chargedback":     gateway.StatusChargeback,
	"canceled":        gateway.StatusCancelled,
}

func mapStatus(native string) gateway.Status {
	if s, ok := statuses[native]; ok {
		return s
	}
	return gateway.StatusPending
}

func mapError(body []byte, httpStatus int) (gateway.ErrorCode, string) {
	var parsed apiErrors
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		native := parsed.Errors[0]
		if code, ok := errorCodes[native.Code]; ok {
			return code, native.Description
		}
		return gateway.ErrGateway, native.Description
	}
	switch {
	case httpStatus == http.StatusTooManyRequests:
		return gateway.ErrRateLimited, fmt.Sprintf("koin returned HTTP %d", httpStatus)
	case httpStatus >= http.StatusInternalServerError:
		return gateway.ErrServiceUnavailable, fmt.Sprintf("koin returned HTTP %d", httpStatus)
	}
	return gateway.ErrGateway, fmt.Sprintf("koin returned HTTP %d", httpStatus)
}

func (a *Adapter) ProcessPayment(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest) (gateway.GatewayResponse, error) {
	tracer := otel.Tracer("adapter.koin")
	ctx, span := tracer.Start(ctx, "koin.ProcessPayment")
	defer span.End()

	method, ok := methodDiscriminator(req)
	if !ok {
		return gateway.GatewayResponse{
			Success:      false,
			Status:       gateway.StatusRefused,
			ErrorCode:    gateway.ErrUnsupportedMethod,
			ErrorMessage: fmt.Sprintf("koin does not support payment method %q", req.Method()),
		}, nil
	}

	customerID, failure, err := a.findOrCreateCustomer(ctx, cfg, req.Customer)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if failure != nil {
		return *failure, nil
	}

	return a.createCharge(ctx, cfg, req, customerID, method)
}

func methodDiscriminator(req gateway.PaymentRequest) (string, bool) {
	switch req.Data.(type) {
	case gateway.PixData:
		return "pix", true
	case gateway.CardData:
		return "credit_card", true
	case gateway.BoletoData:
		return "boleto", true
	}
	return "", false
}

type customer struct {
	ID string `json:"id"`
}

type customerList struct {
	Data []customer `json:"data"`
}

// findOrCreateCustomer resolves the provider-side customer for the tax
// document, creating one only when the lookup comes back empty.
func (a *Adapter) findOrCreateCustomer(ctx context.Context, cfg gateway.GatewayConfig, c gateway.Customer) (string, *gateway.GatewayResponse, error) {
	lookupPath := "/customers?document=" + url.QueryEscape(c.Document)
	status, body, err := a.do(ctx, cfg, http.MethodGet, lookupPath, "", nil)
	if err != nil {
		return "", nil, err
	}
	if status >= 200 && status < 300 {
		var list customerList
		if err := json.Unmarshal(body, &list); err != nil {
			return "", nil, fmt.Errorf("koin: decoding customer lookup: %w", err)
		}
		if len(list.Data) > 0 {
			return list.Data[0].ID, nil, nil
		}
	} else if status != http.StatusNotFound {
		failure := failureResponse(status, body)
		return "", &failure, nil
	}

	payload := map[string]interface{}{
		"name":     c.Name,
		"email":    c.Email,
		"phone":    c.Phone,
		"document": strings.TrimSpace(c.Document),
	}
	status, body, err = a.do(ctx, cfg, http.MethodPost, "/customers", "", payload)
	if err != nil {
		return "", nil, err
	}
	if status < 200 || status >= 300 {
		failure := failureResponse(status, body)
		return "", &failure, nil
	}

	var created customer
	if err := json.Unmarshal(body, &created); err != nil {
		return "", nil, fmt.Errorf("koin: decoding customer response: %w", err)
	}
	if created.ID == "" {
		return "", nil, fmt.Errorf("koin: customer response missing id")
	}
	return created.ID, nil, nil
}

type chargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Pix    *struct {
		QRCode    string    `json:"qr_code"`
		CopyPaste string    `json:"copy_paste"`
		ExpiresAt time.Time `json:"expires_at"`
	} `json:"pix"`
	Boleto *struct {
		Barcode       string    `json:"barcode"`
		DigitableLine string    `json:"digitable_line"`
		URL           string    `json:"url"`
		DueDate       time.Time `json:"due_date"`
	} `json:"boleto"`
	Card *struct {
		Fingerprint string `json:"fingerprint"`
		Brand       string `json:"brand"`
		LastDigits  string `json:"last_digits"`
	} `json:"card"`
	RefuseReason string `json:"refuse_reason"`
}

func (a *Adapter) createCharge(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest, customerID, method string) (gateway.GatewayResponse, error) {
	payload := map[string]interface{}{
		"customer_id":    customerID,
		"amount":         req.AmountCents,
		"payment_method": method,
		"postback_url":   req.CallbackURL,
		"metadata":       map[string]string{"sale_id": req.SaleID},
	}

	switch data := req.Data.(type) {
	case gateway.PixData:
		payload["pix_expires_in"] = int(pixExpiry.Seconds())
	case gateway.CardData:
		inst := req.Installments
		if inst == 0 {
			inst = 1
		}
		payload["installments"] = inst
		switch {
		case data.Token != "":
			payload["card_token"] = data.Token
		case data.Raw != nil:
			payload["card"] = map[string]string{
				"number":          data.Raw.Number,
				"holder_name":     data.Raw.HolderName,
				"expiration_date": data.Raw.ExpMonth + "/" + data.Raw.ExpYear,
				"cvv":             data.Raw.CVV,
			}
		default:
			return gateway.GatewayResponse{
				Success:      false,
				Status:       gateway.StatusRefused,
				ErrorCode:    gateway.ErrInvalidRequest,
				ErrorMessage: "card payment requires a saved token or raw card data",
			}, nil
		}
		if data.SaveCard {
			payload["save_card"] = true
		}
	case gateway.BoletoData:
		payload["boleto_due_date"] = time.Now().UTC().Add(boletoDueOffset).Format("2006-01-02")
	}

	status, body, err := a.do(ctx, cfg, http.MethodPost, "/charges", req.SaleID, payload)
	if err != nil {
		return gateway.GatewayResponse{}, err
	}
	if status < 200 || status >= 300 {
		return failureResponse(status, body), nil
	}

	var charge chargeResponse
	if err := json.Unmarshal(body, &charge); err != nil {
		return gateway.GatewayResponse{}, fmt.Errorf("koin: decoding charge response: %w", err)
	}

	resp := gateway.GatewayResponse{
		TransactionID: charge.ID,
		Status:        mapStatus(charge.Status),
		Raw:           body,
	}
	if charge.Pix != nil {
		resp.Pix = &gateway.PixArtifacts{
			QRCode:     charge.Pix.QRCode,
			QRCodeText: charge.Pix.CopyPaste,
			ExpiresAt:  charge.Pix.ExpiresAt,
		}
	}
	if charge.Boleto != nil {
		resp.Boleto = &gateway.BoletoArtifacts{
			Barcode:       charge.Boleto.Barcode,
			DigitableLine: charge.Boleto.DigitableLine,
			URL:           charge.Boleto.URL,
			DueDate:       charge.Boleto.DueDate,
		}
		resp.PaymentURL = charge.Boleto.URL
	}
	if charge.Card != nil {
		resp.Card = &gateway.CardArtifacts{
			Fingerprint: charge.Card.Fingerprint,
			Brand:       charge.Card.Brand,
			LastDigits:  charge.Card.LastDigits,
		}
	}

	if resp.Status == gateway.StatusRefused {
		resp.Success = false
		if code, ok := errorCodes[charge.RefuseReason]; ok {
			resp.ErrorCode = code
		} else {
			resp.ErrorCode = gateway.ErrCardDeclined
		}
		resp.ErrorMessage = fmt.Sprintf("charge refused: %s", charge.RefuseReason)
		return resp, nil
	}
	resp.Success = true
	return resp, nil
}

// do issues one request authenticated with the basic-auth-encoded secret
// key. saleID, when set, becomes the idempotency key of the call.
func (a *Adapter) do(ctx context.Context, cfg gateway.GatewayConfig, method, path, saleID string, payload interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("koin: encoding request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, a.endpoint(cfg)+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("koin: building request: %w", err)
	}
	httpReq.SetBasicAuth(cfg.Credentials.SecretKey, "")
	httpReq.Header.Set("Content-Type", "application/json")
	if saleID != "" {
		httpReq.Header.Set("X-Idempotency-Key", "sale-"+saleID)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("koin: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("koin: reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func failureResponse(status int, body []byte) gateway.GatewayResponse {
	code, message := mapError(body, status)
	return gateway.GatewayResponse{
		Success:      false,
		Status:       gateway.StatusRefused,
		ErrorCode:    code,
		ErrorMessage: message,
		Raw:          gateway.RawPayload(body),
	}
}
