package gateway

import (
	"encoding/json"
	"time"
)

// Credentials holds the already-loaded API credentials for one provider.
// The engine never writes or rotates credentials; the administrative surface
// that owns the configuration store does.
type Credentials struct {
	APIKey    string `json:"-"`
	SecretKey string `json:"-"`
}

// GatewayConfig identifies one provider integration as loaded from the
// configuration store. Read-only to the engine; loaded fresh per checkout so
// configuration changes apply immediately.
type GatewayConfig struct {
	Type        GatewayType `json:"type"`
	Credentials Credentials `json:"-"`
	Sandbox     bool        `json:"sandbox"`
	Active      bool        `json:"active"`
	// Priority ordinals need not be unique; their relative order defines
	// the default gateway sequence when no fallback policy exists.
	Priority int `json:"priority"`
}

// FallbackConfig is the per-payment-method fallback policy. At most one
// active policy exists per method.
type FallbackConfig struct {
	Method      PaymentMethod `json:"payment_method"`
	Primary     GatewayType   `json:"primary_gateway"`
	Fallbacks   []GatewayType `json:"fallback_gateways"`
	Enabled     bool          `json:"enabled"`
	MaxAttempts int           `json:"max_attempts"`
	RetryDelay  time.Duration `json:"retry_delay"`
}

// Address is the optional billing address of a customer profile. Some
// providers require it for raw-card charges.
type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zip_code"`
}

// Customer is the normalized customer profile sent to providers.
type Customer struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Document string   `json:"document"`
	Address  *Address `json:"address,omitempty"`
}

// MethodData carries the method-specific portion of a PaymentRequest.
// Exactly one variant exists per supported payment method.
type MethodData interface {
	Method() PaymentMethod
}

// PixData requests an instant-transfer voucher. The voucher artifacts come
// back on the response; the request itself carries no extra fields.
type PixData struct{}

// RawCard is card data submitted directly by the checkout.
type RawCard struct {
	Number     string `json:"number"`
	HolderName string `json:"holder_name"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	CVV        string `json:"cvv"`
}

// CardData requests a card charge, either through a previously saved token
// or with raw card data. SaveCard asks the provider to vault the card.
type CardData struct {
	Token    string   `json:"token,omitempty"`
	Raw      *RawCard `json:"card,omitempty"`
	SaveCard bool     `json:"save_card,omitempty"`
}

// BoletoData requests a bank-slip voucher. The due date is a fixed offset
// from the attempt time and is not configurable per request.
type BoletoData struct{}

func (PixData) Method() PaymentMethod    { return MethodPix }
func (CardData) Method() PaymentMethod   { return MethodCard }
func (BoletoData) Method() PaymentMethod { return MethodBoleto }

// PaymentRequest is the normalized input to the engine and to every adapter.
// Immutable once constructed.
type PaymentRequest struct {
	SaleID         string     `json:"sale_id"`
	OrganizationID string     `json:"organization_id"`
	AmountCents    int64      `json:"amount_cents"`
	Installments   int        `json:"installments,omitempty"`
	Customer       Customer   `json:"customer"`
	CallbackURL    string     `json:"callback_url,omitempty"`
	Data           MethodData `json:"-"`
}

// Method returns the payment method carried by the request's method data.
func (r PaymentRequest) Method() PaymentMethod {
	if r.Data == nil {
		return ""
	}
	return r.Data.Method()
}

// PixArtifacts is the instant-transfer voucher returned by a provider.
type PixArtifacts struct {
	QRCode     string    `json:"qr_code"`
	QRCodeText string    `json:"qr_code_text"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// BoletoArtifacts is the bank-slip voucher returned by a provider.
type BoletoArtifacts struct {
	Barcode       string    `json:"barcode"`
	DigitableLine string    `json:"digitable_line"`
	URL           string    `json:"url,omitempty"`
	DueDate       time.Time `json:"due_date"`
}

// CardArtifacts describes the card used on a settled or vaulted charge.
type CardArtifacts struct {
	Fingerprint string `json:"fingerprint,omitempty"`
	Brand       string `json:"brand,omitempty"`
	LastDigits  string `json:"last_digits,omitempty"`
}

// GatewayResponse is the normalized outcome of one adapter call. Every
// adapter must satisfy this contract; provider-reported failures are
// expressed as Success=false plus an error code, never as a Go error.
type GatewayResponse struct {
	Success       bool             `json:"success"`
	TransactionID string           `json:"transaction_id,omitempty"`
	PaymentURL    string           `json:"payment_url,omitempty"`
	Status        Status           `json:"status,omitempty"`
	Pix           *PixArtifacts    `json:"pix,omitempty"`
	Boleto        *BoletoArtifacts `json:"boleto,omitempty"`
	Card          *CardArtifacts   `json:"card,omitempty"`
	ErrorCode     ErrorCode        `json:"error_code,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	// Raw is the provider payload as received, kept for forensic use.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// RawPayload normalizes a provider body for the forensic Raw field. Valid
// JSON is kept verbatim; anything else (an HTML error page from a proxy, a
// truncated body) is wrapped as a JSON string so a response carrying it can
// always be marshaled back to the caller.
func RawPayload(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// AttemptRecord is one append-only audit row per gateway invocation.
// Records are never mutated after being persisted.
type AttemptRecord struct {
	ID            string          `json:"id"`
	SaleID        string          `json:"sale_id"`
	Gateway       GatewayType     `json:"gateway"`
	Method        PaymentMethod   `json:"payment_method"`
	AmountCents   int64           `json:"amount_cents"`
	Number        int             `json:"attempt_number"`
	IsFallback    bool            `json:"is_fallback"`
	FallbackFrom  GatewayType     `json:"fallback_from,omitempty"`
	Status        AttemptStatus   `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	ErrorCode     ErrorCode       `json:"error_code,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
