// Package monitor validates inbound checkout payment requests against a
// JSON schema before they are bound, so malformed submissions are rejected
// with a precise list of violations instead of a generic bind error.
package monitor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// paymentRequestSchema is the contract of POST /checkout/payments.
const paymentRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["sale_id", "organization_id", "amount_cents", "payment_method", "customer"],
  "properties": {
    "sale_id": {"type": "string", "minLength": 1},
    "organization_id": {"type": "string", "minLength": 1},
    "amount_cents": {"type": "integer", "minimum": 1},
    "payment_method": {"type": "string", "enum": ["pix", "credit_card", "boleto"]},
    "installments": {"type": "integer", "minimum": 1, "maximum": 12},
    "callback_url": {"type": "string"},
    "customer": {
      "type": "object",
      "required": ["name", "email", "document"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "email": {"type": "string", "minLength": 3},
        "phone": {"type": "string"},
        "document": {"type": "string", "minLength": 11},
        "address": {
          "type": "object",
          "properties": {
            "street": {"type": "string"},
            "number": {"type": "string"},
            "complement": {"type": "string"},
            "district": {"type": "string"},
            "city": {"type": "string"},
            "state": {"type": "string"},
            "zip_code": {"type": "string"}
          }
        }
      }
    },
    "card": {
      "type": "object",
      "properties": {
        "token": {"type": "string"},
        "save_card": {"type": "boolean"},
        "card": {
          "type": "object",
          "required": ["number", "holder_name", "exp_month", "exp_year", "cvv"],
          "properties": {
            "number": {"type": "string", "minLength": 13},
            "holder_name": {"type": "string", "minLength": 1},
            "exp_month": {"type": "string", "minLength": 1},
            "exp_year": {"type": "string", "minLength": 2},
            "cvv": {"type": "string", "minLength": 3}
          }
        }
      }
    }
  }
}`

// ContractMonitor validates request bodies against the payment schema.
type ContractMonitor struct {
	schema *gojsonschema.Schema
}

func NewContractMonitor() (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(paymentRequestSchema))
	if err != nil {
		return nil, fmt.Errorf("monitor: compiling payment request schema: %w", err)
	}
	return &ContractMonitor{schema: schema}, nil
}

// Validate checks the raw request body. It returns the list of violations
// when the body does not satisfy the contract.
func (cm *ContractMonitor) Validate(requestBody []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(requestBody))
	if err != nil {
		return false, nil, fmt.Errorf("monitor: validating request: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}
	var violations []string
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return false, violations, nil
}

// FormatErrors joins violations into one message for the error response.
func FormatErrors(violations []string) string {
	if len(violations) == 0 {
		return ""
	}
	return "validation errors: " + strings.Join(violations, "; ")
}
