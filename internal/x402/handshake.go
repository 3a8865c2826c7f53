// Package x402 implements the HTTP 402 payment handshake of spec §6:
// an initial GET returns 402 with payment requirements; a retry GET
// carrying the X-Payment header supplies proof of payment.
package x402

import (
	"encoding/json"
	"fmt"
)

const (
	SchemeType    = "x402"
	SchemeVersion = "1"

	// PaymentHeader is the header name carrying the JSON payment proof on retry.
	PaymentHeader = "X-Payment"
)

// PaymentRequired is the 402 response body (spec §6).
type PaymentRequired struct {
	Type        string `json:"type"`
	Version     string `json:"version"`
	Address     string `json:"address"`
	Token       string `json:"token"`
	Amount      int64  `json:"amount"`
	Network     string `json:"network"`
	Description string `json:"description"`
}

// PaymentProof is the JSON carried in the X-Payment header on retry.
type PaymentProof struct {
	TxSignature string `json:"txSignature"`
	Amount      int64  `json:"amount"`
	Payer       string `json:"payer"`
}

// BuildPaymentHeader encodes proof for the X-Payment header value.
func BuildPaymentHeader(proof PaymentProof) (string, error) {
	raw, err := json.Marshal(proof)
	if err != nil {
		return "", fmt.Errorf("x402: encoding payment proof: %w", err)
	}
	return string(raw), nil
}

// ParsePaymentHeader decodes an X-Payment header value into a PaymentProof.
func ParsePaymentHeader(value string) (PaymentProof, error) {
	var proof PaymentProof
	if err := json.Unmarshal([]byte(value), &proof); err != nil {
		return PaymentProof{}, fmt.Errorf("x402: decoding payment proof: %w", err)
	}
	return proof, nil
}
