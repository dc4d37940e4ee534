// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

package petition

import (
	"encoding/json"
	"strconv"
	"time"
)

// wirePetition is the raw decoded shape of one petition object. Every
// field exists in both tolerated naming conventions; normalize folds
// them into wireFields before any validation looks at them. This is
// the single interop shim — nothing past normalize knows the wire
// supported two spellings.
type wirePetition struct {
	ClientID    json.RawMessage `json:"client_id"`
	ClientIDAlt json.RawMessage `json:"clientId"`

	NameMaterial    *string `json:"name_material"`
	NameMaterialAlt *string `json:"nameMaterial"`

	Amount *int64 `json:"amount"`

	OrderDate    *string `json:"order_date"`
	OrderDateAlt *string `json:"orderDate"`

	DigitalSignature    *string `json:"digital_signature"`
	DigitalSignatureAlt *string `json:"digitalSignature"`

	PublicKey    *string `json:"public_key"`
	PublicKeyAlt *string `json:"publicKey"`
}

// wireFields is the canonical internal field set after naming
// normalization. Pointers stay nil for absent fields so validation can
// distinguish missing from zero.
type wireFields struct {
	clientID         json.RawMessage
	nameMaterial     *string
	amount           *int64
	orderDate        *string
	digitalSignature *string
	publicKey        *string
}

// normalize prefers the snake_case spelling and falls back to
// camelCase per field.
func (w *wirePetition) normalize() wireFields {
	pickString := func(snake, camel *string) *string {
		if snake != nil {
			return snake
		}
		return camel
	}
	clientID := w.ClientID
	if clientID == nil {
		clientID = w.ClientIDAlt
	}
	return wireFields{
		clientID:         clientID,
		nameMaterial:     pickString(w.NameMaterial, w.NameMaterialAlt),
		amount:           w.Amount,
		orderDate:        pickString(w.OrderDate, w.OrderDateAlt),
		digitalSignature: pickString(w.DigitalSignature, w.DigitalSignatureAlt),
		publicKey:        pickString(w.PublicKey, w.PublicKeyAlt),
	}
}

// DecodeBatch decodes a raw JSON batch, validates every petition, and
// verifies every signature through verify. On success it returns the
// records in input order; on any failure it returns a *Rejection and
// no records. The whole batch shares exactly one client_id.
func DecodeBatch(raw []byte, verify VerifyFunc) ([]Record, error) {
	var wire []wirePetition
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, Reject(CodeMalformedPayload, "malformed payload: %v", err)
	}
	if len(wire) == 0 {
		return nil, Reject(CodeMalformedPayload, "malformed payload: empty batch")
	}

	records := make([]Record, 0, len(wire))
	for i := range wire {
		record, err := validateRecord(wire[i].normalize(), verify)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	// A batch is scoped to exactly one client.
	batchClient := records[0].ClientID
	for _, record := range records[1:] {
		if record.ClientID != batchClient {
			return nil, Reject(CodeMixedClientBatch,
				"batch mixes client ids %d and %d", batchClient, record.ClientID)
		}
	}

	return records, nil
}

// validateRecord applies the per-field invariants in order: client_id,
// amount, order_date, then the signature check. name_material presence
// and length are part of payload well-formedness.
func validateRecord(fields wireFields, verify VerifyFunc) (Record, error) {
	clientID, err := parseClientID(fields.clientID)
	if err != nil {
		return Record{}, err
	}

	if fields.amount == nil {
		return Record{}, Reject(CodeInvalidAmount, "missing amount")
	}
	amount := *fields.amount
	if amount < MinAmount || amount > MaxAmount {
		return Record{}, Reject(CodeInvalidAmount,
			"amount %d out of range [%d, %d]", amount, MinAmount, MaxAmount)
	}

	if fields.orderDate == nil {
		return Record{}, Reject(CodeInvalidOrderDate, "missing order_date")
	}
	orderDate, err := ParseOrderDate(*fields.orderDate)
	if err != nil {
		return Record{}, Reject(CodeInvalidOrderDate, "invalid %v", err)
	}

	if fields.nameMaterial == nil {
		return Record{}, Reject(CodeMalformedPayload, "missing name_material")
	}
	if len(*fields.nameMaterial) > MaxNameMaterialLength {
		return Record{}, Reject(CodeMalformedPayload,
			"name_material exceeds %d characters", MaxNameMaterialLength)
	}

	if fields.digitalSignature == nil {
		return Record{}, Reject(CodeSignatureInvalid, "missing digital_signature")
	}
	if fields.publicKey == nil {
		return Record{}, Reject(CodeSignatureInvalid, "missing public_key")
	}

	record := Record{
		ClientID:         clientID,
		NameMaterial:     *fields.nameMaterial,
		Amount:           amount,
		OrderDate:        orderDate,
		DigitalSignature: *fields.digitalSignature,
		PublicKey:        *fields.publicKey,
	}

	ok, err := verify(record)
	if err != nil {
		return Record{}, Reject(CodeSignatureInvalid, "signature unverifiable: %v", err)
	}
	if !ok {
		return Record{}, Reject(CodeSignatureInvalid, "signature does not verify")
	}

	return record, nil
}

// parseClientID accepts a digit-only JSON string or a bare JSON
// integer and returns the positive client id. The original clients
// sent numbers; the documented contract says digit-only strings — both
// normalize here.
func parseClientID(raw json.RawMessage) (int64, error) {
	if raw == nil {
		return 0, Reject(CodeInvalidClientID, "missing client_id")
	}

	text := string(raw)
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = text[1 : len(text)-1]
	}
	if text == "" {
		return 0, Reject(CodeInvalidClientID, "empty client_id")
	}
	for _, c := range text {
		if c < '0' || c > '9' {
			return 0, Reject(CodeInvalidClientID, "client_id %q is not a positive integer", string(raw))
		}
	}

	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, Reject(CodeInvalidClientID, "client_id %q: %v", string(raw), err)
	}
	if id <= 0 {
		return 0, Reject(CodeInvalidClientID, "client_id must be positive, got %d", id)
	}
	return id, nil
}

// OrderDates returns the order dates of records, preserving order.
// The rate limiter takes the candidate dates of an incoming batch in
// this form.
func OrderDates(records []Record) []time.Time {
	dates := make([]time.Time, len(records))
	for i, record := range records {
		dates[i] = record.OrderDate
	}
	return dates
}
