// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

// Package petition defines the petition record, the canonical
// order-date format, and the batch decoding and validation pipeline.
//
// A batch arrives as a JSON array of petition objects scoped to a
// single client. Decoding normalizes the two tolerated field-naming
// conventions (snake_case and camelCase) into one internal shape,
// validates each field, verifies each signature through an injected
// VerifyFunc, and enforces single-client scoping. Validation is
// all-or-nothing: one bad record rejects the whole batch.
package petition

import (
	"fmt"
	"time"
)

// OrderDateLayout is the canonical textual rendering of an order date.
// It is both the wire format and the signed payload: signatures are
// computed over exactly this rendering.
const OrderDateLayout = "2006-01-02 15:04:05"

// Field limits. Amount bounds are inclusive on both ends.
const (
	MaxNameMaterialLength = 100
	MinAmount             = 0
	MaxAmount             = 301
)

// Record is one validated material-order petition. Records are
// immutable once persisted; the store never updates them.
type Record struct {
	// ClientID identifies the submitting client. Always positive.
	ClientID int64

	// NameMaterial is the short identifier of the ordered material.
	NameMaterial string

	// Amount is the ordered quantity, within [MinAmount, MaxAmount].
	Amount int64

	// OrderDate has second precision. Sub-second components are never
	// present: the value round-trips through OrderDateLayout.
	OrderDate time.Time

	// DigitalSignature is the base64-encoded RSA signature over the
	// canonical OrderDate rendering.
	DigitalSignature string

	// PublicKey is the base64-encoded DER public key the signature
	// verifies under. It travels with the petition; binding it to a
	// registered client identity is the verifier's concern.
	PublicKey string
}

// VerifyFunc checks the authenticity of a single petition. A false
// result means the signature does not verify over the canonical order
// date. A non-nil error means the key or signature bytes themselves
// were malformed.
type VerifyFunc func(r Record) (bool, error)

// FormatOrderDate renders t in the canonical format, in t's location.
func FormatOrderDate(t time.Time) string {
	return t.Format(OrderDateLayout)
}

// ParseOrderDate parses the canonical format. The result is in UTC;
// order dates carry no zone information on the wire.
func ParseOrderDate(s string) (time.Time, error) {
	t, err := time.Parse(OrderDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("order date %q: expected format %s", s, OrderDateLayout)
	}
	return t.UTC(), nil
}
