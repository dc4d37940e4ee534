// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

package petition

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func acceptAll(Record) (bool, error) { return true, nil }

// petitionJSON builds one petition object with the given overrides.
// Missing keys are filled with valid defaults.
func petitionJSON(overrides map[string]string) string {
	fields := map[string]string{
		"client_id":         `77`,
		"name_material":     `"steel"`,
		"amount":            `10`,
		"order_date":        `"2026-03-14 09:26:53"`,
		"digital_signature": `"c2ln"`,
		"public_key":        `"a2V5"`,
	}
	for key, value := range overrides {
		if value == "" {
			delete(fields, key)
		} else {
			fields[key] = value
		}
	}
	var parts []string
	for key, value := range fields {
		parts = append(parts, fmt.Sprintf("%q: %s", key, value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func batchJSON(petitions ...string) []byte {
	return []byte("[" + strings.Join(petitions, ", ") + "]")
}

func requireRejection(t *testing.T, err error, code Code) *Rejection {
	t.Helper()
	if err == nil {
		t.Fatalf("expected rejection %s, got nil error", code)
	}
	rejection, ok := AsRejection(err)
	if !ok {
		t.Fatalf("expected *Rejection, got %T: %v", err, err)
	}
	if rejection.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, rejection.Code, rejection.Message)
	}
	return rejection
}

func TestDecodeBatchValid(t *testing.T) {
	records, err := DecodeBatch(batchJSON(petitionJSON(nil), petitionJSON(map[string]string{
		"amount":        `301`,
		"name_material": `"copper"`,
	})), acceptAll)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.ClientID != 77 {
		t.Errorf("ClientID = %d, want 77", first.ClientID)
	}
	if first.NameMaterial != "steel" {
		t.Errorf("NameMaterial = %q, want steel", first.NameMaterial)
	}
	if first.Amount != 10 {
		t.Errorf("Amount = %d, want 10", first.Amount)
	}
	want, _ := ParseOrderDate("2026-03-14 09:26:53")
	if !first.OrderDate.Equal(want) {
		t.Errorf("OrderDate = %v, want %v", first.OrderDate, want)
	}
	if records[1].Amount != 301 {
		t.Errorf("second Amount = %d, want 301", records[1].Amount)
	}
}

func TestDecodeBatchCamelCaseNames(t *testing.T) {
	raw := []byte(`[{
		"clientId": "42",
		"nameMaterial": "zinc",
		"amount": 0,
		"orderDate": "2026-01-02 03:04:05",
		"digitalSignature": "c2ln",
		"publicKey": "a2V5"
	}]`)
	records, err := DecodeBatch(raw, acceptAll)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if records[0].ClientID != 42 {
		t.Errorf("ClientID = %d, want 42", records[0].ClientID)
	}
	if records[0].NameMaterial != "zinc" {
		t.Errorf("NameMaterial = %q, want zinc", records[0].NameMaterial)
	}
	if records[0].Amount != 0 {
		t.Errorf("Amount = %d, want 0", records[0].Amount)
	}
}

func TestDecodeBatchClientID(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		wantCode Code
	}{
		{"bare integer", `77`, ""},
		{"digit string", `"77"`, ""},
		{"missing", "", CodeInvalidClientID},
		{"zero", `0`, CodeInvalidClientID},
		{"negative", `-3`, CodeInvalidClientID},
		{"non-digit string", `"abc"`, CodeInvalidClientID},
		{"empty string", `""`, CodeInvalidClientID},
		{"float", `7.5`, CodeInvalidClientID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := batchJSON(petitionJSON(map[string]string{"client_id": tt.clientID}))
			records, err := DecodeBatch(raw, acceptAll)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("DecodeBatch: %v", err)
				}
				if records[0].ClientID != 77 {
					t.Errorf("ClientID = %d, want 77", records[0].ClientID)
				}
				return
			}
			requireRejection(t, err, tt.wantCode)
		})
	}
}

func TestDecodeBatchAmountBounds(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		wantCode Code
	}{
		{"lower bound", `0`, ""},
		{"upper bound", `301`, ""},
		{"below range", `-1`, CodeInvalidAmount},
		{"above range", `302`, CodeInvalidAmount},
		{"missing", "", CodeInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := batchJSON(petitionJSON(map[string]string{"amount": tt.amount}))
			_, err := DecodeBatch(raw, acceptAll)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("DecodeBatch: %v", err)
				}
				return
			}
			requireRejection(t, err, tt.wantCode)
		})
	}
}

func TestDecodeBatchOrderDate(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		wantCode Code
	}{
		{"canonical", `"2026-03-14 09:26:53"`, ""},
		{"missing", "", CodeInvalidOrderDate},
		{"iso-8601 t separator", `"2026-03-14T09:26:53"`, CodeInvalidOrderDate},
		{"date only", `"2026-03-14"`, CodeInvalidOrderDate},
		{"garbage", `"not a date"`, CodeInvalidOrderDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := batchJSON(petitionJSON(map[string]string{"order_date": tt.date}))
			_, err := DecodeBatch(raw, acceptAll)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("DecodeBatch: %v", err)
				}
				return
			}
			requireRejection(t, err, tt.wantCode)
		})
	}
}

func TestDecodeBatchNameMaterial(t *testing.T) {
	atLimit := strings.Repeat("x", MaxNameMaterialLength)
	raw := batchJSON(petitionJSON(map[string]string{"name_material": `"` + atLimit + `"`}))
	if _, err := DecodeBatch(raw, acceptAll); err != nil {
		t.Fatalf("name at limit should pass: %v", err)
	}

	overLimit := strings.Repeat("x", MaxNameMaterialLength+1)
	raw = batchJSON(petitionJSON(map[string]string{"name_material": `"` + overLimit + `"`}))
	_, err := DecodeBatch(raw, acceptAll)
	requireRejection(t, err, CodeMalformedPayload)

	raw = batchJSON(petitionJSON(map[string]string{"name_material": ""}))
	_, err = DecodeBatch(raw, acceptAll)
	requireRejection(t, err, CodeMalformedPayload)
}

func TestDecodeBatchSignatureOutcomes(t *testing.T) {
	raw := batchJSON(petitionJSON(nil))

	rejectAll := func(Record) (bool, error) { return false, nil }
	_, err := DecodeBatch(raw, rejectAll)
	requireRejection(t, err, CodeSignatureInvalid)

	failAll := func(Record) (bool, error) { return false, errors.New("bad key bytes") }
	_, err = DecodeBatch(raw, failAll)
	rejection := requireRejection(t, err, CodeSignatureInvalid)
	if !strings.Contains(rejection.Message, "bad key bytes") {
		t.Errorf("message should carry the cause, got %q", rejection.Message)
	}

	raw = batchJSON(petitionJSON(map[string]string{"digital_signature": ""}))
	_, err = DecodeBatch(raw, acceptAll)
	requireRejection(t, err, CodeSignatureInvalid)

	raw = batchJSON(petitionJSON(map[string]string{"public_key": ""}))
	_, err = DecodeBatch(raw, acceptAll)
	requireRejection(t, err, CodeSignatureInvalid)
}

func TestDecodeBatchMixedClients(t *testing.T) {
	raw := batchJSON(
		petitionJSON(nil),
		petitionJSON(map[string]string{"client_id": `78`}),
	)
	_, err := DecodeBatch(raw, acceptAll)
	requireRejection(t, err, CodeMixedClientBatch)
}

func TestDecodeBatchMalformedPayload(t *testing.T) {
	for _, raw := range []string{`[]`, `{}`, `not json`, `"just a string"`} {
		t.Run(raw, func(t *testing.T) {
			_, err := DecodeBatch([]byte(raw), acceptAll)
			requireRejection(t, err, CodeMalformedPayload)
		})
	}
}

func TestDecodeBatchOneBadRecordRejectsAll(t *testing.T) {
	raw := batchJSON(
		petitionJSON(nil),
		petitionJSON(map[string]string{"amount": `999`}),
	)
	records, err := DecodeBatch(raw, acceptAll)
	requireRejection(t, err, CodeInvalidAmount)
	if records != nil {
		t.Errorf("rejected batch must return no records, got %d", len(records))
	}
}

func TestOrderDateRoundTrip(t *testing.T) {
	when := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	rendered := FormatOrderDate(when)
	if rendered != "2026-03-14 09:26:53" {
		t.Fatalf("FormatOrderDate = %q", rendered)
	}
	parsed, err := ParseOrderDate(rendered)
	if err != nil {
		t.Fatalf("ParseOrderDate: %v", err)
	}
	if !parsed.Equal(when) {
		t.Errorf("round trip %v != %v", parsed, when)
	}
}

func TestOrderDates(t *testing.T) {
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	dates := OrderDates([]Record{{OrderDate: first}, {OrderDate: second}})
	if len(dates) != 2 || !dates[0].Equal(first) || !dates[1].Equal(second) {
		t.Errorf("OrderDates = %v", dates)
	}
}

func TestAsRejection(t *testing.T) {
	rejection := Reject(CodeTooManyRequests, "Too many requests")
	wrapped := fmt.Errorf("handling batch: %w", rejection)
	got, ok := AsRejection(wrapped)
	if !ok || got.Code != CodeTooManyRequests {
		t.Fatalf("AsRejection through wrap failed: %v %v", got, ok)
	}

	if _, ok := AsRejection(errors.New("disk full")); ok {
		t.Error("plain error must not read as a rejection")
	}
}
