// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

package petition

import (
	"errors"
	"fmt"
)

// Code identifies a rejection reason. Rejections are the recoverable
// half of the error taxonomy: the connection handler reports them to
// the peer and keeps the connection open. Store and transport failures
// are ordinary errors and never carry a Code.
type Code string

const (
	CodeMalformedPayload Code = "MALFORMED_PAYLOAD"
	CodeInvalidClientID  Code = "INVALID_CLIENT_ID"
	CodeInvalidAmount    Code = "INVALID_AMOUNT"
	CodeInvalidOrderDate Code = "INVALID_ORDER_DATE"
	CodeSignatureInvalid Code = "SIGNATURE_INVALID"
	CodeMixedClientBatch Code = "MIXED_CLIENT_BATCH"
	CodeTooManyRequests  Code = "TOO_MANY_REQUESTS"
)

// Rejection is a typed validation failure. Message is what the peer
// sees in the ERROR response.
type Rejection struct {
	Code    Code
	Message string
}

func (r *Rejection) Error() string { return r.Message }

// Reject builds a Rejection with a formatted message.
func Reject(code Code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRejection extracts a Rejection from an error chain. The second
// result is false for store, transport, and other internal errors.
func AsRejection(err error) (*Rejection, bool) {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}
