// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

// Package signature verifies petition authenticity. The signed payload
// is the canonical textual rendering of the order date: SHA-256 of the
// UTF-8 string, RSA PKCS#1 v1.5 under the petition's embedded public
// key.
//
// Verification mismatch and malformed encoding are distinct outcomes:
// a wrong signature yields (false, nil), while undecodable key or
// signature bytes yield an error wrapping ErrMalformedKey or
// ErrMalformedSignature.
package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/petitionworks/petitiond/lib/petition"
)

// Sentinel error kinds for malformed cryptographic material.
var (
	ErrMalformedKey       = errors.New("malformed public key")
	ErrMalformedSignature = errors.New("malformed signature")
)

// Verify checks signatureB64 against the canonical rendering of
// orderDate under publicKeyB64. The key is base64 DER with no PEM
// armor, PKIX or PKCS#1 form. Pure function: no side effects.
func Verify(orderDate time.Time, signatureB64, publicKeyB64 string) (bool, error) {
	publicKey, err := ParsePublicKey(publicKeyB64)
	if err != nil {
		return false, err
	}

	signatureBytes, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	digest := sha256.Sum256([]byte(petition.FormatOrderDate(orderDate)))
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest[:], signatureBytes); err != nil {
		return false, nil
	}
	return true, nil
}

// Sign produces the base64 signature over the canonical rendering of
// orderDate. Counterpart of Verify, used by the submit tool and tests.
func Sign(orderDate time.Time, key *rsa.PrivateKey) (string, error) {
	digest := sha256.Sum256([]byte(petition.FormatOrderDate(orderDate)))
	signatureBytes, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("signing order date: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signatureBytes), nil
}

// ParsePublicKey decodes a base64 DER RSA public key. PKIX
// (SubjectPublicKeyInfo) is tried first, then raw PKCS#1.
func ParsePublicKey(publicKeyB64 string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	if parsed, err := x509.ParsePKIXPublicKey(der); err == nil {
		rsaKey, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrMalformedKey)
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return rsaKey, nil
}

// EncodePublicKey renders an RSA public key in the wire form
// (base64 PKIX DER, no PEM armor).
func EncodePublicKey(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("encoding public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}
