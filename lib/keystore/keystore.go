// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore supplies the server's TLS credential bundle: a
// private key, a leaf certificate, and optional trust anchors. If the
// key or certificate file is absent, a 2048-bit RSA key and a one-year
// self-signed certificate are generated and persisted before first
// use, so a fresh deployment serves TLS without manual provisioning.
//
// Credential failures are startup-fatal: a server that cannot present
// its certificate has nothing useful to do.
package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/petitionworks/petitiond/lib/clock"
)

// Config locates the credential material.
type Config struct {
	// KeyPath and CertPath are the PEM files for the server's private
	// key and leaf certificate. Both required. If either file does not
	// exist, a self-signed pair is generated and written to both
	// paths.
	KeyPath  string
	CertPath string

	// TrustAnchorsPath is an optional PEM bundle of CA certificates
	// added to the bundle's anchor pool.
	TrustAnchorsPath string

	// CommonName is the subject CN used when generating a self-signed
	// certificate. Defaults to "petitiond".
	CommonName string

	// Clock provides the generation timestamp for certificate
	// validity. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives provisioning messages. Required.
	Logger *slog.Logger
}

// Bundle is a ready-to-use TLS server credential set.
type Bundle struct {
	Certificate  tls.Certificate
	TrustAnchors *x509.CertPool
}

// ServerTLS builds the TLS configuration for the listener. TLS 1.3
// only.
func (b *Bundle) ServerTLS() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{b.Certificate},
		MinVersion:   tls.VersionTLS13,
	}
}

// selfSignedValidity is how long generated certificates last.
const selfSignedValidity = 365 * 24 * time.Hour

// Load reads the credential bundle, generating a self-signed pair
// first if the key or certificate file is missing.
func Load(cfg Config) (*Bundle, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("keystore: Logger is required")
	}
	if cfg.KeyPath == "" || cfg.CertPath == "" {
		return nil, fmt.Errorf("keystore: KeyPath and CertPath are required")
	}

	if !fileExists(cfg.KeyPath) || !fileExists(cfg.CertPath) {
		cfg.Logger.Info("certificate or key not found, generating self-signed pair",
			"key_path", cfg.KeyPath,
			"cert_path", cfg.CertPath,
		)
		if err := generateSelfSigned(cfg); err != nil {
			return nil, err
		}
	}

	certificate, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("keystore: loading key pair: %w", err)
	}

	anchors := x509.NewCertPool()
	if cfg.TrustAnchorsPath != "" {
		pemBytes, err := os.ReadFile(cfg.TrustAnchorsPath)
		if err != nil {
			return nil, fmt.Errorf("keystore: reading trust anchors: %w", err)
		}
		if !anchors.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("keystore: no certificates in trust anchors %s", cfg.TrustAnchorsPath)
		}
	}

	return &Bundle{
		Certificate:  certificate,
		TrustAnchors: anchors,
	}, nil
}

// generateSelfSigned creates an RSA key and a self-signed certificate,
// writing both as PEM. The key file is written 0600.
func generateSelfSigned(cfg Config) error {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	commonName := cfg.CommonName
	if commonName == "" {
		commonName = "petitiond"
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("keystore: generating key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("keystore: generating serial: %w", err)
	}

	now := clk.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    now,
		NotAfter:     now.Add(selfSignedValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{commonName},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("keystore: creating certificate: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	})

	if err := os.WriteFile(cfg.KeyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("keystore: writing key: %w", err)
	}
	if err := os.WriteFile(cfg.CertPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("keystore: writing certificate: %w", err)
	}

	cfg.Logger.Info("self-signed certificate generated",
		"common_name", commonName,
		"not_after", template.NotAfter,
	)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
