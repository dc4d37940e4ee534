// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

// Petition-submit sends a signed petition batch to a petitiond server
// and prints the reply. It exists for smoke-testing deployments: it
// signs the order date with a local RSA key, embeds the matching
// public key, and speaks the newline-delimited JSON wire protocol over
// TLS.
//
// If the key file does not exist, a 2048-bit RSA key is generated and
// written there, so a first run needs no provisioning.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/petitionworks/petitiond/lib/petition"
	"github.com/petitionworks/petitiond/lib/process"
	"github.com/petitionworks/petitiond/lib/signature"
)

// wirePetition is the outbound JSON shape.
type wirePetition struct {
	ClientID         int64  `json:"client_id"`
	NameMaterial     string `json:"name_material"`
	Amount           int64  `json:"amount"`
	OrderDate        string `json:"order_date"`
	DigitalSignature string `json:"digital_signature"`
	PublicKey        string `json:"public_key"`
}

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		addr         string
		keyPath      string
		clientID     int64
		nameMaterial string
		amount       int64
		orderDate    string
		count        int
		insecure     bool
		timeout      time.Duration
	)
	pflag.StringVar(&addr, "addr", "localhost:7790", "server address")
	pflag.StringVar(&keyPath, "key", "petition-submit.key", "PEM RSA private key (generated if missing)")
	pflag.Int64Var(&clientID, "client-id", 1, "client identifier")
	pflag.StringVar(&nameMaterial, "name", "steel", "petition name material")
	pflag.Int64Var(&amount, "amount", 10, "petition amount")
	pflag.StringVar(&orderDate, "order-date", "", "order date as \""+petition.OrderDateLayout+"\" (default now)")
	pflag.IntVar(&count, "count", 1, "petitions in the batch")
	pflag.BoolVar(&insecure, "insecure", false, "skip server certificate verification (self-signed deployments)")
	pflag.DurationVar(&timeout, "timeout", 10*time.Second, "dial and reply timeout")
	pflag.Parse()

	key, err := loadOrGenerateKey(keyPath)
	if err != nil {
		return err
	}

	when := time.Now().UTC()
	if orderDate != "" {
		when, err = petition.ParseOrderDate(orderDate)
		if err != nil {
			return fmt.Errorf("parsing --order-date: %w", err)
		}
	}

	signatureB64, err := signature.Sign(when, key)
	if err != nil {
		return err
	}
	publicKeyB64, err := signature.EncodePublicKey(&key.PublicKey)
	if err != nil {
		return err
	}

	batch := make([]wirePetition, count)
	for i := range batch {
		batch[i] = wirePetition{
			ClientID:         clientID,
			NameMaterial:     nameMaterial,
			Amount:           amount,
			OrderDate:        petition.FormatOrderDate(when),
			DigitalSignature: signatureB64,
			PublicKey:        publicKeyB64,
		}
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	conn, err := tls.Dial("tcp", addr, &tls.Config{
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: insecure,
	})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}

	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("sending batch: %w", err)
	}

	reply := make([]byte, 4096)
	n, err := conn.Read(reply)
	if err != nil {
		return fmt.Errorf("reading reply: %w", err)
	}
	fmt.Print(string(reply[:n]))
	return nil
}

// loadOrGenerateKey reads a PEM RSA private key, generating and
// persisting one when the file does not exist.
func loadOrGenerateKey(path string) (*rsa.PrivateKey, error) {
	pemBytes, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return generateKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading key %s: %w", path, err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("key %s: no PEM block", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key %s: not an RSA key", path)
	}
	return key, nil
}

func generateKey(path string) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("writing key %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "generated new key at %s\n", path)
	return key, nil
}
