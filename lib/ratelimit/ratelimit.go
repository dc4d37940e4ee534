// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit implements the per-client burst guard. The policy
// looks only at persisted history: once a client has more than
// HistorySize petitions on record, the span covered by the most recent
// HistorySize of them must be at least Window wide or the new batch is
// rejected. No counter state exists outside the store, so there is
// nothing to keep consistent with persisted data.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/petitionworks/petitiond/lib/petition"
)

// Default policy parameters: more than three historical petitions
// whose last three span under four hours is a burst.
const (
	DefaultHistorySize = 3
	DefaultWindow      = 4 * time.Hour
)

// History is the read-only slice of the petition store the limiter
// consults. The limiter never mutates the store.
type History interface {
	CountForClient(ctx context.Context, clientID int64) (int64, error)
	RecentForClient(ctx context.Context, clientID int64, n int) ([]petition.Record, error)
}

// Limiter approves or denies a new batch based on submission cadence.
type Limiter struct {
	history History

	historySize int
	window      time.Duration

	// clientMu guards clientLocks. The per-client mutexes serialize
	// the check-then-insert window: two batches from the same client
	// racing through Check and persist must not both pass on stale
	// counts.
	clientMu    sync.Mutex
	clientLocks map[int64]*sync.Mutex
}

// New creates a Limiter over the given history. historySize and window
// fall back to the defaults when zero.
func New(history History, historySize int, window time.Duration) *Limiter {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		history:     history,
		historySize: historySize,
		window:      window,
		clientLocks: make(map[int64]*sync.Mutex),
	}
}

// LockClient acquires the client's mutex and returns the unlock
// function. The connection handler holds the lock across Check and the
// subsequent store insert so the rate decision and the write are one
// atomic step per client.
func (l *Limiter) LockClient(clientID int64) func() {
	l.clientMu.Lock()
	mu, exists := l.clientLocks[clientID]
	if !exists {
		mu = &sync.Mutex{}
		l.clientLocks[clientID] = mu
	}
	l.clientMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Check approves or denies a batch for the client. The candidate order
// dates of the incoming batch are part of the contract but do not
// enter the policy: only persisted history is examined, once per
// batch, before any record is persisted.
//
// Returns a TooManyRequests rejection when the burst guard trips, or a
// wrapped store error if history cannot be read.
func (l *Limiter) Check(ctx context.Context, clientID int64, candidates []time.Time) error {
	count, err := l.history.CountForClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if count <= int64(l.historySize) {
		return nil
	}

	recent, err := l.history.RecentForClient(ctx, clientID, l.historySize)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if len(recent) < 2 {
		return nil
	}

	// RecentForClient returns order_date descending: the span of the
	// window is newest minus oldest.
	newest := recent[0].OrderDate
	oldest := recent[len(recent)-1].OrderDate
	if newest.Sub(oldest) < l.window {
		return petition.Reject(petition.CodeTooManyRequests, "Too many requests")
	}

	return nil
}
