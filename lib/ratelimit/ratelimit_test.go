// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/petitionworks/petitiond/lib/petition"
)

// fakeHistory serves canned counts and recent records.
type fakeHistory struct {
	count  int64
	recent []petition.Record
	err    error
}

func (f *fakeHistory) CountForClient(ctx context.Context, clientID int64) (int64, error) {
	return f.count, f.err
}

func (f *fakeHistory) RecentForClient(ctx context.Context, clientID int64, n int) ([]petition.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n > len(f.recent) {
		n = len(f.recent)
	}
	return f.recent[:n], nil
}

// recentDescending builds records at the given offsets before a fixed
// reference time, newest first, matching the store's result order.
func recentDescending(offsets ...time.Duration) []petition.Record {
	reference := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	records := make([]petition.Record, len(offsets))
	for i, offset := range offsets {
		records[i] = petition.Record{ClientID: 7, OrderDate: reference.Add(-offset)}
	}
	return records
}

func TestCheckUnderThresholdAlwaysPasses(t *testing.T) {
	for _, count := range []int64{0, 1, 2, 3} {
		limiter := New(&fakeHistory{count: count}, 3, 4*time.Hour)
		if err := limiter.Check(context.Background(), 7, nil); err != nil {
			t.Errorf("count %d: unexpected rejection: %v", count, err)
		}
	}
}

func TestCheckBurstRejected(t *testing.T) {
	// Four on record, the last three within 30 minutes: well under
	// the four-hour window.
	history := &fakeHistory{
		count:  4,
		recent: recentDescending(0, 10*time.Minute, 30*time.Minute),
	}
	limiter := New(history, 3, 4*time.Hour)

	err := limiter.Check(context.Background(), 7, nil)
	rejection, ok := petition.AsRejection(err)
	if !ok {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rejection.Code != petition.CodeTooManyRequests {
		t.Errorf("code = %s, want %s", rejection.Code, petition.CodeTooManyRequests)
	}
	if rejection.Message != "Too many requests" {
		t.Errorf("message = %q, want the fixed wire message", rejection.Message)
	}
}

func TestCheckSpreadOutPasses(t *testing.T) {
	// Last three span exactly the window: not a burst.
	history := &fakeHistory{
		count:  10,
		recent: recentDescending(0, 2*time.Hour, 4*time.Hour),
	}
	limiter := New(history, 3, 4*time.Hour)

	if err := limiter.Check(context.Background(), 7, nil); err != nil {
		t.Errorf("span equal to window must pass: %v", err)
	}
}

func TestCheckJustInsideWindowRejected(t *testing.T) {
	history := &fakeHistory{
		count:  10,
		recent: recentDescending(0, 2*time.Hour, 4*time.Hour-time.Second),
	}
	limiter := New(history, 3, 4*time.Hour)

	if _, ok := petition.AsRejection(limiter.Check(context.Background(), 7, nil)); !ok {
		t.Error("span one second under the window must be rejected")
	}
}

func TestCheckHistoryError(t *testing.T) {
	storeErr := errors.New("database is locked")
	limiter := New(&fakeHistory{err: storeErr}, 3, 4*time.Hour)

	err := limiter.Check(context.Background(), 7, nil)
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if _, ok := petition.AsRejection(err); ok {
		t.Error("store failure must not read as a rejection")
	}
}

func TestDefaults(t *testing.T) {
	limiter := New(&fakeHistory{}, 0, 0)
	if limiter.historySize != DefaultHistorySize {
		t.Errorf("historySize = %d, want %d", limiter.historySize, DefaultHistorySize)
	}
	if limiter.window != DefaultWindow {
		t.Errorf("window = %v, want %v", limiter.window, DefaultWindow)
	}
}

func TestLockClientSerializesPerClient(t *testing.T) {
	limiter := New(&fakeHistory{}, 3, 4*time.Hour)

	var mu sync.Mutex
	var inSection int
	var maxInSection int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := limiter.LockClient(7)
			defer unlock()

			mu.Lock()
			inSection++
			if inSection > maxInSection {
				maxInSection = inSection
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inSection--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInSection != 1 {
		t.Errorf("critical section admitted %d goroutines for one client", maxInSection)
	}
}

func TestLockClientIndependentClients(t *testing.T) {
	limiter := New(&fakeHistory{}, 3, 4*time.Hour)

	unlock7 := limiter.LockClient(7)
	defer unlock7()

	// A different client's lock must not block behind client 7's.
	done := make(chan struct{})
	go func() {
		unlock8 := limiter.LockClient(8)
		unlock8()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("client 8 blocked behind client 7's lock")
	}
}
