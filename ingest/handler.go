// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/petitionworks/petitiond/lib/petition"
)

// Reply status values and the messages fixed by the wire contract.
const (
	statusSuccess = "SUCCESS"
	statusError   = "ERROR"

	successMessage = "Message received successfully."
)

// pollInterval is the read deadline used as the liveness poll. Each
// expiry gives the handler a chance to observe cancellation before
// blocking on the peer again.
const pollInterval = time.Second

// writeTimeout bounds each reply write.
const writeTimeout = 10 * time.Second

// response is the wire-format reply. Exactly one per request batch.
type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleConnection runs the per-connection protocol loop: read one
// newline-delimited batch, run it through the pipeline, reply, repeat.
// Validation rejections keep the connection open; transport failures
// and oversized requests close it.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := s.cfg.Logger.With("remote", conn.RemoteAddr().String())
	logger.Info("connection established")

	buffer := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		// Cooperative cancellation: checked every poll interval, so a
		// handler blocked on an idle peer observes shutdown within
		// one interval.
		if ctx.Err() != nil {
			logger.Info("connection closing on shutdown")
			return
		}

		conn.SetReadDeadline(s.cfg.Clock.Now().Add(pollInterval))
		n, err := conn.Read(chunk)
		buffer = append(buffer, chunk[:n]...)

		// Drain complete requests before acting on any read error:
		// data that arrived with EOF still deserves a reply attempt.
		for {
			newline := bytes.IndexByte(buffer, '\n')
			if newline < 0 {
				break
			}
			line := bytes.TrimSpace(buffer[:newline])
			buffer = buffer[newline+1:]
			if len(line) == 0 {
				continue
			}
			s.writeResponse(conn, logger, s.handleBatch(ctx, logger, line))
		}

		if len(buffer) > s.cfg.MaxBatchBytes {
			logger.Error("request exceeds max batch size",
				"status", statusError,
				"size", len(buffer),
				"limit", s.cfg.MaxBatchBytes,
			)
			s.writeResponse(conn, logger, response{
				Status:  statusError,
				Message: "malformed payload: request too large",
			})
			return
		}

		if err != nil {
			switch {
			case errors.Is(err, os.ErrDeadlineExceeded):
				// Liveness poll expired with the peer idle; loop.
			case errors.Is(err, io.EOF):
				logger.Info("connection closed by the client")
				return
			default:
				logger.Error("transport failure", "error", err)
				return
			}
		}
	}
}

// handleBatch runs one batch through the pipeline: decode and validate,
// lock the client, rate-check, persist. Any rejection skips
// persistence and maps to an ERROR reply; storage failures are logged
// and reported without retry.
func (s *Server) handleBatch(ctx context.Context, logger *slog.Logger, raw []byte) response {
	records, err := petition.DecodeBatch(raw, s.cfg.Verify)
	if err != nil {
		return s.rejectionResponse(logger, err)
	}

	clientID := records[0].ClientID

	// The per-client lock makes rate check plus insert one atomic step:
	// two racing batches from the same client cannot both pass the
	// check on stale counts.
	unlock := s.cfg.Limiter.LockClient(clientID)
	defer unlock()

	if err := s.cfg.Limiter.Check(ctx, clientID, petition.OrderDates(records)); err != nil {
		return s.rejectionResponse(logger, err)
	}

	if err := s.cfg.Store.InsertBatch(ctx, records); err != nil {
		logger.Error("batch persistence failed",
			"status", statusError,
			"client_id", clientID,
			"error", err,
		)
		return response{Status: statusError, Message: "storage failure, batch not persisted"}
	}

	logger.Info("batch persisted",
		"status", statusSuccess,
		"client_id", clientID,
		"petitions", len(records),
	)
	return response{Status: statusSuccess, Message: successMessage}
}

// rejectionResponse maps a pipeline error to the wire reply. Typed
// rejections carry their message to the peer; anything else (store
// read failures during the rate check) is reported generically.
func (s *Server) rejectionResponse(logger *slog.Logger, err error) response {
	if rejection, ok := petition.AsRejection(err); ok {
		logger.Error("batch rejected",
			"status", statusError,
			"code", string(rejection.Code),
			"reason", rejection.Message,
		)
		return response{Status: statusError, Message: rejection.Message}
	}

	logger.Error("batch processing failed",
		"status", statusError,
		"error", err,
	)
	return response{Status: statusError, Message: "internal error, batch not persisted"}
}

// writeResponse sends one newline-terminated JSON reply. Write
// failures are logged; the read loop will observe the broken transport
// on its next iteration.
func (s *Server) writeResponse(conn net.Conn, logger *slog.Logger, resp response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		logger.Error("marshaling response", "error", err)
		return
	}
	payload = append(payload, '\n')

	conn.SetWriteDeadline(s.cfg.Clock.Now().Add(writeTimeout))
	if _, err := conn.Write(payload); err != nil {
		logger.Error("writing response", "error", err)
	}
}
