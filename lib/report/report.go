// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

// Package report generates the monthly ingestion report. It scans the
// current month's log files for SUCCESS and ERROR outcome lines,
// writes a textual report, and appends an evolution line to a running
// evaluation ledger comparing the success percentage against the two
// previous entries.
//
// The generator is consumed as the scheduler's periodic job; it owns
// no state between runs beyond the files it writes.
package report

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/petitionworks/petitiond/lib/clock"
)

// evaluationFile is the running ledger appended to on every run.
const evaluationFile = "evaluation.txt"

// Generator scans logs and writes monthly reports.
type Generator struct {
	// LogsDir holds the service's log files, named with a YYYY-MM
	// prefix. Required.
	LogsDir string

	// ReportsDir receives Report-YYYY-MM.txt and the evaluation
	// ledger. Required; created if absent.
	ReportsDir string

	// Clock determines the current month. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives run summaries. Required.
	Logger *slog.Logger
}

// Run generates the report for the current month. Satisfies the
// scheduler job contract.
func (g *Generator) Run(ctx context.Context) error {
	clk := g.Clock
	if clk == nil {
		clk = clock.Real()
	}
	month := clk.Now().UTC().Format("2006-01")

	successCount, errorCount, err := g.countOutcomes(month)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(g.ReportsDir, 0o755); err != nil {
		return fmt.Errorf("report: creating reports dir: %w", err)
	}

	percentage := successRatio(successCount+errorCount, successCount)

	previous, secondPrevious := g.previousPercentages()

	if err := g.writeReport(month, successCount, errorCount, percentage); err != nil {
		return err
	}
	if err := g.appendEvaluation(month, percentage, previous, secondPrevious); err != nil {
		return err
	}

	g.Logger.Info("monthly report written",
		"month", month,
		"success", successCount,
		"error", errorCount,
		"percentage", percentage,
	)
	return nil
}

// countOutcomes scans every log file with the month prefix and counts
// outcome lines. A line containing ERROR counts as an error even if it
// also mentions SUCCESS.
func (g *Generator) countOutcomes(month string) (successCount, errorCount int, err error) {
	entries, err := os.ReadDir(g.LogsDir)
	if err != nil {
		return 0, 0, fmt.Errorf("report: reading logs dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), month) {
			continue
		}
		fileSuccess, fileError, err := countFile(filepath.Join(g.LogsDir, entry.Name()))
		if err != nil {
			return 0, 0, err
		}
		successCount += fileSuccess
		errorCount += fileError
	}
	return successCount, errorCount, nil
}

func countFile(path string) (successCount, errorCount int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("report: opening log %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "ERROR"):
			errorCount++
		case strings.Contains(line, "SUCCESS"):
			successCount++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, fmt.Errorf("report: scanning log %s: %w", path, err)
	}
	return successCount, errorCount, nil
}

// successRatio returns the success percentage, 0 for an empty month.
func successRatio(totalMessages, successCount int) float64 {
	if totalMessages == 0 {
		return 0
	}
	return float64(successCount) / float64(totalMessages) * 100
}

// previousPercentages reads the last two ledger entries. Missing or
// unparseable entries read as 0 — the first run starts a new ledger.
func (g *Generator) previousPercentages() (previous, secondPrevious float64) {
	data, err := os.ReadFile(filepath.Join(g.ReportsDir, evaluationFile))
	if err != nil {
		return 0, 0
	}

	var percentages []float64
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		parts := strings.Split(line, " | ")
		if len(parts) != 3 {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			continue
		}
		percentages = append(percentages, value)
	}

	if len(percentages) >= 1 {
		previous = percentages[len(percentages)-1]
	}
	if len(percentages) >= 2 {
		secondPrevious = percentages[len(percentages)-2]
	}
	return previous, secondPrevious
}

func (g *Generator) writeReport(month string, successCount, errorCount int, percentage float64) error {
	banner := strings.Repeat("=", 50)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", banner)
	fmt.Fprintf(&b, "Monthly Report - %s\n", month)
	fmt.Fprintf(&b, "%s\n\n", banner)
	fmt.Fprintf(&b, "Total messages: %d\n", successCount+errorCount)
	fmt.Fprintf(&b, "Total successful messages: %d\n", successCount)
	fmt.Fprintf(&b, "Total error messages: %d\n\n", errorCount)
	fmt.Fprintf(&b, "Percentage of complete messages: %.2f\n\n", percentage)
	b.WriteString(banner)

	path := filepath.Join(g.ReportsDir, fmt.Sprintf("Report-%s.txt", month))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("report: writing %s: %w", path, err)
	}
	return nil
}

// appendEvaluation records the month's percentage and its evolution
// marker: "+" when improving on (or equal to) the previous entry, "-"
// when falling below either of the last two, "0" otherwise.
func (g *Generator) appendEvaluation(month string, percentage, previous, secondPrevious float64) error {
	var evolution string
	switch {
	case (percentage > previous && percentage > secondPrevious) || percentage == previous:
		evolution = "+"
	case percentage < previous || percentage < secondPrevious:
		evolution = "-"
	default:
		evolution = "0"
	}

	path := filepath.Join(g.ReportsDir, evaluationFile)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("report: opening evaluation ledger: %w", err)
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%s | %s | %.2f\n", month, evolution, percentage); err != nil {
		return fmt.Errorf("report: appending evaluation: %w", err)
	}
	return nil
}
