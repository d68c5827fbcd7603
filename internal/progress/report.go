// Package progress aggregates the per-file outcome records of a run.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status is the outcome of one file or archive member.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Record is one entry of the error report.
type Record struct {
	Identifier string `json:"identifier"`
	Status     Status `json:"status"`
	Output     string `json:"output,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// reportData is the JSON structure written by Save.
type reportData struct {
	Records []Record `json:"records"`
	Updated string   `json:"updated"`
	Summary struct {
		OK      int `json:"ok"`
		Failed  int `json:"failed"`
		Skipped int `json:"skipped"`
		Total   int `json:"total"`
	} `json:"summary"`
}

// Report collects records from concurrent workers. Failures are also
// appended to a plain-text log when one is configured.
type Report struct {
	mu      sync.Mutex
	records []Record
	logFile string
	file    *os.File
}

// NewReport creates a report. An empty logFile disables the failure log.
func NewReport(logFile string) (*Report, error) {
	r := &Report{logFile: logFile}
	if logFile == "" {
		return r, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}
	r.file = file
	return r, nil
}

// Add appends a record, stamping it with the current time.
func (r *Report) Add(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	rec.Timestamp = now.Format(time.RFC3339)
	r.records = append(r.records, rec)

	if r.file != nil && rec.Status == StatusFailed {
		fmt.Fprintf(r.file, "%s | %s | %s\n", rec.Timestamp, rec.Identifier, rec.Reason)
	}
}

// OK records a successful file and where it was written.
func (r *Report) OK(identifier, output string) {
	r.Add(Record{Identifier: identifier, Status: StatusOK, Output: output})
}

// Fail records a failed file.
func (r *Report) Fail(identifier string, err error) {
	r.Add(Record{Identifier: identifier, Status: StatusFailed, Reason: err.Error()})
}

// Skip records a file that was deliberately not processed.
func (r *Report) Skip(identifier, reason string) {
	r.Add(Record{Identifier: identifier, Status: StatusSkipped, Reason: reason})
}

// Records returns a copy of every record in insertion order.
func (r *Report) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// Failed returns the failed records.
func (r *Report) Failed() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		if rec.Status == StatusFailed {
			out = append(out, rec)
		}
	}
	return out
}

// Count returns the number of records with status s.
func (r *Report) Count(s Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countStatus(s)
}

func (r *Report) countStatus(s Status) int {
	n := 0
	for _, rec := range r.records {
		if rec.Status == s {
			n++
		}
	}
	return n
}

// Summary returns a one-line description of the failures.
func (r *Report) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	failed := r.countStatus(StatusFailed)
	if failed == 0 {
		return "No errors"
	}
	if r.logFile == "" {
		return fmt.Sprintf("%d errors", failed)
	}
	return fmt.Sprintf("%d errors logged to %s", failed, r.logFile)
}

// Save writes the report as JSON.
func (r *Report) Save(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var data reportData
	data.Records = r.records
	if data.Records == nil {
		data.Records = []Record{}
	}
	data.Updated = time.Now().Format(time.RFC3339)
	data.Summary.OK = r.countStatus(StatusOK)
	data.Summary.Failed = r.countStatus(StatusFailed)
	data.Summary.Skipped = r.countStatus(StatusSkipped)
	data.Summary.Total = len(r.records)

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal report: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("could not write report: %w", err)
	}
	return nil
}

// Close closes the failure log.
func (r *Report) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
