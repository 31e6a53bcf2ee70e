// Package ledger implements the append-only JSON-lines span ledger, per
// spec.md §4.G. Scoped file-handle acquisition (opened at construction,
// closed on finalize) and per-write flush discipline are grounded on the
// teacher's use of os.File in backend/cmd/full_pipeline/main.go, which
// holds its output handle for the pipeline run's lifetime rather than
// reopening it per write.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sarat-asymmetrica/foldctl/internal/ferr"
)

// Annealing mirrors config.Annealing for the ledger header without an
// import-cycle-inducing dependency on the config package.
type Annealing struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Steps int     `json:"steps"`
}

// Header is the first line of every ledger: run metadata, rewritten in
// place on Finalize with final totals.
type Header struct {
	ContractName string    `json:"contract_name"`
	Environment  string    `json:"environment"`
	Temperature  float64   `json:"temperature"`
	DtMS         int       `json:"dt_ms"`
	Seed         int64     `json:"seed"`
	Integrator   string    `json:"integrator"`
	Ensemble     string    `json:"ensemble"`
	Annealing    Annealing `json:"annealing"`
	PhysicsLevel string    `json:"physics_level"`
	Version      string    `json:"version"`

	// Fields below are zero at construction and populated by Finalize.
	TotalSpans       int      `json:"total_spans"`
	GhostSpans       int      `json:"ghost_spans"`
	AcceptanceRate   float64  `json:"acceptance_rate"`
	FinalG           float64  `json:"final_g"`
	FinalPE          float64  `json:"final_pe"`
	FinalKE          float64  `json:"final_ke"`
	ConvergenceTick  int      `json:"convergence_tick"`
	Converged        bool     `json:"converged"`
	PhysicsSpanCount int      `json:"physics_span_count"`
	HaltedReason     string   `json:"halted_reason,omitempty"`
	Violations       []string `json:"violations,omitempty"`
}

// PhysicsMetrics is the optional physics_metrics payload a span carries
// when produced by the external backend, per spec.md §3.
type PhysicsMetrics struct {
	RMSD             float64 `json:"rmsd"`
	RadiusOfGyration float64 `json:"radius_of_gyration"`
	PotentialEnergy  float64 `json:"potential_energy"`
	KineticEnergy    float64 `json:"kinetic_energy"`
	SimulationTimePs float64 `json:"simulation_time_ps"`
	TrajectoryPath   string  `json:"trajectory_path,omitempty"`
}

// SpanRecord is one applied, ghost, or marker span, per spec.md §3.
type SpanRecord struct {
	RecordType     string          `json:"record_type"`
	SpanUUID       string          `json:"span_uuid"`
	ContractID     string          `json:"contract_id"`
	SpanLabel      string          `json:"span_label,omitempty"`
	Timestamp      string          `json:"timestamp"`
	DeltaTheta     float64         `json:"delta_theta"`
	DeltaE         float64         `json:"delta_e"`
	DeltaS         float64         `json:"delta_s"`
	G              float64         `json:"g"`
	GhostFlag      bool            `json:"ghost_flag"`
	Physics        bool            `json:"physics"`
	PhysicsMetrics *PhysicsMetrics `json:"physics_metrics,omitempty"`
}

// RecordKindCommit and RecordKindRollback tag SpanRecord.RecordType for
// Commit/Rollback instructions, which otherwise carry zeroed deltas.
const (
	RecordKindSpan     = "span"
	RecordKindCommit   = "commit"
	RecordKindRollback = "rollback"
)

// ViolationRecord is written inline and never erased, per spec.md §3.
type ViolationRecord struct {
	RecordType string `json:"record_type"`
	Kind       string `json:"kind"`
	Detail     string `json:"detail"`
	Timestamp  string `json:"timestamp"`
}

// Writer owns an append-only ledger file handle with scoped acquisition:
// opened by New, appended to per step, and rewritten-in-place by
// Finalize.
type Writer struct {
	path         string
	f            *os.File
	headerOffset int64
}

// New creates path, writes header as the first line, and flushes it
// before returning — the metadata header is emitted at construction, per
// spec.md §3's ownership note.
func New(path string, header Header) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, ferr.Wrap(ferr.LedgerIOError, "create ledger file", err)
	}
	w := &Writer{path: path, f: f}
	if err := w.writeHeader(header); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader(header Header) error {
	b, err := json.Marshal(header)
	if err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "marshal ledger header", err)
	}
	b = append(b, '\n')
	n, err := w.f.Write(b)
	if err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "write ledger header", err)
	}
	if err := w.f.Sync(); err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "sync ledger header", err)
	}
	w.headerOffset = int64(n)
	return nil
}

// WriteSpan appends a span record, flushing before returning — "every
// write is ordered and flushed" per spec.md §4.G.
func (w *Writer) WriteSpan(rec SpanRecord) error {
	rec.RecordType = recordTypeOrDefault(rec.RecordType)
	return w.appendLine(rec)
}

func recordTypeOrDefault(rt string) string {
	if rt == "" {
		return RecordKindSpan
	}
	return rt
}

// WriteViolation appends a violation record. Violations are never
// removed once written.
func (w *Writer) WriteViolation(rec ViolationRecord) error {
	rec.RecordType = "violation"
	return w.appendLine(rec)
}

func (w *Writer) appendLine(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "marshal ledger record", err)
	}
	b = append(b, '\n')
	if _, err := w.f.Write(b); err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "append ledger record", err)
	}
	if err := w.f.Sync(); err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "sync ledger record", err)
	}
	return nil
}

// Flush forces a sync of any buffered writes; WriteSpan/WriteViolation
// already sync per call, so this mainly documents the Commit instruction's
// "flushes the underlying writer before returning" guarantee at the call
// site in internal/runtime.
func (w *Writer) Flush() error {
	if err := w.f.Sync(); err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "flush ledger", err)
	}
	return nil
}

// Finalize rewrites the header line in place with final totals, then
// closes the file. The body after the original header is preserved
// byte-for-byte, satisfying the "byte prefix of an in-progress ledger is
// a prefix of the finalized ledger modulo the rewritten header line
// length" testable property.
func (w *Writer) Finalize(header Header) error {
	if _, err := w.f.Seek(w.headerOffset, io.SeekStart); err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "seek past header", err)
	}
	body, err := io.ReadAll(w.f)
	if err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "read ledger body", err)
	}

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "seek to start", err)
	}
	if err := w.f.Truncate(0); err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "truncate ledger", err)
	}
	if err := w.writeHeader(header); err != nil {
		return err
	}
	if _, err := w.f.Write(body); err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "rewrite ledger body", err)
	}
	if err := w.f.Sync(); err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "sync finalized ledger", err)
	}
	return w.f.Close()
}

// Close releases the file handle without rewriting the header, used on
// the LedgerIOError "best-effort close" fatal path.
func (w *Writer) Close() error {
	return w.f.Close()
}

// Open reads an existing ledger's header and returns a *bufio.Scanner
// positioned at the first record line, for internal/replay.
func Open(path string) (Header, *bufio.Scanner, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, nil, ferr.Wrap(ferr.LedgerIOError, "open ledger", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		f.Close()
		if err := scanner.Err(); err != nil {
			return Header{}, nil, nil, ferr.Wrap(ferr.LedgerIOError, "read ledger header", err)
		}
		return Header{}, nil, nil, ferr.New(ferr.LedgerIOError, "ledger is empty")
	}
	var header Header
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		f.Close()
		return Header{}, nil, nil, ferr.Wrap(ferr.LedgerIOError, "parse ledger header", err)
	}
	return header, scanner, f, nil
}

// RawRecord is used by replay to inspect record_type before deciding
// which concrete type to unmarshal into.
type RawRecord struct {
	RecordType string `json:"record_type"`
}

// DecodeRecord sniffs a record's record_type and unmarshals it into the
// matching concrete type, returning one of *SpanRecord or
// *ViolationRecord.
func DecodeRecord(line []byte) (interface{}, error) {
	var raw RawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("sniff record_type: %w", err)
	}
	switch raw.RecordType {
	case "violation":
		var v ViolationRecord
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, fmt.Errorf("decode violation record: %w", err)
		}
		return &v, nil
	default:
		var s SpanRecord
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, fmt.Errorf("decode span record: %w", err)
		}
		return &s, nil
	}
}
