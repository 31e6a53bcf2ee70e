// Package diamond implements the diamond catalogue, per spec.md §4.H: a
// sidecar file collecting every committed span whose Gibbs free energy
// falls below a threshold, deduplicated by span UUID across runs. The
// merge-on-load/save-whole-file pattern is grounded on the teacher's
// config package, which reads a whole YAML document into a struct and
// rewrites it wholesale rather than patching lines in place.
package diamond

import (
	"encoding/json"
	"os"

	"github.com/sarat-asymmetrica/foldctl/internal/ferr"
	"github.com/sarat-asymmetrica/foldctl/internal/ledger"
)

// Entry is one diamond: a committed span whose G fell below the run's
// threshold.
type Entry struct {
	Provenance  string  `json:"provenance"` // "contract::span_label"
	G           float64 `json:"g"`
	PE          float64 `json:"pe"`
	KE          float64 `json:"ke"`
	Environment string  `json:"environment"`
	Temperature float64 `json:"temperature"`
	SpanUUID    string  `json:"span_uuid"`
}

// File is the sidecar document's shape, per spec.md §6.
type File struct {
	ContractName string  `json:"contract_name"`
	Entries      []Entry `json:"entries"`
}

// Catalogue observes committed (non-ghost) spans as a run progresses and
// accumulates diamonds in memory; Save persists the merged result.
type Catalogue struct {
	contractName string
	threshold    float64
	seen         map[string]bool
	entries      []Entry
}

// NewCatalogue starts an empty catalogue for contractName, keeping only
// spans with G below threshold.
func NewCatalogue(contractName string, threshold float64) *Catalogue {
	return &Catalogue{
		contractName: contractName,
		threshold:    threshold,
		seen:         make(map[string]bool),
	}
}

// Observe considers one applied span record; ghost spans and spans at or
// above the threshold are ignored. pe/ke are recorded as given;
// cmd/foldctl passes the span's physics-metrics potential and kinetic
// energies, or zero for both when the span carries no physics metrics.
func (c *Catalogue) Observe(span ledger.SpanRecord, environment string, temperature, pe, ke float64) {
	if span.GhostFlag || span.G >= c.threshold {
		return
	}
	if c.seen[span.SpanUUID] {
		return
	}
	c.seen[span.SpanUUID] = true
	c.entries = append(c.entries, Entry{
		Provenance:  c.contractName + "::" + orUnlabeled(span.SpanLabel),
		G:           span.G,
		PE:          pe,
		KE:          ke,
		Environment: environment,
		Temperature: temperature,
		SpanUUID:    span.SpanUUID,
	})
}

func orUnlabeled(label string) string {
	if label == "" {
		return "unlabeled"
	}
	return label
}

// Entries returns the diamonds observed so far, in discovery order.
func (c *Catalogue) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Load reads an existing diamond file, or returns an empty File if path
// does not exist yet.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &File{}, nil
	}
	if err != nil {
		return nil, ferr.Wrap(ferr.LedgerIOError, "read diamond file", err)
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, ferr.Wrap(ferr.LedgerIOError, "parse diamond file", err)
	}
	return &f, nil
}

// Save merges c's entries into the file at path (deduplicated by
// span_uuid, existing entries preserved) and rewrites it.
func (c *Catalogue) Save(path string) error {
	existing, err := Load(path)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(existing.Entries))
	merged := make([]Entry, 0, len(existing.Entries)+len(c.entries))
	for _, e := range existing.Entries {
		if seen[e.SpanUUID] {
			continue
		}
		seen[e.SpanUUID] = true
		merged = append(merged, e)
	}
	for _, e := range c.entries {
		if seen[e.SpanUUID] {
			continue
		}
		seen[e.SpanUUID] = true
		merged = append(merged, e)
	}

	out := File{ContractName: c.contractName, Entries: merged}
	if out.ContractName == "" {
		out.ContractName = existing.ContractName
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "marshal diamond file", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return ferr.Wrap(ferr.LedgerIOError, "write diamond file", err)
	}
	return nil
}
