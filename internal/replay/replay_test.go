package replay

import (
	"path/filepath"
	"testing"

	"github.com/sarat-asymmetrica/foldctl/internal/energy"
	"github.com/sarat-asymmetrica/foldctl/internal/ledger"
)

func writeSampleLedger(t *testing.T, path string) {
	t.Helper()
	w, err := ledger.New(path, ledger.Header{ContractName: "trp-cage", Temperature: 305})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.WriteSpan(ledger.SpanRecord{SpanUUID: "s1", DeltaTheta: -12, DeltaE: -1.2, DeltaS: 0.01, G: -1.5}); err != nil {
		t.Fatalf("WriteSpan: %v", err)
	}
	if err := w.WriteSpan(ledger.SpanRecord{SpanUUID: "s2", DeltaTheta: 6, DeltaE: -0.4, DeltaS: 0.02, G: -2.0}); err != nil {
		t.Fatalf("WriteSpan: %v", err)
	}
	if err := w.WriteSpan(ledger.SpanRecord{
		RecordType: ledger.RecordKindCommit,
		SpanUUID:   "c1",
	}); err != nil {
		t.Fatalf("WriteSpan commit: %v", err)
	}
	if err := w.Finalize(ledger.Header{
		ContractName: "trp-cage",
		Temperature:  305,
		TotalSpans:   3,
		GhostSpans:   0,
	}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestReplayS1TrpCageReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s1.jsonl")
	writeSampleLedger(t, path)

	rep, err := Run(path, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.AppliedSpans != 2 {
		t.Errorf("expected 2 applied spans, got %d", rep.AppliedSpans)
	}
	if rep.GhostSpans != 0 {
		t.Errorf("expected 0 ghost spans, got %d", rep.GhostSpans)
	}
	if rep.CommitSpans != 1 {
		t.Errorf("expected 1 commit span, got %d", rep.CommitSpans)
	}
	if rep.AcceptanceRate != 1.0 {
		t.Errorf("expected acceptance rate 1.0, got %v", rep.AcceptanceRate)
	}
	if rep.ViolationCount != 0 {
		t.Errorf("expected 0 violations, got %d", rep.ViolationCount)
	}
}

func TestReplayCountsGhostsSeparately(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ghosts.jsonl")
	w, err := ledger.New(path, ledger.Header{ContractName: "ghost-probe"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.WriteSpan(ledger.SpanRecord{SpanUUID: "g1", GhostFlag: true, DeltaE: 5})
	w.WriteSpan(ledger.SpanRecord{SpanUUID: "g2", GhostFlag: true, DeltaE: 3})
	w.WriteSpan(ledger.SpanRecord{SpanUUID: "a1", GhostFlag: false, DeltaE: -1, DeltaS: 0.01})
	if err := w.Finalize(ledger.Header{ContractName: "ghost-probe", TotalSpans: 3, GhostSpans: 2}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	rep, err := Run(path, Options{GhostDetail: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.GhostSpans != 2 {
		t.Errorf("expected 2 ghost spans, got %d", rep.GhostSpans)
	}
	if rep.AppliedSpans != 1 {
		t.Errorf("expected 1 applied span, got %d", rep.AppliedSpans)
	}
	if rep.CumulativeE != -1 {
		t.Errorf("expected cumulative E to reflect only the applied span, got %v", rep.CumulativeE)
	}
	if len(rep.GhostDetail) != 2 {
		t.Errorf("expected 2 ghost detail records, got %d", len(rep.GhostDetail))
	}
}

func TestReplayRecomputeReDerivesEnergyFromDeltaTheta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recompute.jsonl")
	writeSampleLedger(t, path)

	coeff := energy.Coefficients{
		BondScale:       1.0,
		AngleScale:      1.0,
		DihedralV1:      1.4,
		DihedralV3:      0.6,
		VdwScale:        1.0,
		VdwCutoff:       10.0,
		DielectricScale: 4.0,
		ElecCutoff:      12.0,
		HBondWellDepth:  1.5,
		HBondSigma:      0.3,
	}

	plain, err := Run(path, Options{})
	if err != nil {
		t.Fatalf("Run (no recompute): %v", err)
	}

	recomputed, err := Run(path, Options{
		Recompute: true,
		Sequence:  "NLYIQWLKDGGPSSGRPPPS",
		Coeff:     coeff,
	})
	if err != nil {
		t.Fatalf("Run (recompute): %v", err)
	}

	if recomputed.AppliedSpans != plain.AppliedSpans {
		t.Errorf("expected recompute to preserve span counts, got %d want %d", recomputed.AppliedSpans, plain.AppliedSpans)
	}
	if recomputed.CumulativeE == plain.CumulativeE {
		t.Error("expected recompute to re-derive cumulative_E from delta_theta rather than trust the stored delta_E")
	}
}

func TestReplayRecomputeWithoutSequenceTrustsStoredDeltas(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recompute-no-seq.jsonl")
	writeSampleLedger(t, path)

	plain, err := Run(path, Options{})
	if err != nil {
		t.Fatalf("Run (no recompute): %v", err)
	}
	recomputed, err := Run(path, Options{Recompute: true})
	if err != nil {
		t.Fatalf("Run (recompute, no sequence): %v", err)
	}
	if recomputed.CumulativeE != plain.CumulativeE {
		t.Errorf("expected recompute without a sequence to fall back to the stored deltas, got %v want %v", recomputed.CumulativeE, plain.CumulativeE)
	}
}

func TestReplayReportsViolations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "violations.jsonl")
	w, err := ledger.New(path, ledger.Header{ContractName: "clash-probe"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.WriteViolation(ledger.ViolationRecord{Kind: "Clash", Detail: "overlap"})
	if err := w.Finalize(ledger.Header{ContractName: "clash-probe"}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	rep, err := Run(path, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.ViolationCount != 1 {
		t.Errorf("expected 1 violation, got %d", rep.ViolationCount)
	}
	if !rep.Strict() {
		t.Error("expected Strict() to report true when violations are present")
	}
}
