package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAndFinalizeRewritesHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.jsonl")

	w, err := New(path, Header{ContractName: "trp-cage", Seed: 1337})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.WriteSpan(SpanRecord{SpanUUID: "a", DeltaE: -1.5}); err != nil {
		t.Fatalf("WriteSpan: %v", err)
	}
	if err := w.WriteViolation(ViolationRecord{Kind: "Clash", Detail: "overlap"}); err != nil {
		t.Fatalf("WriteViolation: %v", err)
	}

	preFinalize, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pre-finalize: %v", err)
	}
	preLines := strings.Split(strings.TrimRight(string(preFinalize), "\n"), "\n")

	if err := w.Finalize(Header{ContractName: "trp-cage", Seed: 1337, TotalSpans: 1}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	post, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read post-finalize: %v", err)
	}
	postLines := strings.Split(strings.TrimRight(string(post), "\n"), "\n")

	if len(postLines) != len(preLines) {
		t.Fatalf("finalize changed record count: pre=%d post=%d", len(preLines), len(postLines))
	}
	for i := 1; i < len(preLines); i++ {
		if preLines[i] != postLines[i] {
			t.Errorf("body line %d changed across finalize:\npre:  %s\npost: %s", i, preLines[i], postLines[i])
		}
	}
	if !strings.Contains(postLines[0], `"total_spans":1`) {
		t.Errorf("expected rewritten header to carry final totals, got %s", postLines[0])
	}
}

func TestOpenReadsHeaderThenRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.jsonl")

	w, err := New(path, Header{ContractName: "ghost-probe", Seed: 7})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.WriteSpan(SpanRecord{SpanUUID: "s1", GhostFlag: true})
	w.WriteSpan(SpanRecord{SpanUUID: "s2", GhostFlag: false})
	if err := w.Finalize(Header{ContractName: "ghost-probe", Seed: 7, TotalSpans: 2, GhostSpans: 1}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	header, scanner, f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if header.ContractName != "ghost-probe" || header.TotalSpans != 2 {
		t.Errorf("unexpected header: %+v", header)
	}

	var records []interface{}
	for scanner.Scan() {
		rec, err := DecodeRecord(scanner.Bytes())
		if err != nil {
			t.Fatalf("DecodeRecord: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first, ok := records[0].(*SpanRecord)
	if !ok || !first.GhostFlag {
		t.Errorf("expected first record to be a ghost span, got %+v", records[0])
	}
}

func TestDecodeRecordDistinguishesViolations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.jsonl")
	w, err := New(path, Header{ContractName: "c"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.WriteViolation(ViolationRecord{Kind: "BudgetExhausted", Detail: "over budget"})
	w.Finalize(Header{ContractName: "c"})

	_, scanner, f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if !scanner.Scan() {
		t.Fatal("expected a record line")
	}
	rec, err := DecodeRecord(scanner.Bytes())
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	v, ok := rec.(*ViolationRecord)
	if !ok || v.Kind != "BudgetExhausted" {
		t.Errorf("expected ViolationRecord{Kind:BudgetExhausted}, got %+v", rec)
	}
}
