package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"solexec-go/internal/execution"
)

func TestJSONLRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "submissions.jsonl")

	recorder, err := NewJSONLRecorder(path)
	if err != nil {
		t.Fatalf("NewJSONLRecorder error: %v", err)
	}
	recorder.Record(report("w1", "sig-1", execution.OutcomeUnknown, time.Now()))
	recorder.Record(report("w1", "sig-2", execution.OutcomeFilled, time.Now()))
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	recorder.Record(report("w1", "sig-3", execution.OutcomeFilled, time.Now()))

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recorded file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		t.Fatalf("expected a line in recorder output")
	}
	var decoded Entry
	if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if decoded.WalletID != "w1" || decoded.Result.Signature != "sig-1" {
		t.Fatalf("unexpected decoded entry %+v", decoded)
	}

	ledger := NewLedger(0)
	n, err := ledger.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 replayed entries, got %d", n)
	}
	if len(ledger.Unresolved()) != 1 {
		t.Fatalf("expected the unknown submission to be unresolved")
	}
}

func TestLoadMissingFile(t *testing.T) {
	n, err := NewLedger(0).Load(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil || n != 0 {
		t.Fatalf("expected empty load, got %d %v", n, err)
	}
}

func TestTee(t *testing.T) {
	a, b := NewLedger(0), NewLedger(0)
	Tee{a, nil, b}.Record(report("w1", "sig", execution.OutcomeFilled, time.Now()))
	if len(a.Snapshot()) != 1 || len(b.Snapshot()) != 1 {
		t.Fatalf("expected both ledgers to record")
	}
}

func TestTeeSharesEntryID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submissions.jsonl")
	recorder, err := NewJSONLRecorder(path)
	if err != nil {
		t.Fatalf("NewJSONLRecorder error: %v", err)
	}
	ledger := NewLedger(0)
	tee := Tee{ledger, recorder}
	tee.Record(report("w1", "sig-1", execution.OutcomeFailed, time.Now()))
	tee.Record(report("w1", "sig-1", execution.OutcomeFilled, time.Now()))
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	mem, _ := ledger.Find("sig-1")
	if mem.ID == "" {
		t.Fatalf("expected an entry id")
	}
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recorded file: %v", err)
	}
	defer file.Close()
	lines := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("json decode: %v", err)
		}
		if e.ID != mem.ID {
			t.Fatalf("line %d has id %q, ledger has %q", lines+1, e.ID, mem.ID)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}

func TestWriteThroughPersistsResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submissions.jsonl")
	recorder, err := NewJSONLRecorder(path)
	if err != nil {
		t.Fatalf("NewJSONLRecorder error: %v", err)
	}
	ledger := NewLedger(0)
	ledger.WriteThrough(recorder)

	ledger.Record(report("w1", "sig-1", execution.OutcomeUnknown, time.Now()))
	if !ledger.Resolve("sig-1", execution.SubmitResult{Signature: "sig-1", Confirmed: true, Outcome: execution.OutcomePartial}) {
		t.Fatalf("expected known signature")
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	replayed := NewLedger(0)
	n, err := replayed.Load(path)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 replayed lines, got %d %v", n, err)
	}
	if open := replayed.Unresolved(); len(open) != 0 {
		t.Fatalf("resolved submission replayed as unresolved: %+v", open)
	}
	mem, _ := ledger.Find("sig-1")
	disk, _ := replayed.Find("sig-1")
	if disk.Result.Outcome != execution.OutcomePartial || disk.ID != mem.ID || disk.WalletID != "w1" {
		t.Fatalf("unexpected replayed entry %+v", disk)
	}
}
