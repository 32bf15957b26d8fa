package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"solexec-go/internal/execution"
)

// JSONLRecorder appends entries as JSON lines for later analysis.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Record implements execution.Recorder.
func (r *JSONLRecorder) Record(rep execution.Report) {
	r.recordEntry(newEntry(rep))
}

func (r *JSONLRecorder) recordEntry(e Entry) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		_ = r.enc.Encode(e)
	}
	return e
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Load replays a JSONL journal into l. A missing file is not an error.
func (l *Ledger) Load(path string) (int, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer file.Close()

	n := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return n, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		l.add(e)
		n++
	}
	return n, scanner.Err()
}

// entryRecorder is implemented by the journal's own recorders. recordEntry
// returns the entry as stored, which keeps the original ID when a signature
// is recorded again.
type entryRecorder interface {
	recordEntry(Entry) Entry
}

// Tee fans a report out to several recorders. Journal recorders receive one
// shared Entry; put the Ledger first so later recorders see its stored ID.
type Tee []execution.Recorder

// Record implements execution.Recorder.
func (t Tee) Record(r execution.Report) {
	e := newEntry(r)
	for _, rec := range t {
		switch v := rec.(type) {
		case nil:
		case entryRecorder:
			e = v.recordEntry(e)
		default:
			v.Record(r)
		}
	}
}
