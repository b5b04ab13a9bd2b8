// Package snapshot persists the orchestrator's in-memory session state to
// disk as a single JSON document, atomically, and coalesces bursts of
// writes the way internal/task/service's StreamingBuffer coalesces bursts
// of message appends: a dirty flag absorbs changes that arrive while a
// write is already in flight, instead of queuing one goroutine per change.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/go-cyrus/orchestrator/internal/logger"
	"github.com/go-cyrus/orchestrator/internal/session"
)

const currentSchemaVersion = 1

// Document is the full persisted shape: everything needed to reconstruct
// in-memory state on restart.
type Document struct {
	SchemaVersion      int                       `json:"schemaVersion"`
	RepositoryConfigPath string                  `json:"repositoryConfigPath"`
	Sessions           map[string]*session.Session `json:"sessions"`
	ParentChildMap     map[string]string         `json:"parentChildMap"` // childSessionId -> parentSessionId
	SavedAt            time.Time                 `json:"savedAt"`
}

func newDocument(repoConfigPath string) *Document {
	return &Document{
		SchemaVersion:        currentSchemaVersion,
		RepositoryConfigPath: repoConfigPath,
		Sessions:             make(map[string]*session.Session),
		ParentChildMap:       make(map[string]string),
	}
}

// Load reads and parses the snapshot at path. A missing file is not an
// error — it yields a fresh, empty document, which is the normal case on
// first startup. A corrupt file is quarantined alongside the original
// (renamed with a .corrupt-<timestamp> suffix) and a fresh document is
// returned, matching the IntegrityError handling: corruption is logged,
// never fatal, and never blocks startup.
func Load(path, repoConfigPath string, log *logger.Logger) (*Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newDocument(repoConfigPath), nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Error("snapshot corrupt, quarantining and starting fresh", zap.String("path", path), zap.Error(err))
		if qerr := quarantine(path); qerr != nil {
			log.Error("snapshot: failed to quarantine corrupt file", zap.Error(qerr))
		}
		return newDocument(repoConfigPath), nil
	}

	if doc.Sessions == nil {
		doc.Sessions = make(map[string]*session.Session)
	}
	if doc.ParentChildMap == nil {
		doc.ParentChildMap = make(map[string]string)
	}
	return &doc, nil
}

func quarantine(path string) error {
	dest := fmt.Sprintf("%s.corrupt-%d", path, time.Now().UnixNano())
	return os.Rename(path, dest)
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by rename, so a crash mid-write never leaves a partially
// written snapshot for the next Load to trip over.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "cyrus-snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Save marshals and atomically writes doc to path, stamping SavedAt first.
func Save(path string, doc *Document) error {
	doc.SavedAt = time.Now()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshalling: %w", err)
	}
	return writeAtomic(path, data)
}

// SourceFunc returns the current document to persist. The writer calls it
// once per flush, after coalescing, so it always sees the latest state
// rather than whatever was true when a particular Enqueue happened.
type SourceFunc func() *Document

// Writer is the coalescing snapshot writer described by the persistence
// discipline: after any observable state change, Enqueue is called. If a
// write is already in flight, the change is absorbed into a pending dirty
// flag and folded into the write that follows; callers never block on
// disk I/O and never pile up one goroutine per mutation.
type Writer struct {
	path   string
	source SourceFunc
	log    *logger.Logger

	mu        sync.Mutex
	dirty     bool
	inFlight  bool
	closed    bool
	flushDone chan struct{} // closed when the current in-flight flush completes

	backoff func(attempt int) time.Duration
}

// NewWriter constructs a Writer that persists to path, pulling the
// document to save from source.
func NewWriter(path string, source SourceFunc, log *logger.Logger) *Writer {
	return &Writer{
		path:    path,
		source:  source,
		log:     log,
		backoff: defaultBackoff,
	}
}

func defaultBackoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	if d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}

// Enqueue schedules a flush. Safe to call from any goroutine.
func (w *Writer) Enqueue() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.inFlight {
		w.dirty = true
		return
	}
	w.inFlight = true
	w.flushDone = make(chan struct{})
	go w.flushLoop()
}

// flushLoop performs one write, retrying with exponential backoff on
// failure, then checks whether further changes arrived while it was
// working and re-enqueues itself if so.
func (w *Writer) flushLoop() {
	defer func() {
		w.mu.Lock()
		done := w.flushDone
		w.inFlight = false
		again := w.dirty
		w.dirty = false
		w.mu.Unlock()
		close(done)
		if again {
			w.Enqueue()
		}
	}()

	doc := w.source()
	attempt := 0
	for {
		if err := Save(w.path, doc); err != nil {
			w.log.Error("snapshot write failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			time.Sleep(w.backoff(attempt))
			attempt++
			if attempt > 10 {
				w.log.Error("snapshot write abandoned after repeated failures; in-memory state remains authoritative")
				return
			}
			continue
		}
		return
	}
}

// Await blocks until the current in-flight write (if any) completes, or
// until timeout elapses, whichever comes first — used at shutdown, which
// caps the wait rather than blocking indefinitely on disk I/O.
func (w *Writer) Await(timeout time.Duration) {
	w.mu.Lock()
	done := w.flushDone
	inFlight := w.inFlight
	w.mu.Unlock()
	if !inFlight {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// Close prevents further Enqueue calls from scheduling new flushes. It
// does not itself wait for any in-flight flush; call Await first.
func (w *Writer) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}
