package ingestion_engine

import (
	"strings"
	"sync"
	"time"
)

// IngestionStage is a named point in the per-document state machine.
type IngestionStage string

const (
	StageQueued    IngestionStage = "queued"
	StageLoading   IngestionStage = "loading"
	StageChunking  IngestionStage = "chunking"
	StageEmbedding IngestionStage = "embedding"
	StageStoring   IngestionStage = "storing"
	StageComplete  IngestionStage = "complete"
	StageError     IngestionStage = "error"
)

// stageRank orders the normal progression. StageError is absorbing and
// reachable from any non-terminal stage.
var stageRank = map[IngestionStage]int{
	StageQueued:    0,
	StageLoading:   1,
	StageChunking:  2,
	StageEmbedding: 3,
	StageStoring:   4,
	StageComplete:  5,
}

// defaultProgress maps each stage to the progress percentage reported for it.
var defaultProgress = map[IngestionStage]int{
	StageQueued:    0,
	StageLoading:   10,
	StageChunking:  30,
	StageEmbedding: 50,
	StageStoring:   90,
	StageComplete:  100,
	StageError:     0,
}

// maxErrorMessageLen bounds stored error messages so oversized stack content
// never leaks into status fields.
const maxErrorMessageLen = 500

// IngestionStatus is the externally visible record for one document.
type IngestionStatus struct {
	Stage        IngestionStage `json:"stage"`
	Progress     int            `json:"progress"`
	ErrorMessage string         `json:"error_message,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// StatusTracker is a keyed state machine recording ingestion progress per
// document, readable concurrently with the pipeline that writes it. Only the
// owning pipeline instance writes a given document id, so last-write-wins is
// safe. Transitions are monotonic: re-setting the current stage is a no-op,
// backward transitions are ignored, and a terminal stage (complete or error)
// freezes the record.
type StatusTracker struct {
	mu sync.RWMutex
	m  map[string]IngestionStatus
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{m: make(map[string]IngestionStatus)}
}

// Set transitions the document to stage. Returns false when the transition
// was rejected (terminal record, backward move, or same-stage no-op).
func (t *StatusTracker) Set(docID string, stage IngestionStage) bool {
	return t.set(docID, stage, "")
}

// SetError moves the document to the absorbing error stage and attaches a
// truncated message. No further transitions occur for this document.
func (t *StatusTracker) SetError(docID, message string) bool {
	return t.set(docID, StageError, TruncateErrorMessage(message))
}

func (t *StatusTracker) set(docID string, stage IngestionStage, errMsg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.m[docID]
	if ok {
		if cur.Stage == StageError || cur.Stage == StageComplete {
			return false // frozen
		}
		if stage == cur.Stage {
			return false // idempotent re-set
		}
		if stage != StageError && stageRank[stage] < stageRank[cur.Stage] {
			return false // no backward moves
		}
	}

	t.m[docID] = IngestionStatus{
		Stage:        stage,
		Progress:     defaultProgress[stage],
		ErrorMessage: errMsg,
		UpdatedAt:    time.Now().UTC(),
	}
	return true
}

// Get returns the status for a document id, or false when it was never
// tracked (e.g. process restarted; callers fall back to the documents table).
func (t *StatusTracker) Get(docID string) (IngestionStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.m[docID]
	return st, ok
}

// Forget drops the record, e.g. after the owning document row is deleted.
func (t *StatusTracker) Forget(docID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, docID)
}

// TruncateErrorMessage strips control characters and bounds the length of an
// error message destined for status fields or API responses.
func TruncateErrorMessage(msg string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, msg)

	runes := []rune(cleaned)
	if len(runes) > maxErrorMessageLen {
		return string(runes[:maxErrorMessageLen-3]) + "..."
	}
	return cleaned
}
