package ingestion_engine

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTracker_NormalProgression(t *testing.T) {
	tr := NewStatusTracker()

	stages := []IngestionStage{
		StageQueued, StageLoading, StageChunking,
		StageEmbedding, StageStoring, StageComplete,
	}
	wantProgress := []int{0, 10, 30, 50, 90, 100}

	for i, stage := range stages {
		require.True(t, tr.Set("doc-1", stage), "transition to %s", stage)

		st, ok := tr.Get("doc-1")
		require.True(t, ok)
		assert.Equal(t, stage, st.Stage)
		assert.Equal(t, wantProgress[i], st.Progress)
		assert.Empty(t, st.ErrorMessage)
		assert.False(t, st.UpdatedAt.IsZero())
	}
}

func TestStatusTracker_SameStageIsNoOp(t *testing.T) {
	tr := NewStatusTracker()

	require.True(t, tr.Set("doc-1", StageLoading))
	first, _ := tr.Get("doc-1")

	assert.False(t, tr.Set("doc-1", StageLoading))
	second, _ := tr.Get("doc-1")
	assert.Equal(t, first, second)
}

func TestStatusTracker_RejectsBackwardTransition(t *testing.T) {
	tr := NewStatusTracker()

	tr.Set("doc-1", StageEmbedding)
	assert.False(t, tr.Set("doc-1", StageChunking))

	st, _ := tr.Get("doc-1")
	assert.Equal(t, StageEmbedding, st.Stage)
}

func TestStatusTracker_ErrorIsAbsorbing(t *testing.T) {
	tr := NewStatusTracker()

	tr.Set("doc-1", StageChunking)
	require.True(t, tr.SetError("doc-1", "boom"))

	st, _ := tr.Get("doc-1")
	assert.Equal(t, StageError, st.Stage)
	assert.Equal(t, 0, st.Progress)
	assert.Equal(t, "boom", st.ErrorMessage)

	// Nothing moves a document out of error.
	assert.False(t, tr.Set("doc-1", StageStoring))
	assert.False(t, tr.SetError("doc-1", "boom again"))

	st, _ = tr.Get("doc-1")
	assert.Equal(t, "boom", st.ErrorMessage)
}

func TestStatusTracker_CompleteIsFrozen(t *testing.T) {
	tr := NewStatusTracker()

	tr.Set("doc-1", StageComplete)
	assert.False(t, tr.Set("doc-1", StageLoading))
	assert.False(t, tr.SetError("doc-1", "late failure"))

	st, _ := tr.Get("doc-1")
	assert.Equal(t, StageComplete, st.Stage)
	assert.Equal(t, 100, st.Progress)
}

func TestStatusTracker_UnknownDocumentAndForget(t *testing.T) {
	tr := NewStatusTracker()

	_, ok := tr.Get("nope")
	assert.False(t, ok)

	tr.Set("doc-1", StageQueued)
	tr.Forget("doc-1")
	_, ok = tr.Get("doc-1")
	assert.False(t, ok)
}

func TestStatusTracker_IsolatesDocuments(t *testing.T) {
	tr := NewStatusTracker()

	tr.Set("doc-a", StageComplete)
	tr.SetError("doc-b", "failed")
	tr.Set("doc-c", StageEmbedding)

	a, _ := tr.Get("doc-a")
	b, _ := tr.Get("doc-b")
	c, _ := tr.Get("doc-c")
	assert.Equal(t, StageComplete, a.Stage)
	assert.Equal(t, StageError, b.Stage)
	assert.Equal(t, StageEmbedding, c.Stage)
}

func TestStatusTracker_ConcurrentReadsDuringWrites(t *testing.T) {
	tr := NewStatusTracker()
	tr.Set("doc-1", StageQueued)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, s := range []IngestionStage{StageLoading, StageChunking, StageEmbedding, StageStoring, StageComplete} {
			tr.Set("doc-1", s)
		}
	}()
	go func() {
		defer wg.Done()
		for range [200]struct{}{} {
			if st, ok := tr.Get("doc-1"); ok {
				assert.NotEmpty(t, st.Stage)
			}
		}
	}()
	wg.Wait()

	st, _ := tr.Get("doc-1")
	assert.Equal(t, StageComplete, st.Stage)
}

func TestTruncateErrorMessage(t *testing.T) {
	long := strings.Repeat("x", 600)
	got := TruncateErrorMessage(long)
	assert.Len(t, got, 500)
	assert.True(t, strings.HasSuffix(got, "..."))

	short := "disk full"
	assert.Equal(t, short, TruncateErrorMessage(short))

	assert.Equal(t, "line one line two", TruncateErrorMessage("line one\nline\ttwo"))
	assert.Equal(t, "ab", TruncateErrorMessage("a\x00\x1bb"))
}
