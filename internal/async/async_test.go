package async

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeExtractor struct {
	inFlight, peak atomic.Int32
	delay          time.Duration
	fail           map[string]bool
}

func (f *fakeExtractor) Extract(ctx context.Context, doc entity.RawDocument) (entity.FiscalRecord, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return entity.FiscalRecord{}, common.FromContext(ctx)
	}
	if f.fail[doc.SourceFilename] {
		return entity.FiscalRecord{}, common.Errorf(common.KindNoTextDetected, "blank")
	}
	return entity.FiscalRecord{Establecimiento: entity.StringPtr(doc.SourceFilename)}, nil
}

func jobs(names ...string) []Job {
	out := make([]Job, len(names))
	for i, n := range names {
		out[i] = Job{Document: entity.NewRawDocument([]byte(n), "image/png", n)}
	}
	return out
}

func TestRunBatch_BoundedAndOrdered(t *testing.T) {
	ext := &fakeExtractor{delay: 10 * time.Millisecond, fail: map[string]bool{"c": true}}
	var seen atomic.Int32

	res := RunBatch(context.Background(), ext, jobs("a", "b", "c", "d", "e", "f"), 2, quietLogger(), func(Result) { seen.Add(1) })

	require.Len(t, res, 6)
	assert.LessOrEqual(t, ext.peak.Load(), int32(2))
	assert.Equal(t, int32(6), seen.Load())
	for i, name := range []string{"a", "b", "c", "d", "e", "f"} {
		assert.Equal(t, name, res[i].Job.Document.SourceFilename)
		if name == "c" {
			assert.True(t, common.IsKind(res[i].Err, common.KindNoTextDetected))
			continue
		}
		require.NoError(t, res[i].Err)
		assert.Equal(t, name, *res[i].Record.Establecimiento)
	}
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := RunBatch(ctx, &fakeExtractor{delay: time.Second}, jobs("a", "b"), 1, quietLogger(), nil)
	for _, r := range res {
		assert.True(t, common.IsKind(r.Err, common.KindCancelled))
	}
}

func TestProcessorQueue_ProcessesAndDrains(t *testing.T) {
	ext := &fakeExtractor{delay: 5 * time.Millisecond}
	var mu sync.Mutex
	var got []string
	q := NewProcessorQueue(ext, quietLogger(),
		WithWorkers(3),
		WithQueueSize(2),
		WithProcessTimeout(time.Second),
		WithSink(func(r Result) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, r.Job.Document.SourceFilename)
		}),
	)

	for _, j := range jobs("a", "b", "c", "d", "e") {
		require.NoError(t, q.Enqueue(context.Background(), j))
	}
	q.Shutdown(context.Background())

	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, got)
	assert.LessOrEqual(t, ext.peak.Load(), int32(3))
	assert.ErrorIs(t, q.Enqueue(context.Background(), jobs("z")[0]), ErrQueueClosed)
}

func TestProcessorQueue_EnqueueHonoursContext(t *testing.T) {
	block := make(chan struct{})
	ext := &blockingExtractor{release: block, started: make(chan struct{})}
	q := NewProcessorQueue(ext, quietLogger(), WithWorkers(1), WithQueueSize(1))
	defer func() {
		close(block)
		q.Shutdown(context.Background())
	}()

	require.NoError(t, q.Enqueue(context.Background(), jobs("a")[0]))
	<-ext.started
	require.NoError(t, q.Enqueue(context.Background(), jobs("b")[0]))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, jobs("c")[0])
	assert.True(t, common.IsKind(err, common.KindCancelled))
}

func TestProcessorQueue_ShutdownDeadlineCancelsJobs(t *testing.T) {
	ext := &fakeExtractor{delay: time.Minute}
	var mu sync.Mutex
	var results []Result
	q := NewProcessorQueue(ext, quietLogger(),
		WithWorkers(1),
		WithQueueSize(4),
		WithSink(func(r Result) {
			mu.Lock()
			defer mu.Unlock()
			results = append(results, r)
		}),
	)
	for _, j := range jobs("a", "b", "c") {
		require.NoError(t, q.Enqueue(context.Background(), j))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	q.Shutdown(ctx)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Zero(t, ext.inFlight.Load())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, common.IsKind(r.Err, common.KindCancelled), r.Job.Document.SourceFilename)
	}
}

type blockingExtractor struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingExtractor) Extract(ctx context.Context, _ entity.RawDocument) (entity.FiscalRecord, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return entity.FiscalRecord{}, nil
}
