package lifecycle

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tiercycle/tiercycle/internal/storage/memory"
	"github.com/tiercycle/tiercycle/pkg/types"
)

const day = 24 * time.Hour

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type hook func(ref types.ObjectRef) error

// faultStore wraps the in-memory store with per-operation hooks and call accounting.
type faultStore struct {
	*memory.Store

	onCopy   hook
	onStat   hook
	onGet    hook
	onPut    hook
	onDelete hook
	listErr  error

	delay       time.Duration
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func newFaultStore() *faultStore {
	return &faultStore{Store: memory.New([]string{"intake", "backup", "archive"}, memory.WithClock(func() time.Time { return testNow }))}
}

func (f *faultStore) seed(key string, age time.Duration) {
	f.Seed(types.ObjectRef{Container: "intake", Key: key}, []byte("content of "+key), "text/plain", testNow.Add(-age))
}

func (f *faultStore) enter() func() {
	n := f.inFlight.Add(1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *faultStore) List(ctx context.Context, container string) iter.Seq2[types.ObjectRef, error] {
	if f.listErr != nil {
		return func(yield func(types.ObjectRef, error) bool) {
			yield(types.ObjectRef{}, f.listErr)
		}
	}
	return f.Store.List(ctx, container)
}

func (f *faultStore) Copy(ctx context.Context, src, dst types.ObjectRef) error {
	defer f.enter()()
	if f.onCopy != nil {
		if err := f.onCopy(src); err != nil {
			return err
		}
	}
	return f.Store.Copy(ctx, src, dst)
}

func (f *faultStore) Stat(ctx context.Context, ref types.ObjectRef) (types.ObjectMetadata, error) {
	defer f.enter()()
	if f.onStat != nil {
		if err := f.onStat(ref); err != nil {
			return types.ObjectMetadata{}, err
		}
	}
	return f.Store.Stat(ctx, ref)
}

func (f *faultStore) Get(ctx context.Context, ref types.ObjectRef) ([]byte, error) {
	defer f.enter()()
	if f.onGet != nil {
		if err := f.onGet(ref); err != nil {
			return nil, err
		}
	}
	return f.Store.Get(ctx, ref)
}

func (f *faultStore) Put(ctx context.Context, ref types.ObjectRef, data []byte, contentType string) error {
	defer f.enter()()
	if f.onPut != nil {
		if err := f.onPut(ref); err != nil {
			return err
		}
	}
	return f.Store.Put(ctx, ref, data, contentType)
}

func (f *faultStore) Delete(ctx context.Context, ref types.ObjectRef) error {
	defer f.enter()()
	if f.onDelete != nil {
		if err := f.onDelete(ref); err != nil {
			return err
		}
	}
	return f.Store.Delete(ctx, ref)
}

type recordedOutcome struct {
	kind, stage string
}

// captureRecorder implements Recorder for assertions.
type captureRecorder struct {
	mu       sync.Mutex
	outcomes []recordedOutcome
	runs     []string
	inFlight float64
	maxSeen  float64
	onFailed func()
}

func (r *captureRecorder) RecordOutcome(kind, stage string, _ time.Duration, _ int64) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, recordedOutcome{kind: kind, stage: stage})
	cb := r.onFailed
	r.mu.Unlock()
	if kind == KindFailed.String() && cb != nil {
		cb()
	}
}

func (r *captureRecorder) RecordRun(status string, _ time.Duration, _, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, status)
}

func (r *captureRecorder) AddInFlight(delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight += delta
	if r.inFlight > r.maxSeen {
		r.maxSeen = r.inFlight
	}
}

func intake(key string) types.ObjectRef  { return types.ObjectRef{Container: "intake", Key: key} }
func backup(key string) types.ObjectRef  { return types.ObjectRef{Container: "backup", Key: key} }
func archive(key string) types.ObjectRef { return types.ObjectRef{Container: "archive", Key: key} }

func testPlan(window int) Plan {
	return Plan{Backup: "backup", Archive: "archive", Policy: types.RetentionPolicy{WindowDays: window}}
}

func testRequest(window, concurrency int) RunRequest {
	return RunRequest{
		Intake:      "intake",
		Backup:      "backup",
		Archive:     "archive",
		Policy:      types.RetentionPolicy{WindowDays: window},
		Concurrency: concurrency,
	}
}
