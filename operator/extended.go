package operator

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
)

// FlatMap invokes its function once per input message and emits every
// message the function returns; unlike Map it is not constrained to a
// one-to-one output count.
type FlatMap struct {
	base
	fn function.FlatMap
}

func NewFlatMap(id uint64, name string, fn function.FlatMap, logger *slog.Logger) *FlatMap {
	return &FlatMap{base: newBase(id, name, function.KindFlatMap, logger), fn: fn}
}

func (f *FlatMap) Open(ctx context.Context) error  { f.opened.Store(true); return nil }
func (f *FlatMap) Close(ctx context.Context) error { f.closed.Store(true); return nil }

func (f *FlatMap) Process(ctx context.Context, in *message.Message, _ int) (bool, error) {
	if f.fn == nil {
		return false, f.notConfigured()
	}
	f.processed.Add(1)
	resp, err := f.fn.Execute(ctx, in)
	if err != nil {
		return false, f.recordError(function.KindFlatMap, err)
	}
	return f.emit(resp), nil
}

// KeyBy tags each message with its partition key as metadata (key "partition_key")
// and forwards it unmodified. This core has no physical shuffle/repartition
// stage, so KeyBy's contribution is the tag; a downstream Window/Aggregate
// function may read it to group state per key.
type KeyBy struct {
	base
	fn function.KeyBy
}

func NewKeyBy(id uint64, name string, fn function.KeyBy, logger *slog.Logger) *KeyBy {
	return &KeyBy{base: newBase(id, name, function.KindKeyBy, logger), fn: fn}
}

func (k *KeyBy) Open(ctx context.Context) error  { k.opened.Store(true); return nil }
func (k *KeyBy) Close(ctx context.Context) error { k.closed.Store(true); return nil }

const PartitionKeyMetadata = "partition_key"

func (k *KeyBy) Process(ctx context.Context, in *message.Message, _ int) (bool, error) {
	if k.fn == nil {
		return false, k.notConfigured()
	}
	k.processed.Add(1)
	if in == nil {
		return false, nil
	}
	key, err := k.fn.Key(ctx, in)
	if err != nil {
		return false, k.recordError(function.KindKeyBy, err)
	}
	in.SetMetadata(PartitionKeyMetadata, key)

	resp := message.NewFunctionResponse()
	resp.Add(in)
	return k.emit(resp), nil
}

// Window buffers incoming messages and, once the function's Ready
// criterion is met, hands the whole buffer to Execute and starts a fresh
// buffer.
type Window struct {
	base
	fn  function.Window
	mu  sync.Mutex
	buf []*message.Message
}

func NewWindow(id uint64, name string, fn function.Window, logger *slog.Logger) *Window {
	return &Window{base: newBase(id, name, function.KindWindow, logger), fn: fn}
}

func (w *Window) Open(ctx context.Context) error  { w.opened.Store(true); return nil }
func (w *Window) Close(ctx context.Context) error { w.closed.Store(true); return nil }

func (w *Window) Process(ctx context.Context, in *message.Message, _ int) (bool, error) {
	if w.fn == nil {
		return false, w.notConfigured()
	}
	w.processed.Add(1)

	w.mu.Lock()
	if in != nil {
		w.buf = append(w.buf, in)
	}
	ready := w.fn.Ready(len(w.buf))
	var batch []*message.Message
	if ready {
		batch = w.buf
		w.buf = nil
	}
	w.mu.Unlock()

	if !ready {
		return false, nil
	}
	resp, err := w.fn.Execute(ctx, batch)
	if err != nil {
		return false, w.recordError(function.KindWindow, err)
	}
	return w.emit(resp), nil
}

// Aggregate accumulates every input message into the function's running
// state and, whenever the function reports Ready, flushes a summary
// downstream.
type Aggregate struct {
	base
	fn function.Aggregate
}

func NewAggregate(id uint64, name string, fn function.Aggregate, logger *slog.Logger) *Aggregate {
	return &Aggregate{base: newBase(id, name, function.KindAggregate, logger), fn: fn}
}

func (a *Aggregate) Open(ctx context.Context) error  { a.opened.Store(true); return nil }
func (a *Aggregate) Close(ctx context.Context) error { a.closed.Store(true); return nil }

func (a *Aggregate) Process(ctx context.Context, in *message.Message, _ int) (bool, error) {
	if a.fn == nil {
		return false, a.notConfigured()
	}
	a.processed.Add(1)

	if in != nil {
		if err := a.fn.Accumulate(ctx, in); err != nil {
			return false, a.recordError(function.KindAggregate, err)
		}
	}
	if !a.fn.Ready() {
		return false, nil
	}
	resp, err := a.fn.Emit(ctx)
	if err != nil {
		return false, a.recordError(function.KindAggregate, err)
	}
	return a.emit(resp), nil
}

// scored pairs a message with its ranking score for TopK's internal heap-free
// sort-and-trim maintenance.
type scored struct {
	msg   *message.Message
	score float64
}

// TopK scores every arriving message and keeps the K highest-scoring
// messages seen so far, re-emitting the current ranked set downstream after
// every arriving message. ITopK uses the same operator with incremental=true,
// which skips the re-sort and the re-emit when the new message doesn't make
// the cut.
type TopK struct {
	base
	fn          function.TopK
	incremental bool
	mu          sync.Mutex
	kept        []scored
}

func NewTopK(id uint64, name string, fn function.TopK, logger *slog.Logger) *TopK {
	return &TopK{base: newBase(id, name, function.KindTopK, logger), fn: fn}
}

// NewITopK builds the incremental variant: identical ranking semantics, but
// avoids resorting the kept set when an arriving message would fall outside
// the current top K.
func NewITopK(id uint64, name string, fn function.ITopK, logger *slog.Logger) *TopK {
	t := NewTopK(id, name, fn, logger)
	t.kind = function.KindITopK
	t.incremental = true
	return t
}

func (t *TopK) Open(ctx context.Context) error  { t.opened.Store(true); return nil }
func (t *TopK) Close(ctx context.Context) error { t.closed.Store(true); return nil }

func (t *TopK) Process(ctx context.Context, in *message.Message, _ int) (bool, error) {
	if t.fn == nil {
		return false, t.notConfigured()
	}
	t.processed.Add(1)
	if in == nil {
		return false, nil
	}

	score, err := t.fn.Score(ctx, in)
	if err != nil {
		return false, t.recordError(function.KindTopK, err)
	}
	k := t.fn.K()
	if k <= 0 {
		return false, nil
	}

	t.mu.Lock()
	if t.incremental && len(t.kept) >= k && score <= t.kept[len(t.kept)-1].score {
		// Incremental maintenance: doesn't make the cut, nothing changes.
		t.mu.Unlock()
		return false, nil
	}
	t.kept = append(t.kept, scored{msg: in, score: score})
	sort.SliceStable(t.kept, func(i, j int) bool { return t.kept[i].score > t.kept[j].score })
	if len(t.kept) > k {
		t.kept = t.kept[:k]
	}
	snapshot := make([]*message.Message, len(t.kept))
	for i, s := range t.kept {
		snapshot[i] = s.msg
	}
	t.mu.Unlock()

	resp := message.NewFunctionResponse()
	for _, m := range snapshot {
		resp.Add(m)
	}
	return t.emit(resp), nil
}
