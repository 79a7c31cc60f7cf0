package unirender

import (
	"context"
	"errors"
	"sync"
	"time"
)

// LayerRequest proposes a composition type for one layer during
// prevalidation.
type LayerRequest struct {
	ID     NodeID
	Dst    RectI
	ZOrder int
	Type   CompositionType
}

// Prevalidator negotiates composition with the display backend before the
// layer list is built. The returned map may force layers to CompositionClient;
// missing ids keep their requested type.
type Prevalidator interface {
	Prevalidate(layers []LayerRequest) (map[NodeID]CompositionType, error)
}

// Backend is the display backend consumed by the render thread.
type Backend interface {
	Prevalidator
	// AcquireBuffer returns the next target buffer and a fence that signals
	// when it may be written.
	AcquireBuffer(ctx context.Context) (*Buffer, *Fence, error)
	// Submit commits the layer list of a frame.
	Submit(layers []LayerInfo) error
	// BufferAge returns the age of the next target buffer, or 0 if unknown.
	BufferAge() int
}

// Fence is a one-shot completion signal.
type Fence struct {
	once sync.Once
	done chan struct{}
}

// NewFence creates an unsignaled fence.
func NewFence() *Fence {
	return &Fence{done: make(chan struct{})}
}

// Signal marks the fence complete. Extra calls are ignored.
func (f *Fence) Signal() {
	f.once.Do(func() { close(f.done) })
}

// Done returns a channel closed when the fence signals.
func (f *Fence) Done() <-chan struct{} { return f.done }

// WaitFence blocks until f signals or timeout elapses, returning
// ErrFenceTimeout in the latter case. A nil fence is already signaled.
func WaitFence(f *Fence, timeout time.Duration) error {
	if f == nil {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return nil
	case <-timer.C:
		return ErrFenceTimeout
	}
}

// AcquireReadyBuffer acquires a buffer from b and waits for its fence. A
// buffer not ready within timeout is reported as no buffer: nil and an error
// wrapping ErrNoBuffer.
func AcquireReadyBuffer(ctx context.Context, b Backend, timeout time.Duration) (*Buffer, error) {
	buf, fence, err := b.AcquireBuffer(ctx)
	if err != nil {
		return nil, errors.Join(ErrNoBuffer, err)
	}
	if buf == nil {
		return nil, ErrNoBuffer
	}
	if err := WaitFence(fence, timeout); err != nil {
		Logger().Warn("buffer fence not ready", "timeout", timeout)
		return nil, errors.Join(ErrNoBuffer, err)
	}
	return buf, nil
}

// --- MemoryBackend ---

// MemoryBackend is an in-memory Backend. It records every submitted layer
// list and answers prevalidation from a configurable verdict table.
type MemoryBackend struct {
	mu sync.Mutex

	width, height int
	seq           uint64
	age           int
	fenceDelay    time.Duration

	verdicts       map[NodeID]CompositionType
	rejectAll      bool
	prevalidateErr error

	submitted [][]LayerInfo
	requests  [][]LayerRequest
}

// NewMemoryBackend creates a backend with w×h target buffers and buffer age 1.
func NewMemoryBackend(w, h int) *MemoryBackend {
	return &MemoryBackend{
		width:    w,
		height:   h,
		age:      1,
		verdicts: make(map[NodeID]CompositionType),
	}
}

// SetBufferAge sets the age reported for subsequent buffers.
func (b *MemoryBackend) SetBufferAge(age int) {
	b.mu.Lock()
	b.age = age
	b.mu.Unlock()
}

// SetFenceDelay delays fence signaling of acquired buffers by d.
func (b *MemoryBackend) SetFenceDelay(d time.Duration) {
	b.mu.Lock()
	b.fenceDelay = d
	b.mu.Unlock()
}

// SetVerdict forces the prevalidation verdict for id.
func (b *MemoryBackend) SetVerdict(id NodeID, t CompositionType) {
	b.mu.Lock()
	b.verdicts[id] = t
	b.mu.Unlock()
}

// RejectAll makes prevalidation force every layer to client composition.
func (b *MemoryBackend) RejectAll(on bool) {
	b.mu.Lock()
	b.rejectAll = on
	b.mu.Unlock()
}

// SetPrevalidateError makes prevalidation fail with err.
func (b *MemoryBackend) SetPrevalidateError(err error) {
	b.mu.Lock()
	b.prevalidateErr = err
	b.mu.Unlock()
}

// Prevalidate implements Prevalidator.
func (b *MemoryBackend) Prevalidate(layers []LayerRequest) (map[NodeID]CompositionType, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, append([]LayerRequest(nil), layers...))
	if b.prevalidateErr != nil {
		return nil, b.prevalidateErr
	}
	out := make(map[NodeID]CompositionType, len(layers))
	for _, l := range layers {
		t := l.Type
		if v, ok := b.verdicts[l.ID]; ok {
			t = v
		}
		if b.rejectAll {
			t = CompositionClient
		}
		out[l.ID] = t
	}
	return out, nil
}

// AcquireBuffer implements Backend.
func (b *MemoryBackend) AcquireBuffer(ctx context.Context) (*Buffer, *Fence, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	b.mu.Lock()
	b.seq++
	buf := &Buffer{Width: b.width, Height: b.height, Seq: b.seq}
	delay := b.fenceDelay
	b.mu.Unlock()

	f := NewFence()
	if delay <= 0 {
		f.Signal()
	} else {
		time.AfterFunc(delay, f.Signal)
	}
	return buf, f, nil
}

// Submit implements Backend.
func (b *MemoryBackend) Submit(layers []LayerInfo) error {
	b.mu.Lock()
	b.submitted = append(b.submitted, append([]LayerInfo(nil), layers...))
	b.mu.Unlock()
	return nil
}

// BufferAge implements Backend.
func (b *MemoryBackend) BufferAge() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.age
}

// Submitted returns a copy of every submitted layer list.
func (b *MemoryBackend) Submitted() [][]LayerInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]LayerInfo, len(b.submitted))
	copy(out, b.submitted)
	return out
}

// Requests returns a copy of every prevalidation request.
func (b *MemoryBackend) Requests() [][]LayerRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]LayerRequest, len(b.requests))
	copy(out, b.requests)
	return out
}
