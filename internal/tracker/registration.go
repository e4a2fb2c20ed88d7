package tracker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Result is what a consumer is told when its invocation settles.
type Result int32

const (
	// Completed means every tracked condition was satisfied.
	Completed Result = iota + 1
	// ForcedCompletion means the tracker shut down with conditions pending.
	ForcedCompletion
)

func (r Result) String() string {
	switch r {
	case Completed:
		return "completed"
	case ForcedCompletion:
		return "forced"
	default:
		return "none"
	}
}

// Registration is the tracker's half of a completion rendezvous. It is
// handed to an intake before the invocation starts and fires at most once.
type Registration struct {
	id   string
	done chan Result
	gone chan struct{}

	goneOnce  sync.Once
	fired     atomic.Bool
	submitted atomic.Bool
	settled   atomic.Int32

	// err is written before done is closed.
	err error
}

// Handle is the consumer's half of a completion rendezvous.
type Handle struct {
	reg *Registration

	// received and recvErr are written once, before ready is closed.
	received  Result
	recvErr   error
	ready     chan struct{}
	readyOnce sync.Once
}

// NewRegistration creates a linked Registration and Handle. The
// Registration must reach the tracker before the invocation_started event
// of the invocation to be awaited.
func NewRegistration() (*Registration, *Handle) {
	reg := &Registration{
		id:   uuid.Must(uuid.NewV7()).String(),
		done: make(chan Result),
		gone: make(chan struct{}),
	}
	return reg, &Handle{reg: reg, ready: make(chan struct{})}
}

// ID returns the registration's UUIDv7.
func (r *Registration) ID() string {
	return r.id
}

// deliver hands res to the consumer, blocking until it is received or the
// handle is closed.
func (r *Registration) deliver(res Result) error {
	if !r.fired.CompareAndSwap(false, true) {
		return nil
	}
	r.settled.Store(int32(res))

	select {
	case r.done <- res:
		return nil
	case <-r.gone:
		return ErrConsumerGone
	}
}

// fail ends the registration with err instead of a result. Used for
// registrations the tracker never turned into a ConditionSet.
func (r *Registration) fail(err error) {
	if !r.fired.CompareAndSwap(false, true) {
		return
	}
	r.err = err
	close(r.done)
}

// ID returns the registration's UUIDv7.
func (h *Handle) ID() string {
	return h.reg.id
}

// Wait blocks until the invocation settles. It returns Completed or
// ForcedCompletion, or an error when the registration was never tracked
// (ErrTrackerStopped, ErrDuplicateInvocation, a submit context error) or
// ctx ends first. Giving up on ctx closes the handle, which also strands
// any other Wait still blocked on it until its own ctx ends.
//
// Wait is safe for concurrent use. Once a result is received every call
// returns it.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.ready:
		return h.received, h.recvErr
	default:
	}

	select {
	case res, ok := <-h.reg.done:
		if !ok {
			h.settle(0, h.reg.err)
		} else {
			h.settle(res, nil)
		}
		return h.received, h.recvErr
	case <-h.ready:
		return h.received, h.recvErr
	case <-ctx.Done():
		h.Close()
		return 0, ctx.Err()
	}
}

func (h *Handle) settle(res Result, err error) {
	h.readyOnce.Do(func() {
		h.received, h.recvErr = res, err
		close(h.ready)
	})
}

// Close abandons the handle. A completion fired afterwards is reported to
// the tracker as ErrConsumerGone.
func (h *Handle) Close() {
	h.reg.goneOnce.Do(func() { close(h.reg.gone) })
}

// Peek reports the result the tracker committed to, without waiting for it
// to be received.
func (h *Handle) Peek() (Result, bool) {
	res := Result(h.reg.settled.Load())
	return res, res != 0
}
