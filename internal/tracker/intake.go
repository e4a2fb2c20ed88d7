package tracker

import (
	"context"
	"sync"
)

// Registrations is where a Tracker looks for a pending registration when
// an invocation starts.
type Registrations interface {
	// TryReceive returns a pending registration without blocking.
	TryReceive() (*Registration, bool)
	// Stop fails every registration still waiting with ErrTrackerStopped.
	Stop()
}

// Intake is a capacity-zero rendezvous between registrars and the tracker.
// Submit blocks until the tracker's next TryReceive at an
// invocation_started takes the registration, so at most one handoff is
// consumed per start. Concurrent offers are taken oldest first.
type Intake struct {
	mu      sync.Mutex
	offers  []*offer
	stopped bool

	done     chan struct{}
	stopOnce sync.Once
}

// offer is a registration whose submitter is blocked in Submit.
type offer struct {
	reg   *Registration
	taken chan struct{}
}

// NewIntake creates an open intake.
func NewIntake() *Intake {
	return &Intake{done: make(chan struct{})}
}

// Submit hands reg to the tracker. It returns nil once the tracker took it.
// If the intake stops or ctx ends first, reg is failed with that error so
// its Handle does not block forever.
func (in *Intake) Submit(ctx context.Context, reg *Registration) error {
	o, err := in.offer(reg)
	if err != nil {
		return err
	}
	return in.await(ctx, o)
}

// offer makes reg visible to TryReceive without waiting for it to be taken.
func (in *Intake) offer(reg *Registration) (*offer, error) {
	if !reg.submitted.CompareAndSwap(false, true) {
		return nil, ErrAlreadySubmitted
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.stopped {
		reg.fail(ErrTrackerStopped)
		return nil, ErrTrackerStopped
	}
	o := &offer{reg: reg, taken: make(chan struct{})}
	in.offers = append(in.offers, o)
	return o, nil
}

// await blocks until o is taken, the intake stops, or ctx ends.
func (in *Intake) await(ctx context.Context, o *offer) error {
	var err error
	select {
	case <-o.taken:
		return nil
	case <-in.done:
		err = ErrTrackerStopped
	case <-ctx.Done():
		err = ctx.Err()
	}

	// The tracker may have taken it while we were giving up.
	if !in.withdraw(o) {
		return nil
	}
	o.reg.fail(err)
	return err
}

// withdraw removes o if it is still on offer.
func (in *Intake) withdraw(o *offer) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	for i, pending := range in.offers {
		if pending == o {
			in.offers = append(in.offers[:i], in.offers[i+1:]...)
			return true
		}
	}
	return false
}

// TryReceive takes the oldest registration whose submitter is blocked in
// Submit, releasing that submitter.
func (in *Intake) TryReceive() (*Registration, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.stopped || len(in.offers) == 0 {
		return nil, false
	}
	o := in.offers[0]
	in.offers[0] = nil
	in.offers = in.offers[1:]
	close(o.taken)
	return o.reg, true
}

// Len returns the number of submitters blocked in Submit.
func (in *Intake) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.offers)
}

// Stop releases blocked and future submitters with ErrTrackerStopped.
func (in *Intake) Stop() {
	in.mu.Lock()
	in.stopped = true
	in.mu.Unlock()
	in.stopOnce.Do(func() { close(in.done) })
}

// Staged is an intake for drivers that sequence registrations with the
// event stream themselves: a registration staged before its start event is
// enqueued is consumed by that start. Registrations are consumed FIFO.
// Safe for concurrent use.
type Staged struct {
	mu      sync.Mutex
	pending []*Registration
	stopped bool
}

// NewStaged creates an empty staged intake.
func NewStaged() *Staged {
	return &Staged{}
}

// Stage queues reg for the next invocation_started.
func (s *Staged) Stage(reg *Registration) error {
	if !reg.submitted.CompareAndSwap(false, true) {
		return ErrAlreadySubmitted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		reg.fail(ErrTrackerStopped)
		return ErrTrackerStopped
	}
	s.pending = append(s.pending, reg)
	return nil
}

// TryReceive pops the oldest staged registration.
func (s *Staged) TryReceive() (*Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil, false
	}
	reg := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return reg, true
}

// Len returns the number of staged registrations.
func (s *Staged) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop fails every staged registration with ErrTrackerStopped and rejects
// later ones.
func (s *Staged) Stop() {
	s.mu.Lock()
	leftover := s.pending
	s.pending = nil
	s.stopped = true
	s.mu.Unlock()

	for _, reg := range leftover {
		reg.fail(ErrTrackerStopped)
	}
}
