package tracker

import (
	"context"
	"fmt"
)

// Await registers for the next invocation to start, runs trigger to start
// it upstream, and waits for it to settle.
//
// The registration is on offer before trigger runs, so the first
// invocation_started the tracker processes after that point takes it. A
// start already queued ahead of the trigger's own will take it instead.
func Await(ctx context.Context, intake *Intake, trigger func(context.Context) error) (Result, error) {
	reg, h := NewRegistration()
	defer h.Close()

	o, err := intake.offer(reg)
	if err != nil {
		return 0, err
	}

	submitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	submitted := make(chan error, 1)
	go func() {
		submitted <- intake.await(submitCtx, o)
	}()

	if err := trigger(ctx); err != nil {
		cancel()
		<-submitted
		return 0, fmt.Errorf("trigger: %w", err)
	}

	return h.Wait(ctx)
}
