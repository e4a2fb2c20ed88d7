package tracker

import "errors"

var (
	// ErrSourceClosed is returned by a Source that will produce no more
	// events. It is fatal to the Runner.
	ErrSourceClosed = errors.New("event source closed")

	// ErrPollTimeout is returned by a Source when no event arrived within
	// the poll interval.
	ErrPollTimeout = errors.New("poll timeout")

	// ErrConsumerGone is reported when a completion could not be delivered
	// because its Handle was closed. The tracker logs it and continues.
	ErrConsumerGone = errors.New("completion consumer gone")

	// ErrTrackerStopped is returned to registrations the tracker never
	// consumed because it stopped.
	ErrTrackerStopped = errors.New("tracker stopped")

	// ErrDuplicateInvocation is returned when a registration is consumed for
	// an invocation that is already being tracked.
	ErrDuplicateInvocation = errors.New("invocation already tracked")

	// ErrAlreadySubmitted is returned when a registration is handed to an
	// intake twice.
	ErrAlreadySubmitted = errors.New("registration already submitted")
)
