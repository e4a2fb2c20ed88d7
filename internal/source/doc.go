// Package source feeds domain events from outside the process into a
// tracker.Queue.
//
// Events are JSON objects in the shape event.Event marshals to, one per
// line on a reader or one (or an array) per MQTT message. Input that does
// not decode is logged and skipped; the tracker only ever sees valid
// events, in arrival order.
package source
