package source

import (
	"bytes"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/roach88/settle/internal/event"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrQueueClosed is returned when the destination queue no longer accepts
// events.
var ErrQueueClosed = errors.New("queue closed")

// Decode parses a single JSON event.
func Decode(data []byte) (event.Event, error) {
	var ev event.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return event.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// DecodeBatch parses either a single JSON event or a JSON array of events.
func DecodeBatch(data []byte) ([]event.Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		ev, err := Decode(trimmed)
		if err != nil {
			return nil, err
		}
		return []event.Event{ev}, nil
	}

	var events []event.Event
	if err := json.Unmarshal(trimmed, &events); err != nil {
		return nil, fmt.Errorf("decode event batch: %w", err)
	}
	return events, nil
}
