package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/settle/internal/tracker"
)

const maxLineSize = 1 << 20

// ReadLines enqueues one event per line of r until EOF and returns how
// many were enqueued. Blank lines and lines starting with '#' are skipped,
// as are lines that do not decode (with a warning). The queue is not
// closed at EOF; that is up to the caller.
func ReadLines(ctx context.Context, r io.Reader, q *tracker.Queue) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	n, lineNo := 0, 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		lineNo++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		ev, err := Decode(line)
		if err != nil {
			slog.Warn("skipping malformed event", "line", lineNo, "error", err)
			continue
		}
		if _, ok := q.Enqueue(ev); !ok {
			return n, ErrQueueClosed
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("read events: %w", err)
	}

	slog.Debug("event stream ended", "lines", lineNo, "events", n)
	return n, nil
}
