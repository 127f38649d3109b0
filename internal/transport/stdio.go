package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/KalharPandya/upstocks-mcp/internal/dispatch"
	"github.com/KalharPandya/upstocks-mcp/internal/logging"
)

// maxLineBytes bounds one stdio line, matching the HTTP body cap.
const maxLineBytes = 1 << 20

// Stdio reads newline-terminated envelopes from in and writes responses to
// out. Each line is dispatched in its own goroutine; writes are serialized.
// A line that fails to parse yields a parse-error envelope with a null id.
type Stdio struct {
	dispatcher *dispatch.Dispatcher
	in         io.Reader
	out        io.Writer
	logger     *slog.Logger
	writeMu    sync.Mutex
}

// NewStdio creates the stdio transport adapter.
func NewStdio(d *dispatch.Dispatcher, in io.Reader, out io.Writer, logger *slog.Logger) *Stdio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stdio{
		dispatcher: d,
		in:         in,
		out:        out,
		logger:     logging.WithTransport(logger, "stdio"),
	}
}

// Run serves until the input stream ends or ctx is cancelled. In-flight
// dispatches are drained before returning. The reader runs in its own
// goroutine because a Scan on a live terminal blocks until the next line;
// cancellation must not wait for one. That goroutine may linger in a blocked
// read after Run returns, which only matters at process exit.
func (s *Stdio) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var wg sync.WaitGroup
	defer wg.Wait()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read stdin: %w", err)
					}
				default:
				}
				return nil
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			wg.Add(1)
			go func(raw []byte) {
				defer wg.Done()
				s.write(s.dispatcher.DispatchRaw(ctx, raw))
			}(([]byte)(line))
		}
	}
}

func (s *Stdio) write(resp any) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("failed to encode response", logging.Err(err))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := fmt.Fprintln(s.out, string(data)); err != nil {
		s.logger.Warn("failed to write response", logging.Err(err))
	}
}
