package docker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/client"

	"github.com/modoterra/wharf/pkg/runtime"
)

// Scanner limits for a single log line. Docker caps its own log lines at
// 16KiB, but runtimes with custom log drivers can exceed that.
const (
	scanBufSize = 64 * 1024
	scanMaxLine = 1024 * 1024
)

// OpenLogStream opens the engine's log endpoint for one container. Lines
// arrive with engine timestamps so callers can resume a dropped stream
// from where it left off.
func (r *Runtime) OpenLogStream(ctx context.Context, sourceID string, opts runtime.StreamOptions) (runtime.LogStream, error) {
	tty, err := r.isTTY(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	body, err := r.cli.ContainerLogs(ctx, sourceID, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Timestamps: true,
		Since:      sinceValue(opts.Since),
		Tail:       tailValue(opts.Tail),
	})
	if err != nil {
		return nil, fmt.Errorf("opening logs for container %s: %w", shortID(sourceID), err)
	}

	s := &logStream{
		lines: make(chan runtime.RawLine, 64),
		done:  make(chan struct{}),
	}
	// Closing the body is the only way to unblock a scanner stuck in a
	// follow read.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	go func() {
		defer stop()
		defer body.Close()
		s.run(sourceID, body, tty)
	}()
	return s, nil
}

type logStream struct {
	lines chan runtime.RawLine
	done  chan struct{}
	once  sync.Once

	mu  sync.Mutex
	err error
}

func (s *logStream) Lines() <-chan runtime.RawLine { return s.lines }

func (s *logStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *logStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *logStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *logStream) run(sourceID string, body io.ReadCloser, tty bool) {
	defer close(s.lines)

	reader := io.Reader(body)
	if !tty {
		// Non-TTY containers multiplex stdout and stderr into one
		// stream with frame headers. Funnel both onto a single pipe
		// so lines keep their arrival order.
		pr, pw := io.Pipe()
		go func() {
			_, err := stdcopy.StdCopy(pw, pw, body)
			pw.CloseWithError(err)
		}()
		reader = pr
	}

	sc := bufio.NewScanner(reader)
	sc.Buffer(make([]byte, scanBufSize), scanMaxLine)
	for sc.Scan() {
		ts, text := splitTimestamp(sc.Text())
		select {
		case s.lines <- runtime.RawLine{SourceID: sourceID, Time: ts, Text: text}:
		case <-s.done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		s.setErr(err)
	}
}

// splitTimestamp strips the RFC3339Nano timestamp the engine prefixes when
// logs are requested with timestamps. A line without one comes back whole
// with a zero time.
func splitTimestamp(line string) (time.Time, string) {
	i := strings.IndexByte(line, ' ')
	if i < 0 {
		return time.Time{}, line
	}
	ts, err := time.Parse(time.RFC3339Nano, line[:i])
	if err != nil {
		return time.Time{}, line
	}
	return ts, line[i+1:]
}

func sinceValue(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func tailValue(n int) string {
	if n <= 0 {
		return "all"
	}
	return strconv.Itoa(n)
}
