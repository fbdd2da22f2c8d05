// Package source opens the line streams that producers scan. A source ID is
// a file path, "-" for standard input, or "redis:<key>" for a Redis list.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/wordindex/pkg/errors"
)

// RedisPrefix marks a source ID naming a Redis list.
const RedisPrefix = "redis:"

// Stdin is the source ID for standard input.
const Stdin = "-"

// LineFunc receives each line with its 1-based number. Returning an error
// stops the scan and the error is returned from Each.
type LineFunc func(lineNo int, line string) error

// Source is an open line stream.
type Source interface {
	ID() string
	Each(ctx context.Context, fn LineFunc) error
	Close() error
}

// Opener resolves source IDs to open streams.
type Opener interface {
	Open(ctx context.Context, id string) (Source, error)
}

// ListReader is the subset of the Redis client a list source needs.
type ListReader interface {
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Options configures a Mux.
type Options struct {
	// Redis serves "redis:" sources; nil makes them unavailable.
	Redis ListReader
	// PageSize bounds each LRANGE call. Defaults to 512.
	PageSize int64
	// Stdin replaces os.Stdin, mainly for tests.
	Stdin io.Reader
}

// Mux opens files, standard input, and Redis lists.
type Mux struct {
	redis     ListReader
	pageSize  int64
	stdin     io.Reader
	stdinMu   sync.Mutex
	stdinUsed bool
}

// NewMux creates an Opener for every supported source kind.
func NewMux(opts Options) *Mux {
	m := &Mux{
		redis:    opts.Redis,
		pageSize: opts.PageSize,
		stdin:    opts.Stdin,
	}
	if m.pageSize <= 0 {
		m.pageSize = 512
	}
	if m.stdin == nil {
		m.stdin = os.Stdin
	}
	return m
}

// Open returns the stream for id. Every failure wraps ErrSourceUnavailable.
func (m *Mux) Open(ctx context.Context, id string) (Source, error) {
	switch {
	case id == Stdin:
		return m.openStdin()
	case strings.HasPrefix(id, RedisPrefix):
		return m.openRedis(ctx, id)
	default:
		return openFile(id)
	}
}

func (m *Mux) openStdin() (Source, error) {
	m.stdinMu.Lock()
	defer m.stdinMu.Unlock()
	if m.stdinUsed {
		return nil, apperrors.Newf(apperrors.ErrSourceUnavailable, apperrors.ExitFailure, "standard input already claimed by another producer")
	}
	m.stdinUsed = true
	return &readerSource{id: Stdin, r: bufio.NewReader(m.stdin)}, nil
}

func (m *Mux) openRedis(ctx context.Context, id string) (Source, error) {
	key := strings.TrimPrefix(id, RedisPrefix)
	if m.redis == nil {
		return nil, apperrors.Newf(apperrors.ErrSourceUnavailable, apperrors.ExitFailure, "%s: no redis connection configured", id)
	}
	if key == "" {
		return nil, apperrors.Newf(apperrors.ErrSourceUnavailable, apperrors.ExitFailure, "%s: empty list key", id)
	}
	ok, err := m.redis.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", id, apperrors.ErrSourceUnavailable, err)
	}
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrSourceUnavailable, apperrors.ExitFailure, "%s: list does not exist", id)
	}
	return &listSource{id: id, key: key, client: m.redis, pageSize: m.pageSize}, nil
}

func openFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w: %w", path, apperrors.ErrSourceUnavailable, err)
	}
	return &readerSource{id: path, r: bufio.NewReaderSize(f, 64*1024), closer: f}, nil
}

// readerSource splits a byte stream on '\n'. The newline is not part of the
// line; a final fragment without a newline is still a line.
type readerSource struct {
	id     string
	r      *bufio.Reader
	closer io.Closer
}

func (s *readerSource) ID() string { return s.id }

func (s *readerSource) Each(ctx context.Context, fn LineFunc) error {
	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := s.r.ReadString('\n')
		if len(line) > 0 {
			lineNo++
			if ferr := fn(lineNo, strings.TrimSuffix(line, "\n")); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s after line %d: %w", s.id, lineNo, err)
		}
	}
}

func (s *readerSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// listSource pages through a Redis list with LRANGE. Elements appended
// while the scan runs may or may not be seen.
type listSource struct {
	id       string
	key      string
	client   ListReader
	pageSize int64
}

func (s *listSource) ID() string { return s.id }

func (s *listSource) Each(ctx context.Context, fn LineFunc) error {
	lineNo := 0
	for start := int64(0); ; start += s.pageSize {
		page, err := s.client.LRange(ctx, s.key, start, start+s.pageSize-1)
		if err != nil {
			return fmt.Errorf("reading %s after line %d: %w", s.id, lineNo, err)
		}
		for _, line := range page {
			lineNo++
			if err := fn(lineNo, line); err != nil {
				return err
			}
		}
		if int64(len(page)) < s.pageSize {
			return nil
		}
	}
}

func (s *listSource) Close() error { return nil }
