// Package jsonl reads observations from a JSON-lines file written by the
// scraper, one observation object per line.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/couchcryptid/rail-notice-etl/internal/domain"
)

const maxLineBytes = 16 << 20

// Source implements pipeline.Source over a file. Observations carry no commit
// callback; re-reading the same file is harmless because replays are no-ops.
type Source struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	file    *os.File
	scanner *bufio.Scanner
	line    int64
	done    bool
}

// NewSource creates a Source; the file is opened on the first batch.
func NewSource(path string, logger *zap.Logger) *Source {
	return &Source{path: path, logger: logger}
}

// ExtractBatch returns up to batchSize non-blank lines. An empty batch means
// the file is exhausted.
func (s *Source) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil, nil
	}
	if s.scanner == nil {
		if err := s.open(); errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("observation file missing, nothing to read", zap.String("path", s.path))
			s.done = true
			return nil, nil
		} else if err != nil {
			return nil, err
		}
	}

	batch := make([]domain.RawObservation, 0, batchSize)
	for len(batch) < batchSize {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return batch, fmt.Errorf("read %s line %d: %w", s.path, s.line+1, err)
			}
			s.done = true
			s.logger.Debug("observation file exhausted", zap.String("path", s.path), zap.Int64("lines", s.line))
			break
		}
		s.line++
		line := s.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		batch = append(batch, domain.RawObservation{
			Value:  append([]byte(nil), line...),
			Topic:  s.path,
			Offset: s.line,
		})
	}
	return batch, nil
}

// Close releases the file handle.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Source) open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open observations: %w", err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	s.file = f
	s.scanner = sc
	return nil
}
