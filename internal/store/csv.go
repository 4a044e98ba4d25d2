package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/nao1215/gubacrawl/internal/model"
)

// Sink receives the comments of one page. CSVStore and the history
// database implement it.
type Sink interface {
	Append(targetID string, comments []model.Comment) error
}

// CSVStore writes comments to <dir>/comments_<target>.csv. It is safe for
// concurrent use.
type CSVStore struct {
	dir string
	mu  sync.Mutex
}

// NewCSVStore creates the store directory if needed.
func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &CSVStore{dir: dir}, nil
}

// Path returns the CSV file of a target.
func (s *CSVStore) Path(targetID string) string {
	return filepath.Join(s.dir, "comments_"+targetID+".csv")
}

// Append adds comments to the target's file. The header is written only when
// the file is new or empty, so repeated appends never duplicate it.
func (s *CSVStore) Append(targetID string, comments []model.Comment) error {
	if len(comments) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(targetID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat csv file: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(model.CommentColumns); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}
	for _, c := range comments {
		if err := w.Write(c.Row()); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv file: %w", err)
	}
	return f.Close()
}

// Count returns the number of data rows in the target's file, 0 when the
// file does not exist.
func (s *CSVStore) Count(targetID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.Path(targetID))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	rows := 0
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read csv file: %w", err)
		}
		rows++
	}
	if rows > 0 {
		rows-- // header
	}
	return rows, nil
}

// Reset removes the target's file. A missing file is not an error.
func (s *CSVStore) Reset(targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(targetID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove csv file: %w", err)
	}
	return nil
}

// MultiSink appends to every sink in order. All sinks are tried; their
// errors are joined.
type MultiSink []Sink

// Append implements Sink.
func (m MultiSink) Append(targetID string, comments []model.Comment) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(targetID, comments); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
