package reviewqueue

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Ensure Spool implements the interface.
var _ driven.ReviewQueue = (*Spool)(nil)

const (
	spoolPrefix = "review-"
	spoolSuffix = ".ndjson"
)

// Spool is a review queue backed by append-only NDJSON files.
type Spool struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// NewSpool creates a spool in dir, creating the directory if needed.
func NewSpool(dir string) (*Spool, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: spool directory is required", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}
	return &Spool{dir: dir, now: time.Now}, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// Push appends one item as a single JSON line.
func (s *Spool) Push(ctx context.Context, item domain.ReviewItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now().UTC()
	if item.QueuedAt.IsZero() {
		item.QueuedAt = now
	}
	line, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding review item: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	name := filepath.Join(s.dir, spoolPrefix+now.Format("20060102")+spoolSuffix)
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("opening spool file: %w", err)
	}
	// One write per line keeps concurrent readers from seeing partial items.
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("writing spool file: %w", err)
	}
	return f.Close()
}

// Close releases resources.
func (s *Spool) Close() error {
	return nil
}

// ReadSpool returns every item in dir, oldest file first and in push order
// within a file.
func ReadSpool(dir string) ([]domain.ReviewItem, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading spool directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), spoolPrefix) && strings.HasSuffix(e.Name(), spoolSuffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var items []domain.ReviewItem
	for _, name := range files {
		got, err := readSpoolFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		items = append(items, got...)
	}
	return items, nil
}

func readSpoolFile(path string) ([]domain.ReviewItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var items []domain.ReviewItem
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}
		var item domain.ReviewItem
		if err := json.Unmarshal(scanner.Bytes(), &item); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return items, nil
}
