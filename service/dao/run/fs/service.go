// Package fs journals completed scenario runs as JSON documents through afs,
// so any afs supported location (local disk, mem://, cloud storage) can hold
// the history.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/dao"
	"github.com/viant/faultsim/service/dao/criteria"
)

// Service is a run journal.
type Service struct {
	baseURL string
	fs      afs.Service
	logger  *slog.Logger
	mu      sync.RWMutex
}

var _ dao.Service[string, model.Run] = (*Service)(nil)

// Save writes a snapshot of run.
func (s *Service) Save(ctx context.Context, run *model.Run) error {
	if run == nil {
		return dao.ErrNilEntity
	}
	snapshot := run.Clone()
	if snapshot.ID == "" {
		return dao.ErrInvalidID
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", snapshot.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	URL := s.runURL(snapshot.ID)
	if err = s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to journal run to %s: %w", URL, err)
	}
	return nil
}

// Load reads a journaled run.
func (s *Service) Load(ctx context.Context, id string) (*model.Run, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	URL := s.runURL(id)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check run %s: %w", id, err)
	}
	if !exists {
		return nil, fmt.Errorf("run %s: %w", id, dao.ErrNotFound)
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}
	run := &model.Run{}
	if err = json.Unmarshal(data, run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return run, nil
}

// Delete removes a journaled run.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	URL := s.runURL(id)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to check run %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("run %s: %w", id, dao.ErrNotFound)
	}
	if err = s.fs.Delete(ctx, URL); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	return nil
}

// List returns journaled runs ordered by sequence. Unreadable documents are
// logged and skipped.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var runs []*model.Run
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			s.logger.Warn("failed to read journaled run", "url", object.URL(), "error", err)
			continue
		}
		run := &model.Run{}
		if err := json.Unmarshal(data, run); err != nil {
			s.logger.Warn("failed to decode journaled run", "url", object.URL(), "error", err)
			continue
		}
		if !criteria.FilterByState(string(run.State), parameters) || !criteria.FilterByScenario(string(run.Scenario), parameters) {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Seq < runs[j].Seq })
	return runs, nil
}

// URL returns the journal location.
func (s *Service) URL() string { return s.baseURL }

func (s *Service) runURL(id string) string {
	return url.Join(s.baseURL, id+".json")
}

// New creates a journal rooted at baseURL, creating the location when needed.
func New(ctx context.Context, baseURL string, logger *slog.Logger) (*Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("journal URL cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	fs := afs.New()
	baseURL = url.Normalize(baseURL, file.Scheme)
	exists, _ := fs.Exists(ctx, baseURL)
	if !exists {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create journal %s: %w", baseURL, err)
		}
	}
	return &Service{baseURL: baseURL, fs: fs, logger: logger}, nil
}
