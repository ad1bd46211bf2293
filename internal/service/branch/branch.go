package branch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/jgivc/modserver/internal/common"
	"github.com/jgivc/modserver/internal/config"
	"github.com/jgivc/modserver/internal/entity"
	"github.com/jgivc/modserver/internal/storage/archive"
	"github.com/jgivc/modserver/internal/storage/index"
	"github.com/jgivc/modserver/internal/storage/registry"
	"github.com/jgivc/modserver/internal/util"
)

type FSAdapter interface {
	Collect(branch string) entity.ModFiles
	ModPath(branch, mod string) (string, error)
	ZipPath(branch string) (string, error)
}

type ArchiveBuilder interface {
	Build(branch string, mods entity.ModFiles, cached entity.ZipData) (entity.ZipData, error)
	InFlight(branch string) bool
}

type BranchScanner interface {
	Scan(ctx context.Context, loader index.BranchLoader) ([]*index.Branch, error)
}

// BranchService keeps the registry in sync with the branches on disk. It is the
// only writer of the registry.
type BranchService struct {
	fsa     FSAdapter
	builder ArchiveBuilder
	scanner BranchScanner
	reg     *registry.Registry
	cfg     *config.SyncConfig

	mu         sync.Mutex
	debouncers map[string]*util.Debouncer
	dirty      map[string]bool
	stopped    bool

	log *slog.Logger
}

func NewBranchService(fsa FSAdapter, builder ArchiveBuilder, scanner BranchScanner, reg *registry.Registry,
	cfg *config.SyncConfig, log *slog.Logger) *BranchService {
	return &BranchService{
		fsa:        fsa,
		builder:    builder,
		scanner:    scanner,
		reg:        reg,
		cfg:        cfg,
		debouncers: make(map[string]*util.Debouncer),
		dirty:      make(map[string]bool),
		log:        log.With(slog.String("item", "BranchService")),
	}
}

// CollectAll loads every branch on disk into the registry. It runs once: a
// populated registry makes later calls return immediately.
func (s *BranchService) CollectAll(ctx context.Context) error {
	if s.reg.Len() > 0 {
		return nil
	}

	branches, err := s.scanner.Scan(ctx, s)
	if err != nil {
		s.log.Error("Cannot scan branches", slog.Any("error", err))

		return fmt.Errorf("cannot scan branches: %w", err)
	}

	for _, b := range branches {
		s.reg.Set(b.Name, b.Data)

		if s.setDirty(b.Name, false) {
			s.Trigger(b.Name, filepath.Join(s.cfg.BranchesDir, b.Name))
		} else {
			s.debouncer(b.Name)
		}
	}

	s.log.Info("Branches collected", slog.Int("count", len(branches)))

	return nil
}

// Load collects branch and makes sure its archive matches the collected mods.
// The builder reuses an archive whose manifest already matches.
func (s *BranchService) Load(branch string) *entity.BranchData {
	s.reg.Register(branch)

	mods := s.fsa.Collect(branch)

	zip, err := s.builder.Build(branch, mods, entity.ZipData{})
	if err != nil {
		s.log.Error("Cannot build archive", slog.String("branch", branch), slog.Any("error", err))
	}

	return &entity.BranchData{
		Zip:  zip,
		Mods: mods.Slice(),
	}
}

// Trigger schedules a resync of branch. Triggers within the debounce window
// collapse into one resync with the last path.
func (s *BranchService) Trigger(branch, path string) {
	if d := s.debouncer(branch); d != nil {
		d.Trigger(path)
	}
}

// ResyncAll triggers every known branch.
func (s *BranchService) ResyncAll() {
	for _, name := range s.reg.Names() {
		s.Trigger(name, filepath.Join(s.cfg.BranchesDir, name))
	}
}

// Resync collects branch again and rebuilds its archive when needed. path is
// the change that caused it.
func (s *BranchService) Resync(branch, path string) {
	log := s.log.With(slog.String("branch", branch), slog.String("path", path))
	log.Debug("Resync")

	mods := s.fsa.Collect(branch)

	var cached entity.ZipData
	if data, _ := s.reg.Get(branch); data != nil {
		cached = data.Zip
		// Our own archive write must not cause another build.
		if !s.isArchivePath(branch, path) {
			cached.Size = 0
		}
	}

	zip, err := s.builder.Build(branch, mods, cached)
	if errors.Is(err, archive.ErrBuildInFlight) {
		log.Debug("Archive build in flight, resync later")
		s.setDirty(branch, true)

		return
	}

	// Changes seen by a losing resync get one more pass whatever this build did.
	defer func() {
		if s.setDirty(branch, false) {
			s.Trigger(branch, path)
		}
	}()

	if err != nil {
		log.Error("Cannot resync branch", slog.Any("error", err))

		return
	}

	if !zip.IsPresent {
		return
	}

	s.reg.Set(branch, &entity.BranchData{
		Zip:  zip,
		Mods: mods.Slice(),
	})

	log.Info("Branch synced", slog.Int("mod_count", len(mods)), slog.Int64("zip_size", zip.Size))
}

func (s *BranchService) isArchivePath(branch, path string) bool {
	rel, err := filepath.Rel(s.cfg.BranchesDir, path)
	if err != nil {
		return false
	}

	return rel == filepath.Join(branch, s.cfg.ArchiveName)
}

// setDirty stores the flag and returns the previous value.
func (s *BranchService) setDirty(branch string, dirty bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.dirty[branch]
	s.dirty[branch] = dirty

	return prev
}

func (s *BranchService) debouncer(branch string) *util.Debouncer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}

	d, exists := s.debouncers[branch]
	if !exists {
		d = util.NewDebouncer(s.cfg.Debounce, func(path string) {
			s.Resync(branch, path)
		})
		s.debouncers[branch] = d
	}

	return d
}

// Stop drops pending resyncs. Running ones finish.
func (s *BranchService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for _, d := range s.debouncers {
		d.Stop()
	}
}

func (s *BranchService) GetBranchNames() []string {
	return s.reg.Names()
}

func (s *BranchService) GetBranch(name string) (*entity.BranchData, error) {
	if name == "" {
		return nil, common.ErrBranchNameEmpty
	}

	data, known := s.reg.Get(name)
	if !known {
		return nil, fmt.Errorf("'%s': %w", name, common.ErrBranchNotFound)
	}

	if data == nil {
		return nil, fmt.Errorf("'%s': %w", name, common.ErrBranchNotReady)
	}

	return data, nil
}

func (s *BranchService) GetModPath(branch, mod string) (string, error) {
	return s.fsa.ModPath(branch, mod)
}

func (s *BranchService) GetZipPath(branch string) (string, error) {
	if branch == "" {
		return "", common.ErrBranchNameEmpty
	}

	if s.builder.InFlight(branch) {
		return "", fmt.Errorf("'%s': %w", branch, common.ErrZipNotReady)
	}

	return s.fsa.ZipPath(branch)
}
