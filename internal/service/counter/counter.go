package counter

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"

	"github.com/jgivc/modserver/internal/common"
	"github.com/jgivc/modserver/internal/entity"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

const (
	serviceName = "counter"
)

type CounterRepository interface {
	GetBranchCounters(ctx context.Context, branch string) (map[string]int64, error)
	CounterIterator(ctx context.Context) (iter.Seq2[*entity.BranchCounters, error], error)
}

type counterService struct {
	repo CounterRepository
	fs   afero.Fs
	log  *slog.Logger
}

// NewCounterService builds the service. With a nil repo every call returns ErrCountersDisabled.
func NewCounterService(repo CounterRepository, fs afero.Fs, log *slog.Logger) *counterService {
	return &counterService{
		repo: repo,
		fs:   fs,
		log:  log.With(slog.String("service", serviceName)),
	}
}

func (c *counterService) GetBranchCounters(ctx context.Context, branch string) (*entity.BranchCounters, error) {
	if c.repo == nil {
		return nil, common.ErrCountersDisabled
	}

	if branch == "" {
		return nil, common.ErrBranchNameEmpty
	}

	counters, err := c.repo.GetBranchCounters(ctx, branch)
	if err != nil {
		c.log.Error("Cannot get download counters", slog.String("branch", branch), slog.Any("error", err))

		return nil, fmt.Errorf("cannot get branch %s counters: %w", branch, err)
	}

	return toBranchCounters(branch, counters), nil
}

// DumpCounters writes counters of all branches to fileName as yaml.
func (c *counterService) DumpCounters(ctx context.Context, fileName string) error {
	if c.repo == nil {
		return common.ErrCountersDisabled
	}

	it, err := c.repo.CounterIterator(ctx)
	if err != nil {
		return fmt.Errorf("cannot get counters: %w", err)
	}

	var all []*entity.BranchCounters

	for bc, err := range it {
		if err != nil {
			return fmt.Errorf("cannot read counters: %w", err)
		}

		sortFiles(bc)
		all = append(all, bc)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Branch < all[j].Branch })

	data, err := yaml.Marshal(all)
	if err != nil {
		return fmt.Errorf("cannot marshal counters: %w", err)
	}

	if err := afero.WriteFile(c.fs, fileName, data, 0o644); err != nil {
		return fmt.Errorf("cannot write counters to %s: %w", fileName, err)
	}

	c.log.Info("Counters dumped", slog.String("file", fileName), slog.Int("branches", len(all)))

	return nil
}

func toBranchCounters(branch string, counters map[string]int64) *entity.BranchCounters {
	bc := &entity.BranchCounters{Branch: branch}
	for name, counter := range counters {
		bc.Files = append(bc.Files, entity.FileCounter{Name: name, Counter: counter})
	}

	sortFiles(bc)

	return bc
}

func sortFiles(bc *entity.BranchCounters) {
	sort.Slice(bc.Files, func(i, j int) bool { return bc.Files[i].Name < bc.Files[j].Name })
}
