package index

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jgivc/modserver/internal/common"
	"github.com/jgivc/modserver/internal/config"
	"github.com/jgivc/modserver/internal/entity"
)

type BranchLister interface {
	Branches() ([]string, error)
}

type BranchLoader interface {
	Load(branch string) *entity.BranchData
}

// Branch is one loaded branch.
type Branch struct {
	Name string
	Data *entity.BranchData
}

type indexStorage struct {
	running atomic.Bool
	lister  BranchLister
	cfg     *config.SyncConfig
	log     *slog.Logger
}

func NewIndexStorage(lister BranchLister, cfg *config.SyncConfig, log *slog.Logger) *indexStorage {
	return &indexStorage{
		lister: lister,
		cfg:    cfg,
		log:    log.With(slog.String("item", "IndexStorage")),
	}
}

// Scan loads every branch directory with a pool of cfg.Workers workers.
func (i *indexStorage) Scan(ctx context.Context, loader BranchLoader) ([]*Branch, error) {
	if !i.running.CompareAndSwap(false, true) {
		return nil, common.ErrIndexingProcessHasAlreadyStarted
	}
	defer i.running.Store(false)

	names, err := i.lister.Branches()
	if err != nil {
		return nil, err
	}

	if len(names) == 0 {
		return []*Branch{}, nil
	}

	in := make(chan string, len(names))
	out := make(chan *Branch, len(names))

	for _, name := range names {
		in <- name
	}
	close(in)

	workers := min(i.cfg.Workers, len(names))

	var wg sync.WaitGroup
	wg.Add(workers)
	for n := 0; n < workers; n++ {
		go i.worker(ctx, n, loader, in, out, &wg)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	var branches []*Branch
	for branch := range out {
		i.log.Info("Found branch", slog.String("branch", branch.Name), slog.Int("mod_count", len(branch.Data.Mods)),
			slog.Bool("zip_present", branch.Data.Zip.IsPresent))
		branches = append(branches, branch)
	}

	return branches, nil
}

func (i *indexStorage) worker(ctx context.Context, n int, loader BranchLoader, in chan string, out chan *Branch, wg *sync.WaitGroup) {
	defer wg.Done()

	log := i.log.With(slog.Int("worker_id", n))
	log.Debug("Started")

	for name := range in {
		data := loader.Load(name)
		if data == nil {
			log.Error("Cannot load branch", slog.String("branch", name))

			continue
		}

		select {
		case <-ctx.Done():
			log.Info("Interrupted")

			return
		case out <- &Branch{Name: name, Data: data}:
		}
	}

	log.Debug("Done")
}
