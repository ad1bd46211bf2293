package fsadapter

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jgivc/modserver/internal/config"
	"github.com/jgivc/modserver/internal/entity"
	"github.com/spf13/afero"
)

type fsAdapter struct {
	fs  afero.Fs
	cfg *config.SyncConfig
	log *slog.Logger
}

func NewFSAdapter(cfg *config.SyncConfig, log *slog.Logger) *fsAdapter {
	return NewFSAdapterWithFS(afero.NewOsFs(), cfg, log)
}

func NewFSAdapterWithFS(fs afero.Fs, cfg *config.SyncConfig, log *slog.Logger) *fsAdapter {
	return &fsAdapter{
		fs:  fs,
		cfg: cfg,
		log: log.With(slog.String("item", "FSAdapter")),
	}
}

func (a *fsAdapter) BranchPath(branch string) string {
	return filepath.Join(a.cfg.BranchesDir, branch)
}

// BranchExists reports whether branch names an existing directory under the
// branches root.
func (a *fsAdapter) BranchExists(branch string) bool {
	if !validName(branch) {
		return false
	}

	return a.dirExists(a.BranchPath(branch))
}

// Branches lists branch directories, skipping hidden ones.
func (a *fsAdapter) Branches() ([]string, error) {
	entries, err := afero.ReadDir(a.fs, a.cfg.BranchesDir)
	if err != nil {
		return nil, err
	}

	var branches []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		branches = append(branches, entry.Name())
	}

	return branches, nil
}

// Collect scans the mod directories of branch. It never fails: a missing branch
// or directory just contributes nothing.
func (a *fsAdapter) Collect(branch string) entity.ModFiles {
	mods := make(entity.ModFiles)

	if !validName(branch) {
		return mods
	}

	branchPath := a.BranchPath(branch)
	for _, dir := range entity.ModDirs {
		for _, mod := range a.collectDir(filepath.Join(branchPath, filepath.FromSlash(dir))) {
			mods[mod.Name] = mod
		}
	}

	return mods
}

func (a *fsAdapter) collectDir(dir string) []entity.ModFile {
	entries, err := afero.ReadDir(a.fs, dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			a.log.Error("Cannot read mod dir", slog.String("path", dir), slog.Any("error", err))
		}

		return nil
	}

	isOptional := filepath.Base(dir) == entity.DirOptional

	var names []string
	for _, entry := range entries {
		if entry.Mode().IsRegular() && entity.IsModName(entry.Name()) {
			names = append(names, entry.Name())
		}
	}

	found := make([]*entity.ModFile, len(names))

	var wg sync.WaitGroup
	wg.Add(len(names))
	for i, name := range names {
		go func() {
			defer wg.Done()

			filePath := filepath.Join(dir, name)
			stat, err := a.fs.Stat(filePath)
			if err != nil {
				a.log.Debug("Cannot stat mod", slog.String("path", filePath), slog.Any("error", err))

				return
			}

			found[i] = &entity.ModFile{
				Name:       name,
				ModDate:    entity.ModDate(stat.ModTime()),
				Size:       stat.Size(),
				IsOptional: isOptional,
			}
		}()
	}
	wg.Wait()

	mods := make([]entity.ModFile, 0, len(found))
	for _, mod := range found {
		if mod != nil {
			mods = append(mods, *mod)
		}
	}

	return mods
}

// ReadDescription returns the description file of branch.
func (a *fsAdapter) ReadDescription(branch string) ([]byte, error) {
	if !validName(branch) || a.cfg.DescFileName == "" {
		return nil, fs.ErrNotExist
	}

	return afero.ReadFile(a.fs, filepath.Join(a.BranchPath(branch), a.cfg.DescFileName))
}

// Open opens a file by its path relative to the branches root.
func (a *fsAdapter) Open(relPath string) (afero.File, error) {
	if strings.Contains(relPath, "..") {
		return nil, fs.ErrNotExist
	}

	return a.fs.Open(filepath.Join(a.cfg.BranchesDir, relPath))
}

func (a *fsAdapter) fileExists(path string) bool {
	stat, err := a.fs.Stat(path)

	return err == nil && stat.Mode().IsRegular()
}

func (a *fsAdapter) dirExists(path string) bool {
	stat, err := a.fs.Stat(path)

	return err == nil && stat.IsDir()
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
