package archive

import (
	"archive/zip"
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/jgivc/modserver/internal/config"
	"github.com/jgivc/modserver/internal/entity"
	"github.com/spf13/afero"
)

const (
	tmpSuffix = ".tmp"
)

var (
	ErrNoBranch      = errors.New("branch does not exist")
	ErrBuildInFlight = errors.New("archive build is already in flight")
	ErrBuildFailed   = errors.New("archive build failed")
)

// archiveBuilder keeps one client archive per branch in sync with the branch
// inventory. At most one build per branch runs at a time.
type archiveBuilder struct {
	fs  afero.Fs
	cfg *config.SyncConfig

	mu       sync.Mutex
	building map[string]struct{}

	log *slog.Logger
}

func NewArchiveBuilder(cfg *config.SyncConfig, log *slog.Logger) *archiveBuilder {
	return NewArchiveBuilderWithFS(afero.NewOsFs(), cfg, log)
}

func NewArchiveBuilderWithFS(fs afero.Fs, cfg *config.SyncConfig, log *slog.Logger) *archiveBuilder {
	return &archiveBuilder{
		fs:       fs,
		cfg:      cfg,
		building: make(map[string]struct{}),
		log:      log.With(slog.String("item", "ArchiveBuilder")),
	}
}

// InFlight reports whether an archive of branch is being written right now.
func (b *archiveBuilder) InFlight(branch string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, exists := b.building[branch]

	return exists
}

func (b *archiveBuilder) tryLock(branch string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.building[branch]; exists {
		return false
	}
	b.building[branch] = struct{}{}

	return true
}

func (b *archiveBuilder) unlock(branch string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.building, branch)
}

func (b *archiveBuilder) branchPath(branch string) string {
	return filepath.Join(b.cfg.BranchesDir, branch)
}

func (b *archiveBuilder) archivePath(branch string) string {
	return filepath.Join(b.branchPath(branch), b.cfg.ArchiveName)
}

func (b *archiveBuilder) branchExists(branch string) bool {
	if branch == "" || strings.ContainsAny(branch, `/\`) || branch == "." || branch == ".." {
		return false
	}

	stat, err := b.fs.Stat(b.branchPath(branch))

	return err == nil && stat.IsDir()
}

// Stat describes the archive of branch as it is on disk now.
func (b *archiveBuilder) Stat(branch string) (entity.ZipData, error) {
	stat, err := b.fs.Stat(b.archivePath(branch))
	if err != nil {
		return entity.ZipData{}, err
	}

	return entity.ZipData{
		Size:      stat.Size(),
		IsPresent: true,
		ModDate:   stat.ModTime(),
	}, nil
}

// ReadManifest lists the mods stored in the archive of branch, with the size and
// modification date recorded for each entry.
func (b *archiveBuilder) ReadManifest(branch string) (entity.ModFiles, error) {
	if !b.branchExists(branch) {
		return nil, ErrNoBranch
	}

	if b.InFlight(branch) {
		return nil, ErrBuildInFlight
	}

	f, err := b.fs.Open(b.archivePath(branch))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	r, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("cannot read archive: %w", err)
	}

	mods := make(entity.ModFiles, len(r.File))
	for _, file := range r.File {
		if !entity.IsModName(file.Name) {
			continue
		}

		mods[file.Name] = entity.ModFile{
			Name:    file.Name,
			ModDate: entity.ModDate(file.Modified),
			Size:    int64(file.UncompressedSize64),
		}
	}

	return mods, nil
}

// Build makes sure the archive of branch holds exactly mods, reusing the archive
// on disk when it already does. cached is the last published state of the
// archive; when it still matches the file on disk the archive is reused without
// reading it. A zero cached value forces the manifest check.
//
// A failed build is logged and reported with a not present ZipData. The caller
// never waits for another build: ErrBuildInFlight is returned right away.
func (b *archiveBuilder) Build(branch string, mods entity.ModFiles, cached entity.ZipData) (entity.ZipData, error) {
	log := b.log.With(slog.String("branch", branch))

	if !b.branchExists(branch) {
		return entity.ZipData{}, ErrNoBranch
	}

	if b.InFlight(branch) {
		return entity.ZipData{}, ErrBuildInFlight
	}

	if cached.IsPresent && cached.Size > 0 {
		if zd, err := b.Stat(branch); err == nil && zd.Size == cached.Size && zd.ModDate.Equal(cached.ModDate) {
			log.Debug("Archive is unchanged")

			return zd, nil
		}
	}

	if manifest, err := b.ReadManifest(branch); err == nil && manifest.Equal(mods) {
		if zd, err := b.Stat(branch); err == nil {
			log.Debug("Archive matches inventory")

			return zd, nil
		}
	}

	if !b.tryLock(branch) {
		return entity.ZipData{}, ErrBuildInFlight
	}
	defer b.unlock(branch)

	log.Info("Build archive", slog.Int("mod_count", len(mods)))

	if err := b.write(branch, mods.Names()); err != nil {
		log.Error("Cannot build archive", slog.Any("error", err))

		return entity.ZipData{}, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	zd, err := b.Stat(branch)
	if err != nil {
		log.Error("Cannot stat archive", slog.Any("error", err))

		return entity.ZipData{}, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	log.Info("Archive built", slog.Int64("size", zd.Size))

	return zd, nil
}

// write streams every expected mod of the branch into a fresh archive, skipping
// the server_only tree. The archive is written next to its final name and moved
// into place only when complete.
func (b *archiveBuilder) write(branch string, expected map[string]struct{}) (err error) {
	branchPath := b.branchPath(branch)
	serverOnlyPath := filepath.Join(branchPath, entity.DirServerOnly)

	// A name found in several mod dirs resolves like Collect does: the later
	// entry of ModDirs wins. Jars elsewhere in the tree rank below all of them.
	type candidate struct {
		path string
		rank int
	}

	chosen := make(map[string]candidate, len(expected))
	walkErr := afero.Walk(b.fs, branchPath, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if info.IsDir() {
			if path == serverOnlyPath {
				return filepath.SkipDir
			}

			return nil
		}

		if !info.Mode().IsRegular() || !entity.IsModName(info.Name()) {
			return nil
		}

		if _, exists := expected[info.Name()]; !exists {
			return nil
		}

		rank := -1
		if rel, err := filepath.Rel(branchPath, filepath.Dir(path)); err == nil {
			rank = slices.Index(entity.ModDirs, filepath.ToSlash(rel))
		}

		if prev, exists := chosen[info.Name()]; !exists || rank >= prev.rank {
			chosen[info.Name()] = candidate{path: path, rank: rank}
		}

		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("cannot walk branch: %w", walkErr)
	}

	paths := make([]string, 0, len(chosen))
	for name, c := range chosen {
		delete(expected, name)
		paths = append(paths, c.path)
	}
	sort.Strings(paths)

	if len(expected) > 0 {
		// TODO: collect again once the inventory and the archive can be built from one scan.
		missing := make([]string, 0, len(expected))
		for name := range expected {
			missing = append(missing, name)
		}
		b.log.Warn("Mods disappeared before archiving", slog.String("branch", branch), slog.Any("mods", missing))
	}

	tmpPath := b.archivePath(branch) + tmpSuffix
	f, err := b.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("cannot create archive: %w", err)
	}

	defer func() {
		if err != nil {
			if rmErr := b.fs.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				b.log.Error("Cannot remove unfinished archive", slog.String("path", tmpPath), slog.Any("error", rmErr))
			}
		}
	}()

	zw := zip.NewWriter(f)
	level := b.cfg.CompressionLevel
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	for _, path := range paths {
		if err = b.add(zw, path); err != nil {
			zw.Close()
			f.Close()

			return err
		}
	}

	if err = zw.Close(); err != nil {
		f.Close()

		return fmt.Errorf("cannot finish archive: %w", err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("cannot close archive: %w", err)
	}

	if err = b.fs.Rename(tmpPath, b.archivePath(branch)); err != nil {
		return fmt.Errorf("cannot move archive in place: %w", err)
	}

	return nil
}

func (b *archiveBuilder) add(zw *zip.Writer, path string) error {
	src, err := b.fs.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer src.Close()

	stat, err := src.Stat()
	if err != nil {
		return fmt.Errorf("cannot stat %s: %w", path, err)
	}

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     filepath.Base(path),
		Method:   zip.Deflate,
		Modified: entity.ModDate(stat.ModTime()),
	})
	if err != nil {
		return fmt.Errorf("cannot add %s: %w", path, err)
	}

	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}

	return nil
}
