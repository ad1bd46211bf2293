package archive

import (
	"archive/zip"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jgivc/modserver/internal/adapter/fsadapter"
	"github.com/jgivc/modserver/internal/config"
	"github.com/jgivc/modserver/internal/entity"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRoot   = "/branches"
	testBranch = "main"
)

type fixture struct {
	fs      afero.Fs
	cfg     *config.SyncConfig
	builder *archiveBuilder
	log     *slog.Logger
}

func newFixture(t *testing.T, fs afero.Fs) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.SyncConfig.BranchesDir = testRoot

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	return &fixture{
		fs:      fs,
		cfg:     &cfg.SyncConfig,
		builder: NewArchiveBuilderWithFS(fs, &cfg.SyncConfig, log),
		log:     log,
	}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()

	path := filepath.Join(testRoot, rel)
	require.NoError(t, f.fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(f.fs, path, []byte(content), 0o644))
}

func (f *fixture) collect(branch string) entity.ModFiles {
	return fsadapter.NewFSAdapterWithFS(f.fs, f.cfg, f.log).Collect(branch)
}

func (f *fixture) archiveNames(t *testing.T) []string {
	t.Helper()

	file, err := f.fs.Open(filepath.Join(testRoot, testBranch, f.cfg.ArchiveName))
	require.NoError(t, err)
	defer file.Close()

	stat, err := file.Stat()
	require.NoError(t, err)

	r, err := zip.NewReader(file, stat.Size())
	require.NoError(t, err)

	var names []string
	for _, zf := range r.File {
		names = append(names, zf.Name)
	}

	return names
}

func seedBranch(t *testing.T, f *fixture) {
	t.Helper()

	f.write(t, testBranch+"/both/b.jar", "both")
	f.write(t, testBranch+"/both/optional/ob.jar", "both optional")
	f.write(t, testBranch+"/client_only/c.jar", "client")
	f.write(t, testBranch+"/client_only/optional/oc.jar", "client optional")
	f.write(t, testBranch+"/server_only/s.jar", "server")
	f.write(t, testBranch+"/server_only/sub/s2.jar", "server")
	f.write(t, testBranch+"/both/notes.txt", "not a mod")
}

func TestBuildMissingBranch(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())

	for _, branch := range []string{"", "missing", ".."} {
		zd, err := f.builder.Build(branch, entity.ModFiles{}, entity.ZipData{})
		require.ErrorIs(t, err, ErrNoBranch)
		assert.Equal(t, entity.ZipData{}, zd)
	}
}

func TestBuildSkipsServerOnly(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	seedBranch(t, f)

	mods := f.collect(testBranch)
	require.Len(t, mods, 4)

	zd, err := f.builder.Build(testBranch, mods, entity.ZipData{})
	require.NoError(t, err)
	assert.True(t, zd.IsPresent)
	assert.Positive(t, zd.Size)

	assert.ElementsMatch(t, []string{"b.jar", "ob.jar", "c.jar", "oc.jar"}, f.archiveNames(t))

	exists, err := afero.Exists(f.fs, filepath.Join(testRoot, testBranch, f.cfg.ArchiveName+tmpSuffix))
	require.NoError(t, err)
	assert.False(t, exists, "temp archive must be moved in place")
}

func TestManifestMatchesInventory(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	seedBranch(t, f)

	mods := f.collect(testBranch)
	_, err := f.builder.Build(testBranch, mods, entity.ZipData{})
	require.NoError(t, err)

	manifest, err := f.builder.ReadManifest(testBranch)
	require.NoError(t, err)
	assert.True(t, manifest.Equal(mods))
	assert.EqualValues(t, len("client optional"), manifest["oc.jar"].Size)
}

func TestBuildReusesUnchangedArchive(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	seedBranch(t, f)

	mods := f.collect(testBranch)
	_, err := f.builder.Build(testBranch, mods, entity.ZipData{})
	require.NoError(t, err)

	// Pin the archive date, a rewrite would move it to now.
	old := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	archivePath := filepath.Join(testRoot, testBranch, f.cfg.ArchiveName)
	require.NoError(t, f.fs.Chtimes(archivePath, old, old))

	zd, err := f.builder.Build(testBranch, f.collect(testBranch), entity.ZipData{})
	require.NoError(t, err)
	assert.True(t, zd.IsPresent)
	assert.True(t, zd.ModDate.Equal(old))

	// and again through the cached fast path
	zd, err = f.builder.Build(testBranch, f.collect(testBranch), zd)
	require.NoError(t, err)
	assert.True(t, zd.ModDate.Equal(old))
}

func TestBuildDuplicateNameFollowsInventory(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	seedBranch(t, f)
	f.write(t, testBranch+"/both/dup.jar", "aa")
	f.write(t, testBranch+"/client_only/optional/dup.jar", "bbbb")

	mods := f.collect(testBranch)
	require.EqualValues(t, 4, mods["dup.jar"].Size)

	_, err := f.builder.Build(testBranch, mods, entity.ZipData{})
	require.NoError(t, err)

	manifest, err := f.builder.ReadManifest(testBranch)
	require.NoError(t, err)
	assert.EqualValues(t, 4, manifest["dup.jar"].Size)
	assert.True(t, manifest.Equal(mods))

	old := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	archivePath := filepath.Join(testRoot, testBranch, f.cfg.ArchiveName)
	require.NoError(t, f.fs.Chtimes(archivePath, old, old))

	zd, err := f.builder.Build(testBranch, f.collect(testBranch), entity.ZipData{})
	require.NoError(t, err)
	assert.True(t, zd.ModDate.Equal(old), "unchanged branch must reuse its archive")
}

func TestBuildRebuildsStaleArchive(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	seedBranch(t, f)

	_, err := f.builder.Build(testBranch, f.collect(testBranch), entity.ZipData{})
	require.NoError(t, err)

	old := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	archivePath := filepath.Join(testRoot, testBranch, f.cfg.ArchiveName)
	require.NoError(t, f.fs.Chtimes(archivePath, old, old))

	f.write(t, testBranch+"/both/new.jar", "new mod")

	zd, err := f.builder.Build(testBranch, f.collect(testBranch), entity.ZipData{})
	require.NoError(t, err)
	assert.True(t, zd.IsPresent)
	assert.False(t, zd.ModDate.Equal(old))
	assert.Contains(t, f.archiveNames(t), "new.jar")
}

func TestBuildInFlight(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	seedBranch(t, f)

	require.True(t, f.builder.tryLock(testBranch))
	assert.True(t, f.builder.InFlight(testBranch))
	assert.False(t, f.builder.tryLock(testBranch))

	zd, err := f.builder.Build(testBranch, f.collect(testBranch), entity.ZipData{})
	require.ErrorIs(t, err, ErrBuildInFlight)
	assert.False(t, zd.IsPresent)

	_, err = f.builder.ReadManifest(testBranch)
	require.ErrorIs(t, err, ErrBuildInFlight)

	f.builder.unlock(testBranch)
	assert.False(t, f.builder.InFlight(testBranch))

	zd, err = f.builder.Build(testBranch, f.collect(testBranch), entity.ZipData{})
	require.NoError(t, err)
	assert.True(t, zd.IsPresent)
}

func TestBuildSkipsVanishedMods(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	seedBranch(t, f)

	mods := f.collect(testBranch)
	mods["gone.jar"] = entity.ModFile{Name: "gone.jar", Size: 1}

	zd, err := f.builder.Build(testBranch, mods, entity.ZipData{})
	require.NoError(t, err)
	assert.True(t, zd.IsPresent)
	assert.NotContains(t, f.archiveNames(t), "gone.jar")
}

// brokenJarFs fails to open any jar, so every build with mods fails.
type brokenJarFs struct {
	afero.Fs
}

func (b brokenJarFs) Open(name string) (afero.File, error) {
	if strings.HasSuffix(name, entity.ModExt) {
		return nil, os.ErrPermission
	}

	return b.Fs.Open(name)
}

func TestBuildFailureLeavesNoArchive(t *testing.T) {
	mem := afero.NewMemMapFs()
	f := newFixture(t, brokenJarFs{mem})
	seedBranch(t, f)

	zd, err := f.builder.Build(testBranch, f.collect(testBranch), entity.ZipData{})
	require.ErrorIs(t, err, ErrBuildFailed)
	assert.False(t, zd.IsPresent)
	assert.False(t, f.builder.InFlight(testBranch), "lock must be released")

	for _, name := range []string{f.cfg.ArchiveName, f.cfg.ArchiveName + tmpSuffix} {
		exists, err := afero.Exists(mem, filepath.Join(testRoot, testBranch, name))
		require.NoError(t, err)
		assert.False(t, exists, name)
	}
}
