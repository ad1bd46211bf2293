package download

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jgivc/modserver/internal/entity"
	"github.com/jgivc/modserver/internal/util"
	"github.com/spf13/afero"
)

const (
	serviceName = "download"
)

type PathResolver interface {
	GetModPath(branch, mod string) (string, error)
	GetZipPath(branch string) (string, error)
}

type FileOpener interface {
	Open(relPath string) (afero.File, error)
}

type DownloadRepository interface {
	UserExists(ctx context.Context, id string) (bool, error)
	IncFileCounter(ctx context.Context, branch, name string) (int64, error)
}

type downloadService struct {
	paths  PathResolver
	opener FileOpener
	repo   DownloadRepository
	log    *slog.Logger
}

// NewDownloadService builds the service. repo may be nil, then nothing is counted.
func NewDownloadService(paths PathResolver, opener FileOpener, repo DownloadRepository, log *slog.Logger) *downloadService {
	return &downloadService{
		paths:  paths,
		opener: opener,
		repo:   repo,
		log:    log.With(slog.String("service", serviceName)),
	}
}

func (d *downloadService) Mod(ctx context.Context, branch, mod, clientID string) (*entity.Download, error) {
	relPath, err := d.paths.GetModPath(branch, mod)
	if err != nil {
		return nil, err
	}

	download := &entity.Download{Branch: branch, FileName: mod, RelPath: relPath}
	d.count(ctx, download, clientID)

	return download, nil
}

func (d *downloadService) Zip(ctx context.Context, branch, clientID string) (*entity.Download, error) {
	relPath, err := d.paths.GetZipPath(branch)
	if err != nil {
		return nil, err
	}

	download := &entity.Download{Branch: branch, FileName: branch + ".zip", RelPath: relPath}
	d.count(ctx, download, clientID)

	return download, nil
}

func (d *downloadService) Open(download *entity.Download) (afero.File, error) {
	f, err := d.opener.Open(download.RelPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", download.RelPath, err)
	}

	return f, nil
}

// count failures never fail the download.
func (d *downloadService) count(ctx context.Context, download *entity.Download, clientID string) {
	if d.repo == nil {
		return
	}

	exists, err := d.repo.UserExists(ctx, util.GetIDFromParts(clientID, download.Branch, download.FileName))
	if err != nil {
		d.log.Error("Cannot check client", slog.String("client", clientID), slog.Any("error", err))

		return
	}

	if exists {
		return
	}

	counter, err := d.repo.IncFileCounter(ctx, download.Branch, download.FileName)
	if err != nil {
		d.log.Error("Cannot increment counter", slog.String("branch", download.Branch),
			slog.String("name", download.FileName), slog.Any("error", err))

		return
	}

	d.log.Debug("Download counted", slog.String("branch", download.Branch), slog.String("name", download.FileName),
		slog.Int64("counter", counter))
}
