package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jgivc/modserver/internal/adapter/fsadapter"
	"github.com/jgivc/modserver/internal/adapter/mdadapter"
	"github.com/jgivc/modserver/internal/adapter/tpladapter"
	"github.com/jgivc/modserver/internal/config"
	httphandler "github.com/jgivc/modserver/internal/handler/http"
	"github.com/jgivc/modserver/internal/repository/download"
	"github.com/jgivc/modserver/internal/service/branch"
	"github.com/jgivc/modserver/internal/service/counter"
	srvdownload "github.com/jgivc/modserver/internal/service/download"
	"github.com/jgivc/modserver/internal/service/page"
	"github.com/jgivc/modserver/internal/storage/archive"
	"github.com/jgivc/modserver/internal/storage/index"
	"github.com/jgivc/modserver/internal/storage/registry"
	"github.com/jgivc/modserver/internal/watcher"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

const (
	collectTimeout  = 5 * time.Minute
	dumpTimeout     = 5 * time.Second
	shutdownTimeout = 5 * time.Second

	debugLogFileName = "debug.log"
	logFileLayout    = "2006-01-02_15-04-05"
)

type downloadRepository interface {
	srvdownload.DownloadRepository
	counter.CounterRepository
}

type App struct {
	cfgPath  string
	cfg      *config.Config
	srv      *http.Server
	branches *branch.BranchService
	counters interface {
		DumpCounters(ctx context.Context, fileName string) error
	}
	watcher *watcher.Watcher
	rdb     *redis.Client
	logFile io.Closer
	cancel  context.CancelFunc
	log     *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

// Start loads the config, collects every branch and starts the watcher and the
// HTTP server. The server runs in the background; listen errors end the process.
func (a *App) Start() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := a.newLogger()
	if err != nil {
		return err
	}
	a.log = log

	for _, dir := range []string{a.cfg.SyncConfig.BranchesDir, a.cfg.StaticDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}

	var drepo downloadRepository
	if a.cfg.CountersEnabled() {
		opt, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("cannot parse redis url: %w", err)
		}

		a.rdb = redis.NewClient(opt)
		if _, err := a.rdb.Ping(context.Background()).Result(); err != nil {
			return fmt.Errorf("cannot reach redis: %w", err)
		}

		drepo = download.NewDownloadRepository(a.rdb, a.cfg.DownloadExpiration, log)
	} else {
		log.Info("Download counters are disabled")
	}

	osFs := afero.NewOsFs()
	fsa := fsadapter.NewFSAdapterWithFS(osFs, &a.cfg.SyncConfig, log)
	builder := archive.NewArchiveBuilderWithFS(osFs, &a.cfg.SyncConfig, log)
	store := index.NewIndexStorage(fsa, &a.cfg.SyncConfig, log)
	a.branches = branch.NewBranchService(fsa, builder, store, registry.New(), &a.cfg.SyncConfig, log)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	collectCtx, collectCancel := context.WithTimeout(ctx, collectTimeout)
	defer collectCancel()

	started := time.Now()
	if err := a.branches.CollectAll(collectCtx); err != nil {
		return fmt.Errorf("cannot collect branches: %w", err)
	}
	log.Info("Branches collected", slog.Int("count", len(a.branches.GetBranchNames())),
		slog.Duration("took", time.Since(started)))

	a.watcher = watcher.New(&a.cfg.SyncConfig, a.branches, log)
	if err := a.watcher.Start(ctx); err != nil {
		return fmt.Errorf("cannot watch %s: %w", a.cfg.SyncConfig.BranchesDir, err)
	}

	tpl, err := tpladapter.NewTplAdapter(osFs, a.cfg.PageTemplate)
	if err != nil {
		return err
	}

	pSrv := page.NewPageService(a.cfg.URLPrefix, a.branches, fsa, mdadapter.NewRenderer(), tpl, log)

	dSrv := srvdownload.NewDownloadService(a.branches, fsa, drepo, log)
	cSrv := counter.NewCounterService(drepo, osFs, log)
	a.counters = cSrv

	a.srv = &http.Server{
		Addr:    a.cfg.Listen,
		Handler: a.routes(dSrv, cSrv, pSrv),
	}

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()

	return nil
}

func (a *App) routes(dSrv httphandler.DownloadService, cSrv httphandler.CounterService, pSrv httphandler.PageService) http.Handler {
	prefix := a.cfg.URLPrefix
	log := a.log
	dcfg := &httphandler.DownloadConfig{
		RedirectHeader: a.cfg.RedirectHeader,
		RedirectPrefix: a.cfg.RedirectPrefix,
	}

	api := func(h http.Handler) http.Handler { return httphandler.NewLogMiddleware(httphandler.TagAPI, h, log) }
	pg := func(h http.Handler) http.Handler { return httphandler.NewLogMiddleware(httphandler.TagPage, h, log) }

	mux := http.NewServeMux()
	mux.Handle("GET "+prefix+"/api/mods", api(httphandler.NewBranchNamesHandler(a.branches, log)))
	mux.Handle("GET "+prefix+"/api/mods/{branch}", api(httphandler.NewBranchHandler(a.branches, log)))
	mux.Handle("GET "+prefix+"/api/stats/{branch}", api(httphandler.NewCounterHandler(cSrv, log)))

	// Old clients ask /api{prefix}/mods, which only differs when there is a prefix.
	if prefix != "" {
		mux.Handle("GET /api"+prefix+"/mods", api(httphandler.NewBranchNamesHandler(a.branches, log)))
		mux.Handle("GET /api"+prefix+"/mods/{branch}", api(httphandler.NewLegacyBranchHandler(a.branches, log)))
	}

	mux.Handle("GET "+prefix+"/mods", pg(httphandler.NewPageHandler(pSrv, log)))
	mux.Handle("GET "+prefix+"/mods/{branch}", pg(httphandler.NewZipHandler(dcfg, dSrv, log)))
	mux.Handle("GET "+prefix+"/mods/{branch}/{mod}", pg(httphandler.NewModHandler(dcfg, dSrv, log)))
	mux.Handle("GET "+prefix+"/static/", http.StripPrefix(prefix+"/static/", http.FileServer(http.Dir(a.cfg.StaticDir))))

	return mux
}

func (a *App) newLogger() (*slog.Logger, error) {
	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		return nil, fmt.Errorf("unknown log level: %s", a.cfg.LogLevel)
	}

	var out io.Writer = os.Stderr

	if a.cfg.LogsDir != "" {
		if err := os.MkdirAll(a.cfg.LogsDir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create logs dir: %w", err)
		}

		name := a.cfg.LogFileName
		if name == "" {
			if a.cfg.LogLevel == config.LogLevelDebug {
				name = debugLogFileName
			} else {
				name = time.Now().Format(logFileLayout) + ".log"
			}
		}

		f, err := os.OpenFile(filepath.Join(a.cfg.LogsDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("cannot open log file: %w", err)
		}

		a.logFile = f
		out = io.MultiWriter(os.Stderr, f)
	}

	return slog.New(slog.NewTextHandler(out, lo)), nil
}

// Resync kicks every known branch through its debounce handle.
func (a *App) Resync() {
	a.log.Info("Resync requested")
	a.branches.ResyncAll()
}

func (a *App) Dump() {
	ctx, cancel := context.WithTimeout(context.Background(), dumpTimeout)
	defer cancel()

	if err := a.counters.DumpCounters(ctx, a.cfg.DumpFileName); err != nil {
		a.log.Error("Cannot dump counters", slog.Any("error", err))
	}
}

func (a *App) Stop() {
	if a.watcher != nil {
		a.watcher.Stop()
	}

	if a.branches != nil {
		a.branches.Stop()
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.srv.Shutdown(ctx); err != nil {
			a.log.Error("Cannot shutdown server", slog.Any("error", err))
		}
	}

	if a.rdb != nil {
		_ = a.rdb.Close()
	}

	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
