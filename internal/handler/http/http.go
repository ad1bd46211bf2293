package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path"

	"github.com/google/uuid"
	"github.com/jgivc/modserver/internal/common"
	"github.com/jgivc/modserver/internal/entity"
	"github.com/spf13/afero"
)

const (
	headerRequestID = "X-Request-Id"
	headerRealIP    = "X-Real-Ip"

	TagAPI  = "API"
	TagPage = "PAGE"
)

type BranchService interface {
	GetBranchNames() []string
	GetBranch(name string) (*entity.BranchData, error)
}

type PageService interface {
	BranchList() (string, error)
}

type CounterService interface {
	GetBranchCounters(ctx context.Context, branch string) (*entity.BranchCounters, error)
}

type DownloadService interface {
	Mod(ctx context.Context, branch, mod, clientID string) (*entity.Download, error)
	Zip(ctx context.Context, branch, clientID string) (*entity.Download, error)
	Open(download *entity.Download) (afero.File, error)
}

// DownloadConfig selects between serving the body and handing the file to a reverse proxy.
type DownloadConfig struct {
	RedirectHeader string
	RedirectPrefix string
}

func NewBranchNamesHandler(srv BranchService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "BranchNamesHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, srv.GetBranchNames(), log)
	}
}

func NewBranchHandler(srv BranchService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "BranchHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		data, err := srv.GetBranch(r.PathValue("branch"))
		if err != nil {
			writeError(w, err, log)

			return
		}

		writeJSON(w, data, log)
	}
}

// NewLegacyBranchHandler answers with mod names only.
func NewLegacyBranchHandler(srv BranchService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "LegacyBranchHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		data, err := srv.GetBranch(r.PathValue("branch"))
		if err != nil {
			writeError(w, err, log)

			return
		}

		names := make([]string, 0, len(data.Mods))
		for _, mod := range data.Mods {
			names = append(names, mod.Name)
		}

		writeJSON(w, names, log)
	}
}

func NewPageHandler(srv PageService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "PageHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		content, err := srv.BranchList()
		if err != nil {
			writeError(w, err, log)

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(content))
	}
}

func NewCounterHandler(srv CounterService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "CounterHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		counters, err := srv.GetBranchCounters(r.Context(), r.PathValue("branch"))
		if err != nil {
			if errors.Is(err, common.ErrCountersDisabled) {
				http.Error(w, err.Error(), http.StatusNotImplemented)

				return
			}

			writeError(w, err, log)

			return
		}

		writeJSON(w, counters, log)
	}
}

func NewZipHandler(cfg *DownloadConfig, srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ZipHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		download, err := srv.Zip(r.Context(), r.PathValue("branch"), ClientIP(r))
		if err != nil {
			writeError(w, err, log)

			return
		}

		serveDownload(w, r, cfg, srv, download, log)
	}
}

func NewModHandler(cfg *DownloadConfig, srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ModHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		download, err := srv.Mod(r.Context(), r.PathValue("branch"), r.PathValue("mod"), ClientIP(r))
		if err != nil {
			writeError(w, err, log)

			return
		}

		serveDownload(w, r, cfg, srv, download, log)
	}
}

func serveDownload(w http.ResponseWriter, r *http.Request, cfg *DownloadConfig, srv DownloadService, download *entity.Download, log *slog.Logger) {
	disposition := "attachment;filename=" + download.FileName

	if cfg.RedirectHeader != "" {
		w.Header().Set("Content-Disposition", disposition)
		w.Header().Set(cfg.RedirectHeader, path.Join("/", cfg.RedirectPrefix, download.RelPath))

		return
	}

	f, err := srv.Open(download)
	if err != nil {
		writeError(w, err, log)

		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		writeError(w, err, log)

		return
	}

	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("ETag", fmt.Sprintf(`"%x-%x"`, stat.ModTime().Unix(), stat.Size()))
	http.ServeContent(w, r, download.FileName, stat.ModTime(), f)
}

// NewLogMiddleware logs each request under tag and stamps it with a request id.
func NewLogMiddleware(tag string, next http.Handler, log *slog.Logger) http.Handler {
	log = log.With(slog.String("tag", tag))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(headerRequestID, id)

		log.Info("Request", slog.String("request_id", id), slog.String("ip", ClientIP(r)),
			slog.String("method", r.Method), slog.String("path", r.URL.Path))

		next.ServeHTTP(w, r)
	})
}

// ClientIP prefers the address set by the reverse proxy.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get(headerRealIP); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func writeJSON(w http.ResponseWriter, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Cannot encode response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, err error, log *slog.Logger) {
	if errors.Is(err, common.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)

		return
	}

	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "file not found", http.StatusNotFound)

		return
	}

	log.Error("Request failed", slog.Any("error", err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
