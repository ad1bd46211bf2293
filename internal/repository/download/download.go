package download

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jgivc/modserver/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	KeyFileStats      = "fs" // HASH. fs:{branch} mod_name -> counter. Allows atomic increment with HINCRBY.
	KeyUniqueDownload = "dl" // STRING. Cuts off repeated downloads of one file by one client. Set via SETNX with EX (TTL).

	KeySeparator = ":"

	ScanCount                 = 1000
	defaultDownloadExpiration = 24 * time.Hour
)

type downloadRepository struct {
	cl  *redis.Client
	exp time.Duration
	log *slog.Logger
}

func NewDownloadRepository(cl *redis.Client, exp time.Duration, log *slog.Logger) *downloadRepository {
	if exp <= 0 {
		exp = defaultDownloadExpiration
	}

	return &downloadRepository{
		cl:  cl,
		exp: exp,
		log: log.With(slog.String("item", "DownloadRepository")),
	}
}

// UserExists marks id as seen and reports whether it was seen already within
// the expiration period.
func (r *downloadRepository) UserExists(ctx context.Context, id string) (bool, error) {
	res, err := r.cl.SetNX(ctx, getKey(KeyUniqueDownload, id), "1", r.exp).Result()
	if err != nil {
		return false, fmt.Errorf("cannot check user exists: %w", err)
	}

	return !res, nil
}

func (r *downloadRepository) IncFileCounter(ctx context.Context, branch, name string) (int64, error) {
	counter, err := r.cl.HIncrBy(ctx, getKey(KeyFileStats, branch), name, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("cannot increment file %s/%s counter: %w", branch, name, err)
	}

	return counter, nil
}

func (r *downloadRepository) GetBranchCounters(ctx context.Context, branch string) (map[string]int64, error) {
	files, err := r.cl.HGetAll(ctx, getKey(KeyFileStats, branch)).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get branch %s counters: %w", branch, err)
	}

	return r.parseCounters(branch, files), nil
}

func (r *downloadRepository) parseCounters(branch string, files map[string]string) map[string]int64 {
	counters := make(map[string]int64, len(files))
	for name, value := range files {
		c, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			r.log.Error("Cannot convert counter to int", slog.String("branch", branch), slog.String("name", name),
				slog.Any("error", err))

			continue
		}

		counters[name] = c
	}

	return counters
}

// CounterIterator walks the counters of every branch that has any.
func (r *downloadRepository) CounterIterator(ctx context.Context) (iter.Seq2[*entity.BranchCounters, error], error) {
	pattern := getKey(KeyFileStats, "*")

	var (
		cursor uint64
		keys   []string
	)

	for {
		page, nextCursor, err := r.cl.Scan(ctx, cursor, pattern, ScanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("error scanning keys: %w", err)
		}

		keys = append(keys, page...)

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return func(yield func(*entity.BranchCounters, error) bool) {
		for _, key := range keys {
			branch := strings.TrimPrefix(key, KeyFileStats+KeySeparator)

			files, err := r.cl.HGetAll(ctx, key).Result()
			if err != nil {
				yield(nil, fmt.Errorf("cannot get branch %s counters: %w", branch, err))

				return
			}

			bc := &entity.BranchCounters{Branch: branch}
			for name, counter := range r.parseCounters(branch, files) {
				bc.Files = append(bc.Files, entity.FileCounter{Name: name, Counter: counter})
			}

			if !yield(bc, nil) {
				return
			}
		}
	}, nil
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
