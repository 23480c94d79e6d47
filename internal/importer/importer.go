// internal/importer/importer.go

// Package importer discovers repositories from GH Archive hour files. Each
// file is a gzip of JSON event lines; every event names the repository it
// happened on, and each distinct name becomes a sync job for the GitHub host.
package importer

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
	"forge-sync/internal/queue"
)

const (
	DefaultBaseURL  = "https://data.gharchive.org"
	DefaultHostName = "GitHub"

	maxEventSize = 16 << 20
)

// ErrQueueFull ends an import early when the sync queue reaches its ceiling.
// The file stays unimported so a later run picks up the remaining names.
var ErrQueueFull = errors.New("sync queue at capacity")

// Store is the persistence the importer needs.
type Store interface {
	GetHostByName(ctx context.Context, name string) (model.Host, error)
	GetImportByFilename(ctx context.Context, filename string) (model.Import, error)
	SaveImport(ctx context.Context, i *model.Import) error
}

// Importer downloads archive hours and queues syncs for their repositories.
type Importer struct {
	store    Store
	queue    queue.Queue
	http     *http.Client
	logger   *slog.Logger
	baseURL  string
	hostName string
	ceiling  int64
}

// New returns an Importer reading from the public archive and queueing for
// the GitHub host. A nil httpClient gets a five minute timeout.
func New(store Store, q queue.Queue, httpClient *http.Client, logger *slog.Logger) *Importer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Importer{
		store:    store,
		queue:    q,
		http:     httpClient,
		logger:   logger,
		baseURL:  DefaultBaseURL,
		hostName: DefaultHostName,
	}
}

// WithBaseURL points the importer at a mirror of the archive.
func (i *Importer) WithBaseURL(baseURL string) *Importer {
	i.baseURL = strings.TrimSuffix(baseURL, "/")
	return i
}

// WithHostName selects the host whose syncs are queued.
func (i *Importer) WithHostName(name string) *Importer {
	i.hostName = name
	return i
}

// WithCeiling caps the sync queue depth the importer fills up to. Zero or
// less means uncapped.
func (i *Importer) WithCeiling(n int64) *Importer {
	i.ceiling = n
	return i
}

// Filename returns the archive file covering the hour containing t.
func Filename(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s-%d.json.gz", t.Format("2006-01-02"), t.Hour())
}

// ImportRecent imports the hours preceding now, oldest first. An hour is
// published some time after it ends, so the current hour is never included.
func (i *Importer) ImportRecent(ctx context.Context, now time.Time, hours int) error {
	var errs []error
	for h := hours; h >= 1; h-- {
		if _, err := i.Import(ctx, Filename(now.Add(-time.Duration(h)*time.Hour))); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Import processes one archive file and records the outcome in the import
// ledger. Files already imported successfully are skipped.
func (i *Importer) Import(ctx context.Context, filename string) (*model.Import, error) {
	logger := i.logger.With("filename", filename)

	existing, err := i.store.GetImportByFilename(ctx, filename)
	switch {
	case err == nil && existing.Success:
		logger.Debug("Already imported, skipping")
		return &existing, nil
	case err != nil && !errors.Is(err, custom_errors.ErrRecordNotFound):
		return nil, fmt.Errorf("reading import ledger: %w", err)
	}

	h, err := i.store.GetHostByName(ctx, i.hostName)
	if err != nil {
		return nil, fmt.Errorf("looking up host %s: %w", i.hostName, err)
	}

	record := &model.Import{Filename: filename}
	events, names, err := i.fetch(ctx, filename)
	record.EventsCount = events
	if err == nil {
		record.RepositoriesCount, err = i.enqueue(ctx, logger, h, names)
	}
	if err != nil {
		record.Error = err.Error()
		if saveErr := i.store.SaveImport(context.WithoutCancel(ctx), record); saveErr != nil {
			logger.Error("Failed to record import", "error", saveErr)
		}
		return record, fmt.Errorf("importing %s: %w", filename, err)
	}

	record.Success = true
	if err := i.store.SaveImport(ctx, record); err != nil {
		return record, fmt.Errorf("recording import %s: %w", filename, err)
	}
	logger.Info("Archive imported", "events", record.EventsCount, "repositories", record.RepositoriesCount)
	return record, nil
}

func (i *Importer) enqueue(ctx context.Context, logger *slog.Logger, h model.Host, names []string) (int, error) {
	room := int64(-1)
	if i.ceiling > 0 {
		depth, err := i.queue.Depth(ctx, queue.KindSyncRepository)
		if err != nil {
			return 0, fmt.Errorf("queue depth of %s: %w", queue.KindSyncRepository, err)
		}
		room = max(i.ceiling-depth, 0)
	}

	n := 0
	for _, name := range names {
		if room >= 0 && int64(n) >= room {
			logger.Warn("Queue at capacity, stopping import", "job_kind", queue.KindSyncRepository,
				"ceiling", i.ceiling, "enqueued", n, "repositories", len(names))
			return n, fmt.Errorf("%w after %d of %d repositories", ErrQueueFull, n, len(names))
		}
		added, err := i.queue.EnqueueUnique(ctx, queue.SyncRepositoryJob(h.Name, name), queue.UniqueTTL)
		if err != nil {
			return n, fmt.Errorf("enqueueing sync of %s: %w", name, err)
		}
		if added {
			n++
		}
	}
	return n, nil
}

// fetch downloads filename and returns its event count and the distinct
// repository names in first-seen order.
func (i *Importer) fetch(ctx context.Context, filename string) (int, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+"/"+filename, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := i.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("downloading %s: %w", filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, nil, custom_errors.NewStatusError("gharchive", resp.StatusCode, nil)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	defer gz.Close()

	return scanEvents(gz)
}

func scanEvents(r io.Reader) (int, []string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	events := 0
	seen := make(map[string]struct{})
	var names []string
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		events++
		name := gjson.GetBytes(line, "repo.name").String()
		if _, _, err := model.SplitFullName(name); err != nil {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return events, names, fmt.Errorf("reading events: %w", err)
	}
	return events, names, nil
}
