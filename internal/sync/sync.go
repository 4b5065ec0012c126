package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"

	"anythingllm-sync/internal/api"
	"anythingllm-sync/pkg/models"
)

// tsLayout is the granularity at which modification times are
// compared: whole seconds. Equal-or-older counts as unchanged.
const tsLayout = "20060102150405"

// Ledger is the document tracking store the engine reconciles
// against. Satisfied by *db.DB.
type Ledger interface {
	Upsert(doc models.TrackedDocument) error
	Delete(localPath string) error
	List() ([]models.TrackedDocument, error)
	Clear() error
}

// RemoteStore is the document/workspace API surface the engine
// drives. Satisfied by *api.Client. The engine never retries a failed
// call within a run.
type RemoteStore interface {
	Upload(ctx context.Context, path string) (*models.UploadResult, error)
	Embed(ctx context.Context, location string) error
	Unembed(ctx context.Context, location string) error
	Unload(ctx context.Context, location string) error
	ListEmbedded(ctx context.Context) (map[string]struct{}, error)
	UnembedAll(ctx context.Context, locations []string) error
	RemoveRaw(ctx context.Context, locations []string) error
}

// Scanner yields the desired set of local files.
type Scanner interface {
	Scan() ([]models.DesiredFile, error)
}

// SyncerConfig holds tuning knobs for the engine.
type SyncerConfig struct {
	// EmbedPause is slept after every embed call so the remote
	// vector-indexing pipeline is not flooded.
	EmbedPause time.Duration
	// ShowProgress draws a progress bar over the upload phase.
	ShowProgress bool
}

// DefaultSyncerConfig returns the default engine configuration.
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		EmbedPause: 500 * time.Millisecond,
	}
}

// Syncer reconciles three views of the document corpus: the local
// filesystem, the tracking ledger and the remote workspace. Phases
// run strictly in order, one item at a time; the remote store is a
// shared, rate-sensitive resource, so nothing here is parallel.
type Syncer struct {
	ledger  Ledger
	remote  RemoteStore
	scanner Scanner
	logger  *zap.SugaredLogger
	config  SyncerConfig
}

// NewSyncer creates an engine instance.
func NewSyncer(ledger Ledger, remote RemoteStore, scanner Scanner, logger *zap.SugaredLogger, config *SyncerConfig) *Syncer {
	if config == nil {
		defaultConfig := DefaultSyncerConfig()
		config = &defaultConfig
	}
	return &Syncer{
		ledger:  ledger,
		remote:  remote,
		scanner: scanner,
		logger:  logger,
		config:  *config,
	}
}

// Run executes one full reconciliation: uploads, embeds, unembeds,
// unloads, in that order. Uploads must precede embeds; unembeds must
// precede unloads so the workspace never keeps an embedding for a raw
// document this run deletes. Per-item failures are logged and become
// eligible for retry on the next invocation; only scan and ledger
// faults abort the run. Every mutation touches a single record, so an
// interrupted run is always a valid starting point for the next one.
func (s *Syncer) Run(ctx context.Context) (*models.Report, error) {
	start := time.Now()
	report := &models.Report{}

	desiredFiles, err := s.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("local scan failed: %w", err)
	}
	report.Scanned = len(desiredFiles)

	desired := make(map[string]models.DesiredFile, len(desiredFiles))
	for _, f := range desiredFiles {
		desired[f.Path] = f
	}

	if err := s.reconcileUploads(ctx, desiredFiles, report); err != nil {
		return report, err
	}
	if err := s.reconcileEmbeddings(ctx, report); err != nil {
		return report, err
	}
	if err := s.reconcileUnembeds(ctx, desired, report); err != nil {
		return report, err
	}
	if err := s.reconcileUnloads(ctx, desired, report); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	return report, nil
}

// reconcileUploads uploads every desired file that is untracked or
// whose mtime moved past the tracked sync time. A changed file gets a
// brand-new remote artifact and the ledger row is overwritten; the
// prior artifact is not cleaned up here (see reconcileUnloads, which
// keys on desired-set membership only).
func (s *Syncer) reconcileUploads(ctx context.Context, desired []models.DesiredFile, report *models.Report) error {
	tracked, err := s.ledger.List()
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	byPath := make(map[string]models.TrackedDocument, len(tracked))
	for _, doc := range tracked {
		byPath[doc.LocalPath] = doc
	}

	sort.Slice(desired, func(i, j int) bool { return desired[i].Path < desired[j].Path })

	var bar *pb.ProgressBar
	if s.config.ShowProgress && len(desired) > 0 {
		bar = pb.StartNew(len(desired))
		defer bar.Finish()
	}

	for _, file := range desired {
		if bar != nil {
			bar.Increment()
		}

		doc, known := byPath[file.Path]
		if known && !changedSince(file.ModTime, doc.SyncedAt) {
			continue
		}
		if known {
			s.logger.Infow("file changed, re-uploading", "path", file.Path)
		} else {
			s.logger.Infow("uploading new document", "path", file.Path)
		}

		result, err := s.remote.Upload(ctx, file.Path)
		if err != nil {
			if errors.Is(err, api.ErrUnsupportedFileType) || errors.Is(err, api.ErrEmptyFile) {
				s.logger.Debugw("skipped", "path", file.Path, "reason", err)
				report.Skipped++
				continue
			}
			s.logger.Warnw("upload failed", "path", file.Path, "error", err)
			report.UploadErrors++
			continue
		}

		// Synced-at is the scan-time mtime, not upload completion:
		// an edit racing the upload shows up as changed next run.
		err = s.ledger.Upsert(models.TrackedDocument{
			LocalPath:      file.Path,
			SyncedAt:       file.ModTime,
			RemoteLocation: result.Location,
			Metadata:       result.Metadata,
		})
		if err != nil {
			return fmt.Errorf("failed to record upload of %s: %w", file.Path, err)
		}
		report.Uploaded++
	}
	return nil
}

// changedSince compares modification times at second granularity.
func changedSince(mtime, syncedAt time.Time) bool {
	return mtime.UTC().Format(tsLayout) > syncedAt.UTC().Format(tsLayout)
}

// reconcileEmbeddings embeds every tracked document missing from the
// workspace index: fresh uploads and earlier embed failures alike.
func (s *Syncer) reconcileEmbeddings(ctx context.Context, report *models.Report) error {
	tracked, err := s.ledger.List()
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	embedded, err := s.remote.ListEmbedded(ctx)
	if err != nil {
		return fmt.Errorf("failed to list embedded documents: %w", err)
	}

	for _, doc := range tracked {
		if _, ok := embedded[doc.RemoteLocation]; ok {
			continue
		}
		s.logger.Infow("embedding document", "location", doc.RemoteLocation)
		if err := s.remote.Embed(ctx, doc.RemoteLocation); err != nil {
			s.logger.Warnw("embed failed", "location", doc.RemoteLocation, "error", err)
			report.EmbedErrors++
		} else {
			report.Embedded++
		}

		// Serialize calls; the vector-indexing pipeline chokes on
		// back-to-back embeds.
		if s.config.EmbedPause > 0 {
			select {
			case <-time.After(s.config.EmbedPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// reconcileUnembeds removes workspace embeddings that no longer map
// to a desired local file, including orphans with no ledger record.
func (s *Syncer) reconcileUnembeds(ctx context.Context, desired map[string]models.DesiredFile, report *models.Report) error {
	tracked, err := s.ledger.List()
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	byLocation := make(map[string]models.TrackedDocument, len(tracked))
	for _, doc := range tracked {
		byLocation[doc.RemoteLocation] = doc
	}

	embedded, err := s.remote.ListEmbedded(ctx)
	if err != nil {
		return fmt.Errorf("failed to list embedded documents: %w", err)
	}
	locations := make([]string, 0, len(embedded))
	for loc := range embedded {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	for _, loc := range locations {
		doc, known := byLocation[loc]
		if known {
			if _, stillDesired := desired[doc.LocalPath]; stillDesired {
				continue
			}
			s.logger.Infow("unembedding removed document", "location", loc, "path", doc.LocalPath)
		} else {
			s.logger.Infow("unembedding orphan document", "location", loc)
		}

		if err := s.remote.Unembed(ctx, loc); err != nil {
			s.logger.Warnw("unembed failed", "location", loc, "error", err)
			report.UnembedErrors++
			continue
		}
		report.Unembedded++
	}
	return nil
}

// reconcileUnloads deletes raw uploads for files gone locally. The
// ledger row is the only pointer to the remote artifact, so it is
// removed only once the remote confirms the delete; a failed unload
// keeps the row and retries next run.
func (s *Syncer) reconcileUnloads(ctx context.Context, desired map[string]models.DesiredFile, report *models.Report) error {
	tracked, err := s.ledger.List()
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	for _, doc := range tracked {
		if _, ok := desired[doc.LocalPath]; ok {
			continue
		}
		s.logger.Infow("unloading removed document", "location", doc.RemoteLocation, "path", doc.LocalPath)

		if err := s.remote.Unload(ctx, doc.RemoteLocation); err != nil {
			s.logger.Warnw("unload failed", "location", doc.RemoteLocation, "error", err)
			report.UnloadErrors++
			continue
		}
		if err := s.ledger.Delete(doc.LocalPath); err != nil {
			return fmt.Errorf("failed to delete ledger entry for %s: %w", doc.LocalPath, err)
		}
		report.Unloaded++
	}
	return nil
}

// Purge removes every embedding from the workspace in one bulk call,
// optionally deletes the raw uploads the ledger knows about, and
// clears the ledger. Bulk call failures abort the run and leave the
// ledger intact. Irreversible; never part of a normal run.
func (s *Syncer) Purge(ctx context.Context, purgeRaw bool) (*models.Report, error) {
	start := time.Now()
	report := &models.Report{}

	embedded, err := s.remote.ListEmbedded(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded documents: %w", err)
	}

	if len(embedded) == 0 {
		s.logger.Infow("no embedded documents in workspace, nothing to purge")
	} else {
		locations := make([]string, 0, len(embedded))
		for loc := range embedded {
			locations = append(locations, loc)
		}
		sort.Strings(locations)

		s.logger.Infow("purging workspace embeddings", "count", len(locations))
		if err := s.remote.UnembedAll(ctx, locations); err != nil {
			return report, fmt.Errorf("bulk unembed failed: %w", err)
		}
		report.PurgedEmbeddings = len(locations)
	}

	if purgeRaw {
		tracked, err := s.ledger.List()
		if err != nil {
			return report, fmt.Errorf("failed to load ledger: %w", err)
		}
		if len(tracked) == 0 {
			s.logger.Infow("no tracked documents, no raw uploads to delete")
		} else {
			// Restricted to locations the ledger owns, never the
			// remote-wide listing.
			locations := make([]string, 0, len(tracked))
			for _, doc := range tracked {
				locations = append(locations, doc.RemoteLocation)
			}
			s.logger.Infow("deleting tracked raw uploads", "count", len(locations))
			if err := s.remote.RemoveRaw(ctx, locations); err != nil {
				return report, fmt.Errorf("bulk raw delete failed: %w", err)
			}
			report.PurgedRaw = len(locations)
		}
	}

	if err := s.ledger.Clear(); err != nil {
		return report, fmt.Errorf("failed to clear ledger: %w", err)
	}

	report.Duration = time.Since(start)
	return report, nil
}
