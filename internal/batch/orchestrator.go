package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"folio/internal/backend"
	"folio/internal/ledger"
	"folio/internal/logging"
	"folio/internal/output"
	"folio/internal/services"
)

// Renderer is the slice of the rasterizer the orchestrator needs.
type Renderer interface {
	PageCount(path string) (int, error)
	RenderPage(ctx context.Context, pdfPath string, page int, destDir string) (string, error)
}

// Options control one batch run.
type Options struct {
	// Model is the catalog entry being used; echoed into records.
	Model backend.ModelSpec
	// ReasoningDepth and MaxOutputTokens are passed through to the backend.
	ReasoningDepth  string
	MaxOutputTokens int
	// Resume skips pages the ledger already records as success.
	Resume bool
	// SkipFailed also skips pages whose last attempt failed.
	SkipFailed bool
	// Workers bounds how many pages are in flight at once.
	Workers int
	// RequestDelay is the per-worker pause after each backend submission.
	RequestDelay time.Duration
	// SubmitTimeout bounds a single backend submission, including the
	// retry policy's internal attempts.
	SubmitTimeout time.Duration
}

// Summary aggregates one document's run.
type Summary struct {
	Document  string
	Pages     int
	Succeeded int
	Failed    int
	Skipped   int
}

// AllFailed reports whether every processed page failed. A run that only
// skipped pages did not fail.
func (s Summary) AllFailed() bool {
	return s.Failed > 0 && s.Succeeded == 0
}

// Orchestrator drives per-page transcription for one or more documents.
type Orchestrator struct {
	store    *ledger.Store
	writer   *output.Writer
	renderer Renderer
	backend  backend.Backend
	logger   *slog.Logger
	opts     Options
}

// New constructs an orchestrator. The backend should already be wrapped with
// the retry policy; the orchestrator itself never retries.
func New(store *ledger.Store, writer *output.Writer, renderer Renderer, be backend.Backend, logger *slog.Logger, opts Options) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("ledger store required")
	}
	if writer == nil {
		return nil, errors.New("output writer required")
	}
	if renderer == nil {
		return nil, errors.New("renderer required")
	}
	if be == nil {
		return nil, errors.New("backend required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Orchestrator{
		store:    store,
		writer:   writer,
		renderer: renderer,
		backend:  be,
		logger:   logging.NewComponentLogger(logger, "batch"),
		opts:     opts,
	}, nil
}

// DocumentID derives the ledger identifier from a source path: the filename
// without its extension.
func DocumentID(pdfPath string) string {
	base := filepath.Base(pdfPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Run processes one document's pending pages. Per-page failures become
// failure records; only ledger faults, cancellation, and document read
// failures at the start of the run abort it.
func (o *Orchestrator) Run(ctx context.Context, pdfPath string, pages PageRange) (Summary, error) {
	document := DocumentID(pdfPath)
	summary := Summary{Document: document}

	pageCount, err := o.renderer.PageCount(pdfPath)
	if err != nil {
		return summary, err
	}
	selected, err := pages.Resolve(pageCount)
	if err != nil {
		return summary, err
	}
	summary.Pages = len(selected)

	runID := uuid.NewString()
	ctx = services.WithRunID(services.WithDocument(ctx, document), runID)
	logger := o.logger.With(
		logging.String(logging.FieldDocument, document),
		logging.String(logging.FieldRunID, runID),
		logging.String(logging.FieldModel, o.opts.Model.Key),
	)
	logger.Info("starting batch",
		logging.Int("page_count", pageCount),
		logging.String("pages", pages.String()),
		logging.Int("workers", o.opts.Workers),
		logging.Bool("resume", o.opts.Resume),
	)

	renderDir, err := os.MkdirTemp("", "folio-render-*")
	if err != nil {
		return summary, fmt.Errorf("create render dir: %w", err)
	}
	defer os.RemoveAll(renderDir)

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.opts.Workers)

	for _, page := range selected {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			outcome, err := o.processPage(groupCtx, pdfPath, document, page, runID, renderDir)
			if err != nil {
				// Fatal: ledger fault or cancellation.
				return err
			}
			mu.Lock()
			switch outcome {
			case output.StatusSuccess:
				summary.Succeeded++
			case output.StatusFailure:
				summary.Failed++
			case output.StatusSkipped:
				summary.Skipped++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return summary, err
	}

	logger.Info("batch complete",
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// processPage handles one page end to end and returns its outcome status.
// A non-nil error aborts the whole batch.
func (o *Orchestrator) processPage(ctx context.Context, pdfPath, document string, page int, runID, renderDir string) (string, error) {
	ctx = services.WithPage(ctx, page)
	logger := o.logger.With(
		logging.String(logging.FieldDocument, document),
		logging.Int(logging.FieldPage, page),
		logging.String(logging.FieldRunID, runID),
	)

	if o.opts.Resume {
		entry, err := o.store.Get(ctx, document, page)
		if err != nil {
			return "", err
		}
		if entry != nil {
			if entry.Status == ledger.StatusSuccess {
				logger.Debug("skipping completed page")
				return output.StatusSkipped, nil
			}
			if entry.Status == ledger.StatusFailure && o.opts.SkipFailed {
				logger.Debug("skipping known-failed page")
				return output.StatusSkipped, nil
			}
		}
	}

	result, submitErr := o.transcribePage(ctx, pdfPath, page, renderDir)
	if submitErr != nil && ctx.Err() != nil {
		// Cancellation between pages: leave the page untouched so the next
		// resume run picks it up.
		return "", ctx.Err()
	}

	record := output.Record{
		Document:       document,
		Page:           page,
		ModelKey:       o.opts.Model.Key,
		Model:          o.opts.Model.Name,
		Provider:       o.opts.Model.Provider,
		ReasoningDepth: o.opts.ReasoningDepth,
		RunID:          runID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	if submitErr != nil {
		record.Status = output.StatusFailure
		record.Error = submitErr.Error()
		if err := o.writer.Write(record); err != nil {
			logger.Error("write failure record", logging.Error(err))
		}
		if err := o.store.MarkFailed(ctx, ledger.Entry{
			Document:     document,
			Page:         page,
			ModelKey:     o.opts.Model.Key,
			Provider:     o.opts.Model.Provider,
			RunID:        runID,
			ErrorMessage: submitErr.Error(),
		}); err != nil {
			return "", err
		}
		logger.Warn("page failed", logging.Error(submitErr))
		return output.StatusFailure, nil
	}

	record.Status = output.StatusSuccess
	record.Model = result.Model
	record.Transcription = result.Text
	record.Confidence = result.Confidence
	if err := o.writer.Write(record); err != nil {
		return "", fmt.Errorf("write record for page %d: %w", page, err)
	}
	if err := o.store.MarkDone(ctx, ledger.Entry{
		Document: document,
		Page:     page,
		ModelKey: o.opts.Model.Key,
		Provider: o.opts.Model.Provider,
		RunID:    runID,
	}); err != nil {
		return "", err
	}
	logger.Info("transcribed page", logging.Int("chars", len(result.Text)))

	if o.opts.RequestDelay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(o.opts.RequestDelay):
		}
	}
	return output.StatusSuccess, nil
}

// transcribePage renders the page image, submits it, and cleans the image up
// afterwards. The image never outlives the attempt.
func (o *Orchestrator) transcribePage(ctx context.Context, pdfPath string, page int, renderDir string) (backend.Result, error) {
	var empty backend.Result

	imagePath, err := o.renderer.RenderPage(ctx, pdfPath, page, renderDir)
	if err != nil {
		return empty, err
	}
	defer os.Remove(imagePath)

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return empty, services.Wrap(services.ErrDocumentRead, "batch", "read image", imagePath, err)
	}

	submitCtx := ctx
	if o.opts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, o.opts.SubmitTimeout)
		defer cancel()
	}

	return o.backend.Submit(submitCtx, image, backend.Request{
		Prompt:          backend.TranscriptionPrompt,
		Model:           o.opts.Model.Name,
		ReasoningDepth:  o.opts.ReasoningDepth,
		MaxOutputTokens: o.opts.MaxOutputTokens,
	})
}
