package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"folio/internal/backend"
	"folio/internal/batch"
	"folio/internal/config"
	"folio/internal/ledger"
	"folio/internal/logging"
	"folio/internal/output"
	"folio/internal/rasterize"
	"folio/internal/retry"
	"folio/internal/services"
)

type transcribeFlags struct {
	model      string
	pages      string
	resume     bool
	force      bool
	skipFailed bool
	reasoning  string
	workers    int
	delay      float64
	dpi        int
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var flags transcribeFlags

	cmd := &cobra.Command{
		Use:   "transcribe [pdf-or-directory]",
		Short: "Transcribe PDF pages with a vision model",
		Long: `Transcribe renders each selected PDF page to an image, submits it to the
configured vision model, and writes a JSON record plus a plain-text
transcription per page. Completed pages are recorded in the ledger and
skipped on subsequent runs unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var input string
			if len(args) > 0 {
				input = args[0]
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runTranscribe(runCtx, cmd, cfg, flags, input)
		},
	}

	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "Model catalog key (see `folio models`)")
	cmd.Flags().StringVarP(&flags.pages, "pages", "p", "", "Page range, e.g. 5, 1-10, or 3- (single document only)")
	cmd.Flags().BoolVar(&flags.resume, "resume", true, "Skip pages already transcribed successfully")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Reprocess every selected page, ignoring the ledger")
	cmd.Flags().BoolVar(&flags.skipFailed, "skip-failed", false, "Also skip pages whose last attempt failed")
	cmd.Flags().StringVar(&flags.reasoning, "reasoning", "", "Reasoning depth: low, medium, or high")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "Concurrent pages in flight")
	cmd.Flags().Float64Var(&flags.delay, "delay", -1, "Seconds to pause after each model request")
	cmd.Flags().IntVar(&flags.dpi, "dpi", 0, "Rasterization resolution")

	return cmd
}

func runTranscribe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, flags transcribeFlags, input string) error {
	modelKey := flags.model
	if modelKey == "" {
		modelKey = cfg.Transcribe.Model
	}
	spec, err := backend.Lookup(modelKey)
	if err != nil {
		return err
	}

	reasoning := flags.reasoning
	if reasoning == "" {
		reasoning = cfg.Transcribe.ReasoningDepth
	}
	workers := flags.workers
	if workers <= 0 {
		workers = cfg.Transcribe.Workers
	}
	delay := flags.delay
	if delay < 0 {
		delay = cfg.Transcribe.RequestDelaySeconds
	}
	dpi := flags.dpi
	if dpi <= 0 {
		dpi = cfg.Transcribe.DPI
	}

	pages := batch.FullRange
	if flags.pages != "" {
		pages, err = batch.ParsePageRange(flags.pages)
		if err != nil {
			return err
		}
	}

	documents, err := resolveInputs(cfg, input)
	if err != nil {
		return err
	}
	if flags.pages != "" && len(documents) > 1 {
		return fmt.Errorf("--pages applies to a single document; %d matched", len(documents))
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.LogDir, "folio.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return errors.New("another folio run is already in progress")
	}
	defer func() {
		_ = lock.Unlock()
	}()

	store, err := ledger.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	writer, err := output.NewWriter(cfg.Paths.OutputDir)
	if err != nil {
		return err
	}

	renderer, err := rasterize.New(cfg.PdftoppmBinary(), dpi)
	if err != nil {
		return err
	}

	client, wireModel, err := newBackend(cfg, spec)
	if err != nil {
		return err
	}
	spec.Name = wireModel
	be := retry.Wrap(client, newRetryPolicy(cfg))

	orch, err := batch.New(store, writer, renderer, be, logger, batch.Options{
		Model:           spec,
		ReasoningDepth:  reasoning,
		MaxOutputTokens: cfg.Transcribe.MaxOutputTokens,
		Resume:          flags.resume && !flags.force,
		SkipFailed:      flags.skipFailed,
		Workers:         workers,
		RequestDelay:    secondsDuration(delay),
	})
	if err != nil {
		return err
	}

	var summaries []batch.Summary
	for _, pdfPath := range documents {
		summary, runErr := orch.Run(ctx, pdfPath, pages)
		if runErr != nil {
			if errors.Is(runErr, context.Canceled) || services.IsFatal(runErr) {
				return runErr
			}
			if services.IsDocumentRead(runErr) {
				// The document itself is unreadable; report it and move on.
				logger.Error("document skipped",
					logging.String(logging.FieldDocument, batch.DocumentID(pdfPath)),
					logging.Error(runErr),
				)
				summaries = append(summaries, batch.Summary{
					Document: batch.DocumentID(pdfPath),
					Failed:   1,
				})
				continue
			}
			return runErr
		}
		summaries = append(summaries, summary)
	}

	printRunSummary(cmd, spec, summaries)

	for _, summary := range summaries {
		if summary.AllFailed() {
			return fmt.Errorf("%s: all %d attempted pages failed", summary.Document, summary.Failed)
		}
	}
	return nil
}

func printRunSummary(cmd *cobra.Command, spec backend.ModelSpec, summaries []batch.Summary) {
	rows := make([][]string, 0, len(summaries))
	totalSucceeded := 0
	for _, summary := range summaries {
		rows = append(rows, []string{
			summary.Document,
			strconv.Itoa(summary.Pages),
			strconv.Itoa(summary.Succeeded),
			strconv.Itoa(summary.Failed),
			strconv.Itoa(summary.Skipped),
		})
		totalSucceeded += summary.Succeeded
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"Document", "Pages", "OK", "Failed", "Skipped"},
		rows, 2, 3, 4, 5,
	))
	fmt.Fprintf(out, "Model %s (%s), estimated cost $%.2f\n",
		spec.Key, spec.Name, float64(totalSucceeded)*spec.CostPerPage)
}
