package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/collateral-classifier/internal/batch"
)

type watchOpts struct {
	outDir    string
	xlsx      bool
	record    bool
	existing  bool
	debounce  time.Duration
	documents int
}

func newWatchCmd(c *cli) *cobra.Command {
	var o watchOpts
	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Classify PDFs as they land in one or more inbox directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWatch(cmd.Context(), args, o)
		},
	}
	fs := cmd.Flags()
	addPipelineFlags(c, fs)
	fs.StringVarP(&o.outDir, "out", "o", "", "directory for result files (required)")
	fs.BoolVar(&o.xlsx, "xlsx", false, "also write an XLSX workbook per document")
	fs.BoolVar(&o.record, "record", false, "record each document in the audit store")
	fs.BoolVar(&o.existing, "existing", false, "classify PDFs already present at startup")
	fs.DurationVar(&o.debounce, "debounce", 2*time.Second, "quiet period before a written file is picked up")
	fs.IntVar(&o.documents, "documents", 2, "documents classified concurrently")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (c *cli) runWatch(ctx context.Context, roots []string, o watchOpts) error {
	if o.outDir == "" {
		return errors.New("--out is required")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := c.build(ctx, o.record)
	if err != nil {
		return err
	}
	defer a.Close()

	writer := batch.Writer{Dir: o.outDir}
	if o.xlsx {
		writer.Exporter = a.Exporter
	}
	log := c.logger.With("component", "watch")
	q := batch.NewQueue(a.Classifier, func(out batch.Outcome) {
		paths, err := writer.Write(out)
		if err != nil {
			log.Error("failed to write result", "path", out.Job.Path, "error", err)
			return
		}
		log.Info("wrote result", "path", out.Job.Path, "outputs", paths)
	}, log, batch.WithWorkers(o.documents))

	events, errs, err := batch.Watch(ctx, batch.WatchConfig{
		Roots:       roots,
		InitialScan: o.existing,
		Debounce:    o.debounce,
		SkipHidden:  true,
	}, log)
	if err != nil {
		q.Shutdown(context.Background())
		return err
	}
	log.Info("watching for PDFs", "roots", roots, "out", o.outDir)

	for events != nil || errs != nil {
		select {
		case p, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := q.Enqueue(ctx, batch.Job{Path: p}); err != nil {
				log.Warn("dropped file", "path", p, "error", err)
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	q.Shutdown(drainCtx)
	return nil
}
