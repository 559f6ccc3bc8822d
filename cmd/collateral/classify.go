package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/collateral-classifier/internal/batch"
	"github.com/joseph-ayodele/collateral-classifier/internal/classifier"
)

type classifyOpts struct {
	outDir     string
	xlsx       bool
	record     bool
	concurrent int
	progress   bool
}

func newClassifyCmd(c *cli) *cobra.Command {
	var o classifyOpts
	cmd := &cobra.Command{
		Use:   "classify <file.pdf|dir>...",
		Short: "Classify every page of one or more PDFs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runClassify(cmd.Context(), cmd.ErrOrStderr(), args, o)
		},
	}
	fs := cmd.Flags()
	addPipelineFlags(c, fs)
	fs.StringVarP(&o.outDir, "out", "o", "", "write <name>.predictions.json per document into this directory instead of stdout")
	fs.BoolVar(&o.xlsx, "xlsx", false, "also write an XLSX workbook per document (requires --out)")
	fs.BoolVar(&o.record, "record", false, "record each document in the audit store")
	fs.IntVar(&o.concurrent, "documents", 2, "documents classified concurrently")
	fs.BoolVar(&o.progress, "progress", true, "show a progress bar on stderr when classifying several documents")
	return cmd
}

// addPipelineFlags registers the flags that override pipeline settings.
func addPipelineFlags(c *cli, fs *pflag.FlagSet) {
	c.bind(fs, "threshold", "classifier.confidence_threshold", func(fs *pflag.FlagSet) {
		fs.Float64("threshold", 0, "confidence threshold below which a page is UNLABELED")
	})
	c.bind(fs, "workers", "classifier.workers", func(fs *pflag.FlagSet) {
		fs.Int("workers", 0, "pages processed concurrently per document")
	})
	c.bind(fs, "dpi", "ocr.dpi", func(fs *pflag.FlagSet) {
		fs.Int("dpi", 0, "rasterization resolution")
	})
	c.bind(fs, "min-text-length", "ocr.min_text_length", func(fs *pflag.FlagSet) {
		fs.Int("min-text-length", 0, "embedded text shorter than this falls back to OCR")
	})
	c.bind(fs, "ocr-engine", "ocr.engine", func(fs *pflag.FlagSet) {
		fs.String("ocr-engine", "", "tesseract or gosseract")
	})
}

func (c *cli) runClassify(ctx context.Context, stderr io.Writer, args []string, o classifyOpts) error {
	if o.xlsx && o.outDir == "" {
		return errors.New("--xlsx requires --out")
	}
	files, stats, err := batch.Discover(args, true)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no PDF files found (scanned %d)", stats.Scanned)
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

	var bar *progressbar.ProgressBar
	if o.progress && len(files) > 1 {
		bar = newProgressBar(stderr, len(files))
	}

	var (
		mu      sync.Mutex
		results = make(map[string]*classifier.DocumentResult, len(files))
		failed  []error
	)
	sink := func(out batch.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		if out.Err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", out.Job.Path, out.Err))
		} else {
			results[out.Job.Path] = out.Result
		}
		if o.outDir != "" {
			if _, err := writer.Write(out); err != nil {
				failed = append(failed, err)
			}
		}
		if bar != nil {
			if err := bar.Add(1); err != nil {
				c.logger.Warn("failed to update progress bar", "error", err)
			}
		}
	}

	q := batch.NewQueue(a.Classifier, sink, c.logger.With("component", "batch"),
		batch.WithWorkers(o.concurrent),
		batch.WithQueueSize(len(files)),
	)
	for _, f := range files {
		if err := q.Enqueue(ctx, batch.Job{Path: f}); err != nil {
			q.Shutdown(context.Background())
			return err
		}
	}
	q.Shutdown(context.Background())
	if bar != nil {
		if err := bar.Finish(); err != nil {
			c.logger.Warn("failed to finish progress bar", "error", err)
		}
	}

	if o.outDir == "" {
		// stdout keeps input order
		if len(files) == 1 {
			if res := results[files[0]]; res != nil {
				if err := c.printJSON(res); err != nil {
					return err
				}
			}
		} else {
			ordered := make([]*classifier.DocumentResult, 0, len(results))
			for _, f := range files {
				if res := results[f]; res != nil {
					ordered = append(ordered, res)
				}
			}
			if err := c.printJSON(ordered); err != nil {
				return err
			}
		}
	}
	return errors.Join(failed...)
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Classifying documents...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
}
