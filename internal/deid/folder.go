package deid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"deid-export/internal/logging"
	"deid-export/internal/progress"
)

// DefaultOutputDir is the folder created inside the input folder when no
// output folder is configured.
const DefaultOutputDir = "deidentified"

// ErrOutputCollision is returned when two inputs rewrite to the same output.
var ErrOutputCollision = errors.New("output name already produced by another file")

// ProgressCallback is called after each file with its outcome.
type ProgressCallback func(current, total int, filename, status string)

// Config holds the folder run configuration.
type Config struct {
	InputFolder string
	// OutputFolder defaults to <InputFolder>/deidentified.
	OutputFolder string
	Recursive    bool
	DryRun       bool
	Progress     ProgressCallback
}

// Stats holds processing statistics.
type Stats struct {
	Success        int
	Failed         int
	Skipped        int
	MemberFailures int
	OutputFolder   string
	Report         *progress.Report
}

// ProcessFolder de-identifies every classified file under cfg.InputFolder,
// writing results under the output folder at the same relative directory.
// A failing file never stops the others; failures are recorded in the
// report and in errors.log next to the outputs.
func (e *Engine) ProcessFolder(ctx context.Context, cfg Config) (*Stats, error) {
	output := cfg.OutputFolder
	if output == "" {
		output = filepath.Join(cfg.InputFolder, DefaultOutputDir)
	}

	files, err := e.FindFiles(cfg.InputFolder, cfg.Recursive, output)
	if err != nil {
		return nil, fmt.Errorf("could not find files: %w", err)
	}

	logFile := ""
	if !cfg.DryRun {
		if err := os.MkdirAll(output, 0755); err != nil {
			return nil, fmt.Errorf("could not create output folder: %w", err)
		}
		logFile = filepath.Join(output, "errors.log")
	}
	report, err := progress.NewReport(logFile)
	if err != nil {
		return nil, fmt.Errorf("could not create error report: %w", err)
	}
	defer report.Close()

	stats := &Stats{OutputFolder: output, Report: report}
	if len(files) == 0 {
		e.logger.Info("no files found", logging.String("input", cfg.InputFolder))
		return stats, nil
	}
	e.logger.Info("files found",
		logging.String("input", cfg.InputFolder),
		logging.Int("count", len(files)),
	)

	var (
		mu      sync.Mutex
		done    int
		written = make(map[string]string)
	)
	finish := func(name, status string) {
		mu.Lock()
		done++
		current := done
		switch status {
		case "ok":
			stats.Success++
		case "failed":
			stats.Failed++
		case "skipped":
			stats.Skipped++
		}
		mu.Unlock()
		if cfg.Progress != nil {
			cfg.Progress(current, len(files), filepath.Base(name), status)
		}
	}
	claim := func(target, source string) bool {
		mu.Lock()
		defer mu.Unlock()
		if _, taken := written[target]; taken {
			return false
		}
		written[target] = source
		return true
	}

	// Each file commits its output only after the file before it in path
	// order has, so a name collision always fails the later path.
	turns := make([]chan struct{}, len(files))
	for i := range turns {
		turns[i] = make(chan struct{})
	}
	wait := func(i int) error {
		if i == 0 {
			return nil
		}
		select {
		case <-turns[i-1]:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, c := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer close(turns[i])
			rel, err := filepath.Rel(cfg.InputFolder, c.Path)
			if err != nil {
				rel = filepath.Base(c.Path)
			}

			var res *Result
			data, err := os.ReadFile(c.Path)
			if err != nil {
				err = fmt.Errorf("could not read file: %w", err)
			} else if res, err = e.ProcessKind(gctx, c.Kind, c.Path, data); err != nil {
				e.logger.Warn("file failed",
					logging.String("file", rel),
					logging.Error(err),
				)
			}
			if werr := wait(i); werr != nil {
				return werr
			}
			if err != nil {
				report.Fail(rel, err)
				finish(c.Path, "failed")
				return nil
			}

			for _, f := range res.Failures {
				report.Fail(rel+"!"+f.Member, f.Err)
			}
			mu.Lock()
			stats.MemberFailures += len(res.Failures)
			mu.Unlock()

			target := filepath.Join(output, filepath.Dir(rel), res.Name)
			if !claim(target, rel) {
				report.Fail(rel, fmt.Errorf("%w: %s", ErrOutputCollision, target))
				finish(c.Path, "failed")
				return nil
			}

			if cfg.DryRun {
				report.Skip(rel, "dry run: would write "+target)
				finish(c.Path, "skipped")
				return nil
			}
			if err := writeOutput(target, res.Data); err != nil {
				report.Fail(rel, err)
				finish(c.Path, "failed")
				return nil
			}
			report.OK(rel, target)
			finish(c.Path, "ok")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	if !cfg.DryRun {
		if err := report.Save(filepath.Join(output, "report.json")); err != nil {
			return stats, err
		}
	}
	e.logger.Info("folder processed",
		logging.Int("succeeded", stats.Success),
		logging.Int("failed", stats.Failed),
		logging.Int("skipped", stats.Skipped),
		logging.Int("member_failures", stats.MemberFailures),
	)
	return stats, nil
}

func writeOutput(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("could not write output: %w", err)
	}
	return nil
}
