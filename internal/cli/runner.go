// Package cli drives local de-identification runs for the deid command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"deid-export/internal/config"
	"deid-export/internal/deid"
	"deid-export/internal/identity"
	"deid-export/internal/logging"
	"deid-export/internal/metrics"
	"deid-export/internal/override"
	"deid-export/internal/profile"
)

// Options holds CLI configuration options.
type Options struct {
	Input       string
	ProfilePath string
	// OverridesPath is a CSV table with one row per subject. Each subject's
	// files are read from <Input>/<key>.
	OverridesPath string
	Output        string
	DryRun        bool
	// DateIncrement replaces date-increment in every format block when set.
	DateIncrement *int
	Config        *config.Config
	Stdout        io.Writer
}

// subjectRun is one engine run over one input location.
type subjectRun struct {
	Subject string
	Input   string
	Output  string
	Profile *profile.Profile
}

// Run executes a local de-identification run.
func Run(ctx context.Context, opts Options) error {
	if opts.Config == nil {
		cfg := config.Default()
		opts.Config = &cfg
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	out := opts.Stdout
	cfg := opts.Config

	if opts.Input == "" {
		return fmt.Errorf("input path is required")
	}
	info, err := os.Stat(opts.Input)
	if err != nil {
		return fmt.Errorf("input path does not exist: %s", opts.Input)
	}

	base, err := LoadProfile(opts.ProfilePath, opts.DateIncrement, cfg)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	var m *metrics.Metrics
	if cfg.Metrics.Textfile != "" {
		m = metrics.New()
	}
	hashes := identity.NewHashState(cfg.Run.Salt)

	outputRoot := opts.Output
	if outputRoot == "" {
		outputRoot = cfg.Run.OutputDir
	}

	runs, err := planRuns(opts, base, info.IsDir(), outputRoot, logger)
	if err != nil {
		return err
	}

	printHeader(out, opts, base, len(runs), cfg.Run.Salt == "")
	if opts.DryRun {
		fmt.Fprintln(out, "\n[DRY RUN MODE]")
	}
	fmt.Fprintln(out)

	var rows [][]string
	failed := 0
	for _, r := range runs {
		engine, err := deid.New(deid.Options{
			Profile: r.Profile,
			Hashes:  hashes,
			Workers: cfg.Run.Workers,
			Logger:  logger.With(logging.String("subject", r.Subject)),
			Metrics: m,
		})
		if err != nil {
			return err
		}

		var stats *deid.Stats
		if info.IsDir() {
			stats, err = runFolder(ctx, out, engine, r, cfg.Run.Recursive, opts.DryRun)
		} else {
			stats, err = runFile(ctx, engine, r, opts.DryRun)
		}
		if err != nil {
			return fmt.Errorf("processing failed: %w", err)
		}
		failed += stats.Failed
		rows = append(rows, summaryRow(r.Subject, stats))
	}

	printSummary(out, rows)
	if m != nil {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return fmt.Errorf("could not write metrics: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

// LoadProfile reads the profile at path and applies run-time overrides.
func LoadProfile(path string, dateIncrement *int, cfg *config.Config) (*profile.Profile, error) {
	if path == "" {
		return nil, fmt.Errorf("profile path is required")
	}
	p, err := profile.LoadFile(path)
	if err != nil {
		return nil, err
	}

	if dateIncrement == nil && cfg != nil {
		dateIncrement = cfg.Run.DateIncrement
	}
	if dateIncrement != nil {
		for kind := range p.Formats {
			if err := p.Set(string(kind)+".date-increment", strconv.Itoa(*dateIncrement)); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// ReadOverrides parses the override table at path and merges it into base.
// Subjects that fail are returned as errors alongside the others.
func ReadOverrides(path string, base *profile.Profile, cfg *config.Config) (map[string]*profile.Profile, []error, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open override table: %w", err)
	}
	defer file.Close()

	table, err := override.ReadTable(file, cfg.Overrides.KeyColumn)
	if err != nil {
		return nil, nil, err
	}
	merger := override.Merger{SubjectField: cfg.Overrides.SubjectField}
	profiles, errs := merger.MergeAll(base, table)
	return profiles, errs, nil
}

func planRuns(opts Options, base *profile.Profile, isDir bool, outputRoot string, logger *slog.Logger) ([]subjectRun, error) {
	if outputRoot == "" {
		dir := opts.Input
		if !isDir {
			dir = filepath.Dir(opts.Input)
		}
		outputRoot = filepath.Join(dir, deid.DefaultOutputDir)
	}

	if opts.OverridesPath == "" {
		return []subjectRun{{Input: opts.Input, Output: outputRoot, Profile: base}}, nil
	}
	if !isDir {
		return nil, fmt.Errorf("an override table needs an input folder with one subfolder per subject")
	}

	profiles, errs, err := ReadOverrides(opts.OverridesPath, base, opts.Config)
	if err != nil {
		return nil, err
	}
	for _, e := range errs {
		logger.Warn("subject skipped", logging.Error(e))
	}

	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var runs []subjectRun
	for _, key := range keys {
		p := profiles[key]
		input := filepath.Join(opts.Input, key)
		if info, err := os.Stat(input); err != nil || !info.IsDir() {
			logger.Warn("no input folder for subject",
				logging.String("subject", key),
				logging.String("folder", input),
			)
			continue
		}
		code, ok := override.SubjectCode(p)
		if !ok || code == "" {
			code = key
		}
		runs = append(runs, subjectRun{
			Subject: key,
			Input:   input,
			Output:  filepath.Join(outputRoot, code),
			Profile: p,
		})
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no subject in %s could be processed", opts.OverridesPath)
	}
	return runs, nil
}

func runFolder(ctx context.Context, out io.Writer, engine *deid.Engine, r subjectRun, recursive, dryRun bool) (*deid.Stats, error) {
	pb := newProgressBar(out, 50)
	stats, err := engine.ProcessFolder(ctx, deid.Config{
		InputFolder:  r.Input,
		OutputFolder: r.Output,
		Recursive:    recursive,
		DryRun:       dryRun,
		Progress: func(current, total int, filename, status string) {
			pb.update(current, total)
		},
	})
	if err != nil {
		return nil, err
	}
	if total := stats.Success + stats.Failed + stats.Skipped; total > 0 {
		pb.update(total, total)
		fmt.Fprintln(out)
	}
	return stats, nil
}

func runFile(ctx context.Context, engine *deid.Engine, r subjectRun, dryRun bool) (*deid.Stats, error) {
	stats := &deid.Stats{OutputFolder: r.Output}
	data, err := os.ReadFile(r.Input)
	if err != nil {
		return nil, fmt.Errorf("could not read input: %w", err)
	}

	res, err := engine.ProcessFile(ctx, r.Input, data)
	if err != nil {
		if errors.Is(err, deid.ErrUnclassified) {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stats.Failed++
		return stats, nil
	}
	stats.MemberFailures = len(res.Failures)
	if dryRun {
		stats.Skipped++
		return stats, nil
	}

	if err := os.MkdirAll(r.Output, 0755); err != nil {
		return nil, fmt.Errorf("could not create output folder: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.Output, res.Name), res.Data, 0644); err != nil {
		return nil, fmt.Errorf("could not write output: %w", err)
	}
	stats.Success++
	return stats, nil
}

// printHeader prints the CLI header with configuration
func printHeader(out io.Writer, opts Options, p *profile.Profile, subjects int, saltGenerated bool) {
	name := p.Name
	if name == "" {
		name = filepath.Base(opts.ProfilePath)
	}
	fmt.Fprintln(out, "De-identification export")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "Input:     %s\n", opts.Input)
	fmt.Fprintf(out, "Profile:   %s\n", name)

	kinds := make([]string, 0, len(p.Formats))
	for _, k := range profile.Kinds {
		if p.Format(k) != nil {
			kinds = append(kinds, string(k))
		}
	}
	fmt.Fprintf(out, "Formats:   %s\n", strings.Join(kinds, ", "))
	if opts.OverridesPath != "" {
		fmt.Fprintf(out, "Subjects:  %d (from %s)\n", subjects, opts.OverridesPath)
	}
	if saltGenerated {
		fmt.Fprintln(out, "Salt:      generated for this run (hashes will differ from other runs)")
	}
	if opts.DateIncrement != nil {
		fmt.Fprintf(out, "Dates:     shifted by %d day(s)\n", *opts.DateIncrement)
	}
}

func summaryRow(subject string, stats *deid.Stats) []string {
	if subject == "" {
		subject = "-"
	}
	return []string{
		subject,
		strconv.Itoa(stats.Success),
		strconv.Itoa(stats.Failed),
		strconv.Itoa(stats.Skipped),
		strconv.Itoa(stats.MemberFailures),
		stats.OutputFolder,
	}
}

// printSummary prints the processing summary
func printSummary(out io.Writer, rows [][]string) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"Subject", "Succeeded", "Failed", "Skipped", "Members dropped", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))
}

// progressBar represents a terminal progress bar
type progressBar struct {
	out   io.Writer
	width int
}

// newProgressBar creates a new progress bar with specified width
func newProgressBar(out io.Writer, width int) *progressBar {
	return &progressBar{out: out, width: width}
}

// update updates the progress bar display
func (pb *progressBar) update(current, total int) {
	if total == 0 {
		return
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(pb.width))
	if filled > pb.width {
		filled = pb.width
	}

	bar := strings.Repeat("#", filled) + strings.Repeat("-", pb.width-filled)
	fmt.Fprintf(pb.out, "\r[%s] %3.0f%%  (%d/%d)", bar, percent*100, current, total)
}
