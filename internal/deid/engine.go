// Package deid runs the de-identification pipeline for single files,
// archive members and whole folders.
package deid

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"deid-export/internal/action"
	"deid-export/internal/archive"
	"deid-export/internal/filename"
	"deid-export/internal/identity"
	"deid-export/internal/logging"
	"deid-export/internal/metrics"
	"deid-export/internal/profile"
)

// Options configures an Engine.
type Options struct {
	Profile *profile.Profile
	// Hashes is shared by every engine of one run. A fresh state with a
	// random salt is created when nil.
	Hashes   *identity.HashState
	Adapters []Adapter
	Workers  int
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Engine de-identifies files under one effective profile.
type Engine struct {
	profile  *profile.Profile
	hashes   *identity.HashState
	exec     *action.Executor
	rewriter *filename.Rewriter
	adapters map[profile.Kind]Adapter
	order    []profile.Kind
	archive  *archive.Processor
	workers  int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Profile == nil {
		return nil, fmt.Errorf("engine needs a profile")
	}
	if opts.Hashes == nil {
		opts.Hashes = identity.NewHashState("")
	}
	if opts.Adapters == nil {
		opts.Adapters = DefaultAdapters()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	e := &Engine{
		profile:  opts.Profile,
		hashes:   opts.Hashes,
		exec:     action.New(opts.Hashes),
		adapters: make(map[profile.Kind]Adapter),
		workers:  opts.Workers,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	e.rewriter = filename.New(e.exec)
	for _, a := range opts.Adapters {
		if _, dup := e.adapters[a.Kind()]; dup {
			return nil, fmt.Errorf("two adapters for kind %s", a.Kind())
		}
		e.adapters[a.Kind()] = a
		e.order = append(e.order, a.Kind())
	}
	e.archive = archive.New(e, e.exec, e.hashes, archive.Options{Workers: opts.Workers, Logger: opts.Logger})
	return e, nil
}

// Profile returns the engine's effective profile.
func (e *Engine) Profile() *profile.Profile { return e.profile }

// Hashes returns the run's hash state.
func (e *Engine) Hashes() *identity.HashState { return e.hashes }

// Classify picks the file kind for name. Archives are checked first, then
// each adapter in registration order. head, when given, is the start of the
// file and lets adapters claim names outside their default filter; it is
// only consulted for kinds without an explicit file-filter.
func (e *Engine) Classify(name string, head []byte) (profile.Kind, bool) {
	if fp := e.profile.Format(profile.KindZIP); fp != nil && fp.FileFilter.Matches(name, archive.ZIPPatterns) {
		return profile.KindZIP, true
	}
	for _, k := range e.order {
		fp := e.profile.Format(k)
		if fp != nil && fp.FileFilter.Matches(name, e.adapters[k].DefaultFilter()) {
			return k, true
		}
	}

	if len(head) == 0 || !sniffable(name) {
		return "", false
	}
	for _, k := range e.order {
		fp := e.profile.Format(k)
		if fp == nil || fp.FileFilter.Set {
			continue
		}
		if s, ok := e.adapters[k].(Sniffer); ok && s.Sniff(head) {
			return k, true
		}
	}
	return "", false
}

// Result is one de-identified file.
type Result struct {
	Kind profile.Kind
	// Name is the output base name.
	Name string
	Data []byte
	// Failures lists archive members dropped from a partial export.
	Failures []archive.Failure
	// Source reads fields of the de-identified document, for archive-level
	// filename placeholders.
	Source filename.FieldSource
}

// ProcessFile classifies and de-identifies one file. Every error is a
// *FileError.
func (e *Engine) ProcessFile(ctx context.Context, name string, data []byte) (*Result, error) {
	kind, ok := e.Classify(name, data)
	if !ok {
		return nil, &FileError{Name: name, Err: ErrUnclassified}
	}
	return e.ProcessKind(ctx, kind, name, data)
}

// ProcessKind de-identifies one file already known to be of kind.
func (e *Engine) ProcessKind(ctx context.Context, kind profile.Kind, name string, data []byte) (*Result, error) {
	start := time.Now()
	res, err := e.process(ctx, kind, name, data)
	if err != nil {
		e.metrics.ObserveFile(string(kind), "failed", start)
		return nil, &FileError{Name: name, Kind: kind, Err: err}
	}
	e.metrics.ObserveFile(string(kind), "ok", start)
	e.metrics.AddMemberFailures(len(res.Failures))
	e.metrics.SetDerivedValues(e.hashes.Len())
	return res, nil
}

func (e *Engine) process(ctx context.Context, kind profile.Kind, name string, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fp := e.profile.Format(kind)
	if fp == nil {
		return nil, fmt.Errorf("profile has no %s block", kind)
	}
	base := path.Base(filepath.ToSlash(name))

	if kind == profile.KindZIP {
		depth := archiveDepth(ctx) + 1
		if depth > MaxArchiveDepth {
			return nil, fmt.Errorf("%w: more than %d levels", ErrArchiveDepth, MaxArchiveDepth)
		}
		ar, err := e.archive.Process(context.WithValue(ctx, depthKey{}, depth), base, data, fp)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: kind, Name: ar.Name, Data: ar.Data, Failures: ar.Failures}, nil
	}

	adapter, ok := e.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter for %s", kind)
	}
	doc, err := adapter.Open(name, data)
	if err != nil {
		return nil, fmt.Errorf("could not open: %w", err)
	}

	if s, ok := doc.(Scrubber); ok {
		if err := s.Scrub(fp); err != nil {
			return nil, fmt.Errorf("could not apply %s options: %w", kind, err)
		}
	}
	if err := e.exec.ApplyRules(doc, fp); err != nil {
		return nil, err
	}
	if d, ok := doc.(Deriver); ok {
		if err := d.Derive(fp); err != nil {
			return nil, fmt.Errorf("could not derive fields: %w", err)
		}
	}

	out, err := doc.Encode()
	if err != nil {
		return nil, fmt.Errorf("could not encode: %w", err)
	}
	source := filename.DocumentSource{Doc: doc}
	newName, err := e.rewriter.Rewrite(base, fp, source)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("file de-identified",
		logging.String("file", name),
		logging.String("kind", string(kind)),
		logging.String("output", newName),
	)
	return &Result{Kind: kind, Name: newName, Data: out, Source: source}, nil
}

// MaxArchiveDepth is how many ZIP levels may nest, counting the outermost.
const MaxArchiveDepth = 8

type depthKey struct{}

func archiveDepth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// HandleMember de-identifies one archive member. Members no configured
// kind accepts are reported as unhandled and copied as they are.
func (e *Engine) HandleMember(ctx context.Context, name string, data []byte) (*archive.Output, bool, error) {
	kind, ok := e.Classify(name, data)
	if !ok {
		return nil, false, nil
	}
	res, err := e.process(ctx, kind, name, data)
	if err != nil {
		return nil, true, err
	}
	return &archive.Output{Kind: kind, Name: res.Name, Data: res.Data, Source: res.Source, Failures: res.Failures}, true, nil
}

// sniffable reports whether a name could hide a supported format: no
// extension, or one not claimed by common non-media files.
func sniffable(name string) bool {
	base := path.Base(filepath.ToSlash(name))
	if ExcludedNames[base] {
		return false
	}
	return !ExcludedExtensions[strings.ToLower(path.Ext(base))]
}
