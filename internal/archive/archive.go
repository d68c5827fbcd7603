// Package archive de-identifies ZIP archives member by member and
// re-packages the results.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"deid-export/internal/action"
	"deid-export/internal/filename"
	"deid-export/internal/identity"
	"deid-export/internal/logging"
	"deid-export/internal/profile"
)

// ZIPPatterns are the default file-filter globs.
var ZIPPatterns = []string{"*.zip", "*.ZIP"}

// Output is one de-identified member.
type Output struct {
	Kind profile.Kind
	// Name is the rewritten base name of the member.
	Name string
	Data []byte
	// Source resolves placeholders against the de-identified member.
	Source filename.FieldSource
	// Failures are the failed members of a nested archive.
	Failures []Failure
}

// Handler de-identifies a single member. handled is false for members of
// no configured kind, which are copied verbatim.
type Handler interface {
	HandleMember(ctx context.Context, name string, data []byte) (out *Output, handled bool, err error)
}

// Failure records a member that could not be de-identified.
type Failure struct {
	Member string
	Err    error
}

// ErrDuplicateMember is returned for a member whose output path was already
// produced by an earlier member of the same archive.
var ErrDuplicateMember = errors.New("member output path already written")

// ValidationError aborts an archive whose member failed while
// validate-zip-members is on.
type ValidationError struct {
	Archive string
	Member  string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("archive %s: member %s failed: %v", e.Archive, e.Member, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Result is a re-packaged archive.
type Result struct {
	Name     string
	Data     []byte
	Members  []string
	Copied   []string
	Failures []Failure
}

// Options configures a Processor.
type Options struct {
	Workers int
	Logger  *slog.Logger
}

// Processor runs members through a Handler in parallel and writes the new
// archive from a single goroutine in original member order.
type Processor struct {
	handler  Handler
	exec     *action.Executor
	hashes   *identity.HashState
	rewriter *filename.Rewriter
	workers  int
	logger   *slog.Logger
}

// New creates a processor.
func New(h Handler, exec *action.Executor, hashes *identity.HashState, opts Options) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Processor{
		handler:  h,
		exec:     exec,
		hashes:   hashes,
		rewriter: filename.New(exec),
		workers:  opts.Workers,
		logger:   opts.Logger,
	}
}

type memberResult struct {
	out     *Output
	handled bool
	raw     []byte
	err     error
	// target is the member's path in the new archive.
	target string
}

// Process de-identifies the archive data named name under fp.
func (p *Processor) Process(ctx context.Context, name string, data []byte, fp *profile.FormatProfile) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("could not open archive: %w", err)
	}

	results := make([]memberResult, len(zr.File))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.processMember(gctx, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	first := make(map[profile.Kind]filename.FieldSource)
	claimed := make(map[string]string)
	for i, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		r := &results[i]
		if r.err == nil {
			r.target = p.target(f.Name, r, fp)
			if prev, taken := claimed[r.target]; taken {
				r.err = fmt.Errorf("%w: %s already written for %s", ErrDuplicateMember, r.target, prev)
			} else {
				claimed[r.target] = f.Name
			}
		}
		if r.err == nil {
			if r.out != nil {
				if _, ok := first[r.out.Kind]; !ok {
					first[r.out.Kind] = r.out.Source
				}
				for _, nested := range r.out.Failures {
					res.Failures = append(res.Failures, Failure{Member: f.Name + "!" + nested.Member, Err: nested.Err})
				}
			}
			continue
		}
		if fp.ValidatesZipMembers() {
			return nil, &ValidationError{Archive: name, Member: f.Name, Err: r.err}
		}
		p.logger.Warn("archive member failed",
			logging.String("archive", name),
			logging.String("member", f.Name),
			logging.Error(r.err),
		)
		res.Failures = append(res.Failures, Failure{Member: f.Name, Err: r.err})
	}

	note := newComment(zr.Comment)
	if err := p.exec.ApplyRules(note, fp); err != nil {
		return nil, fmt.Errorf("could not de-identify archive comment: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := zw.SetComment(note.text()); err != nil {
		return nil, fmt.Errorf("could not set archive comment: %w", err)
	}
	for i, f := range zr.File {
		r := results[i]
		if r.err != nil {
			continue
		}
		if f.FileInfo().IsDir() {
			dir := p.directory(f.Name, fp)
			if dir == "" {
				continue
			}
			if _, err := zw.CreateHeader(&zip.FileHeader{Name: dir, Modified: f.Modified}); err != nil {
				return nil, fmt.Errorf("could not write %s: %w", dir, err)
			}
			continue
		}

		content := r.raw
		if r.handled {
			content = r.out.Data
		}
		target := r.target
		if err := writeMember(zw, f, target, content); err != nil {
			return nil, err
		}
		if r.handled {
			res.Members = append(res.Members, target)
		} else {
			res.Copied = append(res.Copied, target)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("could not finish archive: %w", err)
	}
	res.Data = buf.Bytes()

	res.Name, err = p.rewriter.Rewrite(name, fp, memberSource{first: first, comment: note})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Processor) processMember(ctx context.Context, f *zip.File) memberResult {
	rc, err := f.Open()
	if err != nil {
		return memberResult{err: fmt.Errorf("could not open member: %w", err)}
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return memberResult{err: fmt.Errorf("could not read member: %w", err)}
	}

	out, handled, err := p.handler.HandleMember(ctx, f.Name, raw)
	if err != nil {
		return memberResult{err: err}
	}
	return memberResult{out: out, handled: handled, raw: raw}
}

// target returns the path a member is written under: its directory
// (hashed when configured) joined with the rewritten or original base name.
func (p *Processor) target(member string, r *memberResult, fp *profile.FormatProfile) string {
	dir, base := path.Split(member)
	if r.handled {
		base = r.out.Name
	}
	return p.directory(dir, fp) + base
}

// directory hashes every segment of dir when hash-subdirectories is set.
// dir is empty or ends in a slash.
func (p *Processor) directory(dir string, fp *profile.FormatProfile) string {
	if dir == "" || !fp.HashSubdirectories {
		return dir
	}
	segments := strings.Split(strings.TrimSuffix(dir, "/"), "/")
	for i, s := range segments {
		segments[i] = p.hashes.Hash(s, 0)
	}
	return strings.Join(segments, "/") + "/"
}

func writeMember(zw *zip.Writer, f *zip.File, target string, content []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     target,
		Method:   method(f.Method),
		Modified: f.Modified,
		Comment:  f.Comment,
	})
	if err != nil {
		return fmt.Errorf("could not write %s: %w", target, err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("could not write %s: %w", target, err)
	}
	return nil
}

func method(m uint16) uint16 {
	if m == zip.Store {
		return zip.Store
	}
	return zip.Deflate
}

// memberSource resolves "{kind.Address}" placeholders against the first
// successfully processed member of that kind, and "{comment}" against the
// archive comment.
type memberSource struct {
	first   map[profile.Kind]filename.FieldSource
	comment *comment
}

func (s memberSource) Value(name string) (string, bool) {
	head, rest, found := strings.Cut(name, ".")
	if found {
		if kind, ok := profile.ParseKind(head); ok {
			src, ok := s.first[kind]
			if !ok || src == nil {
				return "", false
			}
			return src.Value(rest)
		}
	}
	if name == commentField {
		return s.comment.text(), true
	}
	return "", false
}
