// Package events provides the per-chunk event source: scoped open/close
// of a chunk's files, composable selections backed by an eventlist,
// branch activation, histogram aggregation, and output writing.
package events

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"github.com/openhep/evtkit/pkg/stage"
	util_log "github.com/openhep/evtkit/pkg/util/log"
)

// Entry is one event record, keyed by branch name. Iterators expose only
// the active branches of the source that produced it.
type Entry map[string]interface{}

// Source is the runtime handle to one chunk's events. It is valid between
// Open and Close, and is not safe for concurrent use from multiple
// goroutines; open multiple independent sources instead.
type Source struct {
	selection  string
	deactivate []string
	stager     *stage.Stager
	stageDir   string
	logger     log.Logger

	opened     bool
	containers []*container
	files      []string
	columns    []string
	active     map[string]bool
	histograms map[string]*Histogram
	eventlist  *EventList
	celEnv     *cel.Env
	totalRows  int64
	stagedDir  string
}

// Option configures a Source before it opens.
type Option func(*Source)

// WithSelection applies an initial selection when the source opens.
func WithSelection(expr string) Option {
	return func(s *Source) { s.selection = expr }
}

// WithDeactivatedBranches deactivates the named branches when the source
// opens, after the initial selection has been applied. Names may use
// glob-style wildcards.
func WithDeactivatedBranches(names ...string) Option {
	return func(s *Source) { s.deactivate = names }
}

// WithStager copies remote files into a fresh directory under dir before
// opening and reads the local copies instead. The copies are removed on
// Close. An empty dir uses the system temporary directory.
func WithStager(st *stage.Stager, dir string) Option {
	return func(s *Source) {
		s.stager = st
		s.stageDir = dir
	}
}

// WithLogger sets the source's logger.
func WithLogger(l log.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// Open acquires a source over the chunk's files: every file is opened,
// same-named histogram summaries are aggregated bin-wise across files,
// the initial selection (if any) is applied, and requested branches are
// deactivated. The caller must Close the returned source on every exit
// path; WithSource does this automatically.
func Open(ctx context.Context, urls []string, opts ...Option) (*Source, error) {
	s := &Source{
		logger: util_log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.With(s.logger, "component", "events")

	files, err := s.localFiles(ctx, urls)
	if err != nil {
		return nil, err
	}
	if err := s.open(files); err != nil {
		s.release()
		return nil, err
	}
	return s, nil
}

// WithSource runs fn against an open source and releases it on every exit
// path, including errors and panics.
func WithSource(ctx context.Context, urls []string, fn func(*Source) error, opts ...Option) error {
	s, err := Open(ctx, urls, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := fn(s); err != nil {
		return err
	}
	return s.Close()
}

// localFiles resolves the chunk's URLs to openable local paths, staging
// remote files first when a stager is configured.
func (s *Source) localFiles(ctx context.Context, urls []string) ([]string, error) {
	if s.stager == nil {
		for _, u := range urls {
			if strings.Contains(u, "://") {
				return nil, &OpenError{File: u, Err: errors.New("remote url requires staging; open with WithStager")}
			}
		}
		return urls, nil
	}

	base := s.stageDir
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "evtkit-"+uuid.NewString())
	if err := s.stager.StageAll(ctx, urls, dir, false); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	s.stagedDir = dir

	// The stager completes in unspecified order; the directory listing is
	// re-sorted to restore canonical catalog order.
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "listing staged files")
	}
	files := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (s *Source) open(files []string) error {
	perFileHists := make([]map[string]*Histogram, 0, len(files))
	for _, file := range files {
		c, err := openContainer(file)
		if err != nil {
			return err
		}
		s.containers = append(s.containers, c)
		s.totalRows += c.numRows

		if s.columns == nil {
			s.columns = c.columns()
		} else if !equalColumns(s.columns, c.columns()) {
			return &OpenError{File: file, Err: errors.New("schema differs from first file in chunk")}
		}

		hists, err := c.histograms()
		if err != nil {
			return err
		}
		perFileHists = append(perFileHists, hists)
	}
	s.files = files

	merged, err := mergeHistograms(perFileHists, files)
	if err != nil {
		return err
	}
	s.histograms = merged

	env, err := newSelectionEnv(s.columns)
	if err != nil {
		return errors.Wrap(err, "building selection environment")
	}
	s.celEnv = env

	s.active = make(map[string]bool, len(s.columns))
	for _, name := range s.columns {
		s.active[name] = true
	}

	s.opened = true
	if s.selection != "" {
		if err := s.ApplySelection(s.selection); err != nil {
			return err
		}
	}
	if len(s.deactivate) > 0 {
		if err := s.DeactivateBranches(s.deactivate, false); err != nil {
			return err
		}
	}
	level.Debug(s.logger).Log("msg", "opened event source", "files", len(files), "entries", s.totalRows)
	return nil
}

// Close releases file handles and histogram state and resets the
// eventlist. It is idempotent, and staged file copies are removed.
func (s *Source) Close() error {
	if !s.opened && s.containers == nil && s.stagedDir == "" {
		return nil
	}
	return s.release()
}

func (s *Source) release() error {
	var firstErr error
	for _, c := range s.containers {
		if err := c.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.containers = nil
	s.files = nil
	s.histograms = nil
	s.eventlist = nil
	s.active = nil
	s.celEnv = nil
	s.opened = false
	if s.stagedDir != "" {
		if err := os.RemoveAll(s.stagedDir); err != nil && firstErr == nil {
			firstErr = err
		}
		s.stagedDir = ""
	}
	return firstErr
}

// Count returns the number of entries passing all selections applied so
// far, or the total number of entries when no selection has been applied.
func (s *Source) Count() (int64, error) {
	if !s.opened {
		return 0, ErrClosed
	}
	if s.eventlist == nil {
		return s.totalRows, nil
	}
	return s.eventlist.Len(), nil
}

// ApplySelection computes the set of entries satisfying the expression
// and intersects it with the current eventlist; selections always compose
// as logical AND. The computation is atomic: a malformed expression
// leaves the stored eventlist unchanged. An empty result is a valid
// eventlist, distinct from "no selection yet".
func (s *Source) ApplySelection(expr string) error {
	if !s.opened {
		return ErrClosed
	}
	prg, err := compileSelection(s.celEnv, expr)
	if err != nil {
		return err
	}

	// Entries outside the current eventlist are already excluded, so
	// evaluating only its members yields the intersection directly.
	matched := []int64{}
	stream := newRowStream(s.containers)
	defer stream.close()
	var idx int64 = -1
	for {
		row, ok := stream.next()
		if !ok {
			break
		}
		idx++
		if s.eventlist != nil && !s.eventlist.Contains(idx) {
			continue
		}
		pass, err := evalSelection(prg, expr, s.entryFromRow(row))
		if err != nil {
			return err
		}
		if pass {
			matched = append(matched, idx)
		}
	}
	if err := stream.err; err != nil {
		return errors.Wrap(err, "reading entries")
	}

	s.eventlist = newEventList(matched)
	level.Debug(s.logger).Log("msg", "applied selection", "expr", expr, "passing", len(matched))
	return nil
}

// ActivateBranches activates the branches matched by the given names.
// Names may use glob-style wildcards with "*"; names matching no branch
// are silently ignored to tolerate schema drift across file versions.
// With exclusive, all branches are first deactivated.
func (s *Source) ActivateBranches(names []string, exclusive bool) error {
	return s.setBranches(names, exclusive, true)
}

// DeactivateBranches deactivates the branches matched by the given names,
// with the same wildcard and unknown-name semantics as ActivateBranches.
// With exclusive, all branches are first activated.
func (s *Source) DeactivateBranches(names []string, exclusive bool) error {
	return s.setBranches(names, exclusive, false)
}

func (s *Source) setBranches(names []string, exclusive, state bool) error {
	if !s.opened {
		return ErrClosed
	}
	if exclusive {
		for _, name := range s.columns {
			s.active[name] = !state
		}
	}
	for _, pattern := range names {
		for _, name := range s.columns {
			if ok, err := doublestar.Match(pattern, name); err == nil && ok {
				s.active[name] = state
			}
		}
	}
	return nil
}

// Branches returns all branch names in schema order.
func (s *Source) Branches() []string {
	return append([]string(nil), s.columns...)
}

// ActiveBranches returns the active branch names in schema order.
func (s *Source) ActiveBranches() []string {
	var out []string
	for _, name := range s.columns {
		if s.active[name] {
			out = append(out, name)
		}
	}
	return out
}

// Histogram returns the aggregated histogram with the given name.
func (s *Source) Histogram(name string) (*Histogram, bool) {
	h, ok := s.histograms[name]
	return h, ok
}

// Histograms returns the aggregated histograms sorted by name.
func (s *Source) Histograms() []*Histogram {
	names := make([]string, 0, len(s.histograms))
	for name := range s.histograms {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Histogram, len(names))
	for i, name := range names {
		out[i] = s.histograms[name]
	}
	return out
}

// entryFromRow converts a raw row to a full entry with every branch.
func (s *Source) entryFromRow(row parquet.Row) Entry {
	e := make(Entry, len(s.columns))
	for _, v := range row {
		e[s.columns[v.Column()]] = goValue(v)
	}
	return e
}

// maskEntry restricts an entry to the active branches.
func (s *Source) maskEntry(e Entry) Entry {
	out := make(Entry, len(e))
	for _, name := range s.columns {
		if s.active[name] {
			out[name] = e[name]
		}
	}
	return out
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
