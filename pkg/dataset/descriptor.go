// Package dataset names catalogued file collections and plans their
// iteration: descriptors resolve file records from the metadata catalog,
// pack them into size-bounded chunks, and compose selections across
// process groups.
package dataset

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"

	"github.com/openhep/evtkit/pkg/catalog"
)

// DefaultChunkSize bounds the cumulative file size of a chunk when the
// descriptor does not set one.
const DefaultChunkSize = 2000 * datasize.MB

// Redirectors aliases the hosts of the global and regional remote-store
// redirector servers. Unrecognized redirector values are used verbatim as
// hosts.
var Redirectors = map[string]string{
	"global": "cms-xrd-global.cern.ch",
	"fnal":   "cmsxrootd.fnal.gov",
	"infn":   "xrootd-cms.infn.it",
}

// namePattern is the hierarchical three-segment dataset name format,
// "/primary/processed/tier". Wildcards are rejected separately.
var namePattern = regexp.MustCompile(`^/\S+/\S+/\S+$`)

// ConfigError reports invalid descriptor or group configuration. It is
// raised before any I/O.
type ConfigError string

func (e ConfigError) Error() string { return string(e) }

func configErrorf(format string, args ...interface{}) ConfigError {
	return ConfigError(fmt.Sprintf(format, args...))
}

// ErrRedirectorMissing is returned when file URLs must be derived from the
// catalog but the descriptor has no remote-store redirector.
var ErrRedirectorMissing = errors.New("a remote-store redirector is required to access catalogued files")

// Descriptor is the immutable configuration of one catalogued dataset.
// Create it once from analysis configuration and treat it as read-only;
// catalog results are fetched once and cached for its lifetime.
type Descriptor struct {
	// Name is the fully qualified dataset name of the form
	// "/primary_dataset/processed_dataset/data_tier". Wildcards are not
	// permitted.
	Name string

	// Instance is the catalog instance the dataset is registered with.
	// Empty means the global instance.
	Instance catalog.Instance

	// Files optionally lists explicit file paths or URLs. When set, the
	// catalog, the validity filter, and chunk packing are bypassed and
	// every file forms its own chunk.
	Files []string

	// CrossSection in picobarns. A positive value marks the dataset as a
	// simulated sample.
	CrossSection float64

	// Selection is the initial selection inherited by every chunk.
	Selection string

	// ChunkSize bounds the cumulative file size of a chunk. Zero means
	// DefaultChunkSize.
	ChunkSize datasize.ByteSize

	// IncludeInvalid also packs files the catalog marks invalid. The
	// default is to iterate valid files only.
	IncludeInvalid bool

	// Redirector is the alias or host of the remote-store redirector used
	// to build file URLs. Empty means the global redirector.
	Redirector string

	// Catalog overrides the process-wide memoized client for this
	// descriptor. Leave nil outside of tests.
	Catalog catalog.Reader

	record *catalog.DatasetRecord
	files  []catalog.FileRecord
}

// Validate checks the descriptor before any network call.
func (d *Descriptor) Validate() error {
	if !namePattern.MatchString(d.Name) {
		return configErrorf("dataset name %q is not a fully qualified /primary/processed/tier name", d.Name)
	}
	if strings.Contains(d.Name, "*") {
		return configErrorf("dataset name %q must not contain wildcard characters", d.Name)
	}
	if d.Instance != "" && !d.Instance.Valid() {
		return configErrorf("unrecognized catalog instance %q", d.Instance)
	}
	return nil
}

// DataType is "mc" for simulated samples and "data" otherwise.
func (d *Descriptor) DataType() string {
	if d.CrossSection > 0 {
		return "mc"
	}
	return "data"
}

func (d *Descriptor) instance() catalog.Instance {
	if d.Instance == "" {
		return catalog.InstanceGlobal
	}
	return d.Instance
}

func (d *Descriptor) chunkSize() int64 {
	if d.ChunkSize == 0 {
		return int64(DefaultChunkSize)
	}
	return int64(d.ChunkSize)
}

// redirectorHost resolves the descriptor's redirector through the alias
// table, passing unrecognized values through verbatim.
func (d *Descriptor) redirectorHost() (string, error) {
	r := d.Redirector
	if r == "" {
		r = "global"
	}
	if host, ok := Redirectors[r]; ok {
		return host, nil
	}
	return r, nil
}

// FileURL builds the access URL of a logical file name through the
// descriptor's redirector, as "root://host//logical_name".
func (d *Descriptor) FileURL(logicalName string) (string, error) {
	host, err := d.redirectorHost()
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(logicalName, "/") {
		logicalName = "/" + logicalName
	}
	return "root://" + host + "/" + logicalName, nil
}

func (d *Descriptor) catalogReader() (catalog.Reader, error) {
	if d.Catalog != nil {
		return d.Catalog, nil
	}
	return catalog.ForInstance(d.instance())
}

// DatasetRecord returns the dataset's catalog registration, fetched once
// and cached for the descriptor's lifetime.
func (d *Descriptor) DatasetRecord(ctx context.Context) (catalog.DatasetRecord, error) {
	if d.record != nil {
		return *d.record, nil
	}
	if err := d.Validate(); err != nil {
		return catalog.DatasetRecord{}, err
	}
	reader, err := d.catalogReader()
	if err != nil {
		return catalog.DatasetRecord{}, err
	}
	record, err := reader.DatasetRecord(ctx, d.Name)
	if err != nil {
		return catalog.DatasetRecord{}, err
	}
	d.record = &record
	return record, nil
}

// FileRecords returns the dataset's file records in canonical catalog
// order, fetched once and cached for the descriptor's lifetime.
func (d *Descriptor) FileRecords(ctx context.Context) ([]catalog.FileRecord, error) {
	if d.files != nil {
		return d.files, nil
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	reader, err := d.catalogReader()
	if err != nil {
		return nil, err
	}
	records, err := reader.FileRecords(ctx, d.Name)
	if err != nil {
		return nil, err
	}
	d.files = records
	return records, nil
}

// Chunks returns the lazy chunk sequence of the dataset. With explicit
// Files every file forms its own chunk; otherwise catalog records are
// resolved, filtered by validity, and greedily packed against the
// descriptor's chunk-size bound.
func (d *Descriptor) Chunks(ctx context.Context) (ChunkIterator, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.Files != nil {
		return &fileListIterator{files: d.Files, selection: d.Selection}, nil
	}
	host, err := d.redirectorHost()
	if err != nil {
		return nil, err
	}
	if host == "" {
		return nil, ErrRedirectorMissing
	}
	records, err := d.FileRecords(ctx)
	if err != nil {
		return nil, err
	}
	urlFor := func(lfn string) string {
		if !strings.HasPrefix(lfn, "/") {
			lfn = "/" + lfn
		}
		return "root://" + host + "/" + lfn
	}
	return newPacker(records, d.chunkSize(), !d.IncludeInvalid, urlFor, d.Selection), nil
}

// withSelection returns a copy of the descriptor with the extra selection
// composed onto its own. Cached catalog results carry over; they are
// immutable once fetched.
func (d *Descriptor) withSelection(expr string) *Descriptor {
	copied := *d
	copied.Selection = CombineSelections(d.Selection, expr)
	return &copied
}

// fileListIterator yields one chunk per explicitly listed file. File sizes
// are unknown for explicit lists, so no packing is attempted.
type fileListIterator struct {
	files     []string
	selection string
	i         int
	cur       Chunk
}

func (it *fileListIterator) Next() bool {
	if it.i >= len(it.files) {
		return false
	}
	it.cur = Chunk{URLs: []string{it.files[it.i]}, Selection: it.selection}
	it.i++
	return true
}

func (it *fileListIterator) At() Chunk { return it.cur }

func (it *fileListIterator) Err() error { return nil }
