package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// histogramMetadataKey holds the JSON-encoded histogram summaries in the
// container footer.
const histogramMetadataKey = "evtkit.histograms"

// container is one open event-record file: a single flat row table plus
// named histogram summaries in the footer metadata.
type container struct {
	path    string
	f       *os.File
	pf      *parquet.File
	numRows int64
}

func openContainer(path string) (*container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &OpenError{File: path, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &OpenError{File: path, Err: err}
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, &OpenError{File: path, Err: err}
	}
	var numRows int64
	for _, g := range pf.RowGroups() {
		numRows += g.NumRows()
	}
	return &container{path: path, f: f, pf: pf, numRows: numRows}, nil
}

func (c *container) close() error {
	return c.f.Close()
}

// columns returns the leaf column names in schema order. Containers carry
// flat schemas, so field order and leaf column index coincide.
func (c *container) columns() []string {
	fields := c.pf.Schema().Fields()
	names := make([]string, len(fields))
	for i, field := range fields {
		names[i] = field.Name()
	}
	return names
}

// histograms decodes the container's histogram summaries. A container
// without the metadata key carries none.
func (c *container) histograms() (map[string]*Histogram, error) {
	raw, ok := c.pf.Lookup(histogramMetadataKey)
	if !ok {
		return map[string]*Histogram{}, nil
	}
	var hists map[string]*Histogram
	if err := json.Unmarshal([]byte(raw), &hists); err != nil {
		return nil, &OpenError{File: c.path, Err: errors.Wrap(err, "decoding histogram metadata")}
	}
	return hists, nil
}

// rowStream reads rows sequentially across a list of containers in file
// order, tracking the global entry index.
type rowStream struct {
	groups  []parquet.RowGroup
	gi      int
	rows    parquet.Rows
	buf     []parquet.Row
	i, n    int
	pending error
	err     error
}

func newRowStream(containers []*container) *rowStream {
	var groups []parquet.RowGroup
	for _, c := range containers {
		groups = append(groups, c.pf.RowGroups()...)
	}
	return &rowStream{groups: groups, buf: make([]parquet.Row, 64)}
}

// next returns the next row. The returned row is valid until the next
// call, matching the reuse semantics of the underlying reader.
func (r *rowStream) next() (parquet.Row, bool) {
	if r.err != nil {
		return nil, false
	}
	for {
		if r.i < r.n {
			row := r.buf[r.i]
			r.i++
			return row, true
		}
		if r.pending != nil {
			r.err = r.pending
			return nil, false
		}
		if r.rows == nil {
			if r.gi >= len(r.groups) {
				return nil, false
			}
			r.rows = r.groups[r.gi].Rows()
			r.gi++
		}
		n, err := r.rows.ReadRows(r.buf)
		r.i, r.n = 0, n
		if err != nil && err != io.EOF {
			if n == 0 {
				r.err = err
				_ = r.rows.Close()
				r.rows = nil
				return nil, false
			}
			r.pending = err
		}
		if n == 0 {
			if cerr := r.rows.Close(); cerr != nil && r.pending == nil {
				r.pending = cerr
			}
			r.rows = nil
			if r.pending != nil {
				r.err = r.pending
				return nil, false
			}
		}
	}
}

func (r *rowStream) close() {
	if r.rows != nil {
		_ = r.rows.Close()
		r.rows = nil
	}
}

// goValue converts a parquet value for expression evaluation and entry
// exposure.
func goValue(v parquet.Value) interface{} {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return v.String()
	default:
		return v.String()
	}
}

// WriteContainer writes a new event-record container: entries as the
// primary table in the given flat schema, histogram summaries in the
// footer metadata. Entry values are looked up by column name.
func WriteContainer(w io.Writer, schema *parquet.Schema, entries []Entry, histograms map[string]*Histogram) error {
	meta, err := json.Marshal(histograms)
	if err != nil {
		return errors.Wrap(err, "encoding histogram metadata")
	}
	pw := parquet.NewWriter(w, schema, parquet.KeyValueMetadata(histogramMetadataKey, string(meta)))

	fields := schema.Fields()
	row := make(parquet.Row, len(fields))
	for _, e := range entries {
		for ci, field := range fields {
			v, ok := e[field.Name()]
			if !ok {
				return fmt.Errorf("entry is missing column %q", field.Name())
			}
			row[ci] = parquet.ValueOf(v).Level(0, 0, ci)
		}
		if _, err := pw.WriteRows([]parquet.Row{row}); err != nil {
			return errors.Wrap(err, "writing entry")
		}
	}
	return errors.Wrap(pw.Close(), "closing container writer")
}

// WriteContainerFile is WriteContainer to a newly created file path.
func WriteContainerFile(path string, schema *parquet.Schema, entries []Entry, histograms map[string]*Histogram) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteContainer(f, schema, entries, histograms); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
