package events

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// optimizePageBufferSize is the page buffer used by the optimize pass to
// coalesce physical storage blocks for downstream sequential reads.
const optimizePageBufferSize = 8 << 20

// WriteTo persists the aggregated histograms plus the currently selected
// subset of entries (or the full table when unselected) to a new output
// container at path, projected to the active branches. The output is
// replaced atomically on completion. With optimize, an extra structural
// copy pass rewrites the physical storage blocks into large coalesced
// groups purely for downstream read performance.
func (s *Source) WriteTo(path string, optimize bool) error {
	if !s.opened {
		return ErrClosed
	}
	outSchema, srcIdx, err := s.outputSchema()
	if err != nil {
		return err
	}

	if !optimize {
		return s.writeAtomic(path, outSchema, nil, func(pw *parquet.Writer) error {
			return s.writeSelectedRows(pw, srcIdx)
		})
	}

	// First pass: materialize the selected, projected entries into a
	// temporary container. Second pass: clone it into the final output
	// with coalesced storage.
	tmp := filepath.Join(os.TempDir(), "evtkit-optimize-"+uuid.NewString())
	if err := s.writePlain(tmp, outSchema, srcIdx); err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp) }()

	c, err := openContainer(tmp)
	if err != nil {
		return errors.Wrap(err, "reopening optimize pass output")
	}
	defer func() { _ = c.close() }()

	opts := []parquet.WriterOption{parquet.PageBufferSize(optimizePageBufferSize)}
	return s.writeAtomic(path, outSchema, opts, func(pw *parquet.Writer) error {
		stream := newRowStream([]*container{c})
		defer stream.close()
		for {
			row, ok := stream.next()
			if !ok {
				break
			}
			if _, err := pw.WriteRows([]parquet.Row{row}); err != nil {
				return errors.Wrap(err, "writing entry")
			}
		}
		return stream.err
	})
}

// outputSchema projects the source schema to the active branches and maps
// every output column back to its source column index.
func (s *Source) outputSchema() (*parquet.Schema, []int, error) {
	group := parquet.Group{}
	for _, field := range s.containers[0].pf.Schema().Fields() {
		if s.active[field.Name()] {
			group[field.Name()] = field
		}
	}
	if len(group) == 0 {
		return nil, nil, errors.New("no active branches to write")
	}
	outSchema := parquet.NewSchema("events", group)

	colOf := make(map[string]int, len(s.columns))
	for i, name := range s.columns {
		colOf[name] = i
	}
	outFields := outSchema.Fields()
	srcIdx := make([]int, len(outFields))
	for oi, field := range outFields {
		srcIdx[oi] = colOf[field.Name()]
	}
	return outSchema, srcIdx, nil
}

// writeSelectedRows streams the currently selected entries into pw,
// projected through srcIdx. When no selection is applied this is a
// straight structural copy of the full table.
func (s *Source) writeSelectedRows(pw *parquet.Writer, srcIdx []int) error {
	stream := newRowStream(s.containers)
	defer stream.close()
	outRow := make(parquet.Row, len(srcIdx))
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
		for oi, si := range srcIdx {
			outRow[oi] = row[si].Level(0, 0, oi)
		}
		if _, err := pw.WriteRows([]parquet.Row{outRow}); err != nil {
			return errors.Wrap(err, "writing entry")
		}
	}
	if stream.err != nil {
		return errors.Wrap(stream.err, "reading entries")
	}
	return nil
}

// writeAtomic writes a container to path, replacing it atomically on
// completion so readers never observe a partial output.
func (s *Source) writeAtomic(path string, schema *parquet.Schema, extra []parquet.WriterOption, fill func(*parquet.Writer) error) error {
	meta, err := json.Marshal(s.histograms)
	if err != nil {
		return errors.Wrap(err, "encoding histogram metadata")
	}
	t, err := renameio.TempFile("", path)
	if err != nil {
		return errors.Wrap(err, "creating output file")
	}
	defer func() { _ = t.Cleanup() }()

	opts := append([]parquet.WriterOption{
		schema,
		parquet.KeyValueMetadata(histogramMetadataKey, string(meta)),
	}, extra...)
	pw := parquet.NewWriter(t, opts...)
	if err := fill(pw); err != nil {
		return err
	}
	if err := pw.Close(); err != nil {
		return errors.Wrap(err, "closing container writer")
	}
	return errors.Wrap(t.CloseAtomicallyReplace(), "replacing output file")
}

// writePlain writes the selected, projected entries to a non-atomic
// scratch path. Used by the optimize pass.
func (s *Source) writePlain(path string, schema *parquet.Schema, srcIdx []int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating optimize pass scratch file")
	}
	pw := parquet.NewWriter(f, schema)
	if err := s.writeSelectedRows(pw, srcIdx); err != nil {
		_ = f.Close()
		return err
	}
	if err := pw.Close(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "closing container writer")
	}
	return f.Close()
}
