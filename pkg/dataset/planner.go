package dataset

import (
	"github.com/openhep/evtkit/pkg/catalog"
)

// Chunk is a size-bounded grouping of resolved file URLs presented as one
// iteration unit. It inherits the selection of the descriptor it was
// packed for.
type Chunk struct {
	URLs      []string
	SizeBytes int64
	Selection string
}

// ChunkIterator is a pull-based sequence of chunks. Chunks are produced
// lazily so very large datasets never materialize their whole plan.
type ChunkIterator interface {
	Next() bool
	At() Chunk
	Err() error
}

// Pack returns a lazy sequence of chunks over catalog-ordered file
// records. Records are taken in input order and greedily accumulated: a
// record that would push the running chunk past boundBytes closes the
// running chunk and starts the next one. A single record larger than the
// bound still forms its own one-file chunk; it is never dropped or split.
// Empty chunks are never emitted. Packing is deterministic for identical
// input and bound.
func Pack(records []catalog.FileRecord, boundBytes int64, validOnly bool) ChunkIterator {
	return newPacker(records, boundBytes, validOnly, func(lfn string) string { return lfn }, "")
}

type packer struct {
	records   []catalog.FileRecord
	bound     int64
	validOnly bool
	urlFor    func(string) string
	selection string

	i   int
	cur Chunk
}

func newPacker(records []catalog.FileRecord, bound int64, validOnly bool, urlFor func(string) string, selection string) *packer {
	return &packer{
		records:   records,
		bound:     bound,
		validOnly: validOnly,
		urlFor:    urlFor,
		selection: selection,
	}
}

func (p *packer) Next() bool {
	var (
		urls []string
		size int64
	)
	for ; p.i < len(p.records); p.i++ {
		rec := p.records[p.i]
		if p.validOnly && !rec.Valid {
			continue
		}
		if size+rec.SizeBytes > p.bound && len(urls) > 0 {
			break
		}
		urls = append(urls, p.urlFor(rec.LogicalName))
		size += rec.SizeBytes
	}
	if len(urls) == 0 {
		return false
	}
	p.cur = Chunk{URLs: urls, SizeBytes: size, Selection: p.selection}
	return true
}

func (p *packer) At() Chunk { return p.cur }

func (p *packer) Err() error { return nil }
