package events

// EntryIterator is a lazy, pull-based sequence of entries in file order.
// Each SelectedEntries call produces a fresh iterator starting from the
// beginning.
type EntryIterator struct {
	src    *Source
	stream *rowStream
	idx    int64
	cur    Entry
	err    error
	closed bool
}

// SelectedEntries returns an iterator over the entries passing all
// selections applied so far, or over every entry when no selection has
// been applied. Entries expose only the active branches.
func (s *Source) SelectedEntries() (*EntryIterator, error) {
	if !s.opened {
		return nil, ErrClosed
	}
	return &EntryIterator{
		src:    s,
		stream: newRowStream(s.containers),
		idx:    -1,
	}, nil
}

func (it *EntryIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	for {
		row, ok := it.stream.next()
		if !ok {
			it.err = it.stream.err
			it.close()
			return false
		}
		it.idx++
		if it.src.eventlist != nil && !it.src.eventlist.Contains(it.idx) {
			continue
		}
		it.cur = it.src.maskEntry(it.src.entryFromRow(row))
		return true
	}
}

// At returns the current entry. It is valid after a true Next.
func (it *EntryIterator) At() Entry { return it.cur }

// Index returns the global index of the current entry.
func (it *EntryIterator) Index() int64 { return it.idx }

func (it *EntryIterator) Err() error { return it.err }

// Close releases the iterator's readers. Iterators also release
// themselves when exhausted.
func (it *EntryIterator) Close() error {
	it.close()
	return nil
}

func (it *EntryIterator) close() {
	if !it.closed {
		it.stream.close()
		it.closed = true
	}
}
