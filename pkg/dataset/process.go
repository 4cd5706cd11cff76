package dataset

import (
	"context"
)

// Process groups the datasets of one physics process under a shared
// selection: simulated samples partitioned into kinematic bins, samples
// and their extensions, or the official datasets of a run period.
// Membership is unique by dataset name.
type Process struct {
	descriptors []*Descriptor
}

// NewProcess builds a process group from pairwise-distinct descriptors.
func NewProcess(descriptors ...*Descriptor) (*Process, error) {
	seen := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		if _, ok := seen[d.Name]; ok {
			return nil, configErrorf("duplicate dataset %q in process group", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return &Process{descriptors: descriptors}, nil
}

// Datasets returns the member descriptors in insertion order.
func (p *Process) Datasets() []*Descriptor {
	out := make([]*Descriptor, len(p.descriptors))
	copy(out, p.descriptors)
	return out
}

// Select returns a new group with the selection composed onto every
// member. The receiver is never mutated.
func (p *Process) Select(expr string) *Process {
	descriptors := make([]*Descriptor, len(p.descriptors))
	for i, d := range p.descriptors {
		descriptors[i] = d.withSelection(expr)
	}
	return &Process{descriptors: descriptors}
}

// Chunks flattens the group into one lazy chunk sequence, iterating each
// member's chunks fully, in insertion order, before moving to the next.
// The sequence halts at the first member error.
func (p *Process) Chunks(ctx context.Context) ChunkIterator {
	return &processIterator{ctx: ctx, descriptors: p.descriptors}
}

type processIterator struct {
	ctx         context.Context
	descriptors []*Descriptor
	i           int
	cur         ChunkIterator
	err         error
}

func (it *processIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		if it.cur == nil {
			if it.i >= len(it.descriptors) {
				return false
			}
			cur, err := it.descriptors[it.i].Chunks(it.ctx)
			if err != nil {
				it.err = err
				return false
			}
			it.cur = cur
			it.i++
		}
		if it.cur.Next() {
			return true
		}
		if err := it.cur.Err(); err != nil {
			it.err = err
			return false
		}
		it.cur = nil
	}
}

func (it *processIterator) At() Chunk {
	return it.cur.At()
}

func (it *processIterator) Err() error { return it.err }
