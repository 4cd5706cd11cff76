package events

import (
	"fmt"
)

// Histogram is a named summary carried alongside the event table, most
// commonly generator-level count and weight sums binned per category.
type Histogram struct {
	Name   string    `json:"name"`
	Edges  []float64 `json:"edges,omitempty"`
	Counts []float64 `json:"counts"`
}

// Clone returns a deep copy.
func (h *Histogram) Clone() *Histogram {
	out := &Histogram{Name: h.Name}
	if h.Edges != nil {
		out.Edges = append([]float64(nil), h.Edges...)
	}
	out.Counts = append([]float64(nil), h.Counts...)
	return out
}

// Add accumulates another histogram bin-wise. Both operands must have the
// same number of bins.
func (h *Histogram) Add(other *Histogram) error {
	if len(other.Counts) != len(h.Counts) {
		return fmt.Errorf("histogram %q has %d bins, expected %d", other.Name, len(other.Counts), len(h.Counts))
	}
	for i, c := range other.Counts {
		h.Counts[i] += c
	}
	return nil
}

// Sum is the integral over all bins.
func (h *Histogram) Sum() float64 {
	var total float64
	for _, c := range h.Counts {
		total += c
	}
	return total
}

// mergeHistograms aggregates same-named histograms bin-wise across the
// per-file sets. The first file defines the expected set; every file must
// carry the same names with identical binning.
func mergeHistograms(perFile []map[string]*Histogram, files []string) (map[string]*Histogram, error) {
	if len(perFile) == 0 {
		return map[string]*Histogram{}, nil
	}
	merged := make(map[string]*Histogram, len(perFile[0]))
	for name, h := range perFile[0] {
		merged[name] = h.Clone()
	}
	for i, set := range perFile[1:] {
		for name, agg := range merged {
			h, ok := set[name]
			if !ok {
				return nil, &OpenError{File: files[i+1], Err: fmt.Errorf("missing histogram %q", name)}
			}
			if err := agg.Add(h); err != nil {
				return nil, &OpenError{File: files[i+1], Err: err}
			}
		}
	}
	return merged, nil
}
