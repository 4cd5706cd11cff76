package events

// EventList is an ordered set of entry indices passing all selections
// applied so far. A nil *EventList means "all entries pass", which is
// distinct from an empty list (zero passing entries).
type EventList struct {
	indices []int64 // strictly ascending
}

func newEventList(indices []int64) *EventList {
	return &EventList{indices: indices}
}

// Len is the number of passing entries.
func (l *EventList) Len() int64 {
	return int64(len(l.indices))
}

// Contains reports whether the index is in the list.
func (l *EventList) Contains(idx int64) bool {
	lo, hi := 0, len(l.indices)
	for lo < hi {
		mid := (lo + hi) / 2
		if l.indices[mid] < idx {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(l.indices) && l.indices[lo] == idx
}

// Intersect returns the ordered intersection with another list. Selections
// always narrow: the result is never larger than either operand.
func (l *EventList) Intersect(other *EventList) *EventList {
	var (
		out  []int64
		i, j int
	)
	for i < len(l.indices) && j < len(other.indices) {
		switch {
		case l.indices[i] < other.indices[j]:
			i++
		case l.indices[i] > other.indices[j]:
			j++
		default:
			out = append(out, l.indices[i])
			i++
			j++
		}
	}
	return &EventList{indices: out}
}
