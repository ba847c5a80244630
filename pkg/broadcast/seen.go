package broadcast

// seenSet is a bounded set of event ids used for duplicate suppression.
// When full, the oldest id is evicted in insertion order.
type seenSet struct {
	capacity int
	order    []string
	index    map[string]struct{}
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 1024
	}
	return &seenSet{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		index:    make(map[string]struct{}, capacity),
	}
}

// add returns false when the id was already present.
func (s *seenSet) add(id string) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.index, oldest)
	}
	s.order = append(s.order, id)
	s.index[id] = struct{}{}
	return true
}
