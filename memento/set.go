package memento

// Set holds the mementos of one chunk instance on one connection direction,
// one slot per chunk op. A nil slot means no memento.
//
// A Set is owned by the thread driving that connection.
type Set struct {
	slots [][]byte
}

// NewSet creates a set with n empty slots.
func NewSet(n int) *Set {
	return &Set{slots: make([][]byte, n)}
}

// Len returns the number of slots.
func (s *Set) Len() int {
	return len(s.slots)
}

// Get returns the memento in slot i, or nil when there is none or i is out of range.
func (s *Set) Get(i int) []byte {
	if i < 0 || i >= len(s.slots) {
		return nil
	}

	return s.slots[i]
}

// Put copies data into slot i, growing the set when needed.
func (s *Set) Put(i int, data []byte) {
	if i >= len(s.slots) {
		s.slots = append(s.slots, make([][]byte, i+1-len(s.slots))...)
	}
	s.slots[i] = append(s.slots[i][:0], data...)
}

// Clear drops the memento in slot i.
func (s *Set) Clear(i int) {
	if i >= 0 && i < len(s.slots) {
		s.slots[i] = nil
	}
}

// Reset drops every memento, keeping the slot count.
func (s *Set) Reset() {
	for i := range s.slots {
		s.slots[i] = nil
	}
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	c := NewSet(len(s.slots))
	for i, b := range s.slots {
		if b != nil {
			c.slots[i] = append([]byte(nil), b...)
		}
	}

	return c
}
