package pools

import "strings"

// ShownSet holds the addresses of pools already presented to a user session.
// A nil ShownSet is empty and safe to read.
type ShownSet map[string]struct{}

// NewShownSet creates a set from addresses, skipping blanks.
func NewShownSet(addresses ...string) ShownSet {
	s := make(ShownSet, len(addresses))
	for _, a := range addresses {
		s.Add(a)
	}
	return s
}

// ParseShownSet builds a set from a comma separated address list.
func ParseShownSet(csv string) ShownSet {
	if strings.TrimSpace(csv) == "" {
		return ShownSet{}
	}
	return NewShownSet(strings.Split(csv, ",")...)
}

// Add records address as shown.
func (s ShownSet) Add(address string) {
	address = strings.TrimSpace(address)
	if address == "" {
		return
	}
	s[address] = struct{}{}
}

// Has reports whether address was already shown.
func (s ShownSet) Has(address string) bool {
	_, ok := s[address]
	return ok
}

// Len returns the number of shown addresses.
func (s ShownSet) Len() int {
	return len(s)
}
