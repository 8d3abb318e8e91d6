package marketdata

import "sort"

// symbolSet counts interest per symbol. A symbol is on the wire while its count is above zero.
// Guarded by the client's mutex.
type symbolSet struct {
	refs map[string]int
}

func newSymbolSet() *symbolSet {
	return &symbolSet{refs: make(map[string]int)}
}

// Add registers interest and returns the symbols that were not wanted before.
func (s *symbolSet) Add(symbols ...string) []string {
	var added []string
	for _, sym := range symbols {
		if s.refs[sym] == 0 {
			added = append(added, sym)
		}
		s.refs[sym]++
	}
	return added
}

// Remove drops interest and returns the symbols nobody wants anymore.
func (s *symbolSet) Remove(symbols ...string) []string {
	var removed []string
	for _, sym := range symbols {
		n, ok := s.refs[sym]
		if !ok {
			continue
		}
		if n <= 1 {
			delete(s.refs, sym)
			removed = append(removed, sym)
			continue
		}
		s.refs[sym] = n - 1
	}
	return removed
}

func (s *symbolSet) Has(symbol string) bool {
	return s.refs[symbol] > 0
}

// Symbols returns the wanted symbols sorted.
func (s *symbolSet) Symbols() []string {
	out := make([]string, 0, len(s.refs))
	for sym := range s.refs {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *symbolSet) Len() int {
	return len(s.refs)
}
