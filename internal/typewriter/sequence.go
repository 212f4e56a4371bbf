// Package typewriter reveals text one rune at a time. A Sequence is the pure
// iterator over growing prefixes; a Revealer drives one from a ticker.
package typewriter

// Sequence yields growing prefixes of a target string, one rune per Next.
// It is not safe for concurrent use.
type Sequence struct {
	runes    []rune
	n        int
	canceled bool
}

// NewSequence creates a Sequence positioned at the empty prefix.
func NewSequence(target string) *Sequence {
	return &Sequence{runes: []rune(target)}
}

// Next advances by one rune and returns the new prefix. It returns false
// once the target is fully revealed or the sequence was canceled.
func (s *Sequence) Next() (string, bool) {
	if s.canceled || s.n >= len(s.runes) {
		return s.Current(), false
	}
	s.n++
	return s.Current(), true
}

// Current returns the prefix revealed so far.
func (s *Sequence) Current() string {
	return string(s.runes[:s.n])
}

// Done reports whether Next will yield nothing further.
func (s *Sequence) Done() bool {
	return s.canceled || s.n >= len(s.runes)
}

// Cancel stops the sequence at its current prefix.
func (s *Sequence) Cancel() {
	s.canceled = true
}

// Target returns the full string being revealed.
func (s *Sequence) Target() string {
	return string(s.runes)
}
