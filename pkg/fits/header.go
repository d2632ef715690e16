package fits

import (
	"slices"
	"strings"
)

// Header is an ordered sequence of cards. Insertion order is write order.
type Header struct {
	cards []Card
}

// NewHeader returns a header holding cards in the given order.
func NewHeader(cards ...Card) *Header {
	return &Header{cards: slices.Clone(cards)}
}

// ReadHeader reads the records of the HDU at position, in file order. END
// and all-blank records are not included.
func ReadHeader(f *File, position int) (*Header, error) {
	const op = "fits.ReadHeader"

	if f == nil {
		return nil, NewError(NullInput, op, "nil file")
	}
	hdu, err := f.HDU(position)
	if err != nil {
		return nil, WrapError(DataNotFound, op, err, "%s: position %d", f.Path(), position)
	}

	h := &Header{cards: make([]Card, 0, len(hdu.records))}
	for _, rec := range hdu.records {
		if strings.TrimSpace(rec) == "" {
			continue
		}
		h.cards = append(h.cards, Card{rec: rec})
	}
	return h, nil
}

// Filtered returns a new header with the cards of h whose record passes f,
// in the same order. A nil filter copies h.
func (h *Header) Filtered(f *Filter) *Header {
	out := &Header{cards: make([]Card, 0, h.Len())}
	if h == nil {
		return out
	}
	for _, c := range h.cards {
		if f.Apply(c.Record()) {
			out.cards = append(out.cards, c)
		}
	}
	return out
}

// Join appends the cards of other after those of h.
func (h *Header) Join(other *Header) {
	if other == nil {
		return
	}
	h.cards = append(h.cards, other.cards...)
}

// Clone returns an independent copy of h.
func (h *Header) Clone() *Header {
	if h == nil {
		return NewHeader()
	}
	return NewHeader(h.cards...)
}

// Len returns the number of cards.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.cards)
}

// Card returns the card at i. It panics if i is out of range.
func (h *Header) Card(i int) Card { return h.cards[i] }

// Cards returns a copy of the cards in order.
func (h *Header) Cards() []Card { return slices.Clone(h.cards) }

// Records returns the formatted records in order.
func (h *Header) Records() []string {
	out := make([]string, len(h.cards))
	for i, c := range h.cards {
		out[i] = c.Record()
	}
	return out
}

// Index returns the position of the first card with the given keyword, or -1.
// Hierarchical names may be given with or without the HIERARCH marker.
func (h *Header) Index(key string) int {
	want := normalizeKey(key)
	for i, c := range h.cards {
		if c.Key() == want {
			return i
		}
	}
	return -1
}

// Find returns the first card with the given keyword.
func (h *Header) Find(key string) (Card, bool) {
	if i := h.Index(key); i >= 0 {
		return h.cards[i], true
	}
	return Card{}, false
}

// Append adds cards at the end.
func (h *Header) Append(cards ...Card) {
	h.cards = append(h.cards, cards...)
}

// Insert places c at position i, shifting later cards. i may equal Len.
func (h *Header) Insert(i int, c Card) error {
	if i < 0 || i > len(h.cards) {
		return NewError(IllegalInput, "fits.Header.Insert", "position %d out of range [0,%d]", i, len(h.cards))
	}
	h.cards = slices.Insert(h.cards, i, c)
	return nil
}

// Remove deletes the card at position i.
func (h *Header) Remove(i int) error {
	if i < 0 || i >= len(h.cards) {
		return NewError(IllegalInput, "fits.Header.Remove", "position %d out of range [0,%d)", i, len(h.cards))
	}
	h.cards = slices.Delete(h.cards, i, i+1)
	return nil
}

// Set replaces the card at position i.
func (h *Header) Set(i int, c Card) error {
	if i < 0 || i >= len(h.cards) {
		return NewError(IllegalInput, "fits.Header.Set", "position %d out of range [0,%d)", i, len(h.cards))
	}
	h.cards[i] = c
	return nil
}

// Sort orders the cards with cmp, or with CompareDICB if cmp is nil. Cards
// that compare equal keep their relative order.
func (h *Header) Sort(cmp func(a, b Card) int) {
	if cmp == nil {
		cmp = CompareDICB
	}
	slices.SortStableFunc(h.cards, cmp)
}
