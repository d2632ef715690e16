package fits

import (
	"slices"
	"testing"

	"github.com/samcharles93/multiframe/internal/fitstest"
)

func sampleHeader() *Header {
	return NewHeader(
		MustCard("HISTORY", "reduced", ""),
		MustCard("ESO DET DIT", "1.5", "integration time"),
		MustCard("TELESCOP", "'X'", "telescope"),
		MustCard("BITPIX", "16", ""),
		MustCard("EXPTIME", "30.0", ""),
		MustCard("ESO OBS NAME", "'survey'", ""),
		MustCard("FOO", "1", ""),
		MustCard("NAXIS2", "4", ""),
		MustCard("NAXIS1", "8", ""),
		MustCard("COMMENT", "b", ""),
		MustCard("COMMENT", "a", ""),
	)
}

func TestFilteredThenNegatedIsEmpty(t *testing.T) {
	t.Parallel()

	filters := []*Filter{
		MustFilter("^NAXIS", false, 0),
		MustFilter("^NAXIS", true, 0),
		MustFilter("ESO", false, SyntaxIgnoreCase),
		MustFilter("", false, 0),
		MustFilter("^HISTORY|^COMMENT", true, SyntaxExtended),
	}
	h := sampleHeader()
	for _, f := range filters {
		got := h.Filtered(f).Filtered(f.Negate())
		if got.Len() != 0 {
			t.Fatalf("filter %q negated=%v: got %d cards want 0", f.Pattern(), f.Negated(), got.Len())
		}
	}
}

func TestFilteredKeepsOrder(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	got := h.Filtered(MustFilter("^NAXIS", false, 0))
	want := []string{"NAXIS2", "NAXIS1"}
	if got.Len() != len(want) {
		t.Fatalf("got %d cards want %d", got.Len(), len(want))
	}
	for i, key := range want {
		if got.Card(i).Key() != key {
			t.Fatalf("card %d: got %s want %s", i, got.Card(i).Key(), key)
		}
	}
	if h.Filtered(nil).Len() != h.Len() {
		t.Fatalf("nil filter should keep every card")
	}
}

func TestSortDICB(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	h.Sort(nil)

	var got []string
	for _, c := range h.Cards() {
		got = append(got, c.String())
	}
	want := []string{
		MustCard("BITPIX", "16", "").String(),
		MustCard("NAXIS1", "8", "").String(),
		MustCard("NAXIS2", "4", "").String(),
		MustCard("TELESCOP", "'X'", "telescope").String(),
		MustCard("EXPTIME", "30.0", "").String(),
		MustCard("FOO", "1", "").String(),
		MustCard("ESO OBS NAME", "'survey'", "").String(),
		MustCard("ESO DET DIT", "1.5", "integration time").String(),
		"COMMENT a",
		"COMMENT b",
		"HISTORY reduced",
	}
	if !slices.Equal(got, want) {
		t.Fatalf("sort order:\ngot  %q\nwant %q", got, want)
	}
}

func TestSortIdempotentAndTotal(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	h.Sort(nil)
	first := h.Records()
	h.Sort(nil)
	if !slices.Equal(first, h.Records()) {
		t.Fatalf("second sort changed the order")
	}

	cards := h.Cards()
	for i := range cards {
		for j := i + 1; j < len(cards); j++ {
			if CompareDICB(cards[i], cards[j]) >= 0 {
				t.Fatalf("cards %d and %d not strictly ordered: %q %q", i, j, cards[i], cards[j])
			}
		}
	}
}

func TestHeaderFind(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	for _, key := range []string{"ESO DET DIT", "HIERARCH ESO DET DIT", "ESO.DET.DIT"} {
		c, ok := h.Find(key)
		if !ok {
			t.Fatalf("Find(%q): not found", key)
		}
		if c.Value() != "1.5" {
			t.Fatalf("Find(%q): got value %q", key, c.Value())
		}
	}
	if _, ok := h.Find("MISSING"); ok {
		t.Fatal("Find(MISSING) should fail")
	}
	if got := h.Index("COMMENT"); got != 9 {
		t.Fatalf("Index(COMMENT): got %d want 9", got)
	}
}

func TestHeaderEdit(t *testing.T) {
	t.Parallel()

	h := NewHeader(MustCard("A", "1", ""), MustCard("C", "3", ""))
	if err := h.Insert(1, MustCard("B", "2", "")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := h.Insert(h.Len(), MustCard("D", "4", "")); err != nil {
		t.Fatalf("Insert at end: %v", err)
	}
	if err := h.Set(0, MustCard("Z", "0", "")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := h.Remove(3); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	var keys []string
	for _, c := range h.Cards() {
		keys = append(keys, c.Key())
	}
	if want := []string{"Z", "B", "C"}; !slices.Equal(keys, want) {
		t.Fatalf("keys: got %v want %v", keys, want)
	}

	for _, err := range []error{
		h.Insert(-1, MustCard("X", "1", "")),
		h.Insert(4, MustCard("X", "1", "")),
		h.Remove(3),
		h.Remove(-1),
		h.Set(3, MustCard("X", "1", "")),
	} {
		if !Is(err, IllegalInput) {
			t.Fatalf("out of range edit: got %v want %s", err, IllegalInput)
		}
	}
}

func TestHeaderJoinAndClone(t *testing.T) {
	t.Parallel()

	a := NewHeader(MustCard("A", "1", ""))
	b := NewHeader(MustCard("B", "2", ""), MustCard("A", "3", ""))
	c := a.Clone()
	a.Join(b)
	a.Join(nil)

	if a.Len() != 3 {
		t.Fatalf("joined length: got %d want 3", a.Len())
	}
	if a.Card(2).Value() != "3" {
		t.Fatalf("joined order: got %q", a.Card(2).String())
	}
	if c.Len() != 1 {
		t.Fatalf("clone changed by join: got %d cards", c.Len())
	}
}

func TestReadHeader(t *testing.T) {
	t.Parallel()

	path := fitstest.Write(t, "in.fits",
		fitstest.Primary(fitstest.String("TELESCOP", "X", ""), "", fitstest.Value("AIRMASS", "1.2", "")),
		fitstest.Image(8, []int{4}, []byte{1, 2, 3, 4}, fitstest.String("EXTNAME", "SCI", "")),
	)
	f, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	h, err := ReadHeader(f, 0)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	// SIMPLE BITPIX NAXIS EXTEND TELESCOP AIRMASS; the blank record is skipped.
	if h.Len() != 6 {
		t.Fatalf("primary length: got %d want 6", h.Len())
	}
	if c, ok := h.Find("TELESCOP"); !ok || c.StringValue() != "X" {
		t.Fatalf("TELESCOP: got %q", c.String())
	}

	ext, err := ReadHeader(f, 1)
	if err != nil {
		t.Fatalf("ReadHeader(1): %v", err)
	}
	if c, ok := ext.Find("EXTNAME"); !ok || c.StringValue() != "SCI" {
		t.Fatalf("EXTNAME: got %q", c.String())
	}

	if _, err := ReadHeader(f, 2); !Is(err, DataNotFound) {
		t.Fatalf("ReadHeader(2): got %v want %s", err, DataNotFound)
	}
	if _, err := ReadHeader(nil, 0); !Is(err, NullInput) {
		t.Fatalf("ReadHeader(nil): got %v want %s", err, NullInput)
	}
}
