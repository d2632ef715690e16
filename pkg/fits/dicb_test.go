package fits

import "testing"

func TestRank(t *testing.T) {
	t.Parallel()

	tests := []struct {
		card Card
		want int
	}{
		{MustCard("SIMPLE", "T", ""), 100},
		{MustCard("XTENSION", "'IMAGE'", ""), 100},
		{MustCard("NAXIS2", "3", ""), 102},
		{MustCard("TFORM12", "'1J'", ""), 107},
		{MustCard("DATE", "'2020-01-01'", ""), 201},
		{MustCard("DATE-OBS", "'2020-01-01'", ""), 212},
		{MustCard("CD1_1", "1.0", ""), 307},
		{MustCard("MYKEY", "1", ""), rankPrimaryDefault},
		{MustCard("ESO OBS NAME", "'x'", ""), 600},
		{MustCard("ESO DET CHIP1 ID", "'x'", ""), 660},
		{MustCard("ESO QC BIAS MEAN", "1", ""), 720},
		{MustCard("ESO PRO CATG", "'x'", ""), 700},
		{MustCard("OTHER THING", "1", ""), rankHierarchDefault},
		{MustCard("COMMENT", "text", ""), rankCommentary},
		{MustCard("HISTORY", "text", ""), rankCommentaryHistory},
		{CardFromRecord("        blank keyword"), rankCommentary},
	}
	for _, tt := range tests {
		if got := Rank(tt.card); got != tt.want {
			t.Fatalf("Rank(%q): got %d want %d", tt.card.String(), got, tt.want)
		}
	}
}

func TestCompareDICB(t *testing.T) {
	t.Parallel()

	bitpix := MustCard("BITPIX", "8", "")
	naxis := MustCard("NAXIS", "0", "")
	if CompareDICB(bitpix, naxis) >= 0 || CompareDICB(naxis, bitpix) <= 0 {
		t.Fatalf("BITPIX must sort before NAXIS")
	}

	a := MustCard("COMMENT", "a", "")
	b := MustCard("COMMENT", "b", "")
	if CompareDICB(a, b) >= 0 {
		t.Fatalf("equal ranks must fall back to the record text")
	}
	if CompareDICB(a, a) != 0 {
		t.Fatalf("a card must compare equal to itself")
	}
}
