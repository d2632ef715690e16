package fits

import "strings"

// rankEntry assigns a rank to every keyword starting with prefix.
type rankEntry struct {
	prefix string
	rank   int
}

// Ranks of keywords not listed in the tables. Unlisted standard keywords go
// after the listed ones and before the hierarchical block; unlisted
// hierarchical keywords close it.
const (
	rankPrimaryDefault    = 500
	rankHierarchDefault   = 900
	rankCommentary        = 950
	rankCommentaryHistory = 960
)

// primaryRanking orders standard keywords following the ESO Data Interface
// Control Board layout.
var primaryRanking = []rankEntry{
	{"SIMPLE", 100},
	{"XTENSION", 100},
	{"BITPIX", 101},
	{"NAXIS", 102},
	{"EXTEND", 103},
	{"PCOUNT", 104},
	{"GCOUNT", 105},
	{"TFIELDS", 106},
	{"TTYPE", 107},
	{"TFORM", 107},
	{"TUNIT", 107},
	{"TDISP", 107},
	{"TDIM", 107},
	{"TSCAL", 107},
	{"TZERO", 107},
	{"TNULL", 107},
	{"THEAP", 108},
	{"EXTNAME", 110},
	{"EXTVER", 111},
	{"EXTLEVEL", 112},
	{"INHERIT", 113},
	{"BSCALE", 120},
	{"BZERO", 121},
	{"BUNIT", 122},
	{"BLANK", 123},
	{"DATAMIN", 124},
	{"DATAMAX", 125},
	{"ORIGIN", 200},
	{"DATE", 201},
	{"TELESCOP", 202},
	{"INSTRUME", 203},
	{"OBJECT", 204},
	{"RA", 205},
	{"DEC", 206},
	{"EQUINOX", 207},
	{"RADESYS", 208},
	{"RADECSYS", 208},
	{"EXPTIME", 209},
	{"MJD-OBS", 210},
	{"MJD-END", 211},
	{"DATE-OBS", 212},
	{"UTC", 213},
	{"LST", 214},
	{"PI-COI", 215},
	{"OBSERVER", 216},
	{"WCSAXES", 300},
	{"CTYPE", 301},
	{"CUNIT", 302},
	{"CRVAL", 303},
	{"CRPIX", 304},
	{"CDELT", 305},
	{"CROTA", 306},
	{"CD1_", 307},
	{"CD2_", 307},
	{"CD3_", 307},
	{"PC1_", 308},
	{"PC2_", 308},
	{"PC3_", 308},
	{"PV1_", 309},
	{"PV2_", 309},
	{"LONPOLE", 310},
	{"LATPOLE", 311},
	{"CHECKSUM", 400},
	{"DATASUM", 401},
	{"CHECKVER", 402},
	{"COMMENT", rankCommentary},
	{"HISTORY", rankCommentaryHistory},
}

// hierarchRanking orders hierarchical keywords by their category. Prefixes
// are matched after the HIERARCH marker has been removed.
var hierarchRanking = []rankEntry{
	{"ESO OBS", 600},
	{"ESO TPL", 610},
	{"ESO GEN", 620},
	{"ESO TEL", 630},
	{"ESO ADA", 640},
	{"ESO INS", 650},
	{"ESO DET", 660},
	{"ESO OCS", 670},
	{"ESO SEQ", 680},
	{"ESO DPR", 690},
	{"ESO PRO", 700},
	{"ESO DRS", 710},
	{"ESO QC", 720},
	{"ESO LOG", 730},
}

// lookupRank returns the rank of the longest matching prefix in table.
func lookupRank(table []rankEntry, key string, fallback int) int {
	rank, best := fallback, -1
	for _, e := range table {
		if len(e.prefix) > best && strings.HasPrefix(key, e.prefix) {
			rank, best = e.rank, len(e.prefix)
		}
	}
	return rank
}

// Rank returns the DICB rank of a card.
func Rank(c Card) int {
	key := c.Key()
	if name, ok := strings.CutPrefix(key, HierarchMarker); ok {
		return lookupRank(hierarchRanking, name, rankHierarchDefault)
	}
	if key == "" {
		return rankCommentary
	}
	return lookupRank(primaryRanking, key, rankPrimaryDefault)
}

// CompareDICB orders cards by DICB rank, then by their raw record. No two
// distinct records compare equal.
func CompareDICB(a, b Card) int {
	ra, rb := Rank(a), Rank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	return strings.Compare(a.Record(), b.Record())
}
