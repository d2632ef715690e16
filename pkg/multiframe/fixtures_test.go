package multiframe

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/multiframe/internal/fitstest"
	"github.com/samcharles93/multiframe/pkg/fits"
)

var tableColumns = []fitstest.Column{
	{Name: "FLUX", Form: "1J", Unit: "adu"},
	{Name: "RATE", Form: "1E", Unit: "adu/s"},
	{Name: "LABEL", Form: "10A"},
}

const tableRowLen = 4 + 4 + 10

// observation writes a source file with a primary header and three
// extensions: SCI (16-bit 3x2 image), ERR (8-bit 4-pixel image) and TAB (a
// three column binary table).
func observation(t *testing.T, dir, name string, primaryExtra ...string) string {
	t.Helper()

	primary := fitstest.Primary(append([]string{
		fitstest.String("TELESCOP", "X", "telescope name"),
		fitstest.String("INSTRUME", "Y", "instrument"),
		fitstest.Value("BSCALE", "1.0", ""),
		fitstest.Value("BZERO", "0.0", ""),
		fitstest.String("OBJECT", "M31", ""),
	}, primaryExtra...)...)

	sci := fitstest.Image(16, []int{3, 2}, fitstest.Sequence(12, 1),
		fitstest.String("EXTNAME", "SCI", "extension name"),
		fitstest.Value("EXTVER", "1", ""),
		fitstest.Value("EXPTIME", "30.0", "exposure"),
		fitstest.String("ERRDATA", "ERR", "error extension"),
	)
	errs := fitstest.Image(8, []int{4}, fitstest.Sequence(4, 50),
		fitstest.String("EXTNAME", "ERR", ""),
		fitstest.Value("BZERO", "128", ""),
		fitstest.String("SCIDATA", "SCI", "science extension"),
	)

	table := fitstest.BinTable(tableRowLen, 2, tableColumns, fitstest.Sequence(2*tableRowLen, 7),
		fitstest.String("EXTNAME", "TAB", ""),
	)
	// Non-standard wording that must be regenerated on output.
	table.Records[1] = fitstest.Value("BITPIX", "8", "bits")
	table.Records[3] = fitstest.Value("NAXIS1", fmt.Sprint(tableRowLen), "row width")

	return fitstest.WriteIn(t, dir, name, primary, sci, errs, table)
}

func newContainer(t *testing.T, head string, id string, filter *fits.Filter) *Container {
	t.Helper()
	c, err := New(NewFrame(head), id, filter, WithLogHandler(nil))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

func keys(h *fits.Header) []string {
	var out []string
	for _, c := range h.Cards() {
		out = append(out, c.Key())
	}
	return out
}

// readBack opens path with an independent FITS reader.
func readBack(t *testing.T, path string) *fitsio.File {
	t.Helper()
	r, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	f, err := fitsio.Open(r)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func headerValue(h fitsio.HDU, key string) string {
	c := h.Header().Get(key)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(c.Value))
}
