package multiframe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/multiframe/internal/fitstest"
	"github.com/samcharles93/multiframe/pkg/fits"
)

func openFixture(t *testing.T, hdus ...fitstest.HDU) *fits.File {
	t.Helper()
	f, err := fits.Open(fitstest.Write(t, "unit.fits", hdus...))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestNewDataUnitVariants(t *testing.T) {
	t.Parallel()

	f := openFixture(t,
		fitstest.Primary(),
		fitstest.Image(-32, []int{2, 2}, make([]byte, 16)),
		fitstest.BinTable(tableRowLen, 1, tableColumns, make([]byte, tableRowLen)),
		fitstest.Image(8, nil, nil),
	)

	u, err := newDataUnit(f, 0)
	require.NoError(t, err)
	require.IsType(t, &EmptyUnit{}, u)

	u, err = newDataUnit(f, 1)
	require.NoError(t, err)
	require.IsType(t, &ImageUnit{}, u)
	require.Equal(t, -32, u.Bitpix())
	require.Equal(t, []int64{2, 2}, u.Axes())
	require.EqualValues(t, 16, u.Size())
	require.EqualValues(t, fits.BlockSize, u.HeaderSize())

	u, err = newDataUnit(f, 2)
	require.NoError(t, err)
	tab, ok := u.(*TableUnit)
	require.True(t, ok, "got %T", u)
	require.Equal(t, 3, tab.Columns())
	require.Len(t, tab.Descriptors(1), 3) // TTYPE, TFORM, TUNIT
	require.Len(t, tab.Descriptors(3), 2) // no TUNIT
	require.Nil(t, tab.Descriptors(4))

	u, err = newDataUnit(f, 3)
	require.NoError(t, err)
	require.IsType(t, &EmptyUnit{}, u)
	require.Zero(t, u.Size())

	_, err = newDataUnit(f, 4)
	require.True(t, fits.Is(err, fits.DataNotFound), "got %v", err)
}

func TestNewDataUnitRejects(t *testing.T) {
	t.Parallel()

	ascii := fitstest.HDU{
		Records: []string{
			fitstest.String("XTENSION", "TABLE", ""),
			fitstest.Value("BITPIX", "8", ""),
			fitstest.Value("NAXIS", "2", ""),
			fitstest.Value("NAXIS1", "4", ""),
			fitstest.Value("NAXIS2", "1", ""),
			fitstest.Value("PCOUNT", "0", ""),
			fitstest.Value("GCOUNT", "1", ""),
			fitstest.Value("TFIELDS", "1", ""),
			fitstest.Value("TBCOL1", "1", ""),
			fitstest.String("TFORM1", "A4", ""),
		},
		Data: []byte("abcd"),
	}
	heapImage := fitstest.HDU{
		Records: []string{
			fitstest.String("XTENSION", "IMAGE", ""),
			fitstest.Value("BITPIX", "8", ""),
			fitstest.Value("NAXIS", "1", ""),
			fitstest.Value("NAXIS1", "4", ""),
			fitstest.Value("PCOUNT", "1", ""),
			fitstest.Value("GCOUNT", "1", ""),
		},
		Data: make([]byte, 5),
	}
	noForm := fitstest.HDU{
		Records: []string{
			fitstest.String("XTENSION", "BINTABLE", ""),
			fitstest.Value("BITPIX", "8", ""),
			fitstest.Value("NAXIS", "2", ""),
			fitstest.Value("NAXIS1", "4", ""),
			fitstest.Value("NAXIS2", "1", ""),
			fitstest.Value("PCOUNT", "0", ""),
			fitstest.Value("GCOUNT", "1", ""),
			fitstest.Value("TFIELDS", "2", ""),
			fitstest.String("TFORM1", "1J", ""),
		},
		Data: make([]byte, 4),
	}

	wideTable := fitstest.BinTable(4, 1, []fitstest.Column{{Name: "A", Form: "1J"}}, make([]byte, 8))
	wideTable.Records[1] = fitstest.Value("BITPIX", "16", "")

	groupedTable := fitstest.BinTable(4, 1, []fitstest.Column{{Name: "A", Form: "1J"}}, make([]byte, 8))
	groupedTable.Records[6] = fitstest.Value("GCOUNT", "2", "")

	f := openFixture(t, fitstest.Primary(), ascii, heapImage, noForm, wideTable, groupedTable)

	tests := []struct {
		position int
		code     fits.ErrorCode
	}{
		{1, fits.UnsupportedMode},
		{2, fits.TypeMismatch},
		{3, fits.TypeMismatch},
		{4, fits.TypeMismatch},
		{5, fits.TypeMismatch},
	}
	for _, tt := range tests {
		_, err := newDataUnit(f, tt.position)
		require.True(t, fits.Is(err, tt.code), "position %d: got %v want %s", tt.position, err, tt.code)
	}
}

func TestDataUnitClone(t *testing.T) {
	t.Parallel()

	empty := NewEmptyUnit()
	c, err := empty.Clone()
	require.NoError(t, err)
	require.IsType(t, &EmptyUnit{}, c)
	require.NotSame(t, empty, c)

	f := openFixture(t, fitstest.Primary(), fitstest.Image(8, []int{4}, make([]byte, 4)))
	u, err := newDataUnit(f, 1)
	require.NoError(t, err)
	_, err = u.Clone()
	require.True(t, fits.Is(err, fits.IllegalOutput), "got %v", err)
}
