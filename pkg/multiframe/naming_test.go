package multiframe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/multiframe/pkg/fits"
)

func TestComposeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		mode               NamingMode
		id, name0, extname string
		want               string
	}{
		{"prefix", NamePrefix, "RAW.", "", "SCI", "RAW.SCI"},
		{"prefix without extname", NamePrefix, "RAW", "", "", "RAW"},
		{"set", NameSet, "OUT", "CAT", "SCI", "OUT"},
		{"set with empty id", NameSet, "", "CAT", "SCI", ""},
		{"join", NameJoin, ".", "CAT", "SCI", "CAT.SCI"},
		{"join without extname", NameJoin, ".", "CAT", "", "CAT"},
		{"join with empty id", NameJoin, "", "CAT", "SCI", "CATSCI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComposeName(tt.mode, tt.id, tt.name0, tt.extname)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestComposeNameErrors(t *testing.T) {
	t.Parallel()

	_, err := ComposeName(NamePrefix, "", "CAT", "SCI")
	require.True(t, fits.Is(err, fits.IllegalInput), "got %v", err)

	_, err = ComposeName(NameJoin, ".", "", "SCI")
	require.True(t, fits.Is(err, fits.IllegalInput), "got %v", err)

	_, err = ComposeName(NamingMode(7), "id", "CAT", "SCI")
	require.True(t, fits.Is(err, fits.UnsupportedMode), "got %v", err)
}

func TestParseNamingMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]NamingMode{
		"":       NameSet,
		"set":    NameSet,
		"Prefix": NamePrefix,
		" JOIN ": NameJoin,
	} {
		got, err := ParseNamingMode(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseNamingMode("append")
	require.True(t, fits.Is(err, fits.UnsupportedMode), "got %v", err)

	require.Equal(t, "join", NameJoin.String())
	require.Equal(t, "NamingMode(5)", NamingMode(5).String())
}

func TestRewriteLinks(t *testing.T) {
	t.Parallel()

	h := fits.NewHeader(
		fits.MustCard("ERRDATA", "'ERR'", "error extension"),
		fits.MustCard("QUALDATA", "'QUAL'", ""),
		fits.MustCard("NOTALINK", "'SCI'", ""),
		fits.MustCard("NUMERIC", "3", ""),
	)

	require.NoError(t, rewriteLinks(h, []string{"ERRDATA", "NUMERIC", "MISSING"}, NameJoin, ".", "CAT"))
	c, ok := h.Find("ERRDATA")
	require.True(t, ok)
	require.Equal(t, "CAT.ERR", c.StringValue())
	require.Equal(t, "error extension", c.Comment())

	n, _ := h.Find("NUMERIC")
	require.Equal(t, "3", n.Value())
	other, _ := h.Find("NOTALINK")
	require.Equal(t, "SCI", other.StringValue())

	require.NoError(t, rewriteLinks(h, []string{"QUALDATA"}, NamePrefix, "RAW.", ""))
	q, _ := h.Find("QUALDATA")
	require.Equal(t, "RAW.QUAL", q.StringValue())

	require.NoError(t, rewriteLinks(h, []string{"QUALDATA"}, NameSet, "OUT", ""))
	q, _ = h.Find("QUALDATA")
	require.Equal(t, "RAW.QUAL", q.StringValue())
}
