// Package fitstest builds raw FITS files for tests. Records are written as
// given, so fixtures do not depend on the formatter under test.
package fitstest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	blockSize = 2880
	cardSize  = 80
)

// HDU is a header (raw records, END excluded) and its unpadded payload.
type HDU struct {
	Records []string
	Data    []byte
}

// Column describes one binary table column.
type Column struct {
	Name string
	Form string
	Unit string
}

// Value formats a fixed-format value record.
func Value(key, value, comment string) string {
	rec := fmt.Sprintf("%-8s= %20s", key, value)
	if comment != "" {
		rec += " / " + comment
	}
	return rec
}

// String formats a string value record.
func String(key, value, comment string) string {
	rec := fmt.Sprintf("%-8s= '%-8s'", key, strings.ReplaceAll(value, "'", "''"))
	if comment != "" {
		rec += fmt.Sprintf("%*s / %s", max(0, 30-len(rec)), "", comment)
	}
	return rec
}

// Primary returns a data-less primary HDU followed by extra records.
func Primary(extra ...string) HDU {
	recs := []string{
		Value("SIMPLE", "T", "conforms to FITS standard"),
		Value("BITPIX", "8", "array data type"),
		Value("NAXIS", "0", "number of array dimensions"),
		Value("EXTEND", "T", ""),
	}
	return HDU{Records: append(recs, extra...)}
}

// Image returns an IMAGE extension. data must hold |bitpix|/8 * prod(axes)
// bytes.
func Image(bitpix int, axes []int, data []byte, extra ...string) HDU {
	recs := []string{
		String("XTENSION", "IMAGE", "Image extension"),
		Value("BITPIX", fmt.Sprint(bitpix), "number of bits per data pixel"),
		Value("NAXIS", fmt.Sprint(len(axes)), "number of data axes"),
	}
	for i, n := range axes {
		recs = append(recs, Value(fmt.Sprintf("NAXIS%d", i+1), fmt.Sprint(n), fmt.Sprintf("length of data axis %d", i+1)))
	}
	recs = append(recs,
		Value("PCOUNT", "0", "required keyword; must = 0"),
		Value("GCOUNT", "1", "required keyword; must = 1"),
	)
	return HDU{Records: append(recs, extra...), Data: data}
}

// BinTable returns a BINTABLE extension with the given row width and count.
// Column descriptors follow TFIELDS; extra records come last.
func BinTable(rowLen, rows int, cols []Column, data []byte, extra ...string) HDU {
	recs := []string{
		String("XTENSION", "BINTABLE", "binary table extension"),
		Value("BITPIX", "8", "8-bit bytes"),
		Value("NAXIS", "2", "2-dimensional binary table"),
		Value("NAXIS1", fmt.Sprint(rowLen), "width of table in bytes"),
		Value("NAXIS2", fmt.Sprint(rows), "number of rows in table"),
		Value("PCOUNT", "0", "size of special data area"),
		Value("GCOUNT", "1", "one data group (required keyword)"),
		Value("TFIELDS", fmt.Sprint(len(cols)), "number of fields in each row"),
	}
	for i, c := range cols {
		n := i + 1
		recs = append(recs, String(fmt.Sprintf("TTYPE%d", n), c.Name, fmt.Sprintf("label for field %3d", n)))
		recs = append(recs, String(fmt.Sprintf("TFORM%d", n), c.Form, fmt.Sprintf("data format of field: %s", c.Form)))
		if c.Unit != "" {
			recs = append(recs, String(fmt.Sprintf("TUNIT%d", n), c.Unit, fmt.Sprintf("physical unit of field %d", n)))
		}
	}
	return HDU{Records: append(recs, extra...), Data: data}
}

// Bytes renders hdus as a FITS byte stream.
func Bytes(hdus ...HDU) []byte {
	var out []byte
	for _, h := range hdus {
		for _, rec := range h.Records {
			out = append(out, pad(rec)...)
		}
		out = append(out, pad("END")...)
		for len(out)%blockSize != 0 {
			out = append(out, ' ')
		}
		out = append(out, h.Data...)
		for len(out)%blockSize != 0 {
			out = append(out, 0)
		}
	}
	return out
}

// Write stores hdus as name inside a test temp directory and returns the
// path.
func Write(t testing.TB, name string, hdus ...HDU) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, Bytes(hdus...), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}

// WriteIn is like Write but places the file in dir.
func WriteIn(t testing.TB, dir, name string, hdus ...HDU) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Bytes(hdus...), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}

// Sequence returns n bytes counting up from start, for recognisable payloads.
func Sequence(n int, start byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func pad(rec string) string {
	if len(rec) >= cardSize {
		return rec[:cardSize]
	}
	return rec + strings.Repeat(" ", cardSize-len(rec))
}
