package multiframe

import (
	"io"
	"slices"
	"strconv"

	"github.com/samcharles93/multiframe/pkg/fits"
)

// DataUnit describes the payload of one dataset. It writes the structural
// records of its HDU and copies the payload bytes; the payload itself is
// never decoded.
//
// A unit read from a file keeps a reference to that file but does not own
// it: the Container that opened the file closes it.
type DataUnit interface {
	// Bitpix returns the bits per payload element.
	Bitpix() int
	// Axes returns a copy of the axis lengths.
	Axes() []int64
	// Size returns the payload size in bytes, excluding block padding.
	Size() int64
	// HeaderSize returns the bytes the source header occupied, or 0.
	HeaderSize() int64

	// WriteLayout writes the structural records of the HDU.
	WriteLayout(hw *fits.HDUWriter, primary bool) error
	// WriteData copies the payload into hw.
	WriteData(hw *fits.HDUWriter) error
	// Clone returns an independent copy. Units attached to a source file
	// cannot be cloned.
	Clone() (DataUnit, error)
}

// Column descriptor keywords kept verbatim for each binary table field.
var columnKeys = [...]string{"TTYPE", "TFORM", "TUNIT", "TDISP", "TDIM", "TSCAL", "TZERO", "TNULL"}

// Structural comments. The table variants replace the generic ones after the
// layout has been written.
const (
	simpleComment = "file does conform to FITS standard"
	bitpixComment = "number of bits per data pixel"
	naxisComment  = "number of data axes"
	extendComment = "FITS dataset may contain extensions"
	imageComment  = "IMAGE extension"
	pcountComment = "required keyword; must = 0"
	gcountComment = "required keyword; must = 1"

	tableComment       = "binary table extension"
	tableBitpixComment = "8-bit bytes"
	tableNaxisComment  = "2-dimensional binary table"
	tableWidthComment  = "width of table in bytes"
	tableRowsComment   = "number of rows in table"
	tableHeapComment   = "size of special data area"
	tableGroupComment  = "one data group (required keyword)"
	tableFieldsComment = "number of fields in each row"
)

// The two commentary records cfitsio writes into every primary header.
var boilerplate = [...]string{
	"  FITS (Flexible Image Transport System) format is defined in 'Astronomy",
	"  and Astrophysics', volume 376, page 359; bibcode: 2001A&A...376..359H",
}

// unit holds what every variant knows about its source.
type unit struct {
	file       *fits.File
	position   int
	headerSize int64
	size       int64
	bitpix     int
	axes       []int64
}

func (u *unit) Bitpix() int       { return u.bitpix }
func (u *unit) Axes() []int64     { return slices.Clone(u.axes) }
func (u *unit) Size() int64       { return u.size }
func (u *unit) HeaderSize() int64 { return u.headerSize }

func (u *unit) WriteData(hw *fits.HDUWriter) error {
	if u.file == nil || u.size == 0 {
		return nil
	}
	r, err := u.file.PayloadReader(u.position)
	if err != nil {
		return fits.WrapError(fits.DataNotFound, "multiframe.DataUnit.WriteData", err,
			"%s: position %d", u.file.Path(), u.position)
	}
	_, err = io.Copy(hw, r)
	return err
}

func (u *unit) cloneBase(op string) (unit, error) {
	if u.file != nil {
		return unit{}, fits.NewError(fits.IllegalOutput, op,
			"data unit is attached to %s", u.file.Path())
	}
	c := *u
	c.axes = slices.Clone(u.axes)
	return c, nil
}

// writeArray writes the image-style layout shared by every variant.
func (u *unit) writeArray(hw *fits.HDUWriter, primary bool, xtension string, pcount int64) error {
	if primary {
		if err := hw.WriteKey("SIMPLE", "T", simpleComment); err != nil {
			return err
		}
	} else {
		comment := imageComment
		if xtension == "BINTABLE" {
			comment = tableComment
		}
		if err := hw.WriteKey("XTENSION", fits.Quote(xtension), comment); err != nil {
			return err
		}
	}
	if err := hw.WriteKey("BITPIX", strconv.Itoa(u.bitpix), bitpixComment); err != nil {
		return err
	}
	if err := hw.WriteKey("NAXIS", strconv.Itoa(len(u.axes)), naxisComment); err != nil {
		return err
	}
	for i, n := range u.axes {
		if err := hw.WriteKey(fits.Nth("NAXIS", i+1), strconv.FormatInt(n, 10), "length of data axis "+strconv.Itoa(i+1)); err != nil {
			return err
		}
	}

	if primary {
		if err := hw.WriteKey("EXTEND", "T", extendComment); err != nil {
			return err
		}
		for _, text := range boilerplate {
			if err := hw.WriteKey("COMMENT", text, ""); err != nil {
				return err
			}
		}
		return nil
	}
	if err := hw.WriteKey("PCOUNT", strconv.FormatInt(pcount, 10), pcountComment); err != nil {
		return err
	}
	return hw.WriteKey("GCOUNT", "1", gcountComment)
}

// ImageUnit is an n-dimensional array payload.
type ImageUnit struct {
	unit
}

// EmptyUnit has no payload. Placeholders and the output primary dataset use
// it.
type EmptyUnit struct {
	unit
}

// NewEmptyUnit returns a source-less empty unit.
func NewEmptyUnit() *EmptyUnit {
	return &EmptyUnit{unit: unit{bitpix: 8}}
}

// TableUnit is a binary table. Column descriptors are kept as the source
// records so they are written back byte for byte.
type TableUnit struct {
	unit
	pcount  int64
	columns [][]fits.Card
	heap    fits.Card
}

// Columns returns the number of table fields.
func (t *TableUnit) Columns() int { return len(t.columns) }

// Descriptors returns the descriptor records of column n (1-based).
func (t *TableUnit) Descriptors(n int) []fits.Card {
	if n < 1 || n > len(t.columns) {
		return nil
	}
	return slices.Clone(t.columns[n-1])
}

// newDataUnit inspects the HDU at position and returns the matching variant.
func newDataUnit(f *fits.File, position int) (DataUnit, error) {
	const op = "multiframe.newDataUnit"

	hdu, err := f.HDU(position)
	if err != nil {
		return nil, fits.WrapError(fits.DataNotFound, op, err, "%s: position %d", f.Path(), position)
	}
	base := unit{
		file:       f,
		position:   position,
		headerSize: hdu.HeaderSize,
		size:       hdu.DataSize,
		bitpix:     hdu.Bitpix,
		axes:       slices.Clone(hdu.Axes),
	}

	switch {
	case hdu.IsBinaryTable():
		return newTableUnit(base, hdu)
	case hdu.XTension != "" && hdu.XTension != "IMAGE":
		return nil, fits.NewError(fits.UnsupportedMode, op,
			"%s: position %d: extension type %q", f.Path(), position, hdu.XTension)
	case len(hdu.Axes) == 0:
		return &EmptyUnit{unit: base}, nil
	}

	if hdu.PCount != 0 || hdu.GCount != 1 {
		return nil, fits.NewError(fits.TypeMismatch, op,
			"%s: position %d: image with PCOUNT=%d GCOUNT=%d", f.Path(), position, hdu.PCount, hdu.GCount)
	}
	return &ImageUnit{unit: base}, nil
}

func newTableUnit(base unit, hdu *fits.HDU) (*TableUnit, error) {
	const op = "multiframe.newTableUnit"

	if base.bitpix != 8 || len(base.axes) != 2 {
		return nil, fits.NewError(fits.TypeMismatch, op,
			"position %d: binary table with BITPIX=%d NAXIS=%d", base.position, base.bitpix, len(base.axes))
	}
	if hdu.GCount != 1 {
		return nil, fits.NewError(fits.TypeMismatch, op,
			"position %d: binary table with GCOUNT=%d", base.position, hdu.GCount)
	}
	nfields, ok, err := hdu.Int("TFIELDS")
	if err != nil {
		return nil, fits.WrapError(fits.TypeMismatch, op, err, "position %d", base.position)
	}
	if !ok || nfields < 0 || nfields > 999 {
		return nil, fits.NewError(fits.TypeMismatch, op, "position %d: missing or invalid TFIELDS", base.position)
	}

	t := &TableUnit{
		unit:    base,
		pcount:  hdu.PCount,
		columns: make([][]fits.Card, nfields),
	}
	for i := range t.columns {
		n := i + 1
		for _, key := range columnKeys {
			if c, ok := hdu.Card(fits.Nth(key, n)); ok {
				t.columns[i] = append(t.columns[i], c)
			} else if key == "TFORM" {
				return nil, fits.NewError(fits.TypeMismatch, op, "position %d: column %d has no TFORM", base.position, n)
			}
		}
	}
	if c, ok := hdu.Card("THEAP"); ok {
		t.heap = c
	}
	return t, nil
}

// WriteLayout writes SIMPLE or XTENSION, BITPIX, NAXIS and the axes, then
// EXTEND for a primary HDU or PCOUNT and GCOUNT for an extension.
func (u *ImageUnit) WriteLayout(hw *fits.HDUWriter, primary bool) error {
	return u.writeArray(hw, primary, "IMAGE", 0)
}

func (u *ImageUnit) Clone() (DataUnit, error) {
	base, err := u.cloneBase("multiframe.ImageUnit.Clone")
	if err != nil {
		return nil, err
	}
	return &ImageUnit{unit: base}, nil
}

// WriteLayout writes an array layout without axes.
func (u *EmptyUnit) WriteLayout(hw *fits.HDUWriter, primary bool) error {
	return u.writeArray(hw, primary, "IMAGE", 0)
}

func (u *EmptyUnit) Clone() (DataUnit, error) {
	base, err := u.cloneBase("multiframe.EmptyUnit.Clone")
	if err != nil {
		return nil, err
	}
	return &EmptyUnit{unit: base}, nil
}

// WriteLayout writes the BINTABLE layout, TFIELDS, every column's source
// descriptor records in column order and THEAP. A binary table cannot be the
// primary HDU.
func (t *TableUnit) WriteLayout(hw *fits.HDUWriter, primary bool) error {
	if primary {
		return fits.NewError(fits.IllegalOutput, "multiframe.TableUnit.WriteLayout", "binary table cannot be the primary HDU")
	}
	if err := t.writeArray(hw, false, "BINTABLE", t.pcount); err != nil {
		return err
	}
	if err := hw.WriteKey("TFIELDS", strconv.Itoa(len(t.columns)), tableFieldsComment); err != nil {
		return err
	}
	for _, col := range t.columns {
		for _, c := range col {
			if err := hw.WriteCard(c); err != nil {
				return err
			}
		}
	}
	if !t.heap.IsZero() {
		if err := hw.WriteCard(t.heap); err != nil {
			return err
		}
	}

	for _, kc := range [...]struct{ key, comment string }{
		{"BITPIX", tableBitpixComment},
		{"NAXIS", tableNaxisComment},
		{"NAXIS1", tableWidthComment},
		{"NAXIS2", tableRowsComment},
		{"PCOUNT", tableHeapComment},
		{"GCOUNT", tableGroupComment},
	} {
		if err := hw.SetComment(kc.key, kc.comment); err != nil {
			return err
		}
	}
	return nil
}

func (t *TableUnit) Clone() (DataUnit, error) {
	base, err := t.cloneBase("multiframe.TableUnit.Clone")
	if err != nil {
		return nil, err
	}
	columns := make([][]fits.Card, len(t.columns))
	for i, col := range t.columns {
		columns[i] = slices.Clone(col)
	}
	return &TableUnit{unit: base, pcount: t.pcount, columns: columns, heap: t.heap}, nil
}
