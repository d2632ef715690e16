package multiframe

import (
	"strconv"
	"strings"
	"sync"

	"github.com/samcharles93/multiframe/pkg/fits"
)

// reservedPattern matches the records a Dataset never carries in its header:
// they are regenerated from the data unit and identity when written.
const reservedPattern = `^(SIMPLE|XTENSION|BITPIX|NAXIS[0-9]*|PCOUNT|GCOUNT|EXTEND|EXTNAME|EXTVER|EXTLEVEL|` +
	`TFIELDS|T(TYPE|FORM|UNIT|DISP|DIM|SCAL|ZERO|NULL)[0-9]+|THEAP|` +
	`Z?CHECKSUM|Z?DATASUM|CHECKVER|DATE|END) *(=|$)` +
	`|^COMMENT   FITS \(Flexible Image Transport System\) format is defined in 'Astronomy` +
	`|^COMMENT   and Astrophysics', volume 376, page 359; bibcode: 2001A&A\.\.\.376\.\.359H`

// scalingPattern matches the array scaling records dropped from primary
// headers.
const scalingPattern = `^(BSCALE|BZERO|BLANK) *=`

var (
	reservedFilter = sync.OnceValues(func() (*fits.Filter, error) {
		return fits.NewFilter(reservedPattern, true, fits.SyntaxExtended)
	})
	scalingFilter = sync.OnceValues(func() (*fits.Filter, error) {
		return fits.NewFilter(scalingPattern, true, fits.SyntaxExtended)
	})
)

// stripReserved returns h without reserved records.
func stripReserved(h *fits.Header) (*fits.Header, error) {
	f, err := reservedFilter()
	if err != nil {
		return nil, fits.WrapError(fits.IllegalOutput, "multiframe.stripReserved", err, "reserved key filter")
	}
	return h.Filtered(f), nil
}

// stripPrimary returns h without reserved and scaling records.
func stripPrimary(h *fits.Header) (*fits.Header, error) {
	h, err := stripReserved(h)
	if err != nil {
		return nil, err
	}
	f, err := scalingFilter()
	if err != nil {
		return nil, fits.WrapError(fits.IllegalOutput, "multiframe.stripPrimary", err, "scaling key filter")
	}
	return h.Filtered(f), nil
}

// Dataset is one HDU of the output: a header, a data unit and an identity.
// The header never holds reserved structural records.
type Dataset struct {
	header  *fits.Header
	data    DataUnit
	name    string
	version int
	level   int
}

// NewDataset builds a dataset from a copy of h and a clone of u.
func NewDataset(h *fits.Header, u DataUnit) (*Dataset, error) {
	const op = "multiframe.NewDataset"

	if h == nil || u == nil {
		return nil, fits.NewError(fits.NullInput, op, "nil header or data unit")
	}
	data, err := u.Clone()
	if err != nil {
		return nil, err
	}
	header, err := stripReserved(h)
	if err != nil {
		return nil, err
	}
	return &Dataset{header: header, data: data}, nil
}

// OpenDataset reads the HDU at position of f. The identity comes from the
// EXTNAME, EXTVER and EXTLEVEL records of the source header.
func OpenDataset(f *fits.File, position int) (*Dataset, error) {
	const op = "multiframe.OpenDataset"

	if f == nil {
		return nil, fits.NewError(fits.NullInput, op, "nil file")
	}
	raw, err := fits.ReadHeader(f, position)
	if err != nil {
		return nil, err
	}
	name, version, level, err := identity(raw)
	if err != nil {
		return nil, fits.WrapError(fits.IllegalOutput, op, err, "%s: position %d", f.Path(), position)
	}
	data, err := newDataUnit(f, position)
	if err != nil {
		return nil, err
	}
	header, err := stripReserved(raw)
	if err != nil {
		return nil, err
	}
	return &Dataset{
		header:  header,
		data:    data,
		name:    name,
		version: version,
		level:   level,
	}, nil
}

// identity reads EXTNAME, EXTVER and EXTLEVEL. Absent records leave the
// zero value.
func identity(h *fits.Header) (name string, version, level int, err error) {
	if c, ok := h.Find("EXTNAME"); ok {
		name = strings.TrimSpace(c.StringValue())
	}
	if version, err = nonNegative(h, "EXTVER"); err != nil {
		return "", 0, 0, err
	}
	if level, err = nonNegative(h, "EXTLEVEL"); err != nil {
		return "", 0, 0, err
	}
	return name, version, level, nil
}

func nonNegative(h *fits.Header, key string) (int, error) {
	c, ok := h.Find(key)
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(c.Value())
	if err != nil {
		return 0, fits.WrapError(fits.IllegalOutput, "multiframe.identity", err, "%s", key)
	}
	if n < 0 {
		return 0, fits.NewError(fits.IllegalOutput, "multiframe.identity", "negative %s %d", key, n)
	}
	return n, nil
}

// Header returns a copy of the header.
func (d *Dataset) Header() *fits.Header { return d.header.Clone() }

// Data returns the data unit.
func (d *Dataset) Data() DataUnit { return d.data }

func (d *Dataset) Name() string { return d.name }
func (d *Dataset) Version() int { return d.version }
func (d *Dataset) Level() int   { return d.level }

// SetHeader replaces the header with the non-reserved records of h.
func (d *Dataset) SetHeader(h *fits.Header) error {
	if h == nil {
		return fits.NewError(fits.NullInput, "multiframe.Dataset.SetHeader", "nil header")
	}
	header, err := stripReserved(h)
	if err != nil {
		return err
	}
	d.header = header
	return nil
}

// SetID sets the name. Version and level are only replaced when positive.
func (d *Dataset) SetID(name string, version, level int) {
	d.name = name
	if version > 0 {
		d.version = version
	}
	if level > 0 {
		d.level = level
	}
}

// Write appends the dataset to w as one HDU. The primary dataset gets a DATE
// record; with checksums set CHECKSUM and DATASUM are added. Their values are
// filled in once the payload has been copied.
func (d *Dataset) Write(w *fits.Writer, primary, checksums bool) error {
	const op = "multiframe.Dataset.Write"

	if w == nil {
		return fits.NewError(fits.NullInput, op, "nil writer")
	}
	hw, err := w.BeginHDU()
	if err != nil {
		return err
	}
	if err := d.data.WriteLayout(hw, primary); err != nil {
		return err
	}
	if err := d.writeIdentity(hw); err != nil {
		return fits.WrapError(fits.IllegalOutput, op, err, "identity of %q", d.name)
	}
	if primary {
		if err := hw.WriteDate(); err != nil {
			return err
		}
	}
	if checksums {
		if err := hw.WriteChecksums(); err != nil {
			return err
		}
	}

	hw.Reserve(d.header.Len())
	for _, c := range d.header.Cards() {
		if err := hw.WriteCard(c); err != nil {
			return err
		}
	}
	if err := d.data.WriteData(hw); err != nil {
		return err
	}
	return hw.End()
}

func (d *Dataset) writeIdentity(hw *fits.HDUWriter) error {
	if d.name != "" {
		if err := hw.WriteKey("EXTNAME", fits.Quote(d.name), "extension name"); err != nil {
			return err
		}
	}
	if d.version > 0 {
		if err := hw.WriteKey("EXTVER", strconv.Itoa(d.version), "extension version"); err != nil {
			return err
		}
	}
	if d.level > 0 {
		if err := hw.WriteKey("EXTLEVEL", strconv.Itoa(d.level), "extension level"); err != nil {
			return err
		}
	}
	return nil
}
