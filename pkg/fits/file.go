package fits

import (
	"bytes"
	"io"
	"math"
	"math/bits"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// File is a read-only FITS source. The whole file is mapped (or, where mmap
// is unavailable, loaded) at Open and its HDU layout is indexed once.
type File struct {
	path    string
	data    []byte
	mmapped bool
	hdus    []HDU
	closed  bool
}

// HDU describes the layout of one Header/Data Unit of a source file.
type HDU struct {
	Index        int
	HeaderOffset int64
	HeaderSize   int64 // header bytes including block padding
	DataOffset   int64
	DataSize     int64 // payload bytes excluding block padding

	XTension string // "" for the primary HDU
	Bitpix   int
	Axes     []int64
	PCount   int64
	GCount   int64

	records []string
}

// Open maps a FITS file read-only and indexes its HDUs.
// The returned file must be closed to release the mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < BlockSize {
		return nil, ErrNotFITS
	}
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, ErrTruncated
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		ff, parseErr := parseFile(path, data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return ff, nil
	}

	// Fallback path that does not require mmap support.
	data = make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, err
	}
	return parseFile(path, data, false)
}

// OpenBytes indexes an in-memory FITS image. The slice is retained.
func OpenBytes(name string, data []byte) (*File, error) {
	return parseFile(name, data, false)
}

func parseFile(path string, data []byte, mmapped bool) (*File, error) {
	if !bytes.HasPrefix(data, []byte("SIMPLE  =")) {
		return nil, ErrNotFITS
	}

	var hdus []HDU
	var off int64
	for off < int64(len(data)) {
		if len(hdus) > 0 && !bytes.HasPrefix(data[off:], []byte("XTENSION=")) {
			// Trailing bytes that do not start an extension are ignored.
			break
		}
		hdu, err := scanHDU(data, off, len(hdus))
		if err != nil {
			return nil, err
		}
		hdus = append(hdus, hdu)
		off = hdu.DataOffset + padded(hdu.DataSize)
	}

	return &File{
		path:    path,
		data:    data,
		mmapped: mmapped,
		hdus:    hdus,
	}, nil
}

func scanHDU(data []byte, off int64, index int) (HDU, error) {
	hdu := HDU{Index: index, HeaderOffset: off, GCount: 1}

	pos := off
	ended := false
	for !ended {
		if pos+BlockSize > int64(len(data)) {
			return HDU{}, ErrNoEND
		}
		block := data[pos : pos+BlockSize]
		pos += BlockSize
		for i := 0; i < CardsPerBlock; i++ {
			rec := string(block[i*CardSize : (i+1)*CardSize])
			if strings.TrimRight(rec, " ") == "END" {
				ended = true
				break
			}
			hdu.records = append(hdu.records, rec)
		}
	}
	hdu.HeaderSize = pos - off
	hdu.DataOffset = pos

	if err := hdu.decodeShape(); err != nil {
		return HDU{}, err
	}
	size, err := hdu.payloadSize()
	if err != nil {
		return HDU{}, err
	}
	hdu.DataSize = size
	if hdu.DataSize > int64(len(data))-hdu.DataOffset {
		return HDU{}, ErrTruncated
	}
	return hdu, nil
}

func (h *HDU) decodeShape() error {
	if h.Index > 0 {
		c, ok := h.Card("XTENSION")
		if !ok {
			return NewError(BadFileFormat, "fits.Open", "HDU %d has no XTENSION", h.Index)
		}
		h.XTension = strings.TrimSpace(c.StringValue())
	}

	bitpix, err := h.requiredInt("BITPIX")
	if err != nil {
		return err
	}
	switch bitpix {
	case 8, 16, 32, 64, -32, -64:
	default:
		return NewError(BadFileFormat, "fits.Open", "HDU %d has invalid BITPIX %d", h.Index, bitpix)
	}
	h.Bitpix = int(bitpix)

	naxis, err := h.requiredInt("NAXIS")
	if err != nil {
		return err
	}
	if naxis < 0 || naxis > 999 {
		return NewError(BadFileFormat, "fits.Open", "HDU %d has invalid NAXIS %d", h.Index, naxis)
	}
	h.Axes = make([]int64, naxis)
	for i := range h.Axes {
		n, err := h.requiredInt(Nth("NAXIS", i+1))
		if err != nil {
			return err
		}
		if n < 0 {
			return NewError(BadFileFormat, "fits.Open", "HDU %d has negative %s", h.Index, Nth("NAXIS", i+1))
		}
		h.Axes[i] = n
	}

	if n, ok, err := h.Int("PCOUNT"); err != nil {
		return err
	} else if ok {
		if n < 0 {
			return NewError(BadFileFormat, "fits.Open", "HDU %d has negative PCOUNT %d", h.Index, n)
		}
		h.PCount = n
	}
	if n, ok, err := h.Int("GCOUNT"); err != nil {
		return err
	} else if ok {
		if n < 1 {
			return NewError(BadFileFormat, "fits.Open", "HDU %d has invalid GCOUNT %d", h.Index, n)
		}
		h.GCount = n
	}
	return nil
}

// payloadSize returns |BITPIX|/8 * GCOUNT * (PCOUNT + product of axes). A
// zero NAXIS1 in a primary HDU marks random groups and is left out of the
// product. Shapes whose size does not fit in an int64 are rejected.
func (h *HDU) payloadSize() (int64, error) {
	if len(h.Axes) == 0 {
		return 0, nil
	}
	n := int64(1)
	var ok bool
	for i, a := range h.Axes {
		if i == 0 && a == 0 && h.Index == 0 && len(h.Axes) > 1 {
			continue
		}
		if n, ok = mulSize(n, a); !ok {
			return 0, h.sizeOverflow()
		}
	}
	if n > math.MaxInt64-h.PCount {
		return 0, h.sizeOverflow()
	}
	n += h.PCount
	if n, ok = mulSize(n, h.GCount); !ok {
		return 0, h.sizeOverflow()
	}
	if n, ok = mulSize(n, int64(abs(h.Bitpix)/8)); !ok {
		return 0, h.sizeOverflow()
	}
	return n, nil
}

// mulSize multiplies two non-negative sizes, reporting false on overflow.
func mulSize(a, b int64) (int64, bool) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

func (h *HDU) sizeOverflow() error {
	return WrapError(BadFileFormat, "fits.Open", ErrTruncated, "HDU %d data size overflows", h.Index)
}

func (h *HDU) requiredInt(key string) (int64, error) {
	n, ok, err := h.Int(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, NewError(BadFileFormat, "fits.Open", "HDU %d has no %s", h.Index, key)
	}
	return n, nil
}

// Records returns the header records in file order, END excluded.
func (h *HDU) Records() []string {
	return h.records
}

// Card returns the first card with the given keyword.
func (h *HDU) Card(key string) (Card, bool) {
	want := normalizeKey(key)
	for _, rec := range h.records {
		c := Card{rec: rec}
		if c.Key() == want {
			return c, true
		}
	}
	return Card{}, false
}

// Int reads an integer keyword. ok is false when the keyword is absent.
func (h *HDU) Int(key string) (n int64, ok bool, err error) {
	c, found := h.Card(key)
	if !found {
		return 0, false, nil
	}
	n, err = strconv.ParseInt(c.Value(), 10, 64)
	if err != nil {
		return 0, true, WrapError(BadFileFormat, "fits.HDU.Int", err, "HDU %d keyword %s", h.Index, key)
	}
	return n, true, nil
}

// String reads a string keyword with quotes and trailing blanks removed.
func (h *HDU) String(key string) (string, bool) {
	c, ok := h.Card(key)
	if !ok {
		return "", false
	}
	return c.StringValue(), true
}

// Name returns the EXTNAME of the HDU, or "".
func (h *HDU) Name() string {
	s, _ := h.String("EXTNAME")
	return s
}

// IsBinaryTable reports whether the HDU is a BINTABLE extension.
func (h *HDU) IsBinaryTable() bool { return h.XTension == "BINTABLE" }

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

// Len returns the number of HDUs, including the primary one.
func (f *File) Len() int { return len(f.hdus) }

// HDU returns the HDU at position (0 is the primary HDU).
func (f *File) HDU(position int) (*HDU, error) {
	if f == nil || f.closed {
		return nil, ErrClosed
	}
	if position < 0 || position >= len(f.hdus) {
		return nil, ErrHDUNotFound
	}
	return &f.hdus[position], nil
}

// Lookup returns the position of the first extension whose EXTNAME matches
// name, ignoring case and trailing blanks. A positive version must match
// EXTVER as well. The primary HDU is never matched.
func (f *File) Lookup(name string, version int) (int, error) {
	if f == nil || f.closed {
		return 0, ErrClosed
	}
	want := strings.TrimRight(name, " ")
	for i := 1; i < len(f.hdus); i++ {
		h := &f.hdus[i]
		if !strings.EqualFold(h.Name(), want) {
			continue
		}
		if version > 0 {
			v, ok, err := h.Int("EXTVER")
			if err != nil || !ok || v != int64(version) {
				continue
			}
		}
		return i, nil
	}
	return 0, ErrHDUNotFound
}

// Payload returns a zero-copy view of the data unit at position, without
// block padding. The caller must not retain it after Close.
func (f *File) Payload(position int) ([]byte, error) {
	h, err := f.HDU(position)
	if err != nil {
		return nil, err
	}
	return f.data[h.DataOffset : h.DataOffset+h.DataSize], nil
}

// PayloadReader streams the data unit at position.
func (f *File) PayloadReader(position int) (io.Reader, error) {
	p, err := f.Payload(position)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(p), nil
}

// Close releases the mapping. Closing twice is a no-op.
func (f *File) Close() error {
	if f == nil || f.closed {
		return nil
	}
	f.closed = true
	var err error
	if f.mmapped && f.data != nil {
		err = unix.Munmap(f.data)
	}
	f.data = nil
	f.hdus = nil
	f.mmapped = false
	return err
}

func normalizeKey(key string) string {
	k, err := ParseKeyName(key, false)
	if err != nil {
		return strings.TrimSpace(key)
	}
	return strings.TrimRight(k, " ")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
