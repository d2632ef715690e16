package fits

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	writerPadBufSize = BlockSize

	dateLayout       = "2006-01-02T15:04:05"
	checksumZero     = "0000000000000000"
	dateComment      = "file creation date (YYYY-MM-DDThh:mm:ss UT)"
	checksumComment  = "HDU checksum updated "
	datasumComment   = "data unit checksum updated "
	emptyDataSum     = "0"
	overwritePrefix  = "!"
	outputPermission = 0o644
)

// Writer builds a FITS file one HDU at a time.
//
// Each HDU is opened with BeginHDU. Header records are buffered until the
// first payload byte (or End) and then written in whole blocks; keywords
// whose final value is only known after the payload (DATE, CHECKSUM,
// DATASUM) are patched in place when the HDU ends.
type Writer struct {
	f           *os.File
	path        string
	overwritten bool
	off         int64
	hdus        int
	open        *HDUWriter
	closed      bool
	now         func() time.Time

	padBuf []byte
}

// WriterOption configures a Writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	now func() time.Time
}

// WithClock sets the time source used for DATE and checksum comments.
func WithClock(now func() time.Time) WriterOption {
	return func(o *writerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// Create creates a FITS file at path. If a file of that name exists it is
// overwritten; a leading "!" requests overwriting explicitly.
func Create(path string, opts ...WriterOption) (*Writer, error) {
	const op = "fits.Create"

	options := writerOptions{now: time.Now}
	for _, opt := range opts {
		opt(&options)
	}

	force := strings.HasPrefix(path, overwritePrefix)
	path = strings.TrimPrefix(path, overwritePrefix)
	if path == "" {
		return nil, NewError(IllegalInput, op, "empty file name")
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, outputPermission)
	overwritten := force
	if err != nil && errors.Is(err, fs.ErrExist) {
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, outputPermission)
		overwritten = true
	}
	if err != nil {
		return nil, WrapError(FileNotCreated, op, err, "%s", path)
	}

	return &Writer{
		f:           f,
		path:        path,
		overwritten: overwritten,
		now:         options.now,
		padBuf:      make([]byte, writerPadBufSize),
	}, nil
}

// Path returns the output path, without any "!" prefix.
func (w *Writer) Path() string { return w.path }

// Overwritten reports whether Create replaced an existing file.
func (w *Writer) Overwritten() bool { return w.overwritten }

// Len returns the number of HDUs begun so far.
func (w *Writer) Len() int { return w.hdus }

// BeginHDU starts the next HDU. The first HDU of a file is the primary one.
// The returned HDUWriter must be ended before another HDU can begin.
func (w *Writer) BeginHDU() (*HDUWriter, error) {
	if w.closed {
		return nil, errors.New("fits: writer already closed")
	}
	if w.open != nil {
		return nil, errors.New("fits: HDU write in progress")
	}
	hw := &HDUWriter{
		w:       w,
		index:   w.hdus,
		dateIdx: -1,
		sumIdx:  -1,
		dsumIdx: -1,
	}
	w.open = hw
	w.hdus++
	return hw, nil
}

// Close flushes and closes the file. An HDU still open is an error.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.open != nil {
		_ = w.f.Close()
		return errors.New("fits: HDU write in progress")
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// Abort closes the file without checking for an open HDU.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.open = nil
	return w.f.Close()
}

func (w *Writer) write(p []byte) error {
	for len(p) > 0 {
		n, err := w.f.WriteAt(p, w.off)
		w.off += int64(n)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (w *Writer) writeZeros(n int) error {
	for n > 0 {
		k := min(n, len(w.padBuf))
		if err := w.write(w.padBuf[:k]); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// HDUWriter streams one HDU. Records are appended with WriteCard; payload
// bytes are written with Write. End (or Close) pads the data unit and patches
// deferred keywords.
type HDUWriter struct {
	w     *Writer
	index int
	cards []Card

	headerOffset  int64
	headerFlushed bool
	dataLen       int64
	datasum       checksum

	dateIdx int
	sumIdx  int
	dsumIdx int
	ended   bool
}

// Index returns the position of the HDU in the output file.
func (hw *HDUWriter) Index() int { return hw.index }

// Primary reports whether this is the first HDU of the file.
func (hw *HDUWriter) Primary() bool { return hw.index == 0 }

// Len returns the number of records written so far.
func (hw *HDUWriter) Len() int { return len(hw.cards) }

// WriteCard appends a header record.
func (hw *HDUWriter) WriteCard(c Card) error {
	if err := hw.checkHeader(); err != nil {
		return err
	}
	hw.cards = append(hw.cards, c)
	return nil
}

// WriteKey formats and appends a header record.
func (hw *HDUWriter) WriteKey(name, value, comment string) error {
	c, err := NewCard(name, value, comment)
	if err != nil {
		return err
	}
	return hw.WriteCard(c)
}

// Reserve makes room for n more records.
func (hw *HDUWriter) Reserve(n int) {
	if n <= 0 || hw.headerFlushed {
		return
	}
	if free := cap(hw.cards) - len(hw.cards); free < n {
		grown := make([]Card, len(hw.cards), len(hw.cards)+n)
		copy(grown, hw.cards)
		hw.cards = grown
	}
}

// SetComment replaces the comment of the first record with the given key.
func (hw *HDUWriter) SetComment(key, comment string) error {
	if err := hw.checkHeader(); err != nil {
		return err
	}
	want := normalizeKey(key)
	for i, c := range hw.cards {
		if c.Key() != want {
			continue
		}
		nc, err := c.WithComment(comment)
		if err != nil {
			return err
		}
		hw.cards[i] = nc
		return nil
	}
	return NewError(DataNotFound, "fits.HDUWriter.SetComment", "no %s record", key)
}

// WriteDate appends a DATE record whose value is set to the creation time
// when the HDU ends.
func (hw *HDUWriter) WriteDate() error {
	if hw.dateIdx >= 0 {
		return nil
	}
	c, err := NewCard("DATE", Quote(strings.Repeat(" ", len(dateLayout))), dateComment)
	if err != nil {
		return err
	}
	if err := hw.WriteCard(c); err != nil {
		return err
	}
	hw.dateIdx = len(hw.cards) - 1
	return nil
}

// WriteChecksums appends CHECKSUM and DATASUM records that are computed
// when the HDU ends.
func (hw *HDUWriter) WriteChecksums() error {
	if hw.sumIdx >= 0 {
		return nil
	}
	sum, err := NewCard("CHECKSUM", Quote(checksumZero), checksumComment)
	if err != nil {
		return err
	}
	dsum, err := NewCard("DATASUM", Quote(emptyDataSum), datasumComment)
	if err != nil {
		return err
	}
	if err := hw.WriteCard(sum); err != nil {
		return err
	}
	hw.sumIdx = len(hw.cards) - 1
	if err := hw.WriteCard(dsum); err != nil {
		return err
	}
	hw.dsumIdx = len(hw.cards) - 1
	return nil
}

// Write streams payload bytes. The header is flushed on the first call.
func (hw *HDUWriter) Write(p []byte) (int, error) {
	if hw.ended {
		return 0, errors.New("fits: HDU writer ended")
	}
	if err := hw.flushHeader(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := hw.w.write(p); err != nil {
		return 0, err
	}
	_, _ = hw.datasum.Write(p)
	hw.dataLen += int64(len(p))
	return len(p), nil
}

// End pads the data unit to a whole block, fills in DATE, DATASUM and
// CHECKSUM if they were requested, and releases the writer.
func (hw *HDUWriter) End() error {
	if hw.ended {
		return errors.New("fits: HDU writer already ended")
	}
	if err := hw.flushHeader(); err != nil {
		return err
	}
	hw.ended = true
	hw.w.open = nil

	if pad := padded(hw.dataLen) - hw.dataLen; pad > 0 {
		if err := hw.w.writeZeros(int(pad)); err != nil {
			return err
		}
	}

	if hw.dateIdx < 0 && hw.sumIdx < 0 {
		return nil
	}

	stamp := hw.w.now().UTC().Format(dateLayout)
	if hw.dateIdx >= 0 {
		c, err := hw.cards[hw.dateIdx].WithValue(Quote(stamp))
		if err != nil {
			return err
		}
		hw.cards[hw.dateIdx] = c
	}
	if hw.sumIdx >= 0 {
		if err := hw.fillChecksums(stamp); err != nil {
			return err
		}
	}

	block := hw.headerBytes()
	_, err := hw.w.f.WriteAt(block, hw.headerOffset)
	return err
}

// Close is an alias for End, allowing use with defer.
func (hw *HDUWriter) Close() error {
	if hw.ended {
		return nil
	}
	return hw.End()
}

func (hw *HDUWriter) fillChecksums(stamp string) error {
	datasum := hw.datasum.Sum32()

	dsum, err := NewCard("DATASUM", Quote(strconv.FormatUint(uint64(datasum), 10)), datasumComment+stamp)
	if err != nil {
		return err
	}
	hw.cards[hw.dsumIdx] = dsum

	zero, err := NewCard("CHECKSUM", Quote(checksumZero), checksumComment+stamp)
	if err != nil {
		return err
	}
	hw.cards[hw.sumIdx] = zero

	total := onesAdd(Checksum(hw.headerBytes()), datasum)
	sum, err := NewCard("CHECKSUM", Quote(EncodeChecksum(total, true)), checksumComment+stamp)
	if err != nil {
		return err
	}
	hw.cards[hw.sumIdx] = sum
	return nil
}

func (hw *HDUWriter) checkHeader() error {
	if hw.ended {
		return errors.New("fits: HDU writer ended")
	}
	if hw.headerFlushed {
		return errors.New("fits: header already written")
	}
	return nil
}

func (hw *HDUWriter) flushHeader() error {
	if hw.headerFlushed {
		return nil
	}
	hw.headerFlushed = true
	hw.headerOffset = hw.w.off
	return hw.w.write(hw.headerBytes())
}

// headerBytes renders the records, END and blank padding.
func (hw *HDUWriter) headerBytes() []byte {
	n := int64(len(hw.cards)+1) * CardSize
	buf := make([]byte, 0, padded(n))
	for _, c := range hw.cards {
		buf = append(buf, c.Record()...)
	}
	buf = append(buf, fitRecord("END")...)
	for int64(len(buf)) < padded(n) {
		buf = append(buf, ' ')
	}
	return buf
}
