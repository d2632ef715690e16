// Package multiframe assembles one multi-extension FITS file out of datasets
// taken from other FITS files.
//
// A Container starts from the primary header of a head frame and collects
// datasets one at a time or in linked groups. Each appended dataset carries
// the merged, DICB-sorted primary and extension headers of its source and a
// payload that is copied verbatim when the container is written.
package multiframe

import (
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/samcharles93/multiframe/internal/logger"
	"github.com/samcharles93/multiframe/internal/version"
	"github.com/samcharles93/multiframe/pkg/fits"
)

// Frame is a source of datasets identified by its file name.
type Frame interface {
	Filename() string
}

type fileFrame string

func (f fileFrame) Filename() string { return string(f) }

// NewFrame returns a Frame for filename.
func NewFrame(filename string) Frame { return fileFrame(filename) }

// Container collects datasets for one output file. Source files are opened
// once per container and shared by every dataset taken from them; Close
// releases them. A Container is not safe for concurrent use.
type Container struct {
	log      logger.Logger
	files    map[string]*fits.File
	datasets []*Dataset
	closed   bool
}

// Option configures a Container.
type Option func(*options)

type options struct {
	log logger.Logger
}

// WithLogHandler sends container logs to h.
func WithLogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.log = logger.New(h)
	}
}

// WithJSONLog writes container logs as JSON objects to w at level and above.
func WithJSONLog(w io.Writer, level slog.Level) Option {
	return func(o *options) {
		o.log = logger.JSON(w, level)
	}
}

// WriteOption configures Container.Write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	checksums bool
	now       func() time.Time
}

// WithChecksums adds CHECKSUM and DATASUM records to every HDU.
func WithChecksums() WriteOption {
	return func(o *writeOptions) { o.checksums = true }
}

// WithClock sets the time source for DATE and the checksum comments.
func WithClock(now func() time.Time) WriteOption {
	return func(o *writeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// New starts a container whose primary dataset is an empty unit named id.
// Its header is the primary header of head without structural and scaling
// records, passed through filter when one is given and sorted by DICB rank.
func New(head Frame, id string, filter *fits.Filter, opts ...Option) (*Container, error) {
	const op = "multiframe.New"

	if head == nil {
		return nil, fits.NewError(fits.NullInput, op, "nil head frame")
	}
	if head.Filename() == "" {
		return nil, fits.NewError(fits.IllegalInput, op, "head frame has no file name")
	}

	o := options{log: logger.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Container{
		log:   o.log.With("container", uuid.NewString()),
		files: make(map[string]*fits.File),
	}

	cleanup := func(err error) (*Container, error) {
		_ = c.Close()
		return nil, err
	}

	f, err := c.source(head.Filename())
	if err != nil {
		return cleanup(err)
	}
	raw, err := fits.ReadHeader(f, 0)
	if err != nil {
		return cleanup(err)
	}
	h, err := stripPrimary(raw)
	if err != nil {
		return cleanup(err)
	}
	h = h.Filtered(filter)
	h.Sort(nil)

	primary, err := NewDataset(h, NewEmptyUnit())
	if err != nil {
		return cleanup(err)
	}
	primary.SetID(id, 0, 0)
	c.datasets = append(c.datasets, primary)

	c.log.Debug("container created", "head", f.Path(), "id", id, "keys", h.Len())
	return c, nil
}

// source returns the open handle for filename, opening and caching it on
// first use. The cache is keyed by the absolute, symlink-resolved path.
func (c *Container) source(filename string) (*fits.File, error) {
	const op = "multiframe.Container.source"

	if c.closed {
		return nil, fits.NewError(fits.AssigningStream, op, "container is closed")
	}
	key := canonicalPath(filename)
	if f, ok := c.files[key]; ok {
		c.log.Debug("source reused", "path", key)
		return f, nil
	}
	f, err := fits.Open(filename)
	if err != nil {
		return nil, fits.WrapError(fits.AssigningStream, op, err, "%s", filename)
	}
	c.files[key] = f
	c.log.Debug("source opened", "path", key, "hdus", f.Len())
	return f, nil
}

func canonicalPath(filename string) string {
	p, err := filepath.Abs(filename)
	if err != nil {
		return filepath.Clean(filename)
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return p
}

// group is one merge request against a single source file.
type group struct {
	id             string
	mode           NamingMode
	positions      []int
	extFilters     []*fits.Filter
	primaryFilters []*fits.Filter
	links          []string
}

func (g *group) filters(i int) (ext, primary *fits.Filter) {
	if len(g.extFilters) > 0 {
		ext = g.extFilters[i]
	}
	if len(g.primaryFilters) > 0 {
		primary = g.primaryFilters[i]
	}
	return ext, primary
}

// AppendDataset merges the HDU at position (1 or more) of frame with the
// frame's primary header and appends it. extFilter and primaryFilter select
// the records kept from each header; nil keeps everything.
//
// A source file opened by a failing call stays cached until Close.
func (c *Container) AppendDataset(id string, frame Frame, position int, extFilter, primaryFilter *fits.Filter, mode NamingMode) error {
	const op = "multiframe.Container.AppendDataset"

	if frame == nil {
		return fits.NewError(fits.NullInput, op, "nil frame")
	}
	if position < 1 {
		return fits.NewError(fits.IllegalInput, op, "position %d: extensions start at 1", position)
	}
	if err := checkNaming(op, mode, id); err != nil {
		return err
	}

	f, err := c.source(frame.Filename())
	if err != nil {
		return err
	}
	return c.appendGroup(f, group{
		id:             id,
		mode:           mode,
		positions:      []int{position},
		extFilters:     []*fits.Filter{extFilter},
		primaryFilters: []*fits.Filter{primaryFilter},
	})
}

// AppendDatasetByName is like AppendDataset but selects the first extension
// whose EXTNAME equals name, ignoring case.
func (c *Container) AppendDatasetByName(id string, frame Frame, name string, extFilter, primaryFilter *fits.Filter, mode NamingMode) error {
	const op = "multiframe.Container.AppendDatasetByName"

	if frame == nil {
		return fits.NewError(fits.NullInput, op, "nil frame")
	}
	if name == "" {
		return fits.NewError(fits.IllegalInput, op, "empty extension name")
	}
	if err := checkNaming(op, mode, id); err != nil {
		return err
	}

	f, err := c.source(frame.Filename())
	if err != nil {
		return err
	}
	positions, err := lookupAll(op, f, []string{name})
	if err != nil {
		return err
	}
	return c.appendGroup(f, group{
		id:             id,
		mode:           mode,
		positions:      positions,
		extFilters:     []*fits.Filter{extFilter},
		primaryFilters: []*fits.Filter{primaryFilter},
	})
}

// AppendDatagroup appends the HDUs at positions of frame as a linked group.
// extFilters and primaryFilters are either empty or hold one filter per
// position. For every key in links whose record holds a string, the value is
// renamed the way the members themselves are named.
//
// Either every member is appended or none is.
func (c *Container) AppendDatagroup(id string, frame Frame, positions []int, extFilters, primaryFilters []*fits.Filter, links []string, mode NamingMode) error {
	const op = "multiframe.Container.AppendDatagroup"

	if frame == nil {
		return fits.NewError(fits.NullInput, op, "nil frame")
	}
	if err := checkGroup(op, len(positions), extFilters, primaryFilters); err != nil {
		return err
	}
	for i, p := range positions {
		if p < 1 {
			return fits.NewError(fits.IllegalInput, op, "positions[%d] = %d: extensions start at 1", i, p)
		}
	}
	if err := checkNaming(op, mode, id); err != nil {
		return err
	}

	f, err := c.source(frame.Filename())
	if err != nil {
		return err
	}
	return c.appendGroup(f, group{
		id:             id,
		mode:           mode,
		positions:      positions,
		extFilters:     extFilters,
		primaryFilters: primaryFilters,
		links:          links,
	})
}

// AppendDatagroupByName is like AppendDatagroup but selects each member by
// EXTNAME.
func (c *Container) AppendDatagroupByName(id string, frame Frame, names []string, extFilters, primaryFilters []*fits.Filter, links []string, mode NamingMode) error {
	const op = "multiframe.Container.AppendDatagroupByName"

	if frame == nil {
		return fits.NewError(fits.NullInput, op, "nil frame")
	}
	if err := checkGroup(op, len(names), extFilters, primaryFilters); err != nil {
		return err
	}
	for i, n := range names {
		if n == "" {
			return fits.NewError(fits.IllegalInput, op, "names[%d] is empty", i)
		}
	}
	if err := checkNaming(op, mode, id); err != nil {
		return err
	}

	f, err := c.source(frame.Filename())
	if err != nil {
		return err
	}
	positions, err := lookupAll(op, f, names)
	if err != nil {
		return err
	}
	return c.appendGroup(f, group{
		id:             id,
		mode:           mode,
		positions:      positions,
		extFilters:     extFilters,
		primaryFilters: primaryFilters,
		links:          links,
	})
}

func checkGroup(op string, n int, extFilters, primaryFilters []*fits.Filter) error {
	if n < 2 {
		return fits.NewError(fits.IllegalInput, op, "a group needs at least 2 members, got %d", n)
	}
	if len(extFilters) != 0 && len(extFilters) != n {
		return fits.NewError(fits.IllegalInput, op, "%d extension filters for %d members", len(extFilters), n)
	}
	if len(primaryFilters) != 0 && len(primaryFilters) != n {
		return fits.NewError(fits.IllegalInput, op, "%d primary filters for %d members", len(primaryFilters), n)
	}
	return nil
}

func lookupAll(op string, f *fits.File, names []string) ([]int, error) {
	positions := make([]int, len(names))
	for i, name := range names {
		p, err := f.Lookup(name, 0)
		if err != nil {
			return nil, fits.WrapError(fits.DataNotFound, op, err, "%s: extension %q", f.Path(), name)
		}
		positions[i] = p
	}
	return positions, nil
}

// appendGroup builds every member of g before appending any of them.
func (c *Container) appendGroup(f *fits.File, g group) error {
	raw, err := fits.ReadHeader(f, 0)
	if err != nil {
		return err
	}
	name0, _, _, err := identity(raw)
	if err != nil {
		return fits.WrapError(fits.IllegalOutput, "multiframe.Container.append", err, "%s: primary header", f.Path())
	}
	primary, err := stripPrimary(raw)
	if err != nil {
		return err
	}

	members := make([]*Dataset, 0, len(g.positions))
	for i, position := range g.positions {
		extFilter, primaryFilter := g.filters(i)
		ds, err := c.merge(f, position, primary.Filtered(primaryFilter), extFilter, name0, g)
		if err != nil {
			return err
		}
		members = append(members, ds)
	}

	for _, ds := range members {
		c.log.Debug("dataset appended",
			"source", f.Path(), "name", ds.Name(), "index", len(c.datasets), "keys", ds.header.Len())
		c.datasets = append(c.datasets, ds)
	}
	return nil
}

// merge reads the HDU at position and gives it the joined, sorted header and
// its composed name.
func (c *Container) merge(f *fits.File, position int, primary *fits.Header, extFilter *fits.Filter, name0 string, g group) (*Dataset, error) {
	ds, err := OpenDataset(f, position)
	if err != nil {
		return nil, err
	}
	name, err := ComposeName(g.mode, g.id, name0, ds.Name())
	if err != nil {
		return nil, err
	}

	merged := primary
	merged.Join(ds.header.Filtered(extFilter))
	merged.Sort(nil)
	if err := rewriteLinks(merged, g.links, g.mode, g.id, name0); err != nil {
		return nil, err
	}
	if err := ds.SetHeader(merged); err != nil {
		return nil, err
	}
	ds.SetID(name, 0, 0)
	return ds, nil
}

// AddEmpty appends a placeholder extension without payload named id.
func (c *Container) AddEmpty(id string) error {
	ds, err := NewDataset(fits.NewHeader(), NewEmptyUnit())
	if err != nil {
		return err
	}
	ds.SetID(id, 0, 0)
	c.datasets = append(c.datasets, ds)
	c.log.Debug("placeholder appended", "name", id, "index", len(c.datasets)-1)
	return nil
}

// Len returns the number of datasets, the primary one included.
func (c *Container) Len() int { return len(c.datasets) }

// Dataset returns the dataset at i, or nil if i is out of range. Index 0 is
// the primary dataset.
func (c *Container) Dataset(i int) *Dataset {
	if i < 0 || i >= len(c.datasets) {
		return nil
	}
	return c.datasets[i]
}

// Datasets returns the datasets in output order.
func (c *Container) Datasets() []*Dataset {
	out := make([]*Dataset, len(c.datasets))
	copy(out, c.datasets)
	return out
}

// Write creates filename and writes every dataset to it in order. An
// existing file is overwritten. On failure the output is left incomplete.
func (c *Container) Write(filename string, opts ...WriteOption) error {
	const op = "multiframe.Container.Write"

	if filename == "" {
		return fits.NewError(fits.IllegalInput, op, "empty output file name")
	}
	if c.closed {
		return fits.NewError(fits.IllegalOutput, op, "container is closed")
	}
	o := writeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	w, err := fits.Create(filename, fits.WithClock(o.now))
	if err != nil {
		return err
	}
	if w.Overwritten() {
		c.log.Warn("output overwritten", "path", w.Path())
	}

	for i, ds := range c.datasets {
		if err := ds.Write(w, i == 0, o.checksums); err != nil {
			_ = w.Abort()
			code, _ := fits.CodeOf(err)
			c.log.Error("write failed", "path", w.Path(), "index", i, "code", code, "error", err)
			return fits.WrapError(fits.IllegalOutput, op, err, "%s: dataset %d (%s)", w.Path(), i, ds.Name())
		}
		c.log.Debug("hdu written", "path", w.Path(), "index", i, "name", ds.Name())
	}
	if err := w.Close(); err != nil {
		return fits.WrapError(fits.FileNotCreated, op, err, "%s", w.Path())
	}
	c.log.Info("container written", "path", w.Path(), "hdus", len(c.datasets), "version", version.String())
	return nil
}

// Close releases every cached source file. Datasets taken from them can no
// longer be written. Closing twice is a no-op.
func (c *Container) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true

	var result *multierror.Error
	for path, f := range c.files {
		if err := f.Close(); err != nil {
			result = multierror.Append(result, fits.WrapError(fits.AssigningStream, "multiframe.Container.Close", err, "%s", path))
		}
	}
	clear(c.files)
	return result.ErrorOrNil()
}
