package multiframe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/multiframe/pkg/fits"
)

// Plan is a declarative merge: a head file, the datasets to collect and the
// output to write. Relative paths are used as given.
type Plan struct {
	Head      string      `yaml:"head" json:"head"`
	ID        string      `yaml:"id" json:"id"`
	Filter    *FilterSpec `yaml:"filter" json:"filter"`
	Output    string      `yaml:"output" json:"output"`
	Checksums bool        `yaml:"checksums" json:"checksums"`
	Datasets  []PlanEntry `yaml:"datasets" json:"datasets"`
}

// PlanEntry is one append. Exactly one selector applies, checked in this
// order: Empty, Positions, Names, Name, Position.
type PlanEntry struct {
	File string `yaml:"file" json:"file"`
	ID   string `yaml:"id" json:"id"`
	Mode string `yaml:"mode" json:"mode"`

	Position  int      `yaml:"position" json:"position"`
	Name      string   `yaml:"name" json:"name"`
	Positions []int    `yaml:"positions" json:"positions"`
	Names     []string `yaml:"names" json:"names"`
	Empty     bool     `yaml:"empty" json:"empty"`

	Filter         *FilterSpec   `yaml:"filter" json:"filter"`
	PrimaryFilter  *FilterSpec   `yaml:"primary_filter" json:"primary_filter"`
	Filters        []*FilterSpec `yaml:"filters" json:"filters"`
	PrimaryFilters []*FilterSpec `yaml:"primary_filters" json:"primary_filters"`
	Links          []string      `yaml:"links" json:"links"`
}

// FilterSpec describes a fits.Filter. Syntax holds any of "extended",
// "basic", "icase" and "newline".
type FilterSpec struct {
	Pattern string   `yaml:"pattern" json:"pattern"`
	Negated bool     `yaml:"negated" json:"negated"`
	Syntax  []string `yaml:"syntax" json:"syntax"`
}

var syntaxNames = map[string]fits.SyntaxFlag{
	"extended": fits.SyntaxExtended,
	"basic":    fits.SyntaxBasic,
	"icase":    fits.SyntaxIgnoreCase,
	"newline":  fits.SyntaxNewline,
}

// Compile builds the filter. A nil spec yields a nil filter, which passes
// every record.
func (s *FilterSpec) Compile() (*fits.Filter, error) {
	if s == nil {
		return nil, nil
	}
	var flags fits.SyntaxFlag
	for _, name := range s.Syntax {
		flag, ok := syntaxNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fits.NewError(fits.IllegalInput, "multiframe.FilterSpec.Compile", "unknown syntax %q", name)
		}
		flags |= flag
	}
	return fits.NewFilter(s.Pattern, s.Negated, flags)
}

func compileAll(specs []*FilterSpec) ([]*fits.Filter, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]*fits.Filter, len(specs))
	for i, s := range specs {
		f, err := s.Compile()
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

// LoadPlan reads a plan file. Files ending in .json are decoded as JSON,
// anything else as YAML.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	p, err := ParsePlan(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParsePlan decodes a plan in the given format, "yaml" (the default) or
// "json".
func ParsePlan(data []byte, format string) (*Plan, error) {
	const op = "multiframe.ParsePlan"

	var p Plan
	switch strings.ToLower(format) {
	case "", "yaml", "yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fits.WrapError(fits.IllegalInput, op, err, "decode yaml")
		}
	case "json":
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fits.WrapError(fits.IllegalInput, op, err, "decode json")
		}
	default:
		return nil, fits.NewError(fits.UnsupportedMode, op, "plan format %q", format)
	}
	if p.Head == "" {
		return nil, fits.NewError(fits.NullInput, op, "plan has no head file")
	}
	if p.Output == "" {
		return nil, fits.NewError(fits.NullInput, op, "plan has no output file")
	}
	return &p, nil
}

// Execute runs the plan: it builds a container from the head file, applies
// every entry in order, writes the output and closes the container.
func (p *Plan) Execute(opts ...Option) (err error) {
	filter, err := p.Filter.Compile()
	if err != nil {
		return fmt.Errorf("head filter: %w", err)
	}
	c, err := New(NewFrame(p.Head), p.ID, filter, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	for i := range p.Datasets {
		if err := p.Datasets[i].apply(c); err != nil {
			return fmt.Errorf("datasets[%d]: %w", i, err)
		}
	}

	var wopts []WriteOption
	if p.Checksums {
		wopts = append(wopts, WithChecksums())
	}
	return c.Write(p.Output, wopts...)
}

func (e *PlanEntry) apply(c *Container) error {
	if e.Empty {
		return c.AddEmpty(e.ID)
	}

	mode, err := ParseNamingMode(e.Mode)
	if err != nil {
		return err
	}
	frame := NewFrame(e.File)

	if len(e.Positions) > 0 || len(e.Names) > 0 {
		extFilters, err := compileAll(e.Filters)
		if err != nil {
			return err
		}
		primaryFilters, err := compileAll(e.PrimaryFilters)
		if err != nil {
			return err
		}
		if len(e.Positions) > 0 {
			return c.AppendDatagroup(e.ID, frame, e.Positions, extFilters, primaryFilters, e.Links, mode)
		}
		return c.AppendDatagroupByName(e.ID, frame, e.Names, extFilters, primaryFilters, e.Links, mode)
	}

	extFilter, err := e.Filter.Compile()
	if err != nil {
		return err
	}
	primaryFilter, err := e.PrimaryFilter.Compile()
	if err != nil {
		return err
	}
	if e.Name != "" {
		return c.AppendDatasetByName(e.ID, frame, e.Name, extFilter, primaryFilter, mode)
	}
	return c.AppendDataset(e.ID, frame, e.Position, extFilter, primaryFilter, mode)
}
