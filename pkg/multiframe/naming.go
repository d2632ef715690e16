package multiframe

import (
	"strconv"
	"strings"

	"github.com/samcharles93/multiframe/pkg/fits"
)

// NamingMode selects how an appended dataset is named from the caller's id
// and the names found in the source file.
type NamingMode int

const (
	// NameSet uses the id as is. The id may be empty.
	NameSet NamingMode = iota
	// NamePrefix prepends the id to the extension name. The id must not be
	// empty.
	NamePrefix
	// NameJoin joins the primary header name, the id and the extension
	// name. The primary header name must not be empty.
	NameJoin
)

var namingModes = [...]string{
	NameSet:    "set",
	NamePrefix: "prefix",
	NameJoin:   "join",
}

func (m NamingMode) String() string {
	if m.valid() {
		return namingModes[m]
	}
	return "NamingMode(" + strconv.Itoa(int(m)) + ")"
}

func (m NamingMode) valid() bool {
	return m >= NameSet && m <= NameJoin
}

// ParseNamingMode maps "set", "prefix" or "join" (any case) to a mode. An
// empty string selects NameSet.
func ParseNamingMode(s string) (NamingMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return NameSet, nil
	}
	for m, name := range namingModes {
		if s == name {
			return NamingMode(m), nil
		}
	}
	return 0, fits.NewError(fits.UnsupportedMode, "multiframe.ParseNamingMode", "unknown naming mode %q", s)
}

// ComposeName derives a dataset name.
//
//	NameSet:    id
//	NamePrefix: id + extname
//	NameJoin:   name0 + id + extname, or name0 when extname is empty
func ComposeName(mode NamingMode, id, name0, extname string) (string, error) {
	const op = "multiframe.ComposeName"

	switch mode {
	case NameSet:
		return id, nil
	case NamePrefix:
		if id == "" {
			return "", fits.NewError(fits.IllegalInput, op, "prefix naming requires an id")
		}
		return id + extname, nil
	case NameJoin:
		if name0 == "" {
			return "", fits.NewError(fits.IllegalInput, op, "join naming requires a primary EXTNAME")
		}
		if extname == "" {
			return name0, nil
		}
		return name0 + id + extname, nil
	}
	return "", fits.NewError(fits.UnsupportedMode, op, "naming mode %d", int(mode))
}

// checkNaming validates mode and id before anything is opened. The primary
// name needed by NameJoin is only known once the source is read.
func checkNaming(op string, mode NamingMode, id string) error {
	if !mode.valid() {
		return fits.NewError(fits.UnsupportedMode, op, "naming mode %d", int(mode))
	}
	if mode == NamePrefix && id == "" {
		return fits.NewError(fits.IllegalInput, op, "prefix naming requires an id")
	}
	return nil
}

// rewriteLinks renames the targets of the link records in h the same way the
// datasets of a group are named, so that references between members stay
// valid. Only quoted string values are rewritten; NameSet leaves h alone.
func rewriteLinks(h *fits.Header, links []string, mode NamingMode, id, name0 string) error {
	if mode == NameSet {
		return nil
	}
	for _, key := range links {
		i := h.Index(key)
		if i < 0 {
			continue
		}
		c := h.Card(i)
		if c.IsCommentary() || !strings.HasPrefix(c.Value(), "'") {
			continue
		}
		target, err := ComposeName(mode, id, name0, strings.TrimSpace(c.StringValue()))
		if err != nil {
			return err
		}
		nc, err := c.WithValue(fits.Quote(target))
		if err != nil {
			return fits.WrapError(fits.IllegalOutput, "multiframe.rewriteLinks", err, "link %s", key)
		}
		if err := h.Set(i, nc); err != nil {
			return err
		}
	}
	return nil
}
