package fits

import (
	"strings"
	"unicode"
)

// Card is one header record. Only the formatted record is stored; key, value
// and comment are parsed from it on demand. Cards are values: the With*
// methods return a new Card and never modify the receiver.
type Card struct {
	rec string
}

var blankRecord = strings.Repeat(" ", CardSize)

// CardFromRecord wraps a raw record, padding or truncating it to CardSize.
func CardFromRecord(rec string) Card {
	return Card{rec: fitRecord(rec)}
}

// NewCard builds a card from a keyword name, a value literal and a comment.
// See ParseKeyName and FormatRecord for the accepted forms.
func NewCard(name, value, comment string) (Card, error) {
	key, err := ParseKeyName(name, false)
	if err != nil {
		return Card{}, err
	}
	rec, err := FormatRecord(key, value, comment)
	if err != nil {
		return Card{}, err
	}
	return Card{rec: fitRecord(rec)}, nil
}

// MustCard is like NewCard but panics on error. It is meant for static cards.
func MustCard(name, value, comment string) Card {
	c, err := NewCard(name, value, comment)
	if err != nil {
		panic(err)
	}
	return c
}

// Record returns the CardSize-byte record.
func (c Card) Record() string {
	if c.rec == "" {
		return blankRecord
	}
	return c.rec
}

func (c Card) String() string { return strings.TrimRight(c.Record(), " ") }

// IsZero reports whether c was never assigned a record.
func (c Card) IsZero() bool { return c.rec == "" }

// IsHierarch reports whether the card uses an extended keyword.
func (c Card) IsHierarch() bool {
	return strings.HasPrefix(c.rec, HierarchMarker)
}

// IsCommentary reports whether the card has no value field (COMMENT,
// HISTORY, blank keyword or any record without a value indicator).
func (c Card) IsCommentary() bool {
	_, _, _, commentary := parseRecord(c.Record())
	return commentary
}

// Key returns the keyword, trailing blanks removed. Extended keywords keep
// their HIERARCH marker.
func (c Card) Key() string {
	key, _, _, _ := parseRecord(c.Record())
	return key
}

// Value returns the value literal. Strings are returned quoted, with doubled
// quotes collapsed and trailing blanks removed, so that the result can be
// fed back into FormatRecord unchanged. Commentary cards return their text.
func (c Card) Value() string {
	_, value, _, _ := parseRecord(c.Record())
	return value
}

// StringValue returns the value with the enclosing quotes removed.
func (c Card) StringValue() string {
	return unquote(c.Value())
}

// Comment returns the inline comment, if any.
func (c Card) Comment() string {
	_, _, comment, _ := parseRecord(c.Record())
	return comment
}

// WithKey returns a copy of c under a new keyword, keeping value and comment.
// Keyword names may contain letters, digits, '.', '_' and '-' and must not
// start with '.'. Dotted names become extended keywords.
func (c Card) WithKey(name string) (Card, error) {
	if err := validateKeyChars(name); err != nil {
		return Card{}, err
	}
	key, err := ParseKeyName(name, false)
	if err != nil {
		return Card{}, err
	}
	_, value, comment, _ := parseRecord(c.Record())
	rec, err := FormatRecord(key, value, comment)
	if err != nil {
		return Card{}, err
	}
	return Card{rec: fitRecord(rec)}, nil
}

// WithValue returns a copy of c with a new value, keeping key and comment.
func (c Card) WithValue(value string) (Card, error) {
	key, err := c.keyField()
	if err != nil {
		return Card{}, err
	}
	rec, err := FormatRecord(key, value, c.Comment())
	if err != nil {
		return Card{}, err
	}
	return Card{rec: fitRecord(rec)}, nil
}

// WithComment returns a copy of c with a new comment, keeping key and value.
func (c Card) WithComment(comment string) (Card, error) {
	key, err := c.keyField()
	if err != nil {
		return Card{}, err
	}
	rec, err := FormatRecord(key, c.Value(), comment)
	if err != nil {
		return Card{}, err
	}
	return Card{rec: fitRecord(rec)}, nil
}

func (c Card) keyField() (string, error) {
	return ParseKeyName(c.Key(), false)
}

// ParseKeyName maps a raw keyword name onto the key field written at the
// start of a record:
//
//	""/blanks           -> 8 blanks
//	COMMENT, HISTORY    -> "COMMENT ", "HISTORY "
//	"ESO DET.DIT"       -> "HIERARCH ESO DET DIT " (also when extended is set)
//	"NAXIS1"            -> "NAXIS1  "
//
// Short names longer than KeySize are rejected.
func ParseKeyName(raw string, extended bool) (string, error) {
	name := strings.TrimSpace(raw)
	switch name {
	case "":
		return blankRecord[:KeySize], nil
	case "COMMENT", "HISTORY":
		return name + " ", nil
	}

	if extended || strings.ContainsAny(name, " .") {
		parts := strings.FieldsFunc(name, func(r rune) bool {
			return r == ' ' || r == '.'
		})
		if len(parts) > 0 && parts[0] == strings.TrimSpace(HierarchMarker) {
			parts = parts[1:]
		}
		if len(parts) == 0 {
			return "", NewError(IllegalInput, "fits.ParseKeyName", "empty extended keyword %q", raw)
		}
		return HierarchMarker + strings.Join(parts, " ") + " ", nil
	}

	if len(name) > KeySize {
		return "", NewError(IllegalInput, "fits.ParseKeyName", "keyword %q longer than %d characters", name, KeySize)
	}
	return name + blankRecord[:KeySize-len(name)], nil
}

// FormatRecord builds one record from a key field (as returned by
// ParseKeyName), a value literal and a comment.
//
// Values are laid out by kind: a quoted string has its interior quotes
// doubled and is padded to at least 8 characters between the quotes; a
// parenthesized list is written as is; a logical (T or F) or any other
// literal is right-justified to end at column 30, unless key and value
// already reach past that column. A comment follows " / " once the record is
// padded to column 30, and is dropped if fewer than 3 bytes would be left for
// it. The record is truncated to CardSize.
func FormatRecord(key, value, comment string) (string, error) {
	const op = "fits.FormatRecord"

	if key == "" {
		return "", NewError(IllegalInput, op, "empty key")
	}
	if len(key) >= maxValueKeyField {
		return "", NewError(IllegalInput, op, "key %q exceeds the key field", strings.TrimSpace(key))
	}

	if isCommentaryKey(key) {
		if len(value) > CardSize-KeySize {
			return "", NewError(IllegalInput, op, "commentary text exceeds %d characters", CardSize-KeySize)
		}
		return fitRecord(key + value), nil
	}

	v, aligned := formatValue(value)
	if len(v) > CardSize-len(key)-len(valueIndicator) {
		return "", NewError(IllegalInput, op, "value of %q exceeds the value field", strings.TrimSpace(key))
	}
	if len(comment) > maxCommentLen {
		return "", NewError(IllegalInput, op, "comment of %q exceeds %d characters", strings.TrimSpace(key), maxCommentLen)
	}

	var b strings.Builder
	b.Grow(CardSize)
	b.WriteString(key)
	b.WriteString(valueIndicator)
	if aligned {
		for n := b.Len() + len(v); n < alignColumn; n++ {
			b.WriteByte(' ')
		}
	}
	b.WriteString(v)

	if comment != "" {
		for b.Len() < alignColumn {
			b.WriteByte(' ')
		}
		if CardSize-b.Len()-len(commentSeparator) >= minCommentRoom {
			b.WriteString(commentSeparator)
			b.WriteString(comment)
		}
	}

	rec := b.String()
	if len(rec) > CardSize {
		rec = rec[:CardSize]
	}
	return rec, nil
}

// formatValue renders a value literal and reports whether it is a fixed
// format value that must be right-justified.
func formatValue(value string) (string, bool) {
	switch {
	case isQuoted(value):
		s := strings.ReplaceAll(value[1:len(value)-1], "'", "''")
		if len(s) < 8 {
			s += blankRecord[:8-len(s)]
		}
		return "'" + s + "'", false
	case len(value) >= 2 && value[0] == '(' && value[len(value)-1] == ')':
		return value, false
	default:
		// logical (T or F), numeric or other free literal
		return value, true
	}
}

// parseRecord splits a record into its parts. Commentary records carry their
// text in value.
func parseRecord(rec string) (key, value, comment string, commentary bool) {
	var rest string
	if strings.HasPrefix(rec, HierarchMarker) {
		eq := strings.IndexByte(rec, '=')
		if eq < 0 {
			return strings.TrimRight(rec, " "), "", "", true
		}
		key = strings.TrimRight(rec[:eq], " ")
		rest = rec[eq+1:]
	} else {
		key = strings.TrimRight(rec[:KeySize], " ")
		if rec[KeySize:KeySize+len(valueIndicator)] != valueIndicator {
			return key, strings.TrimRight(rec[KeySize:], " "), "", true
		}
		rest = rec[KeySize+len(valueIndicator):]
	}

	s := strings.TrimLeft(rest, " ")
	if s == "" {
		return key, "", "", false
	}

	if s[0] == '\'' {
		end, content, ok := scanString(s)
		if !ok {
			return key, strings.TrimRight(s, " "), "", false
		}
		value = "'" + content + "'"
		if slash := strings.IndexByte(s[end:], '/'); slash >= 0 {
			comment = strings.TrimSpace(s[end+slash+1:])
		}
		return key, value, comment, false
	}

	if slash := strings.IndexByte(s, '/'); slash >= 0 {
		return key, strings.TrimSpace(s[:slash]), strings.TrimSpace(s[slash+1:]), false
	}
	return key, strings.TrimSpace(s), "", false
}

// scanString reads a quoted FITS string at the start of s. It returns the
// offset just past the closing quote and the unescaped content without
// trailing blanks.
func scanString(s string) (int, string, bool) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		return i + 1, strings.TrimRight(b.String(), " "), true
	}
	return 0, "", false
}

func isQuoted(v string) bool {
	return len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\''
}

func unquote(v string) string {
	if isQuoted(v) {
		return v[1 : len(v)-1]
	}
	return v
}

// Quote returns s as a string value literal.
func Quote(s string) string {
	return "'" + s + "'"
}

func isCommentaryKey(key string) bool {
	switch key {
	case "COMMENT ", "HISTORY ", blankRecord[:KeySize]:
		return true
	}
	return false
}

func validateKeyChars(name string) error {
	const op = "fits.Card.WithKey"
	if name == "" {
		return NewError(IllegalInput, op, "empty keyword")
	}
	if name[0] == '.' {
		return NewError(IllegalInput, op, "keyword %q starts with '.'", name)
	}
	for _, r := range name {
		if r > unicode.MaxASCII {
			return NewError(IllegalInput, op, "keyword %q contains non-ASCII characters", name)
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			continue
		}
		return NewError(IllegalInput, op, "keyword %q contains %q", name, r)
	}
	return nil
}

func fitRecord(rec string) string {
	switch {
	case len(rec) > CardSize:
		return rec[:CardSize]
	case len(rec) < CardSize:
		return rec + blankRecord[:CardSize-len(rec)]
	}
	return rec
}
