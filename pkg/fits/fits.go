// Package fits implements the subset of the Flexible Image Transport System
// needed to assemble multi-extension files out of existing ones.
//
// A FITS file is a sequence of Header/Data Units (HDUs). Each header is a run
// of 80-byte records terminated by END and padded to a 2880-byte block; each
// data unit follows its header and is padded to a block as well. This package
// reads source HDUs without decoding their payload, models header records
// byte-exactly, and writes new HDUs whose payload is copied verbatim.
package fits

import "strconv"

// Format constants must never change.
const (
	// BlockSize is the size of a FITS logical record.
	BlockSize = 2880

	// CardSize is the fixed capacity of one header record.
	CardSize = 80

	// CardsPerBlock is the number of header records in one block.
	CardsPerBlock = BlockSize / CardSize

	// KeySize is the width of the short keyword field.
	KeySize = 8

	// HierarchMarker prefixes extended (free-form) keywords.
	HierarchMarker = "HIERARCH "

	// valueIndicator separates a keyword from its value.
	valueIndicator = "= "

	// alignColumn is the 1-based column where fixed-format logical and
	// numeric values end.
	alignColumn = 30

	// commentSeparator precedes an inline comment.
	commentSeparator = " / "

	// maxValueKeyField is the longest key field that still leaves room for
	// the value indicator.
	maxValueKeyField = CardSize - len(valueIndicator)

	// maxCommentLen is the longest comment accepted by FormatRecord.
	maxCommentLen = CardSize - KeySize - len(commentSeparator)

	// minCommentRoom is the least number of comment bytes worth keeping.
	minCommentRoom = 3
)

// Nth returns the indexed keyword name, eg Nth("NAXIS", 2) == "NAXIS2".
func Nth(prefix string, n int) string {
	return prefix + strconv.Itoa(n)
}

// padded returns n rounded up to a whole number of blocks.
func padded(n int64) int64 {
	if r := n % BlockSize; r != 0 {
		return n + BlockSize - r
	}
	return n
}
