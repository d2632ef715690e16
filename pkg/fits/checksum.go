package fits

import "encoding/binary"

// checksum accumulates the 32-bit ones' complement sum of a byte stream, as
// used by the CHECKSUM and DATASUM keywords. Bytes are taken as big-endian
// words; a trailing partial word is zero-filled.
type checksum struct {
	sum     uint32
	pending [4]byte
	npend   int
}

func (c *checksum) Write(p []byte) (int, error) {
	n := len(p)
	if c.npend > 0 {
		k := copy(c.pending[c.npend:], p)
		c.npend += k
		p = p[k:]
		if c.npend < 4 {
			return n, nil
		}
		c.sum = onesAdd(c.sum, binary.BigEndian.Uint32(c.pending[:]))
		c.npend = 0
	}
	for len(p) >= 4 {
		c.sum = onesAdd(c.sum, binary.BigEndian.Uint32(p))
		p = p[4:]
	}
	c.npend = copy(c.pending[:], p)
	return n, nil
}

// Sum32 returns the current sum.
func (c *checksum) Sum32() uint32 {
	if c.npend == 0 {
		return c.sum
	}
	var last [4]byte
	copy(last[:], c.pending[:c.npend])
	return onesAdd(c.sum, binary.BigEndian.Uint32(last[:]))
}

// Checksum returns the ones' complement sum of p.
func Checksum(p []byte) uint32 {
	var c checksum
	_, _ = c.Write(p)
	return c.Sum32()
}

func onesAdd(a, b uint32) uint32 {
	s := uint64(a) + uint64(b)
	return uint32(s&0xffffffff + s>>32)
}

var checksumExclude = [...]byte{
	0x3a, 0x3b, 0x3c, 0x3d, 0x3e, 0x3f, 0x40,
	0x5b, 0x5c, 0x5d, 0x5e, 0x5f, 0x60,
}

// EncodeChecksum renders sum as the 16-character ASCII form stored in
// CHECKSUM. With complement set the ones' complement of sum is encoded, which
// makes the checksummed HDU sum to negative zero.
func EncodeChecksum(sum uint32, complement bool) string {
	const offset = 0x30

	value := sum
	if complement {
		value = ^sum
	}

	var asc [16]byte
	for i := 0; i < 4; i++ {
		b := int(value>>(24-8*uint(i))) & 0xff
		quotient := b/4 + offset
		remainder := b % 4
		ch := [4]int{quotient + remainder, quotient, quotient, quotient}

		for again := true; again; {
			again = false
			for _, ex := range checksumExclude {
				for j := 0; j < 4; j += 2 {
					if byte(ch[j]) == ex || byte(ch[j+1]) == ex {
						ch[j]++
						ch[j+1]--
						again = true
					}
				}
			}
		}
		for j := 0; j < 4; j++ {
			asc[4*j+i] = byte(ch[j])
		}
	}

	// The encoded value starts at byte 11 of its record, so rotate by one to
	// keep each character in its word column.
	var out [16]byte
	for i := range out {
		out[i] = asc[(i+15)%16]
	}
	return string(out[:])
}
