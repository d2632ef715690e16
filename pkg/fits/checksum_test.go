package fits

import (
	"bytes"
	"testing"
)

func TestChecksumWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
		want uint32
	}{
		{"empty", nil, 0},
		{"two words", []byte{0, 0, 0, 1, 0, 0, 0, 2}, 3},
		{"end around carry", []byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 1}, 1},
		{"partial word", []byte{0x01, 0x02}, 0x01020000},
	}
	for _, tt := range tests {
		if got := Checksum(tt.in); got != tt.want {
			t.Fatalf("%s: got %#x want %#x", tt.name, got, tt.want)
		}
	}
}

func TestChecksumStreaming(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde}, 100)
	want := Checksum(data)

	var c checksum
	for _, n := range []int{1, 3, 5, 2, 7, 11} {
		if len(data) == 0 {
			break
		}
		k := min(n, len(data))
		_, _ = c.Write(data[:k])
		data = data[k:]
	}
	_, _ = c.Write(data)
	if got := c.Sum32(); got != want {
		t.Fatalf("streamed sum: got %#x want %#x", got, want)
	}
}

func TestEncodeChecksum(t *testing.T) {
	t.Parallel()

	if got := EncodeChecksum(0xffffffff, true); got != "0000000000000000" {
		t.Fatalf("negative zero: got %q", got)
	}

	for _, sum := range []uint32{0, 1, 0x12345678, 0xdeadbeef, 0x80000000} {
		s := EncodeChecksum(sum, true)
		if len(s) != 16 {
			t.Fatalf("length: got %d want 16", len(s))
		}
		for i := 0; i < len(s); i++ {
			ch := s[i]
			if ch < '0' || ch > 'z' || bytes.IndexByte(checksumExclude[:], ch) >= 0 {
				t.Fatalf("sum %#x: character %q at %d is not alphanumeric", sum, ch, i)
			}
		}
	}
}
