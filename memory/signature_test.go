package memory

import (
	"reflect"
	"testing"
)

func TestParseSignature(t *testing.T) {
	tests := []struct {
		in        string
		bytes     []byte
		wildcards []Range
	}{
		{"488b0d", []byte{0x48, 0x8b, 0x0d}, nil},
		{"e8????????85c0", []byte{0xe8, 0, 0, 0, 0, 0x85, 0xc0}, []Range{{1, 5}}},
		{"0011223344556677??88", []byte{0, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0, 0x88}, []Range{{8, 9}}},
		{"??aa??", []byte{0, 0xaa, 0}, []Range{{0, 1}, {2, 3}}},
		{"0f b7 c0 ?? ??", []byte{0x0f, 0xb7, 0xc0, 0, 0}, []Range{{3, 5}}},
	}
	for _, tt := range tests {
		sig, err := ParseSignature(tt.in)
		if err != nil {
			t.Errorf("ParseSignature(%q) failed: %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(sig.Bytes, tt.bytes) {
			t.Errorf("ParseSignature(%q) bytes = %x, want %x", tt.in, sig.Bytes, tt.bytes)
		}
		if !reflect.DeepEqual(sig.Wildcards, tt.wildcards) {
			t.Errorf("ParseSignature(%q) wildcards = %v, want %v", tt.in, sig.Wildcards, tt.wildcards)
		}
	}
}

func TestParseSignatureRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "4?8b", "zz"} {
		if _, err := ParseSignature(in); err == nil {
			t.Errorf("ParseSignature(%q) should fail", in)
		}
	}
}

func TestSignatureString(t *testing.T) {
	const in = "e8????????85c0"
	sig, err := ParseSignature(in)
	if err != nil {
		t.Fatal(err)
	}
	if sig.String() != in {
		t.Errorf("String() = %q, want %q", sig.String(), in)
	}
}

func TestFind(t *testing.T) {
	haystack := make([]byte, 256)
	for i := range haystack {
		haystack[i] = byte(i * 7)
	}
	needle := []byte{0xde, 0xad, 0x00, 0x00, 0xbe, 0xef}
	copy(haystack[100:], []byte{0xde, 0xad, 0x12, 0x34, 0xbe, 0xef})

	if got := Find(haystack, needle, []Range{{2, 4}}); got != 100 {
		t.Errorf("Find with wildcards = %d, want 100", got)
	}
	if got := Find(haystack, needle, nil); got != -1 {
		t.Errorf("Find without wildcards = %d, want -1", got)
	}
	if got := Find(haystack, haystack[40:48], nil); got != 40 {
		t.Errorf("Find exact = %d, want 40", got)
	}
	if got := Find(haystack[:4], needle, nil); got != -1 {
		t.Errorf("Find with short haystack = %d, want -1", got)
	}
}

func TestFindReturnsLeftmostMatch(t *testing.T) {
	haystack := []byte{1, 2, 9, 4, 1, 2, 8, 4}
	if got := Find(haystack, []byte{1, 2, 0, 4}, []Range{{2, 3}}); got != 0 {
		t.Errorf("Find = %d, want 0", got)
	}
}

func TestFindIgnoresRangesPastNeedle(t *testing.T) {
	haystack := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if got := Find(haystack, []byte{1, 2, 3}, []Range{{5, 6}}); got != 0 {
		t.Errorf("Find = %d, want 0", got)
	}
	if got := Find(haystack, []byte{4, 9, 6}, []Range{{1, 2}, {7, 3}}); got != 3 {
		t.Errorf("Find = %d, want 3", got)
	}
}
