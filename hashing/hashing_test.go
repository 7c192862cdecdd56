package hashing

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex in test: %v", err)
	}
	return b
}

func TestBlake2b512_ReferenceVectors(t *testing.T) {
	// RFC 7693 appendix A and the official BLAKE2 test vectors.
	cases := []struct {
		in   string
		want string
	}{
		{"", "786a02f742015903c6c6fd852552d272912f4740e15847618a86e217f71f5419d25e1031afee585313896444934eb04b903a685b1448b755d56f701afe9be2ce"},
		{"abc", "ba80a53f981c4d0d6a2797b69f12f6e94c212f14685ac4b74b12bb6fdbffa2d17d87c5392aab792dc252d5de4533cc9518d38aa8dbf1925ab92386edd4009923"},
	}
	for _, tc := range cases {
		got := Blake2b512([]byte(tc.in))
		if !bytes.Equal(got[:], mustHex(t, tc.want)) {
			t.Fatalf("Blake2b512(%q) = %x, want %s", tc.in, got, tc.want)
		}
		// The generic entry point must agree with the fixed-size helper.
		generic, err := Blake2b([]byte(tc.in), nil, 64)
		if err != nil {
			t.Fatalf("Blake2b(%q): %v", tc.in, err)
		}
		if !bytes.Equal(generic, got[:]) {
			t.Fatalf("Blake2b and Blake2b512 disagree for %q", tc.in)
		}
	}
}

func TestBlake2b_ParameterValidation(t *testing.T) {
	cases := []struct {
		name string
		key  []byte
		size int
	}{
		{"zero size", nil, 0},
		{"negative size", nil, -1},
		{"oversized digest", nil, 65},
		{"oversized key", make([]byte, 65), 32},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Blake2b([]byte("data"), tc.key, tc.size); err == nil {
				t.Fatalf("Blake2b accepted invalid parameters (key=%d size=%d)", len(tc.key), tc.size)
			}
		})
	}
}

func TestBlake2b_Keyed(t *testing.T) {
	key := make([]byte, 64)
	for i := range key {
		key[i] = byte(i)
	}
	keyed, err := Blake2b([]byte("abc"), key, 64)
	if err != nil {
		t.Fatalf("keyed Blake2b: %v", err)
	}
	unkeyed := Blake2b512([]byte("abc"))
	if bytes.Equal(keyed, unkeyed[:]) {
		t.Fatalf("keyed digest must differ from unkeyed digest")
	}
}

func TestKeccak256_ReferenceVectors(t *testing.T) {
	// Legacy Keccak padding, not SHA3-256.
	cases := []struct {
		in   string
		want string
	}{
		{"", "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"abc", "4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45"},
	}
	for _, tc := range cases {
		got := Keccak256([]byte(tc.in))
		if !bytes.Equal(got[:], mustHex(t, tc.want)) {
			t.Fatalf("Keccak256(%q) = %x, want %s", tc.in, got, tc.want)
		}
	}
}

func TestSHA256_ReferenceVector(t *testing.T) {
	got := SHA256([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if !bytes.Equal(got[:], mustHex(t, want)) {
		t.Fatalf("SHA256(abc) = %x, want %s", got, want)
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual([]byte("same"), []byte("same")) {
		t.Fatalf("equal slices compared unequal")
	}
	if ConstantTimeEqual([]byte("same"), []byte("other")) {
		t.Fatalf("different slices compared equal")
	}
	if ConstantTimeEqual([]byte("same"), []byte("sam")) {
		t.Fatalf("different lengths compared equal")
	}
}
