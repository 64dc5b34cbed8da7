package hashutil

import "testing"

func TestHash64A(t *testing.T) {
	cases := []struct {
		key  string
		want uint64
	}{
		{"", 0},
		{"t", 0xa9f7b29f271e2bf0},
		{"te", 0x09a5c91602af86bf},
		{"tes", 0xdd890a49d3dbcc17},
		{"test", 0x2f4a8724618f4c63},
		{"testh", 0x897d3d790c864055},
		{"testha", 0xbc03666f652e7504},
		{"testhas", 0xc9735c8662b71bf6},
		{"testhash", 0x78409ab9ed54c450},
	}

	for _, c := range cases {
		if got := Hash64A([]byte(c.key)); got != c.want {
			t.Errorf("Hash64A(%q) = %#x, want %#x", c.key, got, c.want)
		}
	}
}

func TestShortHash(t *testing.T) {
	h := Hash64A([]byte("testhash"))
	want := uint32(h >> 32)
	if got := ShortHash(h); got != want {
		t.Errorf("ShortHash() = %#x, want %#x", got, want)
	}
}
