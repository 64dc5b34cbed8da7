package worker

import "testing"

func TestMemDedupFirstWins(t *testing.T) {
	d := NewMemDedup()
	key := dedupKey{Ext: 1, Name: 2}

	first, err := d.Claim(key)
	if err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Fatal("expected first claim to succeed")
	}

	second, err := d.Claim(key)
	if err != nil {
		t.Fatal(err)
	}
	if second {
		t.Fatal("expected second claim of the same key to fail")
	}

	if d.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", d.Count())
	}
}

func TestMemDedupDistinctKeys(t *testing.T) {
	d := NewMemDedup()
	if ok, _ := d.Claim(dedupKey{Ext: 1, Name: 1}); !ok {
		t.Fatal("expected claim to succeed")
	}
	if ok, _ := d.Claim(dedupKey{Ext: 1, Name: 2}); !ok {
		t.Fatal("expected claim of a different name to succeed")
	}
	if d.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", d.Count())
	}
}
