package id

import "testing"

func TestNextMonotonic(t *testing.T) {
	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		cur := g.Next()
		if cur.Compare(prev) <= 0 {
			t.Fatalf("id %s not greater than %s", cur, prev)
		}
		prev = cur
	}
}

func TestBackwardsClock(t *testing.T) {
	orig := NowMs
	defer func() { NowMs = orig }()

	ms := int64(5000)
	NowMs = func() int64 { return ms }

	g := NewGenerator()
	a := g.Next()
	ms = 4000 // clock steps backwards
	b := g.Next()
	if b.Compare(a) <= 0 {
		t.Fatalf("expected %s > %s despite clock step", b, a)
	}
}

func TestStringHex(t *testing.T) {
	var i ID
	i[0] = 0xab
	i[15] = 0x01
	s := i.String()
	if len(s) != 32 || s[:2] != "ab" || s[30:] != "01" {
		t.Fatalf("unexpected hex: %s", s)
	}
}
