package api

import "testing"

func TestBloomPositions(t *testing.T) {
	a := bloomPositions([]byte("1.2.3.4"), visitorBits, visitorHashes)
	b := bloomPositions([]byte("1.2.3.4"), visitorBits, visitorHashes)
	if len(a) != visitorHashes {
		t.Fatalf("len = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("positions not deterministic: %v vs %v", a, b)
		}
		if a[i] < 0 || a[i] >= int64(visitorBits) {
			t.Fatalf("position %d out of range", a[i])
		}
	}
	c := bloomPositions([]byte("5.6.7.8"), visitorBits, visitorHashes)
	same := true
	for i := range a {
		same = same && a[i] == c[i]
	}
	if same {
		t.Fatal("distinct visitors hashed to identical positions")
	}
}
