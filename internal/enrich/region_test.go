package enrich

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lionsoul2014/ip2region/binding/golang/xdb"
)

// buildXDB 生成最小 v4 xdb：每个首段一个区段，区域为 "C<首段>|0|P|City|ISP"
func buildXDB(t *testing.T) string {
	t.Helper()
	const (
		vectorLen = xdb.VectorIndexRows * xdb.VectorIndexCols * xdb.VectorIndexSize
		segSize   = 14
	)
	buf := make([]byte, xdb.HeaderInfoLength+vectorLen)

	regions := make([][]byte, 256)
	ptrs := make([]uint32, 256)
	for a := 0; a < 256; a++ {
		regions[a] = []byte(fmt.Sprintf("C%d|0|P|City|ISP", a))
		ptrs[a] = uint32(len(buf))
		buf = append(buf, regions[a]...)
	}

	for a := 0; a < 256; a++ {
		segPtr := uint32(len(buf))
		seg := make([]byte, segSize)
		binary.LittleEndian.PutUint32(seg[0:], uint32(a)<<24)
		binary.LittleEndian.PutUint32(seg[4:], uint32(a)<<24|0x00ffffff)
		binary.LittleEndian.PutUint16(seg[8:], uint16(len(regions[a])))
		binary.LittleEndian.PutUint32(seg[10:], ptrs[a])
		buf = append(buf, seg...)
		for b := 0; b < 256; b++ {
			off := xdb.HeaderInfoLength + a*xdb.VectorIndexCols*xdb.VectorIndexSize + b*xdb.VectorIndexSize
			binary.LittleEndian.PutUint32(buf[off:], segPtr)
			binary.LittleEndian.PutUint32(buf[off+4:], segPtr)
		}
	}

	path := filepath.Join(t.TempDir(), "ip2region_v4.xdb")
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRegionLookup(t *testing.T) {
	db, err := OpenRegion(buildXDB(t))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	tests := []struct {
		ip   string
		want string
	}{
		{"0.0.0.0", "C0"},
		{"10.1.2.3", "C10"},
		{"192.168.255.255", "C192"},
		{"255.255.255.255", "C255"},
	}
	for _, tt := range tests {
		r, ok := db.Lookup(tt.ip)
		if !ok || r.Country != tt.want || r.Province != "P" || r.ISP != "ISP" {
			t.Errorf("Lookup(%q) = %+v, %v, want country %s", tt.ip, r, ok, tt.want)
		}
	}
	if _, ok := db.Lookup("not-an-ip"); ok {
		t.Error("Lookup on invalid ip reported a region")
	}
}

func TestRegionLookupConcurrent(t *testing.T) {
	db, err := OpenRegion(buildXDB(t))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	const workers, rounds = 16, 2000
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			bad := 0
			for i := 0; i < rounds; i++ {
				a := (w*31 + i) % 256
				r, ok := db.Lookup(fmt.Sprintf("%d.%d.%d.%d", a, i%256, w, i%251))
				if !ok || r.Country != fmt.Sprintf("C%d", a) {
					bad++
				}
			}
			mu.Lock()
			failed += bad
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	if failed != 0 {
		t.Fatalf("concurrent lookups: %d of %d wrong or missing", failed, workers*rounds)
	}
}

func TestOpenRegionShortContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.xdb")
	if err := os.WriteFile(path, make([]byte, 100), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenRegion(path); err == nil {
		t.Fatal("OpenRegion on truncated file returned nil error")
	}
}
