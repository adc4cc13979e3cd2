package localdb

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
)

func mustBuild(t *testing.T, rows []Record) *Table {
	t.Helper()
	tbl, err := Build(rows)
	if err != nil {
		t.Fatalf("Build(%v) error = %v", rows, err)
	}
	return tbl
}

func linearFind(rows []Record, addr uint32) (Record, bool) {
	for _, r := range rows {
		if r.Contains(addr) {
			return r, true
		}
	}
	return Record{}, false
}

// randomRanges 生成互不重叠、随机顺序的区间
func randomRanges(rng *rand.Rand, n int) []Record {
	starts := make(map[uint32]struct{}, n*2)
	for len(starts) < n*2 {
		starts[rng.Uint32()] = struct{}{}
	}
	bounds := make([]uint32, 0, len(starts))
	for v := range starts {
		bounds = append(bounds, v)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })
	rows := make([]Record, 0, n)
	for i := 0; i+1 < len(bounds); i += 2 {
		rows = append(rows, Record{Start: bounds[i], End: bounds[i+1], Owner: FormatIPv4(bounds[i])})
	}
	rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
	return rows
}

func TestFindConcreteScenario(t *testing.T) {
	tbl := mustBuild(t, []Record{{Start: 167772160, End: 167772415, Owner: "Acme"}})

	got, ok := tbl.Find(167772200)
	if !ok || got.Owner != "Acme" {
		t.Fatalf("Find(167772200) = %v, %v, want Acme", got, ok)
	}
	if got, ok := tbl.Find(167772416); ok {
		t.Fatalf("Find(167772416) = %v, want no match", got)
	}
}

func TestFindMatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		rows := randomRanges(rng, 1+rng.Intn(200))
		tbl := mustBuild(t, rows)
		samples := make([]uint32, 0, 2000)
		for i := 0; i < 1000; i++ {
			samples = append(samples, rng.Uint32())
		}
		for _, r := range rows {
			samples = append(samples, r.Start, r.End, r.Start-1, r.End+1)
		}
		for _, a := range samples {
			want, wantOK := linearFind(rows, a)
			got, gotOK := tbl.Find(a)
			if got != want || gotOK != wantOK {
				t.Fatalf("round %d: Find(%s) = %v, %v, want %v, %v", round, FormatIPv4(a), got, gotOK, want, wantOK)
			}
		}
	}
}

func TestFindIsIdempotent(t *testing.T) {
	tbl := mustBuild(t, randomRanges(rand.New(rand.NewSource(7)), 50))
	for _, a := range []uint32{0, 1 << 31, ^uint32(0), 12345678} {
		first, firstOK := tbl.Find(a)
		for i := 0; i < 5; i++ {
			if got, ok := tbl.Find(a); got != first || ok != firstOK {
				t.Fatalf("Find(%d) changed between calls: %v,%v then %v,%v", a, first, firstOK, got, ok)
			}
		}
	}
}

func TestFindBoundaries(t *testing.T) {
	rows := []Record{
		{Start: 100, End: 200, Owner: "a"},
		{Start: 300, End: 300, Owner: "b"},
		{Start: 1000, End: 5000, Owner: "c"},
	}
	tbl := mustBuild(t, rows)

	cases := []struct {
		addr  uint32
		owner string
		found bool
	}{
		{99, "", false},
		{100, "a", true},
		{200, "a", true},
		{201, "", false},
		{299, "", false},
		{300, "b", true},
		{301, "", false},
		{999, "", false},
		{1000, "c", true},
		{5000, "c", true},
		{5001, "", false},
	}
	for _, tc := range cases {
		got, ok := tbl.Find(tc.addr)
		if ok != tc.found || got.Owner != tc.owner {
			t.Errorf("Find(%d) = %q, %v, want %q, %v", tc.addr, got.Owner, ok, tc.owner, tc.found)
		}
	}
}

func TestFindExtremes(t *testing.T) {
	tbl := mustBuild(t, []Record{{Start: 0, End: 0, Owner: "zero"}, {Start: ^uint32(0), End: ^uint32(0), Owner: "max"}})
	if got, ok := tbl.Find(0); !ok || got.Owner != "zero" {
		t.Errorf("Find(0) = %v, %v", got, ok)
	}
	if got, ok := tbl.Find(^uint32(0)); !ok || got.Owner != "max" {
		t.Errorf("Find(max) = %v, %v", got, ok)
	}
	if _, ok := tbl.Find(1); ok {
		t.Errorf("Find(1) matched")
	}
}

func TestFindOnEmptyAndNilTable(t *testing.T) {
	var nilTable *Table
	if _, ok := nilTable.Find(1); ok {
		t.Fatal("nil table matched")
	}
	if _, ok := mustBuild(t, nil).Find(1); ok {
		t.Fatal("empty table matched")
	}
}

func TestBuildSortsAndDedupesLastWins(t *testing.T) {
	tbl := mustBuild(t, []Record{
		{Start: 500, End: 600, Owner: "late"},
		{Start: 10, End: 20, Owner: "first"},
		{Start: 10, End: 30, Owner: "second"},
		{Start: 100, End: 110, Owner: "x"},
	})
	got := tbl.Records()
	want := []Record{
		{Start: 10, End: 30, Owner: "second"},
		{Start: 100, End: 110, Owner: "x"},
		{Start: 500, End: 600, Owner: "late"},
	}
	if len(got) != len(want) {
		t.Fatalf("Records() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Records()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBuildRejectsStartAfterEnd(t *testing.T) {
	_, err := Build([]Record{{Start: 1, End: 2}, {Start: 10, End: 5, Owner: "bad"}})
	var mde *MalformedDatasetError
	if !errors.As(err, &mde) {
		t.Fatalf("Build() error = %v, want *MalformedDatasetError", err)
	}
	if mde.Line != 1 {
		t.Errorf("MalformedDatasetError.Line = %d, want 1", mde.Line)
	}
}

// 重叠在构建阶段即拒绝，而不是仅依赖上游校验工具保证
func TestBuildRejectsOverlap(t *testing.T) {
	cases := [][]Record{
		{{Start: 10, End: 20}, {Start: 15, End: 30}},
		{{Start: 10, End: 20}, {Start: 20, End: 30}},
		{{Start: 10, End: 100}, {Start: 50, End: 60}},
	}
	for _, rows := range cases {
		_, err := Build(rows)
		var mde *MalformedDatasetError
		if !errors.As(err, &mde) {
			t.Errorf("Build(%v) error = %v, want *MalformedDatasetError", rows, err)
		}
	}
	if _, err := Build([]Record{{Start: 10, End: 20}, {Start: 21, End: 30}}); err != nil {
		t.Errorf("adjacent ranges rejected: %v", err)
	}
}

func TestBuildDoesNotAliasInput(t *testing.T) {
	rows := []Record{{Start: 1, End: 2, Owner: "a"}}
	tbl := mustBuild(t, rows)
	rows[0].Owner = "mutated"
	if got, _ := tbl.Find(1); got.Owner != "a" {
		t.Fatalf("table observed caller mutation: %v", got)
	}
}

func TestRankBySize(t *testing.T) {
	tbl := mustBuild(t, []Record{
		{Start: 0, End: 9, Owner: "beta"},
		{Start: 10, End: 19, Owner: "Alpha"},
		{Start: 20, End: 99, Owner: "big"},
		{Start: 100, End: 104, Owner: "beta"},
	})
	got := tbl.RankBySize()
	want := []OwnerSize{{"big", 80}, {"beta", 15}, {"Alpha", 10}}
	if len(got) != len(want) {
		t.Fatalf("RankBySize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("RankBySize()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
