package tle

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestCache_WriteLoadPrune(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)

	base := time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)
	for i, body := range []string{slTLE, slTLE, issTLE} {
		if err := c.Write([]byte(body), base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("files on disk = %d, want 2 after prune", len(entries))
	}

	data, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != issTLE || !ts.Equal(base.Add(2*time.Hour)) {
		t.Errorf("latest = %q at %v", data, ts)
	}

	cat, err := c.LoadCatalog(testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if cat.Source != "cache" || cat.Len() != 1 {
		t.Errorf("catalog = %s with %d elements", cat.Source, cat.Len())
	}
}

func TestCache_Empty(t *testing.T) {
	c := NewCache(t.TempDir()+"/missing", 0)
	if _, _, err := c.LoadLatest(); !errors.Is(err, ErrNoCache) {
		t.Errorf("err = %v, want ErrNoCache", err)
	}
}

func TestCatalogAndStore(t *testing.T) {
	older, _ := ParseElement(issName, issLine1, issLine2)
	newer := older
	newer.Epoch = older.Epoch.Add(time.Hour)
	sl, _ := ParseElement(slName, slLine1, slLine2)

	cat := NewCatalog("test", time.Now(), []Element{older, sl, newer})
	if cat.Len() != 2 {
		t.Fatalf("len = %d, want duplicates merged", cat.Len())
	}
	got, err := cat.ByID(25544)
	if err != nil || !got.Epoch.Equal(newer.Epoch) {
		t.Errorf("ByID kept epoch %v, want newest %v", got.Epoch, newer.Epoch)
	}
	oldest, newest := cat.EpochRange()
	if !oldest.Equal(newer.Epoch) && !oldest.Equal(sl.Epoch) {
		t.Errorf("oldest = %v", oldest)
	}
	if newest.Before(oldest) {
		t.Errorf("range inverted: %v..%v", oldest, newest)
	}

	s := NewStore()
	if _, err := s.Lookup(25544, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty store lookup err = %v", err)
	}
	if s.AgeSeconds() != -1 {
		t.Error("empty store should report age -1")
	}
	s.Set(cat)
	if e, err := s.Lookup(0, " iss (zarya) "); err != nil || e.NORADID != 25544 {
		t.Errorf("lookup by name = %+v, %v", e, err)
	}
	if _, err := s.Lookup(1, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id err = %v", err)
	}
}
