package tle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSelectorMatch(t *testing.T) {
	tests := []struct {
		name string
		sel  Selector
		sat  string
		want bool
	}{
		{"zero keeps all", Selector{}, "ISS (ZARYA)", true},
		{"tag hit", Selector{Tag: "[DTC]"}, "STARLINK-31234 [DTC]", true},
		{"tag case", Selector{Tag: "[dtc]"}, "STARLINK-31234 [DTC]", true},
		{"tag miss", Selector{Tag: "[DTC]"}, "STARLINK-1007", false},
		{"name hit", Selector{Names: DefaultX2Names}, "X2-33686", true},
		{"name must be exact", Selector{Names: DefaultX2Names}, "x2-336860", false},
		{"either", Selector{Tag: "[DTC]", Names: []string{"ISS (ZARYA)"}}, " iss (zarya) ", true},
		{"blank tag", Selector{Tag: "  "}, "anything", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sel.Match(tt.sat); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.sat, got, tt.want)
			}
		})
	}
}

func TestCatalogSelect(t *testing.T) {
	fetched := time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)
	cat := NewCatalog("upstream", fetched, []Element{
		{NORADID: 1, Name: "STARLINK-1 [DTC]"},
		{NORADID: 2, Name: "STARLINK-2"},
		{NORADID: 3, Name: "STARLINK-3 [DTC]"},
	})

	got, err := cat.Select(Selector{Tag: "[DTC]"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 2 || got.Source != "upstream" || !got.FetchedAt.Equal(fetched) {
		t.Errorf("selected %d from %q at %v", got.Len(), got.Source, got.FetchedAt)
	}
	if _, err := got.ByID(2); !errors.Is(err, ErrNotFound) {
		t.Errorf("untagged satellite still indexed: %v", err)
	}
	if _, err := got.ByName("starlink-3 [dtc]"); err != nil {
		t.Errorf("tagged satellite lost: %v", err)
	}

	if same, _ := cat.Select(Selector{}); same != cat {
		t.Error("zero selector should return the catalog itself")
	}
	if _, err := cat.Select(Selector{Names: DefaultX2Names}); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("empty selection err = %v", err)
	}
}

func TestRefresher_Selector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(issTLE + slTLE))
	}))
	defer server.Close()

	dir := t.TempDir()
	store := NewStore()
	r := NewRefresher(store, NewFetcher(server.URL, testLogger), NewCache(dir, 3), time.Hour, true, testLogger)
	r.SetSelector(Selector{Tag: "starlink"})

	cat, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cat.Len() != 1 || cat.Elements[0].Name != slName {
		t.Fatalf("selected %+v", cat.Elements)
	}

	// The snapshot keeps everything; a differently scoped refresher sees both.
	all := NewStore()
	if err := NewRefresher(all, nil, NewCache(dir, 3), time.Hour, false, testLogger).LoadCache(); err != nil {
		t.Fatal(err)
	}
	if all.Get().Len() != 2 {
		t.Errorf("cache holds %d elements, want 2", all.Get().Len())
	}

	// A selector that matches nothing fails the refresh and keeps the catalog.
	r.SetSelector(Selector{Names: DefaultX2Names})
	if _, err := r.Refresh(context.Background()); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("refresh err = %v", err)
	}
	if store.Get() != cat {
		t.Error("empty selection replaced the catalog")
	}
}

func TestLookupConstellation(t *testing.T) {
	for _, name := range ConstellationNames() {
		c, ok := LookupConstellation(name)
		if !ok || c.Name != name || c.SourceURL == "" {
			t.Errorf("preset %q = %+v, %v", name, c, ok)
		}
	}
	c, ok := LookupConstellation(" Starlink_DTC ")
	if !ok || c.Selector.Tag != "[DTC]" {
		t.Errorf("starlink_dtc = %+v, %v", c, ok)
	}
	if _, ok := LookupConstellation("gps"); ok {
		t.Error("unknown preset resolved")
	}
}
