package tle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	issName   = "ISS (ZARYA)"
	issLine1  = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996"
	issLine2  = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"
	slName    = "STARLINK-1007"
	slLine1   = "1 44713U 19074A   25045.50000000  .00001000  00000-0  10000-4 0  9997"
	slLine2   = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    07"
	issTLE    = issName + "\n" + issLine1 + "\n" + issLine2 + "\n"
	slTLE     = slName + "\n" + slLine1 + "\n" + slLine2 + "\n"
	oversized = 52
)

func TestFetcherBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		chunk := strings.Repeat("A", 1024*1024)
		for i := 0; i < oversized; i++ {
			if _, err := w.Write([]byte(chunk)); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	_, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for oversized response, got nil")
	}
	if !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("expected body limit error, got: %v", err)
	}
}

func TestFetcherSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(issTLE))
	}))
	defer server.Close()

	data, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != issTLE {
		t.Errorf("body mismatch: got %d bytes, want %d", len(data), len(issTLE))
	}
}

func TestFetcherHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := NewFetcher(server.URL, testLogger).Fetch(context.Background()); err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
}

func TestFetcherExtraURLs(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No trailing newline: the fetcher must add one before appending.
		w.Write([]byte(strings.TrimSuffix(slTLE, "\n")))
	}))
	defer primary.Close()
	extra := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(issTLE))
	}))
	defer extra.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	cat, _, err := NewFetcher(primary.URL, testLogger, failing.URL, extra.URL).FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("primary fetch should succeed even when an extra fails: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("catalog size = %d, want 2", cat.Len())
	}
	if _, err := cat.ByID(25544); err != nil {
		t.Error("missing ISS (25544)")
	}
	if _, err := cat.ByName("starlink-1007"); err != nil {
		t.Error("missing STARLINK-1007 by name")
	}
}

func TestFetchCatalog_NoElements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("nothing useful\n"))
	}))
	defer server.Close()

	if _, _, err := NewFetcher(server.URL, testLogger).FetchCatalog(context.Background()); err == nil {
		t.Fatal("expected error for a body without elements")
	}
}
