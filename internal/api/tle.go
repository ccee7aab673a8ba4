package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/httputil"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
)

type tleMetadata struct {
	Loaded       bool       `json:"loaded"`
	Source       string     `json:"source,omitempty"`
	FetchedAt    *time.Time `json:"fetched_at,omitempty"`
	AgeSeconds   int        `json:"age_seconds,omitempty"`
	Satellites   int        `json:"satellites"`
	EpochMin     *time.Time `json:"epoch_min,omitempty"`
	EpochMax     *time.Time `json:"epoch_max,omitempty"`
	FetchEnabled bool       `json:"fetch_enabled"`
}

func (s *Server) tleMetadata() tleMetadata {
	meta := tleMetadata{}
	if s.deps.Refresher != nil {
		meta.FetchEnabled = s.deps.Refresher.FetchEnabled()
	}
	if s.deps.Store == nil {
		return meta
	}
	cat := s.deps.Store.Get()
	if cat == nil {
		return meta
	}
	fetched := cat.FetchedAt.UTC()
	oldest, newest := cat.EpochRange()
	meta.Loaded = true
	meta.Source = cat.Source
	meta.FetchedAt = &fetched
	meta.AgeSeconds = int(time.Since(fetched).Seconds())
	meta.Satellites = cat.Len()
	if !oldest.IsZero() {
		meta.EpochMin, meta.EpochMax = &oldest, &newest
	}
	return meta
}

// GET /api/v1/tle/metadata
func (s *Server) handleTLEMetadata(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.tleMetadata())
}

// handleTLERefresh fetches the catalog now, regardless of its age.
// POST /api/v1/tle/refresh
func (s *Server) handleTLERefresh(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresher == nil {
		s.writeErr(w, r, tle.ErrFetchDisabled)
		return
	}
	if _, err := s.deps.Refresher.Refresh(r.Context()); err != nil {
		if errors.Is(err, tle.ErrFetchDisabled) {
			s.writeErr(w, r, err)
			return
		}
		s.logger.Warn("manual TLE refresh failed", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.tleMetadata())
}

type satelliteResponse struct {
	tle.Element
	AgeHours float64 `json:"age_hours"`
}

// GET /api/v1/satellites/{norad_id}
func (s *Server) handleSatellite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id <= 0 {
		s.writeErr(w, r, invalidf("invalid norad_id %q", r.PathValue("norad_id")))
		return
	}
	e, err := s.resolveElement(satelliteInput{NORADID: id})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, satelliteResponse{
		Element:  e,
		AgeHours: e.Age(time.Now()).Hours(),
	})
}
