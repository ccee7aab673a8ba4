package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccdanpian/sat-yuntai/internal/auth"
	"github.com/ccdanpian/sat-yuntai/internal/scene"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
)

func (e *testEnv) boxBody(extra map[string]any) map[string]any {
	body := map[string]any{
		"groundStation":    e.stationInput(),
		"startTime":        zenith.Add(-10 * time.Minute).Format(time.RFC3339),
		"endTime":          zenith.Add(10 * time.Minute).Format(time.RFC3339),
		"interval_seconds": 5,
		"lat_error":        2,
		"lon_error":        2,
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func TestSubPointSearchEndpoint(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, nil)

	w := env.do(t, http.MethodPost, "/api/v1/scene/search", env.boxBody(map[string]any{
		"satellite":     map[string]any{"noradId": 25544},
		"frequency_mhz": 1616,
		"show_cover":    true,
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeMap(t, w)

	results := resp["results"].([]any)
	require.NotEmpty(t, results)
	var sawZenith bool
	for _, r := range results {
		hit := r.(map[string]any)
		require.Equal(t, "ISS (ZARYA)", hit["satellite_name"])
		if hit["time"] == zenith.Format(time.RFC3339) {
			sawZenith = true
			require.Greater(t, hit["elevation"].(float64), 89.0)
		}
	}
	require.True(t, sawZenith, "zenith sample missing")

	cov := resp["coverage"].(map[string]any)
	require.Len(t, cov["ring"].([]any), scene.DefaultCoveragePoints)
	require.Len(t, cov["polyline"].([]any), scene.DefaultCoveragePoints)
	require.Equal(t, scene.DefaultCoverageRadiusKm, cov["radius_km"])

	// Without show_cover only the hits come back.
	w = env.do(t, http.MethodPost, "/api/v1/scene/search", env.boxBody(map[string]any{
		"satellite": issInput(),
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotContains(t, decodeMap(t, w), "coverage")
}

func TestSubPointFindEndpoint(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, nil)

	w := env.do(t, http.MethodPost, "/api/v1/scene/find", env.boxBody(nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeMap(t, w)
	require.Equal(t, true, resp["found"])
	require.Equal(t, "ISS (ZARYA)", resp["satellite"])
	require.EqualValues(t, 25544, resp["norad_id"])
	require.EqualValues(t, 1, resp["scanned"])

	// Shifting the box far north puts it out of the ISS's reach.
	w = env.do(t, http.MethodPost, "/api/v1/scene/find", env.boxBody(map[string]any{
		"delta_lat": 85 - env.station.LatDeg,
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decodeMap(t, w)
	require.Equal(t, false, resp["found"])
	require.NotContains(t, resp, "satellite")
}

func TestSubPointSearchErrors(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, nil)

	tests := []struct {
		name string
		path string
		body map[string]any
		want int
	}{
		{"negative interval", "/api/v1/scene/search", env.boxBody(map[string]any{
			"satellite": issInput(), "interval_seconds": -1}), http.StatusBadRequest},
		{"end before start", "/api/v1/scene/search", env.boxBody(map[string]any{
			"satellite": issInput(), "endTime": zenith.Add(-time.Hour).Format(time.RFC3339)}), http.StatusBadRequest},
		{"negative box", "/api/v1/scene/search", env.boxBody(map[string]any{
			"satellite": issInput(), "lat_error": -1}), http.StatusBadRequest},
		{"unknown satellite", "/api/v1/scene/search", env.boxBody(map[string]any{
			"satellite": map[string]any{"noradId": 99999}}), http.StatusNotFound},
		{"bad coverage radius", "/api/v1/scene/search", env.boxBody(map[string]any{
			"satellite": issInput(), "show_cover": true, "coverage_radius_km": -10}), http.StatusBadRequest},
		{"bad station", "/api/v1/scene/find", env.boxBody(map[string]any{
			"groundStation": map[string]any{"latitude": 95, "longitude": 0}}), http.StatusBadRequest},
		{"unknown id", "/api/v1/scene/find", env.boxBody(map[string]any{
			"norad_ids": []int{99999}}), http.StatusNotFound},
		{"oversized scan", "/api/v1/scene/find", env.boxBody(map[string]any{
			"interval_seconds": 0.001}), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	empty := newTestEnv(t, auth.Config{}, func(d *Deps) { d.Store.Set(nil) })
	w := empty.do(t, http.MethodPost, "/api/v1/scene/find", empty.boxBody(nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSatelliteList(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, func(d *Deps) { d.Constellation = "x2" })

	tests := []struct {
		query string
		count int
	}{
		{"", 1},
		{"?tag=zarya", 1},
		{"?tag=[DTC]", 0},
		{"?names=x2-33686,%20iss%20(zarya)", 1},
		{"?names=x2-33686", 0},
	}
	for _, tt := range tests {
		w := env.do(t, http.MethodGet, "/api/v1/satellites"+tt.query, nil)
		require.Equal(t, http.StatusOK, w.Code, tt.query)
		resp := decodeMap(t, w)
		require.EqualValues(t, tt.count, resp["count"], tt.query)
		require.Len(t, resp["satellites"].([]any), tt.count, tt.query)
	}

	resp := decodeMap(t, env.do(t, http.MethodGet, "/api/v1/constellations", nil))
	require.Equal(t, "x2", resp["active"])
	require.Equal(t, tle.Selector{}.String(), resp["selector"])
	require.Len(t, resp["known"].([]any), len(tle.ConstellationNames()))

	empty := newTestEnv(t, auth.Config{}, func(d *Deps) { d.Store.Set(nil) })
	require.Equal(t, http.StatusServiceUnavailable, empty.do(t, http.MethodGet, "/api/v1/satellites", nil).Code)
}
