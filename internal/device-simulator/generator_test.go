package device_simulator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func newTestGenerator(cfg GeneratorConfig) (*DataGenerator, *stepClock) {
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	g := NewDataGenerator(cfg)
	clk := &stepClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	g.now = clk.now
	return g, clk
}

func TestPumpRaisesSoilAndDrainsTank(t *testing.T) {
	g, clk := newTestGenerator(GeneratorConfig{DecayPerMin: 0.001})

	r := g.Next("d1", true)
	require.NotNil(t, r.Soil)
	require.NotNil(t, r.WaterTank)
	assert.Equal(t, 30, *r.Soil)
	assert.Equal(t, 100, *r.WaterTank)
	assert.Equal(t, "d1", r.Device)

	clk.t = clk.t.Add(10 * time.Minute)
	r = g.Next("d1", true)
	assert.Equal(t, 36, *r.Soil)
	assert.Equal(t, 80, *r.WaterTank)
	assert.True(t, *r.Pump)
}

func TestSoilDecaysWithPumpOff(t *testing.T) {
	g, clk := newTestGenerator(GeneratorConfig{DecayPerMin: 0.01})
	g.Next("d1", false)

	clk.t = clk.t.Add(10 * time.Minute)
	r := g.Next("d1", false)
	assert.Equal(t, 20, *r.Soil)
	assert.Equal(t, 100, *r.WaterTank)
	assert.False(t, *r.Raining)
}

func TestEmptyTankStopsWatering(t *testing.T) {
	g, clk := newTestGenerator(GeneratorConfig{DecayPerMin: 0.001, TankStart: 0.1})
	g.Next("d1", true)

	clk.t = clk.t.Add(10 * time.Minute)
	r := g.Next("d1", true)
	assert.Equal(t, 0, *r.WaterTank)

	before := *r.Soil
	clk.t = clk.t.Add(10 * time.Minute)
	r = g.Next("d1", true)
	assert.Less(t, *r.Soil, before)
}

func TestDropRateOmitsCriticalSensors(t *testing.T) {
	g, _ := newTestGenerator(GeneratorConfig{DropRate: 1})
	r := g.Next("d1", false)
	assert.ElementsMatch(t, []string{"soil", "water_tank", "raining"}, r.MissingCritical())
	assert.NotNil(t, r.TempC)
	assert.NotNil(t, r.Humidity)
}

func TestRainAlwaysToggles(t *testing.T) {
	g, _ := newTestGenerator(GeneratorConfig{RainChance: 1})
	assert.True(t, *g.Next("d1", false).Raining)
	assert.False(t, *g.Next("d1", false).Raining)
}

func TestSeedFromSoilGrids(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"properties":{"layers":[{"name":"wv0010","depths":[{"values":{"Q0.5":420}}]}]}}`)
	}))
	defer srv.Close()

	g, _ := newTestGenerator(GeneratorConfig{})
	g.soilGridsURL = srv.URL + "/?lat=%f&lon=%f"
	require.NoError(t, g.SeedFromSoilGrids(context.Background(), 41.5, 12.3))
	assert.Equal(t, 42, *g.Next("d1", false).Soil)
}

func TestSeedFallsBackOnClientError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "bad coords", http.StatusBadRequest)
	}))
	defer srv.Close()

	g, _ := newTestGenerator(GeneratorConfig{})
	g.soilGridsURL = srv.URL + "/?lat=%f&lon=%f"
	assert.Error(t, g.SeedFromSoilGrids(context.Background(), 41.5, 12.3))
	assert.Equal(t, int32(1), hits.Load(), "4xx is not retried")
	assert.Equal(t, 30, *g.Next("d1", false).Soil)
}

func TestSeedRetriesServerError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"features":[{"properties":{"layers":[{"depths":[{"values":{"mean":0.25}}]}]}}]}`)
	}))
	defer srv.Close()

	g, _ := newTestGenerator(GeneratorConfig{})
	g.soilGridsURL = srv.URL + "/?lat=%f&lon=%f"
	require.NoError(t, g.SeedFromSoilGrids(context.Background(), 41.5, 12.3))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 25, *g.Next("d1", false).Soil)
}

func TestNormalizeWV(t *testing.T) {
	assert.InDelta(t, 0.42, normalizeWV(420), 1e-9)
	assert.InDelta(t, 0.27, normalizeWV(0.27), 1e-9)
	assert.Equal(t, 0.0, normalizeWV(-3))
	assert.Equal(t, -1.0, extractMoistureHeuristic("nope"))
	assert.Equal(t, -1.0, extractMoistureHeuristic(map[string]any{"properties": map[string]any{}}))
}
