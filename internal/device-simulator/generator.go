package device_simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
)

// ====== Tunables ======
const (
	// +0.6% di umidità al minuto con pompa ON (in [0..1])
	gainPerMin = 0.006
	// serbatoio: -2%/min con pompa ON, +1%/min sotto la pioggia
	drainPerMin  = 0.02
	refillPerMin = 0.01

	defaultSeed = 0.30

	// SoilGrids: una sola fetch all'avvio, mai ad ogni tick
	DefaultSoilGridsURL = "https://rest.isric.org/soilgrids/v2.0/properties/query?lat=%f&lon=%f&property=wv0010"
)

type GeneratorConfig struct {
	// DecayPerMin is the soil moisture lost per minute with the pump off.
	DecayPerMin float64
	// RainChance is the per-sample probability of a rain episode starting or ending.
	RainChance float64
	// DropRate is the per-sample probability of omitting each critical sensor.
	DropRate float64
	TankStart float64
	Seed      int64
}

// DataGenerator keeps the physical state of one simulated device and moves
// it forward on each sample.
type DataGenerator struct {
	mu       sync.Mutex
	cfg      GeneratorConfig
	rnd      *rand.Rand
	now      func() time.Time
	seeded   bool
	last     time.Time
	moisture float64 // [0..1]
	tank     float64 // [0..1]
	raining  bool

	httpClient   *http.Client
	soilGridsURL string
}

func NewDataGenerator(cfg GeneratorConfig) *DataGenerator {
	if cfg.TankStart <= 0 {
		cfg.TankStart = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &DataGenerator{
		cfg:          cfg,
		rnd:          rand.New(rand.NewSource(cfg.Seed)),
		now:          time.Now,
		tank:         clamp01(cfg.TankStart),
		httpClient:   &http.Client{Timeout: 8 * time.Second},
		soilGridsURL: DefaultSoilGridsURL,
	}
}

// SeedFromSoilGrids sets the starting moisture from SoilGrids, falling back
// to 30% when the service cannot be reached.
func (g *DataGenerator) SeedFromSoilGrids(ctx context.Context, lat, lon float64) error {
	seed := defaultSeed
	var ferr error
	if lat != 0 || lon != 0 {
		m, err := g.fetchSoilMoisture(ctx, lat, lon)
		if err == nil {
			seed = m
		}
		ferr = err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.seeded {
		g.moisture = clamp01(seed)
		g.last = g.now().UTC()
		g.seeded = true
	}
	return ferr
}

// Next advances the state by the time since the previous sample and returns
// a reading for device. pump is the current pump state of the device.
func (g *DataGenerator) Next(device string, pump bool) model.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	if !g.seeded {
		g.moisture = defaultSeed
		g.last = now
		g.seeded = true
	}
	dtMin := math.Max(0, now.Sub(g.last).Minutes())
	g.last = now

	if g.rnd.Float64() < g.cfg.RainChance {
		g.raining = !g.raining
	}

	switch {
	case pump && g.tank > 0:
		g.moisture += gainPerMin * dtMin
		g.tank -= drainPerMin * dtMin
	case g.raining:
		g.moisture += gainPerMin / 2 * dtMin
	default:
		g.moisture -= g.cfg.DecayPerMin * dtMin
	}
	if g.raining {
		g.tank += refillPerMin * dtMin
	}
	g.moisture = clamp01(g.moisture)
	g.tank = clamp01(g.tank)

	// ciclo giornaliero semplificato
	hour := float64(now.Hour()) + float64(now.Minute())/60
	temp := 20 + 6*math.Sin((hour-9)/24*2*math.Pi)
	hum := 60 - 15*math.Sin((hour-9)/24*2*math.Pi)
	if g.raining {
		hum = 90
	}

	r := model.Reading{
		Device:   device,
		Pump:     messages.BoolPtr(pump),
		TempC:    messages.FloatPtr(math.Round(temp*10) / 10),
		Humidity: messages.FloatPtr(math.Round(hum)),
	}
	if !g.drop() {
		r.Soil = messages.IntPtr(int(math.Round(g.moisture * 100)))
	}
	if !g.drop() {
		r.WaterTank = messages.IntPtr(int(math.Round(g.tank * 100)))
	}
	if !g.drop() {
		r.Raining = messages.BoolPtr(g.raining)
	}
	return r
}

func (g *DataGenerator) drop() bool {
	return g.cfg.DropRate > 0 && g.rnd.Float64() < g.cfg.DropRate
}

// ===== Helpers =====

func (g *DataGenerator) fetchSoilMoisture(ctx context.Context, lat, lon float64) (float64, error) {
	url := fmt.Sprintf(g.soilGridsURL, lat, lon)

	attempt := func() (float64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return -1, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", "irrigation-device-simulator/1.0")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return -1, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return -1, err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			var parsed any
			if err := json.Unmarshal(body, &parsed); err != nil {
				return -1, backoff.Permanent(err)
			}
			if m := extractMoistureHeuristic(parsed); m >= 0 {
				return normalizeWV(m), nil
			}
			return -1, backoff.Permanent(errors.New("soilgrids: moisture field not found"))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return -1, fmt.Errorf("soilgrids HTTP %d", resp.StatusCode)
		default:
			return -1, backoff.Permanent(fmt.Errorf("soilgrids HTTP %d: %s", resp.StatusCode, string(body)))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 600 * time.Millisecond
	return backoff.RetryWithData(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, 1), ctx))
}

// Prova a trovare un valore numerico di moisture in strutture comuni della risposta:
//   - {"properties":{"layers":[{"name":"wv0010","depths":[{"values":{"Q0.5":0.27}}]}]}}
//   - {"features":[{"properties":{...come sopra...}}]}
func extractMoistureHeuristic(v any) float64 {
	m, ok := v.(map[string]any)
	if !ok {
		return -1
	}
	if feats, ok := m["features"].([]any); ok && len(feats) > 0 {
		if f0, ok := feats[0].(map[string]any); ok {
			if p, ok := f0["properties"].(map[string]any); ok {
				if x := extractFromProperties(p); x >= 0 {
					return x
				}
			}
		}
	}
	if p, ok := m["properties"].(map[string]any); ok {
		return extractFromProperties(p)
	}
	return -1
}

func extractFromProperties(p map[string]any) float64 {
	layers, ok := p["layers"].([]any)
	if !ok || len(layers) == 0 {
		return -1
	}
	l0, ok := layers[0].(map[string]any)
	if !ok {
		return -1
	}
	depths, ok := l0["depths"].([]any)
	if !ok || len(depths) == 0 {
		return -1
	}
	d0, ok := depths[0].(map[string]any)
	if !ok {
		return -1
	}
	vals, ok := d0["values"].(map[string]any)
	if !ok {
		return -1
	}
	for _, k := range []string{"Q0.5", "mean", "Q0.95", "Q0.05", "value", "MED"} {
		if f, ok := vals[k].(float64); ok {
			return f
		}
	}
	return -1
}

// normalizeWV porta i valori "wv****" in [0..1]: molti layer sono interi in
// millesimi di m3/m3 (420 => 0.420).
func normalizeWV(x float64) float64 {
	if x > 1.5 {
		x = x / 1000.0
	}
	return clamp01(x)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
