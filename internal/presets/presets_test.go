package presets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/signal"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/indicator"
)

func TestDefaults(t *testing.T) {
	s, err := Defaults()
	require.NoError(t, err)

	assert.Equal(t, []string{"momentum", "oscillators", "trend", "volatility", "volume"}, s.Names())

	trend, err := s.Get("trend")
	require.NoError(t, err)
	assert.Equal(t, "trend", trend.Name)
	assert.Equal(t, []string{"sma:20", "sma:100", "psar"}, trend.Indicators)

	reqs, err := trend.Requests()
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.Equal(t, "sma:100", reqs[1].String())

	assert.NoError(t, s.Validate(indicator.DefaultRegistry(), signal.DefaultRegistry()))
}

func TestGetUnknown(t *testing.T) {
	s, err := Defaults()
	require.NoError(t, err)

	_, err = s.Get("nope")
	assert.True(t, errors.Is(err, ErrUnknownPreset))
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	body := `
presets:
  trend:
    indicators: [ema:50]
    rules: [price_ma_cross:ema:50]
  swing:
    description: Short swings
    indicators: [rsi:9]
    rules: [rsi_threshold:9:25:75]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, s.List(), 6)

	trend, err := s.Get("trend")
	require.NoError(t, err)
	assert.Equal(t, []string{"ema:50"}, trend.Indicators)

	swing, err := s.Get("swing")
	require.NoError(t, err)
	assert.Equal(t, "Short swings", swing.Description)

	assert.NoError(t, s.Validate(indicator.DefaultRegistry(), signal.DefaultRegistry()))
}

func TestLoad_MissingAndInvalid(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Len(t, s.Names(), 5)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("presets: [not, a, map]"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestValidate_RejectsUnknownEntries(t *testing.T) {
	s := &Set{presets: map[string]Preset{
		"broken": {Name: "broken", Indicators: []string{"vwap"}},
	}}
	assert.Error(t, s.Validate(indicator.DefaultRegistry(), signal.DefaultRegistry()))

	s = &Set{presets: map[string]Preset{
		"broken": {Name: "broken", Rules: []string{"moon_phase"}},
	}}
	assert.Error(t, s.Validate(indicator.DefaultRegistry(), signal.DefaultRegistry()))
}
