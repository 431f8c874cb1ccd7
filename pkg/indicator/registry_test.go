package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		in      string
		want    Request
		wantErr bool
	}{
		{in: "sma:20", want: Request{Kind: "sma", Params: []float64{20}}},
		{in: " RSI:14 ", want: Request{Kind: "rsi", Params: []float64{14}}},
		{in: "bollinger:20:2", want: Request{Kind: "bollinger", Params: []float64{20, 2}}},
		{in: "obv", want: Request{Kind: "obv"}},
		{in: "", wantErr: true},
		{in: "sma:abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRequest(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequest_String(t *testing.T) {
	req, _ := ParseRequest("psar:0.02:0.2")
	assert.Equal(t, "psar:0.02:0.2", req.String())
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register("obv", func(Request) (Calculator, error) { return NewOBV(), nil })
	require.NoError(t, err)

	// Duplicate registration should fail
	err = registry.Register("obv", func(Request) (Calculator, error) { return NewOBV(), nil })
	assert.Error(t, err)

	assert.Error(t, registry.Register("", func(Request) (Calculator, error) { return NewOBV(), nil }))
	assert.Error(t, registry.Register("nil", nil))

	assert.Equal(t, []string{"obv"}, registry.List())

	require.NoError(t, registry.Unregister("obv"))
	assert.Empty(t, registry.List())
	assert.Error(t, registry.Unregister("obv"))
}

func TestDefaultRegistry_Build(t *testing.T) {
	registry := DefaultRegistry()

	tests := []struct {
		spec     string
		wantName string
		wantKeys int
	}{
		{"sma:50", "sma:50", 1},
		{"sma", "sma:20", 1},
		{"ema:200", "ema:200", 1},
		{"macd", "macd", 3},
		{"macd:5:35:5", "macd:5:35:5", 3},
		{"psar", "psar", 1},
		{"rsi:9", "rsi:9", 1},
		{"cci:30", "cci:30", 1},
		{"bb", "bollinger:20:2", 3},
		{"obv", "obv", 1},
		{"mfi", "mfi:14", 1},
		{"atr:14", "atr:14", 1},
		{"stoch:5", "stoch:5", 1},
		{"roc", "roc:1", 1},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			req, err := ParseRequest(tt.spec)
			require.NoError(t, err)
			calc, err := registry.Build(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, calc.Name())
			assert.Len(t, calc.Keys(), tt.wantKeys)
		})
	}
}

func TestDefaultRegistry_BuildErrors(t *testing.T) {
	registry := DefaultRegistry()

	_, err := registry.Build(Request{Kind: "ichimoku"})
	assert.ErrorIs(t, err, models.ErrUnknownIndicator)

	_, err = registry.Build(Request{Kind: "sma", Params: []float64{0}})
	assert.ErrorIs(t, err, models.ErrInvalidWindow)

	_, err = registry.Build(Request{Kind: "rsi", Params: []float64{14.5}})
	assert.ErrorIs(t, err, models.ErrInvalidWindow)
}

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()
	assert.Len(t, catalog, 19)

	registry := DefaultRegistry()
	for _, req := range catalog {
		_, err := registry.Build(req)
		assert.NoError(t, err, req.String())
	}
}
