package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Name != "test" {
		t.Errorf("app.name = %q, want test", cfg.App.Name)
	}
	if len(cfg.Chains) != 4 {
		t.Fatalf("chains = %d, want 4", len(cfg.Chains))
	}
	arb, ok := cfg.Chain(42161)
	if !ok {
		t.Fatal("arbitrum missing from default chains")
	}
	if arb.StaleAfter != 2*time.Second || arb.Layer != "L2" {
		t.Errorf("arbitrum = %+v", arb)
	}
	if got := cfg.Costs.GasUnits["bridge"]; got != 300_000 {
		t.Errorf("bridge gas units = %d, want 300000", got)
	}
	if cfg.Engine.CycleDeadline != 750*time.Millisecond {
		t.Errorf("cycle deadline = %v", cfg.Engine.CycleDeadline)
	}
	if len(cfg.Strategies) != 1 || !cfg.Strategies[0].Enabled {
		t.Errorf("strategies = %+v", cfg.Strategies)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	body := `
chains:
  - id: 1
    name: ethereum
    layer: L1
    block_interval: 12s
    http_url: http://localhost:8545
strategies:
  - name: tight
    enabled: true
    min_profit_usd: 20
    approved_assets: [WETH, USDC]
    approved_chains: [1]
    max_path_latency: 10m
detection:
  notional_usd: 2500
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Chains) != 1 || !cfg.Chains[0].HasRPC() {
		t.Errorf("chains = %+v", cfg.Chains)
	}
	s := cfg.Strategies[0]
	if s.Name != "tight" || s.MinProfitUSD != 20 || s.MaxPathLatency != 10*time.Minute {
		t.Errorf("strategy = %+v", s)
	}
	if len(s.ApprovedAssets) != 2 || s.ApprovedChains[0] != 1 {
		t.Errorf("approvals = %v %v", s.ApprovedAssets, s.ApprovedChains)
	}
	if got := cfg.Detection.NotionalUSDDecimal().String(); got != "2500" {
		t.Errorf("notional = %s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "duplicate chain",
			body:    "chains:\n  - {id: 1, layer: L1}\n  - {id: 1, layer: L1}\n",
			wantErr: "duplicate chain id",
		},
		{
			name:    "bad layer",
			body:    "chains:\n  - {id: 1, layer: L3}\n",
			wantErr: "layer must be L1 or L2",
		},
		{
			name:    "unknown approved chain",
			body:    "strategies:\n  - {name: s, approved_chains: [999]}\n",
			wantErr: "unknown chain 999",
		},
		{
			name:    "intents without redis",
			body:    "intents:\n  enabled: true\n",
			wantErr: "redis.enabled is required",
		},
		{
			name:    "replay without source",
			body:    "feeds:\n  replay:\n    enabled: true\n",
			wantErr: "feeds.replay needs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
