// Package ui provides the Bubble Tea TUI for the arbitrage service.
package ui

import "time"

// Message types for TUI updates. Values arrive pre-computed; the UI only
// formats them.

// DecisionView is the display form of a selected evaluation.
type DecisionView struct {
	Strategy     string
	Path         string
	Chains       string
	NotionalUSD  float64
	GrossUSD     float64
	GasUSD       float64
	BridgeFeeUSD float64
	FlashFeeUSD  float64
	NetUSD       float64
	NetBps       float64
	Confidence   float64
	Staleness    time.Duration
	Published    bool
}

// CycleMsg is sent after every decision cycle.
type CycleMsg struct {
	Cycle      uint64
	Trigger    string
	Version    uint64
	Block      uint64
	Duration   time.Duration
	Candidates int
	Evaluated  int
	Rejected   int
	Filtered   int
	Failures   int
	Aborted    bool
	Err        string
	Best       *DecisionView
}

// ChainStatusMsg is sent when a chain watcher reports a head or a
// connection change.
type ChainStatusMsg struct {
	Chain     string
	ID        uint64
	Head      uint64
	GasGwei   float64
	Connected bool
	Latency   time.Duration
}

// MarketMsg carries ingestion statistics of the market state.
type MarketMsg struct {
	Version    uint64
	Features   int
	Accepted   uint64
	Duplicates uint64
	Invalid    uint64
}

// PriceMsg is sent when a reference price changes.
type PriceMsg struct {
	Symbol string
	USD    float64
	Source string
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// WelcomeCompleteMsg signals the welcome screen is done (timeout or keypress).
type WelcomeCompleteMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// StartupMsg is sent during application startup to show progress.
type StartupMsg struct {
	Step    string
	Status  string // "connecting", "connected", "done", "failed"
	Message string
}
