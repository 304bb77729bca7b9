// Package ui provides the Bubble Tea TUI for the arbitrage service.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/multichain-arb/pkg/ui/components"
)

// StartupStep represents a step in the startup process.
type StartupStep struct {
	Name   string
	Status string // "pending", "connecting", "connected", "done", "failed"
}

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"
	PhaseStartup   Phase = "startup"
	PhaseDashboard Phase = "dashboard"
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

// stepOrder is the order startup steps are listed in.
var stepOrder = []string{"config", "chains", "market", "pricing", "engine"}

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	chains    *components.ChainsComponent
	decisions *components.DecisionsComponent
	prices    *components.PricesComponent
	stats     *components.StatsComponent
	keys      KeyMap

	phase        Phase
	welcomeStart time.Time

	ready      bool
	quitting   bool
	paused     bool
	width      int
	height     int
	lastUpdate time.Time
	errors     []ErrorEntry
	logs       []string

	startupSteps map[string]*StartupStep
	startupTime  time.Time

	activityFeed  []string
	lastCycleTime time.Time
	cycleTotalMs  float64
}

// New creates a new TUI model.
func New() Model {
	now := time.Now()
	return Model{
		chains:       components.NewChainsComponent(),
		decisions:    components.NewDecisionsComponent(50, 6),
		prices:       components.NewPricesComponent(),
		stats:        components.NewStatsComponent(),
		keys:         DefaultKeyMap(),
		phase:        PhaseWelcome,
		welcomeStart: now,
		logs:         make([]string, 0, 10),
		errors:       make([]ErrorEntry, 0, 3),
		activityFeed: make([]string, 0, 8),
		startupSteps: map[string]*StartupStep{
			"config":  {Name: "Loading configuration", Status: "pending"},
			"chains":  {Name: "Connecting chain watchers", Status: "pending"},
			"market":  {Name: "Starting market ingestion", Status: "pending"},
			"pricing": {Name: "Loading reference prices", Status: "pending"},
			"engine":  {Name: "Starting decision engine", Status: "pending"},
		},
		startupTime: now,
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a tick every 100ms for animations.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m *Model) leaveWelcome() {
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	// Send would re-enter the program from inside Update
	if OnStartModules != nil {
		go OnStartModules()
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.phase == PhaseWelcome {
			m.leaveWelcome()
			return m, tickCmd()
		}
		switch {
		case key.Matches(msg, m.keys.Clear):
			m.decisions.Clear()
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Up):
			m.decisions.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.decisions.ScrollDown()
		case key.Matches(msg, m.keys.Errors):
			m.errors = make([]ErrorEntry, 0, 3)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case WelcomeCompleteMsg:
		if m.phase == PhaseWelcome {
			m.leaveWelcome()
		}

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m.leaveWelcome()
		}
		return m, tickCmd()

	case CycleMsg:
		m.onCycle(msg)

	case ChainStatusMsg:
		m.chains.Update(components.ChainStatus{
			Name:       msg.Chain,
			ID:         msg.ID,
			Connected:  msg.Connected,
			Latency:    msg.Latency,
			Head:       msg.Head,
			GasGwei:    msg.GasGwei,
			LastUpdate: time.Now(),
		})
		if msg.Head > 0 {
			m.activityFeed = addActivity(m.activityFeed, fmt.Sprintf("%s block #%d", msg.Chain, msg.Head))
		}
		if step := m.startupSteps["chains"]; step != nil && msg.Connected {
			step.Status = "connected"
		}
		m.lastUpdate = time.Now()

	case MarketMsg:
		s := m.stats.Stats()
		s.Features = msg.Features
		s.Accepted = msg.Accepted
		s.Duplicates = msg.Duplicates
		s.Invalid = msg.Invalid
		m.stats.Update(s)
		if step := m.startupSteps["market"]; step != nil && msg.Accepted > 0 {
			step.Status = "done"
		}

	case PriceMsg:
		m.prices.Update(components.PriceRow{Symbol: msg.Symbol, USD: msg.USD, Source: msg.Source, Updated: time.Now()})
		if step := m.startupSteps["pricing"]; step != nil {
			step.Status = "done"
		}

	case ErrorMsg:
		m.logs = addLog(m.logs, "error", msg.Error.Error())
		m.errors = append(m.errors, ErrorEntry{Message: msg.Error.Error(), Timestamp: time.Now()})
		if len(m.errors) > 3 {
			m.errors = m.errors[len(m.errors)-3:]
		}

	case LogMsg:
		m.logs = addLog(m.logs, msg.Level, msg.Message)

	case StartupMsg:
		if step, ok := m.startupSteps[msg.Step]; ok {
			step.Status = msg.Status
		}
		if m.startupDone() && m.phase == PhaseStartup {
			m.phase = PhaseDashboard
		}
	}

	return m, nil
}

func (m *Model) onCycle(msg CycleMsg) {
	s := m.stats.Stats()
	s.Cycles++
	s.Candidates += uint64(msg.Candidates)
	s.Rejected += uint64(msg.Rejected)
	if msg.Aborted {
		s.Aborted++
	}
	m.cycleTotalMs += float64(msg.Duration.Microseconds()) / 1000
	s.AvgCycleMs = m.cycleTotalMs / float64(s.Cycles)

	if step := m.startupSteps["engine"]; step != nil {
		step.Status = "done"
	}
	if m.phase == PhaseStartup {
		m.phase = PhaseDashboard
	}
	m.lastCycleTime = time.Now()
	m.lastUpdate = m.lastCycleTime

	switch {
	case msg.Aborted:
		m.activityFeed = addActivity(m.activityFeed, fmt.Sprintf("cycle %d aborted: %s", msg.Cycle, msg.Err))
	case msg.Best != nil:
		s.Selected++
		if !m.paused {
			best := msg.Best
			m.decisions.Add(components.DecisionRow{
				Time:       m.lastCycleTime.Format("15:04:05"),
				Cycle:      msg.Cycle,
				Strategy:   best.Strategy,
				Path:       best.Path,
				NetUSD:     best.NetUSD,
				NetBps:     best.NetBps,
				Confidence: best.Confidence,
				Published:  best.Published,
			})
			m.prices.SetCostBreakdown(components.CostBreakdown{
				Strategy:     best.Strategy,
				Path:         best.Path,
				Chains:       best.Chains,
				NotionalUSD:  best.NotionalUSD,
				GrossUSD:     best.GrossUSD,
				GasUSD:       best.GasUSD,
				BridgeFeeUSD: best.BridgeFeeUSD,
				FlashFeeUSD:  best.FlashFeeUSD,
				NetUSD:       best.NetUSD,
				NetBps:       best.NetBps,
				Confidence:   best.Confidence,
				Staleness:    best.Staleness,
			})
		}
		m.activityFeed = addActivity(m.activityFeed, fmt.Sprintf("cycle %d selected %s +$%.2f", msg.Cycle, msg.Best.Strategy, msg.Best.NetUSD))
	default:
		m.activityFeed = addActivity(m.activityFeed, fmt.Sprintf("cycle %d: %d candidates, %d rejected", msg.Cycle, msg.Candidates, msg.Rejected))
	}
	m.stats.Update(s)
}

func (m Model) startupDone() bool {
	for _, step := range m.startupSteps {
		if step.Status != "connected" && step.Status != "done" {
			return false
		}
	}
	return true
}

// addLog adds a log message and returns the updated slice (keeps last 5).
func addLog(logs []string, level, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	logs = append(logs, fmt.Sprintf("[%s] %s: %s", timestamp, level, message))
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}
	return logs
}

// addActivity adds an activity message and returns the updated slice (keeps last 6).
func addActivity(feed []string, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	feed = append(feed, fmt.Sprintf("[%s] %s", timestamp, message))
	if len(feed) > 6 {
		feed = feed[len(feed)-6:]
	}
	return feed
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcomeScreen()
	case PhaseStartup:
		return m.renderStartupScreen()
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render(" Multi-chain Arbitrage "))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	var left strings.Builder
	left.WriteString(m.chains.View())
	left.WriteString("\n")
	left.WriteString(m.prices.View())

	var right strings.Builder
	right.WriteString(m.renderActivityFeed())
	right.WriteString("\n\n")
	right.WriteString(m.decisions.View())

	if m.width > 100 {
		l := BoxStyle.Width(m.width/2 - 2).Render(left.String())
		r := BoxStyle.Width(m.width/2 - 2).Render(right.String())
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, l, r))
	} else {
		width := m.width - 4
		if width < 40 {
			width = 40
		}
		b.WriteString(BoxStyle.Width(width).Render(left.String()))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(width).Render(right.String()))
	}
	b.WriteString("\n\n")
	b.WriteString(m.stats.View())
	b.WriteString("\n\n")

	if len(m.errors) > 0 {
		errorStyle := lipgloss.NewStyle().Foreground(ColorDanger)
		errorHeader := lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)

		b.WriteString(errorHeader.Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(errorStyle.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(MutedValue.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.paused {
		pauseStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorWarning)
		b.WriteString(pauseStyle.Render("⏸ PAUSED"))
		b.WriteString(" • ")
	}
	b.WriteString(HelpStyle.Render(m.helpLine()))

	return b.String()
}

func (m Model) helpLine() string {
	parts := make([]string, 0, 6)
	for _, k := range m.keys.ShortHelp() {
		h := k.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

// renderActivityFeed renders the recent activity feed.
func (m Model) renderActivityFeed() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	blockStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("LIVE ACTIVITY"))
	sb.WriteString("\n\n")

	if len(m.activityFeed) == 0 {
		sb.WriteString(MutedValue.Render("  Waiting for blocks..."))
		return sb.String()
	}
	for _, activity := range m.activityFeed {
		if strings.Contains(activity, "block #") {
			sb.WriteString(blockStyle.Render("  " + activity))
		} else {
			sb.WriteString(MutedValue.Render("  " + activity))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderWelcomeScreen renders the animated welcome screen.
func (m Model) renderWelcomeScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	goldStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorWarning)
	greenStyle := lipgloss.NewStyle().Foreground(ColorSecondary)

	dotCount := int(time.Since(m.welcomeStart).Milliseconds()/300) % 4
	dots := strings.Repeat(".", dotCount)

	var sb strings.Builder
	sb.WriteString("\n\n\n\n")

	logo := `
   ███╗   ███╗██╗   ██╗██╗  ████████╗██╗       █████╗ ██████╗ ██████╗
   ████╗ ████║██║   ██║██║  ╚══██╔══╝██║      ██╔══██╗██╔══██╗██╔══██╗
   ██╔████╔██║██║   ██║██║     ██║   ██║█████╗███████║██████╔╝██████╔╝
   ██║╚██╔╝██║██║   ██║██║     ██║   ██║╚════╝██╔══██║██╔══██╗██╔══██╗
   ██║ ╚═╝ ██║╚██████╔╝███████╗██║   ██║      ██║  ██║██║  ██║██████╔╝
   ╚═╝     ╚═╝ ╚═════╝ ╚══════╝╚═╝   ╚═╝      ╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝
`
	sb.WriteString(titleStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render("          E T H E R E U M  ·  A R B I T R U M  ·  O P T I M I S M  ·  B A S E"))
	sb.WriteString("\n\n\n")
	sb.WriteString(goldStyle.Render("                     signals in, intents out"))
	sb.WriteString("\n\n\n")
	sb.WriteString(greenStyle.Render(fmt.Sprintf("                       Initializing%s", dots)))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("                 Press any key to skip, or wait..."))
	sb.WriteString("\n")

	return sb.String()
}

// renderStartupScreen renders the loading/startup screen.
func (m Model) renderStartupScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).MarginBottom(1)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	successStyle := lipgloss.NewStyle().Foreground(ColorSecondary)
	connectingStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	failedStyle := lipgloss.NewStyle().Foreground(ColorDanger)

	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("  Multi-chain Arbitrage"))
	sb.WriteString("\n\n")
	sb.WriteString(headerStyle.Render("  Starting up..."))
	sb.WriteString("\n\n")

	for _, k := range stepOrder {
		step, ok := m.startupSteps[k]
		if !ok {
			continue
		}

		var icon, statusText string
		var style lipgloss.Style
		switch step.Status {
		case "connected", "done":
			icon, statusText, style = "✓", "Ready", successStyle
		case "connecting":
			spinners := []string{"◐", "◓", "◑", "◒"}
			idx := int(time.Since(m.startupTime).Milliseconds()/200) % len(spinners)
			icon, statusText, style = spinners[idx], "Connecting...", connectingStyle
		case "failed":
			icon, statusText, style = "✗", "Failed", failedStyle
		default:
			icon, statusText, style = "○", "Pending", MutedValue
		}

		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			style.Render(icon),
			MutedValue.Render(step.Name),
			style.Render(statusText),
		))
	}

	sb.WriteString("\n")
	elapsed := time.Since(m.startupTime).Round(time.Second)
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  Elapsed: %s", elapsed)))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("  Waiting for the first decision cycle..."))
	sb.WriteString("\n")

	return sb.String()
}

func (m Model) renderStatusBar() string {
	var parts []string

	if time.Since(m.lastCycleTime) < 500*time.Millisecond {
		spinners := []string{"⟳", "◐", "◓", "◑", "◒"}
		idx := int(time.Now().UnixMilli()/100) % len(spinners)
		scanningStyle := lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
		parts = append(parts, scanningStyle.Render(spinners[idx]+" Evaluating"))
	}

	connected := StatusConnected
	if m.chains.Connected() < m.chains.Len() {
		connected = StatusReconnecting
	}
	if m.chains.Len() > 0 && m.chains.Connected() == 0 {
		connected = StatusDisconnected
	}
	parts = append(parts, connected.Render(fmt.Sprintf("● %d/%d chains", m.chains.Connected(), m.chains.Len())))

	if s := m.stats.Stats(); s.Cycles > 0 {
		parts = append(parts, PositiveValue.Render(fmt.Sprintf("Cycles: %d", s.Cycles)))
	}

	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		indicator := ""
		if ago < 2*time.Second {
			indicator = "▪"
		}
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated: %s ago %s", ago, indicator)))
	}

	return strings.Join(parts, "  │  ")
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and modules
// should start. main sets it before Run.
var OnStartModules func()

// Run starts the Bubble Tea program.
func Run() error {
	Program = tea.NewProgram(New(), tea.WithAltScreen())
	_, err := Program.Run()
	return err
}

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
	if _, ok := msg.(StartModulesMsg); ok && OnStartModules != nil {
		OnStartModules()
	}
}
