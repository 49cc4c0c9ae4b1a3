package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/tilestitch/pkg/observability"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// =============================================================================
// Progress Model - live tile grid for "run --progress"
// =============================================================================

type tileState int

const (
	tilePending tileState = iota
	tileRunning
	tileDone
	tileFailed
)

var (
	cellPending = lipgloss.NewStyle().Foreground(colorDim)
	cellRunning = lipgloss.NewStyle().Foreground(colorYellow)
	cellDone    = lipgloss.NewStyle().Foreground(colorGreen)
	cellFailed  = lipgloss.NewStyle().Foreground(colorRed)
)

// maxGridCells bounds the drawn grid; larger partitions show only the bar.
const maxGridCells = 64 * 32

type (
	tileStartMsg struct{ key string }
	tileDoneMsg  struct {
		key string
		err error
	}
	stitchStartMsg struct{ policy string }
	runFinishedMsg struct{ err error }
)

// progressModel is the bubbletea model that renders tile states.
type progressModel struct {
	part     *tile.Partition
	states   map[string]tileState
	done     int
	failed   int
	policy   string
	started  time.Time
	finished bool
	err      error
	cancel   context.CancelFunc
}

func newProgressModel(p *tile.Partition, cancel context.CancelFunc) progressModel {
	states := make(map[string]tileState, p.Len())
	for _, t := range p.Tiles() {
		states[t.Key()] = tilePending
	}
	return progressModel{part: p, states: states, started: time.Now(), cancel: cancel}
}

func (m progressModel) Init() tea.Cmd { return nil }

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tileStartMsg:
		if m.states[msg.key] == tilePending {
			m.states[msg.key] = tileRunning
		}
	case tileDoneMsg:
		if msg.err != nil {
			m.states[msg.key] = tileFailed
			m.failed++
		} else {
			m.states[msg.key] = tileDone
		}
		m.done++
	case stitchStartMsg:
		m.policy = msg.policy
	case runFinishedMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	total := m.part.Len()

	b.WriteString(StyleTitle.Render("Tiles"))
	b.WriteString(StyleDim.Render(fmt.Sprintf("  %v grid", m.part.Grid())))
	b.WriteString("\n\n")

	grid := m.part.Grid()
	if len(grid) == 2 && total <= maxGridCells {
		for r := range grid[0] {
			b.WriteString("  ")
			for c := range grid[1] {
				b.WriteString(m.cell(tile.Index{r, c}.Key()))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("  " + bar(m.done, total, 40))
	b.WriteString(StyleDim.Render(fmt.Sprintf(" %d/%d", m.done, total)))
	if m.failed > 0 {
		b.WriteString(" " + cellFailed.Render(fmt.Sprintf("%d failed", m.failed)))
	}
	b.WriteString(StyleDim.Render(fmt.Sprintf("  %s", time.Since(m.started).Round(100*time.Millisecond))))
	b.WriteString("\n")
	if m.policy != "" {
		b.WriteString(StyleDim.Render("  stitching with " + m.policy))
		b.WriteString("\n")
	}
	if !m.finished {
		b.WriteString(StyleDim.Render("  q to cancel"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m progressModel) cell(key string) string {
	switch m.states[key] {
	case tileRunning:
		return cellRunning.Render("▣ ")
	case tileDone:
		return cellDone.Render("■ ")
	case tileFailed:
		return cellFailed.Render("✗ ")
	}
	return cellPending.Render("□ ")
}

// bar renders a width-cell progress bar.
func bar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	return cellDone.Render(strings.Repeat("█", filled)) + cellPending.Render(strings.Repeat("░", width-filled))
}

// =============================================================================
// Hook Bridge
// =============================================================================

// progressHooks forwards job events for one job to a running program.
// Events of other jobs are ignored once the first tile names the job.
type progressHooks struct {
	observability.NoopJobHooks
	send func(tea.Msg)

	mu  sync.Mutex
	job string
}

func (h *progressHooks) owns(jobID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.job == "" {
		h.job = jobID
	}
	return h.job == jobID
}

func (h *progressHooks) OnTileStart(_ context.Context, jobID, key string) {
	if h.owns(jobID) {
		h.send(tileStartMsg{key: key})
	}
}

func (h *progressHooks) OnTileComplete(_ context.Context, jobID, key string, _ time.Duration, err error) {
	if h.owns(jobID) {
		h.send(tileDoneMsg{key: key, err: err})
	}
}

func (h *progressHooks) OnStitchStart(_ context.Context, jobID, policy string, _ int) {
	if h.owns(jobID) {
		h.send(stitchStartMsg{policy: policy})
	}
}

// spinnerHooks keeps a spinner message in step with tile completions.
type spinnerHooks struct {
	observability.NoopJobHooks
	spin  *Spinner
	total int

	mu   sync.Mutex
	done int
}

func (h *spinnerHooks) OnTileComplete(context.Context, string, string, time.Duration, error) {
	h.mu.Lock()
	h.done++
	n := h.done
	h.mu.Unlock()
	h.spin.SetMessage("Computing tiles %d/%d", n, h.total)
}

func (h *spinnerHooks) OnStitchStart(_ context.Context, _, policy string, _ int) {
	h.spin.SetMessage("Stitching (%s)", policy)
}
