package transferprogress

import (
	"fmt"
	"math"
	"time"

	"github.com/SpatiumPortae/xfer/cmd/xfer/tui"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
)

type Option func(*Model)

func WithPayloadSize(size int64) Option {
	return func(m *Model) {
		m.PayloadSize = size
	}
}

// Model tracks the progress of a single payload.
type Model struct {
	PayloadSize                int64
	bytesTransferred           int64
	progress                   float64
	TransferStartTime          time.Time
	TransferSpeedEstimateBps   int64
	EstimatedRemainingDuration time.Duration

	Width       int
	progressBar progress.Model
}

func New(opts ...Option) Model {
	m := Model{
		progressBar: tui.NewProgressBar(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// StartTransfer resets the model for a payload of size bytes.
func (m *Model) StartTransfer(size int64) {
	m.PayloadSize = size
	m.bytesTransferred = 0
	m.progress = 0
	m.TransferSpeedEstimateBps = 0
	m.EstimatedRemainingDuration = 0
	m.TransferStartTime = time.Now()
	if size == 0 {
		m.progress = 1
	}
}

func (m Model) BytesTransferred() int64 {
	return m.bytesTransferred
}

func (m Model) Progress() float64 {
	return m.progress
}

func (Model) Init() tea.Cmd {
	return nil
}

func (m Model) View() string {
	bar := m.progressBar.ViewAs(m.progress)
	if m.TransferSpeedEstimateBps == 0 {
		return bar
	}
	return bar + "\n\n" + tui.PadText + tui.HelpStyle(fmt.Sprintf("%s/s, %s remaining",
		tui.ByteCountSI(m.TransferSpeedEstimateBps), m.EstimatedRemainingDuration.Round(time.Second)))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.Width = msg.Width - 2*tui.MARGIN - 4
		if m.Width > tui.MAX_WIDTH {
			m.Width = tui.MAX_WIDTH
		}
		m.progressBar.Width = m.Width
		return m, nil

	case tui.ProgressMsg:
		if m.TransferStartTime.IsZero() {
			m.TransferStartTime = time.Now()
		}
		m.bytesTransferred += int64(msg)
		if m.PayloadSize > 0 {
			m.progress = math.Min(1.0, float64(m.bytesTransferred)/float64(m.PayloadSize))
		}
		secondsSpent := time.Since(m.TransferStartTime).Seconds()
		if secondsSpent <= 0 || m.bytesTransferred == 0 {
			return m, nil
		}
		bytesRemaining := m.PayloadSize - m.bytesTransferred
		linearRemainingSeconds := math.Max(0, float64(bytesRemaining)*secondsSpent/float64(m.bytesTransferred))
		remainingDuration, err := time.ParseDuration(fmt.Sprintf("%fs", linearRemainingSeconds))
		if err != nil {
			return m, tui.ErrorCmd(errors.Wrap(err, "failed to parse duration of estimated remaining transfer time"))
		}
		m.EstimatedRemainingDuration = remainingDuration
		m.TransferSpeedEstimateBps = int64(float64(m.bytesTransferred) / secondsSpent)
		return m, nil

	case progress.FrameMsg:
		progressModel, cmd := m.progressBar.Update(msg)
		m.progressBar = progressModel.(progress.Model)
		return m, cmd

	default:
		return m, nil
	}
}
