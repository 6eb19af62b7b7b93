package getter

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/SpatiumPortae/xfer/cmd/xfer/tui"
	"github.com/SpatiumPortae/xfer/cmd/xfer/tui/filetable"
	"github.com/SpatiumPortae/xfer/cmd/xfer/tui/transferprogress"
	"github.com/SpatiumPortae/xfer/internal/client"
	"github.com/SpatiumPortae/xfer/internal/file"
	"github.com/SpatiumPortae/xfer/internal/xfer"
	"github.com/SpatiumPortae/xfer/protocol/transfer"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/erikgeiser/promptkit"
	"github.com/erikgeiser/promptkit/confirmation"
)

// ------------------------------------------------------ tui State -----------------------------------------------------
type tuiState int

// Flows from the top down.
const (
	showOverwritePrompt tuiState = iota
	showConnecting
	showReceivingProgress
	showFinished
)

// ------------------------------------------------------ Messages -----------------------------------------------------

type fileMsg client.FileMsg
type resultMsg client.ResultMsg

type getDoneMsg struct {
	results []client.Result
	err     error
}

// ------------------------------------------------------- Model -------------------------------------------------------

type Option func(m *model)

// WithOverwritePrompt asks before replacing any of the names that already exist in the destination.
func WithOverwritePrompt(existing []string) Option {
	return func(m *model) {
		m.conflicts = existing
	}
}

func WithConfig(cfg *xfer.Config) Option {
	return func(m *model) {
		m.cfg = cfg
	}
}

type model struct {
	state tuiState

	ctx    context.Context
	cancel context.CancelFunc
	msgs   chan interface{}

	addr      string
	names     []string
	conflicts []string
	skipped   []string
	dst       file.Destination
	cfg       *xfer.Config

	current  string
	received int
	bytes    int64
	results  []client.Result
	err      error

	width            int
	spinner          spinner.Model
	transferProgress transferprogress.Model
	fileTable        filetable.Model
	overwritePrompt  confirmation.Model
	help             help.Model
	keys             tui.KeyMap
	initCmd          tea.Cmd
}

// Model is the final state of a finished getter program.
type Model interface {
	tea.Model
	Results() []client.Result
	Skipped() []string
	Err() error
}

// New creates a new getter program fetching names from addr into dst.
func New(addr string, names []string, dst file.Destination, opts ...Option) *tea.Program {
	return tea.NewProgram(newModel(addr, names, dst, opts...))
}

func newModel(addr string, names []string, dst file.Destination, opts ...Option) model {
	ctx, cancel := context.WithCancel(context.Background())
	m := model{
		state:            showConnecting,
		ctx:              ctx,
		cancel:           cancel,
		msgs:             make(chan interface{}, 10),
		addr:             addr,
		names:            names,
		dst:              dst,
		transferProgress: transferprogress.New(),
		fileTable:        filetable.New(filetable.WithFiles(names)),
		overwritePrompt:  *confirmation.NewModel(confirmation.New("", confirmation.Undecided)),
		help:             help.New(),
		keys:             tui.Keys,
	}
	for _, opt := range opts {
		opt(&m)
	}
	if len(m.conflicts) > 0 {
		m.state = showOverwritePrompt
		m.enablePromptKeys(true)
		m.initCmd = m.newOverwritePrompt(m.conflicts[0])
	}
	m.resetSpinner()
	return m
}

func (m model) Results() []client.Result { return m.results }
func (m model) Skipped() []string        { return m.skipped }
func (m model) Err() error               { return m.err }

func (m model) Init() tea.Cmd {
	if m.state == showOverwritePrompt {
		return tea.Batch(m.spinner.Tick, m.initCmd)
	}
	return tea.Batch(m.spinner.Tick, m.startCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case fileMsg:
		m.current = msg.Name
		cmds := []tea.Cmd{listenCmd(m.msgs)}
		if m.state != showReceivingProgress {
			m.state = showReceivingProgress
			m.resetSpinner()
			cmds = append(cmds, m.spinner.Tick)
		}
		m.transferProgress.StartTransfer(int64(msg.Size))
		m.fileTable.SetFile(msg.Name, int64(msg.Size), "receiving")
		return m, tea.Batch(cmds...)

	case tui.ProgressMsg:
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)
		return m, tea.Batch(listenCmd(m.msgs), transferProgressCmd)

	case resultMsg:
		m.fileTable.SetFile(msg.Name, int64(msg.Size), msg.Outcome.Name())
		if msg.Outcome != transfer.Success {
			return m, listenCmd(m.msgs)
		}
		m.received++
		m.bytes += int64(msg.Size)
		message := fmt.Sprintf("Received %s (%s)", msg.Name, tui.ByteCountSI(int64(msg.Size)))
		return m, tui.TaskCmd(message, listenCmd(m.msgs))

	case getDoneMsg:
		m.state = showFinished
		m.results = msg.results
		m.err = msg.err
		m.received, m.bytes = 0, 0
		for _, res := range msg.results {
			m.fileTable.SetFile(res.Name, int64(res.Size), res.Outcome.Name())
			if res.Outcome == transfer.Success {
				m.received++
				m.bytes += int64(res.Size)
			}
		}
		m.fileTable.SetMaxHeight(math.MaxInt)
		m.fileTable = m.fileTable.Finalize().(filetable.Model)
		m.cancel()
		return m, tui.QuitCmd()

	case tui.ErrorMsg:
		m.state = showFinished
		m.err = msg
		m.cancel()
		return m, tui.QuitCmd()

	case tea.KeyMsg:
		var cmds []tea.Cmd
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.err = context.Canceled
			m.cancel()
			return m, tea.Quit
		}

		fileTableModel, fileTableCmd := m.fileTable.Update(msg)
		m.fileTable = fileTableModel.(filetable.Model)
		cmds = append(cmds, fileTableCmd)

		_, promptCmd := m.overwritePrompt.Update(msg)
		if m.state == showOverwritePrompt {
			switch msg.String() {
			case "left", "right":
				cmds = append(cmds, promptCmd)
			}
			if key.Matches(msg, m.keys.OverwritePromptYes, m.keys.OverwritePromptNo, m.keys.OverwritePromptConfirm) {
				shouldOverwrite, _ := m.overwritePrompt.Value()
				cmds = append(cmds, m.decide(shouldOverwrite))
			}
		}
		return m, tea.Batch(cmds...)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)

		fileTableModel, fileTableCmd := m.fileTable.Update(msg)
		m.fileTable = fileTableModel.(filetable.Model)

		m.overwritePrompt.MaxWidth = msg.Width - 2*tui.MARGIN - 4
		_, promptCmd := m.overwritePrompt.Update(msg)

		return m, tea.Batch(transferProgressCmd, fileTableCmd, promptCmd)

	default:
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)
		_, promptCmd := m.overwritePrompt.Update(msg)
		return m, tea.Batch(spinnerCmd, transferProgressCmd, promptCmd)
	}
}

func (m model) View() string {
	switch m.state {

	case showOverwritePrompt:
		waitingText := fmt.Sprintf("%s Waiting for file overwrite confirmation", m.spinner.View())
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(waitingText) + "\n\n" +
			tui.PadText + m.overwritePrompt.View() + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showConnecting:
		connectingText := fmt.Sprintf("%s Requesting files from %s", m.spinner.View(), m.addr)
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(connectingText) + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showReceivingProgress:
		payloadSize := tui.BoldText(tui.ByteCountSI(m.transferProgress.PayloadSize))
		receivingText := fmt.Sprintf("%s Receiving %s (%s)", m.spinner.View(), m.current, payloadSize)
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(receivingText) + "\n\n" +
			tui.PadText + m.transferProgress.View() + "\n\n" +
			m.fileTable.View() +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showFinished:
		oneOrMoreFiles := "file"
		if m.received != 1 {
			oneOrMoreFiles += "s"
		}
		finishedText := tui.InfoStyle(fmt.Sprintf("Received %d %s (%s)", m.received, oneOrMoreFiles, tui.ByteCountSI(m.bytes)))
		if m.err != nil {
			finishedText += "\n\n" + tui.PadText + tui.ErrorText(m.err.Error())
		}
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + finishedText + "\n\n" +
			m.fileTable.View()

	default:
		return ""
	}
}

// ------------------------------------------------------ Commands -----------------------------------------------------

// startCmd starts the transfer of every name that was not skipped and listens for its progress.
func (m *model) startCmd() tea.Cmd {
	names := m.names
	ctx, msgs, addr, dst, cfg := m.ctx, m.msgs, m.addr, m.dst, m.cfg
	if len(names) == 0 {
		return func() tea.Msg { return getDoneMsg{} }
	}
	get := func() tea.Msg {
		results, err := xfer.Get(ctx, addr, names, dst, cfg, client.WithProgress(msgs))
		return getDoneMsg{results: results, err: err}
	}
	return tea.Batch(get, listenCmd(msgs))
}

func listenCmd(msgs chan interface{}) tea.Cmd {
	return func() tea.Msg {
		msg := <-msgs
		switch v := msg.(type) {
		case client.FileMsg:
			return fileMsg(v)
		case client.ProgressMsg:
			return tui.ProgressMsg(v)
		case client.ResultMsg:
			return resultMsg(v)
		default:
			return nil
		}
	}
}

// decide records the overwrite decision for the first conflict and moves on to the next one.
func (m *model) decide(overwrite bool) tea.Cmd {
	name := m.conflicts[0]
	m.conflicts = m.conflicts[1:]
	if !overwrite {
		m.skipped = append(m.skipped, name)
		m.names = remove(m.names, name)
		m.fileTable.SetFile(name, 0, "skipped")
	}
	if len(m.conflicts) > 0 {
		return m.newOverwritePrompt(m.conflicts[0])
	}
	m.enablePromptKeys(false)
	m.state = showConnecting
	m.resetSpinner()
	if len(m.names) == 0 {
		return func() tea.Msg { return getDoneMsg{err: errors.New("every file was skipped")} }
	}
	return tea.Batch(m.spinner.Tick, m.startCmd())
}

// ------------------------------------------------------ Helpers ------------------------------------------------------

func remove(names []string, name string) []string {
	kept := names[:0:0]
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}
	return kept
}

func (m *model) enablePromptKeys(enabled bool) {
	m.keys.OverwritePromptYes.SetEnabled(enabled)
	m.keys.OverwritePromptNo.SetEnabled(enabled)
	m.keys.OverwritePromptConfirm.SetEnabled(enabled)
}

func (m *model) newOverwritePrompt(fileName string) tea.Cmd {
	prompt := confirmation.New(fmt.Sprintf("Overwrite file '%s'?", fileName), confirmation.Yes)
	m.overwritePrompt = *confirmation.NewModel(prompt)
	m.overwritePrompt.MaxWidth = m.width
	m.overwritePrompt.WrapMode = promptkit.HardWrap
	m.overwritePrompt.Template = confirmation.TemplateYN
	m.overwritePrompt.ResultTemplate = confirmation.ResultTemplateYN
	m.overwritePrompt.KeyMap.Abort = []string{}
	m.overwritePrompt.KeyMap.Toggle = []string{}
	return m.overwritePrompt.Init()
}

func (m *model) resetSpinner() {
	m.spinner = spinner.New()
	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(tui.ELEMENT_COLOR))
	if m.state == showReceivingProgress {
		m.spinner.Spinner = tui.ReceivingSpinner
	} else {
		m.spinner.Spinner = tui.WaitingSpinner
	}
}
