package filetable

import (
	"math"

	"github.com/SpatiumPortae/xfer/cmd/xfer/tui"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/exp/slices"
)

const (
	defaultMaxTableHeight          = 4
	nameColumnWidthFactor  float64 = 0.6
	sizeColumnWidthFactor  float64 = 0.2
	stateColumnWidthFactor float64 = 1 - nameColumnWidthFactor - sizeColumnWidthFactor
)

var fileTableStyle = tui.BaseStyle.Copy().
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color(tui.SECONDARY_COLOR)).
	MarginLeft(tui.MARGIN)

type Option func(m *Model)

type fileRow struct {
	name          string
	formattedSize string
	state         string
}

type Model struct {
	Width       int
	MaxHeight   int
	rows        []fileRow
	table       table.Model
	tableStyles table.Styles
}

func New(opts ...Option) Model {
	m := Model{
		MaxHeight: defaultMaxTableHeight,
		table: table.New(
			table.WithFocused(true),
			table.WithHeight(defaultMaxTableHeight),
		),
	}

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(tui.SECONDARY_COLOR)).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(tui.DARK_COLOR)).
		Background(lipgloss.Color(tui.SECONDARY_ELEMENT_COLOR)).
		Bold(false)
	m.tableStyles = s
	m.table.SetStyles(m.tableStyles)

	m.updateColumns()
	for _, opt := range opts {
		opt(&m)
	}

	return m
}

// SetFiles lists names as pending transfers, replacing the current rows.
func (m *Model) SetFiles(names []string) {
	m.rows = m.rows[:0]
	for _, name := range names {
		m.rows = append(m.rows, fileRow{name: name, formattedSize: "-", state: "pending"})
	}
	m.updateHeight()
	m.updateColumns()
	m.updateRows()
}

func WithFiles(names []string) Option {
	return func(m *Model) {
		m.SetFiles(names)
	}
}

// SetFile updates the size and state of the row for name, appending it when missing.
func (m *Model) SetFile(name string, size int64, state string) {
	row := fileRow{name: name, formattedSize: tui.ByteCountSI(size), state: state}
	i := slices.IndexFunc(m.rows, func(r fileRow) bool { return r.name == name })
	if i < 0 {
		m.rows = append(m.rows, row)
		m.updateHeight()
	} else {
		m.rows[i] = row
	}
	m.updateRows()
}

// States returns the state column, in row order.
func (m Model) States() []string {
	states := make([]string, 0, len(m.rows))
	for _, r := range m.rows {
		states = append(states, r.state)
	}
	return states
}

func (m *Model) SetMaxHeight(height int) {
	m.MaxHeight = height
	m.updateHeight()
}

func WithMaxHeight(height int) Option {
	return func(m *Model) {
		m.SetMaxHeight(height)
		m.updateRows()
	}
}

func (m *Model) updateHeight() {
	m.table.SetHeight(int(math.Min(float64(m.MaxHeight), float64(len(m.rows)))))
}

func (m *Model) getMaxWidth() int {
	return int(math.Min(tui.MAX_WIDTH-2*tui.MARGIN, float64(m.Width)))
}

func (m *Model) updateColumns() {
	w := m.getMaxWidth()
	m.table.SetColumns([]table.Column{
		{Title: "File", Width: int(float64(w) * nameColumnWidthFactor)},
		{Title: "Size", Width: int(float64(w) * sizeColumnWidthFactor)},
		{Title: "State", Width: int(float64(w) * stateColumnWidthFactor)},
	})
}

func (m *Model) updateRows() {
	var tableRows []table.Row
	maxNameWidth := int(float64(m.getMaxWidth()) * nameColumnWidthFactor)
	for _, row := range m.rows {
		name := row.name
		// truncate overflowing names from the left
		if maxNameWidth > 0 && runewidth.StringWidth(name) > maxNameWidth {
			overflowingLength := runewidth.StringWidth(name) - maxNameWidth
			name = runewidth.TruncateLeft(name, overflowingLength+1, "…")
		}
		tableRows = append(tableRows, table.Row{name, row.formattedSize, row.state})
	}
	m.table.SetRows(tableRows)
}

func (Model) Init() tea.Cmd {
	return nil
}

func (m Model) Finalize() tea.Model {
	m.table.Blur()

	s := m.tableStyles
	s.Selected = s.Selected.UnsetBackground().UnsetForeground()
	m.table.SetStyles(s)

	return m
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.Width = msg.Width - 2*tui.MARGIN - 4
		if m.Width > tui.MAX_WIDTH {
			m.Width = tui.MAX_WIDTH
		}
		m.updateColumns()
		m.updateRows()
		return m, nil

	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if len(m.rows) == 0 {
		return ""
	}
	return fileTableStyle.Render(m.table.View()) + "\n\n"
}
