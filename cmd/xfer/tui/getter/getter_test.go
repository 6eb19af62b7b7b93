package getter

import (
	"errors"
	"testing"

	"github.com/SpatiumPortae/xfer/cmd/xfer/tui"
	"github.com/SpatiumPortae/xfer/internal/client"
	"github.com/SpatiumPortae/xfer/internal/file"
	"github.com/SpatiumPortae/xfer/protocol/transfer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	updated, _ := m.Update(msg)
	next, ok := updated.(model)
	require.True(t, ok)
	return next
}

func TestTransferFlow(t *testing.T) {
	m := newModel("127.0.0.1:8080", []string{"a.txt", "b.txt"}, file.Destination{Dir: t.TempDir()})
	assert.Equal(t, showConnecting, m.state)

	m = update(t, m, fileMsg{Name: "a.txt", Size: 5000})
	assert.Equal(t, showReceivingProgress, m.state)
	assert.Equal(t, "a.txt", m.current)

	m = update(t, m, tui.ProgressMsg(5000))
	assert.Equal(t, int64(5000), m.transferProgress.BytesTransferred())

	m = update(t, m, resultMsg{Name: "a.txt", Size: 5000, Outcome: transfer.Success})
	m = update(t, m, resultMsg{Name: "b.txt", Outcome: transfer.NotFoundOnServer})
	assert.Equal(t, 1, m.received)
	assert.Equal(t, []string{transfer.Success.Name(), transfer.NotFoundOnServer.Name()}, m.fileTable.States())

	results := []client.Result{
		{Name: "a.txt", Size: 5000, Outcome: transfer.Success},
		{Name: "b.txt", Outcome: transfer.NotFoundOnServer},
	}
	incomplete := errors.New("not all files were received")
	m = update(t, m, getDoneMsg{results: results, err: incomplete})
	assert.Equal(t, showFinished, m.state)
	assert.Equal(t, results, m.Results())
	assert.Equal(t, incomplete, m.Err())
	assert.Contains(t, m.View(), "Received 1 file (5.0 kB)")
	assert.Error(t, m.ctx.Err(), "finishing cancels the transfer context")
}

func TestOverwritePrompt(t *testing.T) {
	t.Run("decisions", func(t *testing.T) {
		m := newModel("addr", []string{"a", "b", "c"}, file.Destination{}, WithOverwritePrompt([]string{"a", "b"}))
		assert.Equal(t, showOverwritePrompt, m.state)
		assert.True(t, m.keys.OverwritePromptYes.Enabled())

		m.decide(false)
		assert.Equal(t, showOverwritePrompt, m.state)
		assert.NotNil(t, m.decide(true))
		assert.Equal(t, showConnecting, m.state)
		assert.False(t, m.keys.OverwritePromptYes.Enabled())
		assert.Equal(t, []string{"b", "c"}, m.names)
		assert.Equal(t, []string{"a"}, m.Skipped())
	})
	t.Run("everything skipped", func(t *testing.T) {
		m := newModel("addr", []string{"a"}, file.Destination{}, WithOverwritePrompt([]string{"a"}))
		cmd := m.decide(false)
		require.NotNil(t, cmd)
		done, ok := cmd().(getDoneMsg)
		require.True(t, ok)
		assert.Error(t, done.err)
		assert.Empty(t, m.names)
	})
	t.Run("quit", func(t *testing.T) {
		m := newModel("addr", []string{"a"}, file.Destination{}, WithOverwritePrompt([]string{"a"}))
		m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
		assert.Error(t, m.Err())
		assert.Error(t, m.ctx.Err())
	})
}
