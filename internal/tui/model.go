// Package tui is the terminal chat window: conversation history, a message
// input, the audio visualizer strip and the record and playback controls.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sjawhar/parlo/internal/audio"
	"github.com/sjawhar/parlo/internal/conversation"
	"github.com/sjawhar/parlo/internal/server"
	"github.com/sjawhar/parlo/internal/session"
)

const visualizerRows = 4

// Controller is the slice of the session the window drives. Every call is
// made from a tea.Cmd, never from Update.
type Controller interface {
	Send(ctx context.Context, text string) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) audio.Result
	TogglePlayback() error
	Seek(at float64) error
	ChangeTopic(topic string) error
	Snapshot() session.Snapshot
}

// Clicker maps a click on the visualizer strip to a seek position.
type Clicker interface {
	Click(x float64) (float64, bool)
}

type Options struct {
	Context    context.Context
	Controller Controller
	State      *conversation.State
	Clicker    Clicker
	Canvas     *Canvas
	// Events carries hub messages; each one triggers a refresh.
	Events   <-chan []byte
	FPS      int
	Warnings []string
	Logger   *slog.Logger
}

type sentMsg struct {
	text string
	err  error
}

type recordStartedMsg struct{ err error }

type recordStoppedMsg struct{ result audio.Result }

type actionMsg struct {
	status string
	err    error
}

type snapshotMsg struct {
	snap     session.Snapshot
	messages []conversation.Message
}

type hubMsg struct{ kind string }

type frameMsg time.Time

type theme struct {
	header    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	body      lipgloss.Style
	status    lipgloss.Style
	errStatus lipgloss.Style
	help      lipgloss.Style
}

func newTheme() theme {
	mint := lipgloss.Color("#05ffa1")
	blue := lipgloss.Color("#01cdfe")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#9ca3d8")
	return theme{
		header:    lipgloss.NewStyle().Foreground(blue).Bold(true),
		user:      lipgloss.NewStyle().Foreground(mint).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(blue).Bold(true),
		body:      lipgloss.NewStyle(),
		status:    lipgloss.NewStyle().Foreground(blue),
		errStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		help:      lipgloss.NewStyle().Foreground(muted),
	}
}

type Model struct {
	ctx     context.Context
	ctrl    Controller
	state   *conversation.State
	clicker Clicker
	canvas  *Canvas
	events  <-chan []byte
	frame   time.Duration
	logger  *slog.Logger

	width  int
	height int

	history viewport.Model
	input   textinput.Model
	spinner spinner.Model
	theme   theme

	snap      session.Snapshot
	messages  []conversation.Message
	recording bool
	pending   bool
	status    string
	err       error
}

func New(opts Options) Model {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Canvas == nil {
		opts.Canvas = NewCanvas(0, visualizerRows)
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = 30
	}

	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "Type a message, or ctrl+r to speak"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	status := "ready"
	if len(opts.Warnings) > 0 {
		status = opts.Warnings[0]
	}

	return Model{
		ctx:     opts.Context,
		ctrl:    opts.Controller,
		state:   opts.State,
		clicker: opts.Clicker,
		canvas:  opts.Canvas,
		events:  opts.Events,
		frame:   time.Second / time.Duration(fps),
		logger:  opts.Logger,
		history: viewport.New(0, 0),
		input:   input,
		spinner: sp,
		theme:   newTheme(),
		status:  status,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.snapshotCmd(),
		m.waitForEvent(),
		m.frameCmd(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderHistory()
	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	case tea.MouseMsg:
		if cmd := m.handleMouse(msg); cmd != nil {
			return m, cmd
		}
	case sentMsg:
		if msg.err != nil {
			m.fail(msg.err)
			if (errors.Is(msg.err, session.ErrTurnInFlight) || errors.Is(msg.err, session.ErrRecordingActive)) && m.input.Value() == "" {
				m.input.SetValue(msg.text)
			}
		}
		cmds = append(cmds, m.snapshotCmd())
	case recordStartedMsg:
		m.pending = false
		if msg.err != nil {
			m.fail(msg.err)
		} else {
			m.recording = true
			m.setStatus("recording, ctrl+r to stop")
		}
		cmds = append(cmds, m.snapshotCmd())
	case recordStoppedMsg:
		m.pending = false
		m.recording = false
		m.applyResult(msg.result)
		cmds = append(cmds, m.snapshotCmd())
	case actionMsg:
		if msg.err != nil {
			m.fail(msg.err)
		} else if msg.status != "" {
			m.setStatus(msg.status)
		}
		cmds = append(cmds, m.snapshotCmd())
	case snapshotMsg:
		m.snap = msg.snap
		m.messages = msg.messages
		m.recording = msg.snap.Recording
		m.renderHistory()
	case hubMsg:
		if msg.kind != server.TypeConnection {
			cmds = append(cmds, m.snapshotCmd())
		}
		cmds = append(cmds, m.waitForEvent())
	case frameMsg:
		cmds = append(cmds, m.frameCmd())
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return tea.Quit, true
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return nil, true
		}
		m.input.SetValue("")
		m.err = nil
		m.status = "sending"
		return m.sendCmd(text), true
	case "ctrl+r":
		if m.pending {
			return nil, true
		}
		m.pending = true
		if m.recording {
			m.setStatus("transcribing")
			return m.stopRecordingCmd(), true
		}
		return m.startRecordingCmd(), true
	case "ctrl+p":
		return m.actionCmd("", m.ctrl.TogglePlayback), true
	case "ctrl+t":
		ctrl, topic := m.ctrl, nextTopic(m.snap.Topic)
		return m.actionCmd("topic: "+topic, func() error { return ctrl.ChangeTopic(topic) }), true
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return cmd, true
	}
	return nil, false
}

func (m *Model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft || m.clicker == nil {
		return nil
	}
	top := m.visualizerTop()
	if msg.Y < top || msg.Y >= top+visualizerRows {
		return nil
	}
	at, ok := m.clicker.Click(float64(msg.X))
	if !ok {
		return nil
	}
	ctrl := m.ctrl
	return m.actionCmd(fmt.Sprintf("seek %s", formatSeconds(at)), func() error { return ctrl.Seek(at) })
}

// applyResult puts transcribed speech in the input box for review.
func (m *Model) applyResult(res audio.Result) {
	switch res.Outcome {
	case audio.OutcomeTranscribed:
		if res.Text == "" {
			m.setStatus("no speech detected")
			return
		}
		m.input.SetValue(res.Text)
		m.input.CursorEnd()
		m.setStatus("transcribed, enter to send")
	case audio.OutcomeSilence:
		m.setStatus("no speech detected")
	case audio.OutcomePermissionDenied:
		m.fail(fmt.Errorf("microphone permission denied: %w", res.Err))
	case audio.OutcomeDeviceUnavailable:
		m.fail(fmt.Errorf("microphone unavailable: %w", res.Err))
	default:
		if res.Err != nil {
			m.fail(res.Err)
			return
		}
		m.setStatus("recording " + res.Outcome.String())
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.err = nil
}

func (m *Model) fail(err error) {
	m.err = err
	m.logger.Warn("chat window action failed", "error", err)
}

func (m Model) sendCmd(text string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return sentMsg{text: text, err: ctrl.Send(ctx, text)}
	}
}

func (m Model) startRecordingCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return recordStartedMsg{err: ctrl.StartRecording(ctx)}
	}
}

func (m Model) stopRecordingCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return recordStoppedMsg{result: ctrl.StopRecording(ctx)}
	}
}

func (m Model) actionCmd(status string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{status: status, err: fn()}
	}
}

func (m Model) snapshotCmd() tea.Cmd {
	ctrl, state := m.ctrl, m.state
	return func() tea.Msg {
		msg := snapshotMsg{snap: ctrl.Snapshot()}
		if state != nil {
			msg.messages = state.Messages()
		}
		return msg
	}
}

func (m Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		raw, ok := <-events
		if !ok {
			return nil
		}
		return hubMsg{kind: server.DecodeType(raw)}
	}
}

func (m Model) frameCmd() tea.Cmd {
	return tea.Tick(m.frame, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m Model) View() string {
	header := m.theme.header.Render(fmt.Sprintf("parlo · %s", m.snap.Topic))
	out := lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.history.View(),
		m.canvas.Render(),
		m.input.View(),
		m.renderStatus(),
	)
	return out
}

func (m Model) renderStatus() string {
	var b strings.Builder
	if m.busy() {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
	}
	if m.err != nil {
		b.WriteString(m.theme.errStatus.Render(m.err.Error()))
	} else {
		b.WriteString(m.theme.status.Render(m.status))
	}
	if m.snap.Turn != "" && m.snap.Turn != session.TurnIdle.String() {
		b.WriteString(m.theme.help.Render(" · " + m.snap.Turn))
	}
	if m.snap.Playback.Duration > 0 {
		b.WriteString(m.theme.help.Render(fmt.Sprintf(" · %s/%s",
			formatSeconds(m.snap.Playback.Position), formatSeconds(m.snap.Playback.Duration))))
	}
	b.WriteString(m.theme.help.Render("  enter send · ctrl+r record · ctrl+p play/pause · ctrl+t topic · esc quit"))
	return b.String()
}

func (m Model) busy() bool {
	switch m.snap.Turn {
	case session.TurnSending.String(), session.TurnStreaming.String(), session.TurnSynthesizing.String():
		return true
	}
	return m.snap.Transcribing || m.pending
}

// Layout rows: header, history, visualizer, input, status.
func (m Model) visualizerTop() int {
	return 1 + m.history.Height
}

func (m *Model) resize() {
	m.input.Width = max(20, m.width-4)
	m.history.Width = max(20, m.width)
	m.history.Height = max(3, m.height-visualizerRows-3)
	m.canvas.SetSize(m.width, visualizerRows)
}

func (m *Model) renderHistory() {
	width := max(20, m.history.Width-2)
	if len(m.messages) == 0 {
		m.history.SetContent(m.theme.help.Render("Say hello to your tutor to get started."))
		return
	}
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label, style := "Tutor", m.theme.assistant
		if msg.Role == conversation.RoleUser {
			label, style = "You", m.theme.user
		}
		b.WriteString(style.Render(label))
		b.WriteString("\n")
		b.WriteString(m.theme.body.Width(width).Render(msg.Content))
	}
	m.history.SetContent(b.String())
	m.history.GotoBottom()
}

func nextTopic(current string) string {
	topics := conversation.DefaultTopics
	for i, t := range topics {
		if t == current {
			return topics[(i+1)%len(topics)]
		}
	}
	return topics[0]
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// RecordingStopped wraps a result produced outside the window, such as the
// recording limit, for delivery through tea.Program.Send.
func RecordingStopped(res audio.Result) tea.Msg {
	return recordStoppedMsg{result: res}
}
