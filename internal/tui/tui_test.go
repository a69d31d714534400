package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sjawhar/parlo/internal/audio"
	"github.com/sjawhar/parlo/internal/conversation"
	"github.com/sjawhar/parlo/internal/session"
	"github.com/sjawhar/parlo/internal/visual"
)

type fakeController struct {
	mu        sync.Mutex
	sent      []string
	sendErr   error
	started   int
	result    audio.Result
	toggles   int
	seeks     []float64
	topics    []string
	snapshot  session.Snapshot
	recording bool
}

func (f *fakeController) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.sendErr
}

func (f *fakeController) StartRecording(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	f.recording = true
	return nil
}

func (f *fakeController) StopRecording(context.Context) audio.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = false
	return f.result
}

func (f *fakeController) TogglePlayback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return nil
}

func (f *fakeController) Seek(at float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, at)
	return nil
}

func (f *fakeController) ChangeTopic(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return nil
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.snapshot
	snap.Recording = f.recording
	return snap
}

type fakeClicker struct {
	mu    sync.Mutex
	xs    []float64
	at    float64
	valid bool
}

func (f *fakeClicker) Click(x float64) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.xs = append(f.xs, x)
	return f.at, f.valid
}

func newTestModel(t *testing.T, ctrl *fakeController, clicker *fakeClicker) Model {
	t.Helper()
	m := New(Options{
		Controller: ctrl,
		State:      conversation.NewState(conversation.DefaultProfile()),
		Clicker:    clicker,
		Canvas:     NewCanvas(0, visualizerRows),
	})
	return update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func press(t *testing.T, m Model, key tea.KeyType) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: key})
	return next.(Model), cmd
}

func TestEnterSendsAndClearsInput(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(t, ctrl, nil)
	m.input.SetValue("  hola  ")

	m, cmd := press(t, m, tea.KeyEnter)
	if cmd == nil {
		t.Fatal("expected send command")
	}
	if m.input.Value() != "" {
		t.Fatalf("expected input cleared, got %q", m.input.Value())
	}

	msg := cmd()
	sent, ok := msg.(sentMsg)
	if !ok {
		t.Fatalf("expected sentMsg, got %T", msg)
	}
	if sent.err != nil {
		t.Fatalf("unexpected send error: %v", sent.err)
	}
	if len(ctrl.sent) != 1 || ctrl.sent[0] != "hola" {
		t.Fatalf("expected trimmed message sent, got %v", ctrl.sent)
	}
}

func TestEnterWithEmptyInputDoesNothing(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(t, ctrl, nil)

	_, cmd := press(t, m, tea.KeyEnter)
	if cmd != nil {
		t.Fatal("expected no command for empty input")
	}
}

func TestRejectedSendRestoresInput(t *testing.T) {
	ctrl := &fakeController{sendErr: session.ErrTurnInFlight}
	m := newTestModel(t, ctrl, nil)
	m.input.SetValue("otra vez")

	m, cmd := press(t, m, tea.KeyEnter)
	m = update(t, m, cmd())

	if m.input.Value() != "otra vez" {
		t.Fatalf("expected input restored, got %q", m.input.Value())
	}
	if m.err == nil {
		t.Fatal("expected error shown")
	}
}

func TestRecordingToggleFillsInputWithTranscription(t *testing.T) {
	ctrl := &fakeController{result: audio.Result{Text: "buenos días", Outcome: audio.OutcomeTranscribed}}
	m := newTestModel(t, ctrl, nil)

	m, cmd := press(t, m, tea.KeyCtrlR)
	if cmd == nil {
		t.Fatal("expected start command")
	}
	m = update(t, m, cmd())
	if !m.recording {
		t.Fatal("expected recording after start")
	}
	if ctrl.started != 1 {
		t.Fatalf("expected one start, got %d", ctrl.started)
	}

	m, cmd = press(t, m, tea.KeyCtrlR)
	if cmd == nil {
		t.Fatal("expected stop command")
	}
	m = update(t, m, cmd())

	if m.recording {
		t.Fatal("expected recording cleared after stop")
	}
	if m.input.Value() != "buenos días" {
		t.Fatalf("expected transcription in input, got %q", m.input.Value())
	}
	if len(ctrl.sent) != 0 {
		t.Fatalf("expected transcription not sent automatically, got %v", ctrl.sent)
	}
}

func TestRecordingToggleIgnoredWhilePending(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(t, ctrl, nil)

	m, first := press(t, m, tea.KeyCtrlR)
	_, second := press(t, m, tea.KeyCtrlR)
	if first == nil {
		t.Fatal("expected start command")
	}
	if second != nil {
		t.Fatal("expected second toggle ignored while start is pending")
	}
}

func TestSilenceLeavesInputUntouched(t *testing.T) {
	ctrl := &fakeController{result: audio.Result{Outcome: audio.OutcomeSilence}}
	m := newTestModel(t, ctrl, nil)
	m.input.SetValue("draft")
	m.recording = true

	m, cmd := press(t, m, tea.KeyCtrlR)
	m = update(t, m, cmd())

	if m.input.Value() != "draft" {
		t.Fatalf("expected draft preserved, got %q", m.input.Value())
	}
	if m.status != "no speech detected" {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestTogglePlaybackKey(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(t, ctrl, nil)

	_, cmd := press(t, m, tea.KeyCtrlP)
	if _, ok := cmd().(actionMsg); !ok {
		t.Fatal("expected action message")
	}
	if ctrl.toggles != 1 {
		t.Fatalf("expected one toggle, got %d", ctrl.toggles)
	}
}

func TestTopicKeyCyclesTopics(t *testing.T) {
	ctrl := &fakeController{snapshot: session.Snapshot{Topic: conversation.DefaultTopics[0]}}
	m := newTestModel(t, ctrl, nil)
	m = update(t, m, m.snapshotCmd()())

	_, cmd := press(t, m, tea.KeyCtrlT)
	cmd()
	if len(ctrl.topics) != 1 || ctrl.topics[0] != conversation.DefaultTopics[1] {
		t.Fatalf("expected next topic, got %v", ctrl.topics)
	}
}

func TestClickOnVisualizerSeeks(t *testing.T) {
	ctrl := &fakeController{}
	clicker := &fakeClicker{at: 2.5, valid: true}
	m := newTestModel(t, ctrl, clicker)

	next, cmd := m.Update(tea.MouseMsg{
		X:      40,
		Y:      m.visualizerTop() + 1,
		Action: tea.MouseActionPress,
		Button: tea.MouseButtonLeft,
	})
	_ = next
	if cmd == nil {
		t.Fatal("expected seek command")
	}
	cmd()

	if len(clicker.xs) != 1 || clicker.xs[0] != 40 {
		t.Fatalf("expected click at x=40, got %v", clicker.xs)
	}
	if len(ctrl.seeks) != 1 || ctrl.seeks[0] != 2.5 {
		t.Fatalf("expected seek to 2.5, got %v", ctrl.seeks)
	}
}

func TestClickOutsideVisualizerIgnored(t *testing.T) {
	ctrl := &fakeController{}
	clicker := &fakeClicker{at: 1, valid: true}
	m := newTestModel(t, ctrl, clicker)

	m.Update(tea.MouseMsg{X: 10, Y: 2, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if len(clicker.xs) != 0 {
		t.Fatalf("expected no click mapping, got %v", clicker.xs)
	}
}

func TestSnapshotRendersHistory(t *testing.T) {
	ctrl := &fakeController{}
	state := conversation.NewState(conversation.DefaultProfile())
	state.Append(conversation.RoleUser, "Hola")
	state.Append(conversation.RoleAssistant, "Hello! How are you?")

	m := New(Options{Controller: ctrl, State: state})
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m = update(t, m, m.snapshotCmd()())

	view := m.history.View()
	for _, want := range []string{"You", "Hola", "Tutor", "Hello! How are you?"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in history, got:\n%s", want, view)
		}
	}
}

func TestHubEventTriggersRefresh(t *testing.T) {
	events := make(chan []byte, 1)
	events <- []byte(`{"type":"message_updated","version":1}`)

	m := New(Options{Controller: &fakeController{}, Events: events})
	msg := m.waitForEvent()()
	hub, ok := msg.(hubMsg)
	if !ok {
		t.Fatalf("expected hubMsg, got %T", msg)
	}
	if hub.kind != "message_updated" {
		t.Fatalf("unexpected kind %q", hub.kind)
	}

	close(events)
	if got := m.waitForEvent()(); got != nil {
		t.Fatalf("expected nil after close, got %T", got)
	}
}

func TestCanvasRendersBars(t *testing.T) {
	c := NewCanvas(4, 2)
	c.Draw(visual.Frame{Levels: []byte{255, 0}, Mode: visual.ModeLive})

	rows := strings.Split(c.Render(), "\n")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if n := strings.Count(row, "█"); n != 2 {
			t.Fatalf("row %d: expected 2 full blocks, got %d in %q", i, n, row)
		}
	}
	if c.Mode() != visual.ModeLive {
		t.Fatalf("expected live mode, got %v", c.Mode())
	}
}

func TestCanvasCopiesLevels(t *testing.T) {
	c := NewCanvas(2, 1)
	levels := []byte{255, 255}
	c.Draw(visual.Frame{Levels: levels})
	levels[0], levels[1] = 0, 0

	if n := strings.Count(c.Render(), "█"); n != 2 {
		t.Fatalf("expected stored frame unaffected by caller, got %d blocks", n)
	}
}

func TestCanvasDrawsMarker(t *testing.T) {
	c := NewCanvas(4, 2)
	c.Draw(visual.Frame{Levels: []byte{0, 0}, Marker: &visual.Rect{X: 1, W: 2, H: 2}, Mode: visual.ModePlayback})

	if n := strings.Count(c.Render(), "┃"); n != 2 {
		t.Fatalf("expected marker on both rows, got %d", n)
	}
}

func TestCanvasGeometryFollowsSize(t *testing.T) {
	c := NewCanvas(0, 1)
	c.SetSize(120, 4)
	g := c.Geometry()
	if g.Width != 120 || g.Height != 4 || g.DPR != 1 {
		t.Fatalf("unexpected geometry %+v", g)
	}
}

func TestFormatSeconds(t *testing.T) {
	for in, want := range map[float64]string{0: "0:00", 4.4: "0:04", 65: "1:05"} {
		if got := formatSeconds(in); got != want {
			t.Fatalf("formatSeconds(%v) = %q, want %q", in, got, want)
		}
	}
}
