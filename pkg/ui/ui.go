// Package ui is a bubbletea front end for a session.Session.
//
// The model never owns conversation state. It forwards keystrokes to
// Session.SetDraft, submit and clear intents to Submit and Clear, and redraws
// from the snapshots it receives through Session.Subscribe.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/ragchat/pkg/conversation"
	"github.com/go-go-golems/ragchat/pkg/session"
	"github.com/muesli/reflow/wordwrap"
	"github.com/rs/zerolog/log"
)

const defaultTitle = "RAG CHAT"

// HealthCheck probes the backend, see transport.HTTPTransport.Health.
type HealthCheck func(ctx context.Context) error

type stateMsg session.State

type sessionClosedMsg struct{}

type healthMsg struct {
	err error
}

type model struct {
	ctx     context.Context
	session *session.Session
	updates <-chan session.State
	// unsubscribe ends updates, it is safe to call more than once
	unsubscribe func()

	state session.State
	// history length, generation and pending of the last rendered transcript
	renderedLen        int
	renderedGeneration uint64
	renderedPending    bool

	viewport viewport.Model
	textArea textarea.Model
	spinner  spinner.Model
	help     help.Model

	keyMap KeyMap
	style  *Style

	glamourStyle string
	renderer     *glamour.TermRenderer

	title       string
	healthCheck HealthCheck
	health      string

	width  int
	height int
}

type Option func(*model)

func WithTitle(title string) Option {
	return func(m *model) {
		m.title = title
	}
}

func WithHealthCheck(h HealthCheck) Option {
	return func(m *model) {
		m.healthCheck = h
	}
}

// WithGlamourStyle selects the markdown style for assistant replies
// ("auto", "dark", "light", "notty").
func WithGlamourStyle(style string) Option {
	return func(m *model) {
		m.glamourStyle = style
	}
}

func newModel(ctx context.Context, s *session.Session, options ...Option) model {
	if ctx == nil {
		ctx = context.Background()
	}
	ret := model{
		ctx:          ctx,
		session:      s,
		style:        DefaultStyles(),
		keyMap:       DefaultKeyMap,
		viewport:     viewport.New(0, 0),
		help:         help.New(),
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot)),
		glamourStyle: "auto",
		title:        defaultTitle,
	}
	for _, o := range options {
		o(&ret)
	}

	ret.updates, ret.unsubscribe = s.Subscribe()
	ret.state = s.State()

	ret.textArea = textarea.New()
	ret.textArea.Placeholder = "Ask something about your documents..."
	ret.textArea.ShowLineNumbers = false
	ret.textArea.SetHeight(3)
	ret.textArea.SetValue(ret.state.Draft)
	ret.textArea.Focus()

	ret.renderer = ret.newRenderer(80)
	ret.updateKeyBindings()
	ret.refreshTranscript()

	return ret
}

func (m model) newRenderer(width int) *glamour.TermRenderer {
	styleOption := glamour.WithAutoStyle()
	if m.glamourStyle != "" && m.glamourStyle != "auto" {
		styleOption = glamour.WithStylePath(m.glamourStyle)
	}
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(styleOption, glamour.WithWordWrap(width))
	if err != nil {
		log.Warn().Err(err).Msg("could not create markdown renderer, falling back to plain text")
		return nil
	}
	return r
}

func (m model) waitForState() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		st, ok := <-updates
		if !ok {
			return sessionClosedMsg{}
		}
		return stateMsg(st)
	}
}

func (m model) checkHealth() tea.Cmd {
	if m.healthCheck == nil {
		return nil
	}
	ctx := m.ctx
	h := m.healthCheck
	return func() tea.Msg {
		return healthMsg{err: h(ctx)}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitForState(), m.checkHealth())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			m.unsubscribe()
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.SubmitMessage):
			m.submit()

		case key.Matches(msg, m.keyMap.CancelCompletion):
			m.session.Cancel()

		case key.Matches(msg, m.keyMap.ClearSession):
			m.session.Clear()

		case key.Matches(msg, m.keyMap.ScrollUp):
			m.viewport.ViewUp()

		case key.Matches(msg, m.keyMap.ScrollDown):
			m.viewport.ViewDown()

		case key.Matches(msg, m.keyMap.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.recomputeSize()

		default:
			m.textArea, cmd = m.textArea.Update(msg)
			cmds = append(cmds, cmd)
			m.session.SetDraft(m.textArea.Value())
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.renderer = m.newRenderer(m.width - m.style.AssistantMessage.GetHorizontalFrameSize())
		m.recomputeSize()

	case stateMsg:
		wasPending := m.state.Pending
		m.state = session.State(msg)
		m.updateKeyBindings()
		m.refreshTranscript()
		m.recomputeSize()
		if m.state.Pending && !wasPending {
			cmds = append(cmds, m.spinner.Tick)
		}
		cmds = append(cmds, m.waitForState())

	case sessionClosedMsg:
		return m, tea.Quit

	case healthMsg:
		if msg.err != nil {
			m.health = "backend unreachable"
			log.Debug().Err(msg.err).Msg("backend health check failed")
		} else {
			m.health = "backend ok"
		}

	case spinner.TickMsg:
		if m.state.Pending {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
			m.viewport.SetContent(m.transcriptView())
			m.viewport.GotoBottom()
		}
		return m, tea.Batch(cmds...)

	default:
	}

	// keys belong to the textarea, the viewport only gets mouse and resize events
	if _, ok := msg.(tea.KeyMsg); !ok {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// submit forwards the textarea content. The textarea is the source of truth
// for the draft, snapshots can lag behind keystrokes.
func (m *model) submit() {
	text := m.textArea.Value()
	if m.state.Pending || strings.TrimSpace(text) == "" {
		return
	}
	if m.session.Submit(m.ctx, text) == nil {
		return
	}
	m.textArea.Reset()
}

func (m *model) updateKeyBindings() {
	m.keyMap.SubmitMessage.SetEnabled(!m.state.Pending)
	m.keyMap.CancelCompletion.SetEnabled(m.state.Pending)
	m.keyMap.ClearSession.SetEnabled(len(m.state.History) > 0 || len(m.state.Sources) > 0)
}

func (m *model) refreshTranscript() {
	if m.renderedLen == len(m.state.History) &&
		m.renderedGeneration == m.state.Generation &&
		m.renderedPending == m.state.Pending &&
		m.viewport.TotalLineCount() > 0 {
		return
	}
	m.renderedLen = len(m.state.History)
	m.renderedGeneration = m.state.Generation
	m.renderedPending = m.state.Pending

	m.viewport.SetContent(m.transcriptView())
	m.viewport.GotoBottom()
}

func (m *model) recomputeSize() {
	headerHeight := lipgloss.Height(m.headerView())
	inputHeight := lipgloss.Height(m.inputView())
	helpHeight := lipgloss.Height(m.help.View(m.keyMap))

	newHeight := m.height - headerHeight - inputHeight - helpHeight
	if newHeight < 0 {
		newHeight = 0
	}
	m.viewport.Width = m.width
	m.viewport.Height = newHeight
	m.viewport.YPosition = headerHeight

	w := m.width - m.style.FocusedInput.GetHorizontalFrameSize()
	if w > 0 {
		m.textArea.SetWidth(w)
	}
	m.help.Width = m.width

	m.viewport.SetContent(m.transcriptView())
	m.viewport.GotoBottom()
}

func (m model) headerView() string {
	header := m.title
	if m.health != "" {
		header += " · " + m.health
	}
	return m.style.Header.Render(header)
}

func (m model) messageWidth(style lipgloss.Style) int {
	w := m.width - style.GetHorizontalFrameSize()
	if w < 20 {
		w = 20
	}
	return w
}

func (m model) renderMessage(msg *conversation.Message) string {
	label := m.style.RoleLabel.Render(fmt.Sprintf("[%s]", msg.Role))

	if msg.Role == conversation.RoleAssistant {
		width := m.messageWidth(m.style.AssistantMessage)
		body := wordwrap.String(msg.Content, width)
		if m.renderer != nil {
			if rendered, err := m.renderer.Render(msg.Content); err == nil {
				body = strings.Trim(rendered, "\n")
			}
		}
		return m.style.AssistantMessage.Render(label + "\n" + body)
	}

	width := m.messageWidth(m.style.UserMessage)
	return m.style.UserMessage.Render(label + "\n" + wordwrap.String(msg.Content, width))
}

func (m model) sourcesView() string {
	if !m.state.HasSources() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Sources:")
	for _, s := range m.state.Sources {
		sb.WriteString("\n  - ")
		sb.WriteString(s)
	}
	return m.style.Sources.Render(sb.String())
}

func (m model) transcriptView() string {
	parts := make([]string, 0, len(m.state.History)+2)
	for _, msg := range m.state.History {
		parts = append(parts, m.renderMessage(msg))
	}
	if sources := m.sourcesView(); sources != "" {
		parts = append(parts, sources)
	}
	if m.state.Pending {
		parts = append(parts, m.style.Status.Render(m.spinner.View()+" Thinking..."))
	}
	return strings.Join(parts, "\n")
}

func (m model) inputView() string {
	v := m.textArea.View()
	if m.state.Pending {
		return m.style.DisabledInput.Render(v)
	}
	return m.style.FocusedInput.Render(v)
}

func (m model) View() string {
	return m.headerView() + "\n" +
		m.viewport.View() + "\n" +
		m.inputView() + "\n" +
		m.help.View(m.keyMap)
}
