package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/audiovideoron/distillyzer/internal/adapters/driving/tui/components/input"
	"github.com/audiovideoron/distillyzer/internal/adapters/driving/tui/keymap"
	"github.com/audiovideoron/distillyzer/internal/adapters/driving/tui/messages"
	"github.com/audiovideoron/distillyzer/internal/adapters/driving/tui/styles"
	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driving"
)

// chrome is the number of rows used by the header, input and help line.
const chrome = 6

// exchange is one rendered entry of the transcript.
type exchange struct {
	question string
	answer   *domain.Answer
	err      error
}

// App is the chat application following the Elm architecture.
// It implements tea.Model for use with Bubbletea.
type App struct {
	ports  *Ports
	ctx    context.Context
	opts   driving.QueryOptions
	styles *styles.Styles
	keymap *keymap.KeyMap
	help   help.Model

	input    *input.QuestionInput
	viewport viewport.Model
	spinner  spinner.Model

	// history is only touched by the pending chat command while waiting is set.
	history    *domain.History
	transcript []exchange
	waiting    bool

	width  int
	height int
	ready  bool
}

// Ensure App implements tea.Model.
var _ tea.Model = (*App)(nil)

// NewApp creates a chat application with the given ports.
func NewApp(ports *Ports) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}

	s := styles.DefaultStyles()
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = s.Subtitle

	return &App{
		ports:    ports,
		ctx:      context.Background(),
		styles:   s,
		keymap:   keymap.DefaultKeyMap(),
		help:     help.New(),
		input:    input.NewQuestionInput(s),
		viewport: viewport.New(80, 18),
		spinner:  sp,
		history:  domain.NewHistory(),
	}, nil
}

// WithContext sets the context chat calls run under.
func (a *App) WithContext(ctx context.Context) *App {
	a.ctx = ctx
	return a
}

// WithOptions sets the retrieval options used for every question.
func (a *App) WithOptions(opts driving.QueryOptions) *App {
	a.opts = opts
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		tea.SetWindowTitle("distillyzer chat"),
		a.input.Init(),
	)
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.SetDimensions(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case messages.QuestionSubmitted:
		return a, a.ask(msg.Question)

	case messages.AnswerReceived:
		a.waiting = false
		a.transcript = append(a.transcript, exchange{question: msg.Question, answer: msg.Answer, err: msg.Err})
		a.refresh()
		return a, a.input.Focus()

	case messages.ConversationCleared:
		a.history.Reset()
		a.transcript = nil
		a.refresh()
		return a, nil

	case spinner.TickMsg:
		if !a.waiting {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch {
	case keymap.Matches(key, a.keymap.Quit):
		return a, tea.Quit

	case keymap.Matches(key, a.keymap.ScrollUp):
		a.viewport.HalfPageUp()
		return a, nil

	case keymap.Matches(key, a.keymap.ScrollDown):
		a.viewport.HalfPageDown()
		return a, nil

	case a.waiting:
		// Input is frozen until the pending answer arrives.
		return a, nil

	case keymap.Matches(key, a.keymap.Clear):
		return a, func() tea.Msg { return messages.ConversationCleared{} }

	case keymap.Matches(key, a.keymap.Send):
		question := strings.TrimSpace(a.input.Value())
		if question == "" {
			return a, nil
		}
		a.input.Reset()
		return a, func() tea.Msg { return messages.QuestionSubmitted{Question: question} }
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// ask starts a chat turn. The service appends to history on success.
func (a *App) ask(question string) tea.Cmd {
	a.waiting = true
	a.input.Blur()
	a.refresh()

	ctx, query, history, opts := a.ctx, a.ports.Query, a.history, a.opts
	chat := func() tea.Msg {
		ans, err := query.Chat(ctx, history, question, opts)
		return messages.AnswerReceived{Question: question, Answer: ans, Err: err}
	}
	return tea.Batch(a.spinner.Tick, chat)
}

// refresh re-renders the transcript into the viewport and scrolls to the end.
func (a *App) refresh() {
	a.viewport.SetContent(a.renderTranscript())
	a.viewport.GotoBottom()
}

func (a *App) renderTranscript() string {
	if len(a.transcript) == 0 && !a.waiting {
		return a.styles.Muted.Render("Ask anything about what you've harvested.")
	}

	var b strings.Builder
	for _, ex := range a.transcript {
		b.WriteString(a.styles.Question.Render(">") + " " + a.styles.Normal.Render(ex.question))
		b.WriteString("\n")
		switch {
		case ex.err != nil:
			b.WriteString(a.styles.Error.Render("Error: " + ex.err.Error()))
			b.WriteString("\n")
		case ex.answer != nil && ex.answer.NoSources:
			b.WriteString(a.styles.Warning.PaddingLeft(2).Width(max(a.width-4, 20)).Render(ex.answer.Text))
			b.WriteString("\n")
		case ex.answer != nil:
			b.WriteString(a.styles.Answer.Width(max(a.width-4, 20)).Render(ex.answer.Text))
			b.WriteString("\n")
			for i, c := range ex.answer.Citations {
				b.WriteString(a.styles.Citation.Render(FormatCitation(i+1, c)))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}
	if a.waiting {
		b.WriteString(a.styles.Muted.Render("Thinking..."))
	}
	return b.String()
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "Initialising..."
	}

	header := a.styles.Title.Render("distillyzer") + " " +
		a.styles.Success.Render(fmt.Sprintf("%d turns remembered", a.history.Len()))

	prompt := a.input.View()
	if a.waiting {
		prompt = a.spinner.View() + " " + a.styles.Muted.Render("waiting for answer")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		a.viewport.View(),
		prompt,
		a.styles.Help.Render(a.help.ShortHelpView(a.keymap.ShortHelp())),
	)
}

// Run starts the chat UI on the terminal.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(a.ctx))
	_, err := p.Run()
	return err
}

// SetDimensions sizes the transcript viewport to the terminal.
func (a *App) SetDimensions(width, height int) {
	a.width = width
	a.height = height
	a.ready = true
	a.viewport.Width = width
	a.viewport.Height = max(height-chrome, 3)
	a.input.SetWidth(width)
	a.refresh()
}

// History returns the conversation memory.
func (a *App) History() *domain.History {
	return a.history
}

// Waiting reports whether an answer is pending.
func (a *App) Waiting() bool {
	return a.waiting
}

// Ready reports whether the terminal size is known.
func (a *App) Ready() bool {
	return a.ready
}

// FormatCitation renders a numbered citation line.
func FormatCitation(n int, c domain.Citation) string {
	line := fmt.Sprintf("[%d] %s", n, c.Title)
	if c.Locator != "" {
		line += " @ " + c.Locator
	}
	if c.URL != "" {
		line += " " + c.URL
	}
	return line + fmt.Sprintf(" (%.2f)", c.Similarity)
}
