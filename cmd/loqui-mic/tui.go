package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	liveStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// serverEventMsg is one server frame delivered into the bubbletea loop.
type serverEventMsg serverEvent

// disconnectedMsg reports that the server connection dropped.
type disconnectedMsg struct{ err error }

// playbackDoneMsg reports that queued speech finished playing.
type playbackDoneMsg struct{}

// playbackErrMsg reports that a speech unit could not be played.
type playbackErrMsg struct{ err error }

type transcriptLine struct {
	speaker string
	text    string
}

type model struct {
	client  *chatClient
	speaker audioClient

	input    textinput.Model
	viewport viewport.Model
	ready    bool

	transcript []transcriptLine
	// liveTranscript is the stitched utterance still being revised.
	liveTranscript string
	// response is the assistant reply currently streaming in.
	response  string
	streaming bool

	micOn    bool
	speaking bool
	status   string
	err      error

	width  int
	height int

	captureCancel context.CancelFunc
}

func newModel(client *chatClient, speaker audioClient) model {
	input := textinput.New()
	input.Placeholder = "Type a prompt, or tab to talk"
	input.Focus()

	return model{
		client:  client,
		speaker: speaker,
		input:   input,
		status:  "connected",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listenServer())
}

func (m model) listenServer() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.client.events
		if !ok {
			return disconnectedMsg{err: m.client.readErr}
		}
		return serverEventMsg(event)
	}
}

// playRemote downloads a referenced speech file and plays it, then waits
// for the speaker to drain like inline samples do.
func (m model) playRemote(filename string) tea.Cmd {
	client := m.client
	speaker := m.speaker
	return func() tea.Msg {
		samples, err := client.fetchAudio(context.Background(), filename)
		if err != nil {
			return playbackErrMsg{err: err}
		}
		if err := speaker.Play(samples); err != nil {
			return playbackErrMsg{err: err}
		}
		speaker.AwaitDrain(context.Background())
		return playbackDoneMsg{}
	}
}

// awaitPlayback waits for the speaker to drain so the server can be told
// the client finished playing.
func (m model) awaitPlayback() tea.Cmd {
	speaker := m.speaker
	return func() tea.Msg {
		if speaker != nil {
			speaker.AwaitDrain(context.Background())
		}
		return playbackDoneMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.stopCapture()
			return m, tea.Quit
		case tea.KeyTab:
			cmds = append(cmds, m.toggleMic())
			return m, tea.Batch(cmds...)
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				if err := m.client.sendTextPrompt(text); err != nil {
					m.err = err
				}
				m.input.Reset()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		contentHeight := m.height - 4
		if contentHeight < 1 {
			contentHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, contentHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = contentHeight
		}
		m.refreshViewport()

	case serverEventMsg:
		cmds = append(cmds, m.handleServerEvent(serverEvent(msg))...)
		cmds = append(cmds, m.listenServer())

	case playbackDoneMsg:
		m.speaking = false
		m.status = "listening"
		if err := m.client.sendFinishedSpeaking(); err != nil {
			m.err = err
		}

	case playbackErrMsg:
		m.speaking = false
		m.err = msg.err
		// The server still needs the playback acknowledgement.
		if err := m.client.sendFinishedSpeaking(); err != nil {
			m.err = err
		}

	case disconnectedMsg:
		m.stopCapture()
		if msg.err != nil {
			m.err = fmt.Errorf("connection lost: %w", msg.err)
		}
		m.status = "disconnected"
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) handleServerEvent(event serverEvent) []tea.Cmd {
	var cmds []tea.Cmd

	switch event.Type {
	case "configuration":
		m.status = "configured"

	case "user_speech_transcription":
		m.liveTranscript = event.Text

	case "manual_prompt":
		m.transcript = append(m.transcript, transcriptLine{speaker: "you", text: event.Text})
		m.liveTranscript = ""

	case "prompt_discarded":
		m.status = "prompt not addressed to the assistant"
		m.liveTranscript = ""

	case "token":
		if event.Token == nil {
			if m.response != "" {
				m.transcript = append(m.transcript, transcriptLine{speaker: "assistant", text: m.response})
			}
			m.response = ""
			m.streaming = false
		} else {
			if !m.streaming {
				// A response starting means the pending utterance was
				// consumed as the prompt.
				if m.liveTranscript != "" {
					m.transcript = append(m.transcript, transcriptLine{speaker: "you", text: m.liveTranscript})
					m.liveTranscript = ""
				}
				m.streaming = true
			}
			m.response += *event.Token
		}

	case "assistant_speech_start":
		m.speaking = true
		m.status = "speaking"

	case "speech_samples":
		if m.speaker != nil {
			samples, err := base64.StdEncoding.DecodeString(event.Samples)
			if err == nil {
				if err := m.speaker.Play(samples); err != nil {
					m.err = err
				}
				cmds = append(cmds, m.awaitPlayback())
			}
		}

	case "speech_id":
		if m.speaker != nil {
			cmds = append(cmds, m.playRemote(event.Filename))
		}
	}

	m.refreshViewport()
	return cmds
}

func (m *model) toggleMic() tea.Cmd {
	if m.speaker == nil {
		m.status = "audio disabled"
		return nil
	}

	if m.micOn {
		m.stopCapture()
		m.status = "mic off"
		if err := m.client.sendSpeechEnd(); err != nil {
			m.err = err
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.captureCancel = cancel
	client := m.client
	if err := m.speaker.StartCapture(ctx, func(chunk []byte) {
		client.sendSamples(chunk)
	}); err != nil {
		cancel()
		m.captureCancel = nil
		m.err = err
		return nil
	}
	m.micOn = true
	m.status = "listening"
	return nil
}

func (m *model) stopCapture() {
	if m.captureCancel != nil {
		m.captureCancel()
		m.captureCancel = nil
	}
	if m.micOn && m.speaker != nil {
		m.speaker.StopCapture()
	}
	m.micOn = false
}

func (m *model) refreshViewport() {
	if !m.ready {
		return
	}

	width := m.viewport.Width
	if width < 10 {
		width = 10
	}

	var lines []string
	for _, line := range m.transcript {
		style := userStyle
		if line.speaker == "assistant" {
			style = assistantStyle
		}
		lines = append(lines, style.Render(line.speaker+": ")+wordwrap.String(line.text, width-4))
	}
	if m.streaming && m.response != "" {
		lines = append(lines, assistantStyle.Render("assistant: ")+wordwrap.String(m.response, width-4))
	}
	if m.liveTranscript != "" {
		lines = append(lines, liveStyle.Render("you (speaking): "+wordwrap.String(m.liveTranscript, width-8)))
	}

	m.viewport.SetContent(strings.Join(lines, "\n\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "connecting..."
	}

	mic := "mic off"
	if m.micOn {
		mic = "mic ON"
	}
	status := statusStyle.Render(fmt.Sprintf("%s | %s", mic, m.status))
	if m.err != nil {
		status = errorStyle.Render(m.err.Error())
	}

	help := helpStyle.Render("enter=send  tab=mic  esc=quit")

	return fmt.Sprintf("%s\n%s\n%s %s", m.viewport.View(), m.input.View(), status, help)
}
