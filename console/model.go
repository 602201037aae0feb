// MIT License
//
// Copyright (c) 2025 DaggerTech
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package console is the terminal user interface: a scrolling log fed by
// the event hub and an entry line whose submissions become outgoing
// commands. All state here is owned by the bubbletea event loop.
package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/markoxley/unfezant/hub"
	"github.com/markoxley/unfezant/msg"
)

// chromeHeight is the number of rows used by the title, entry and status lines.
const chromeHeight = 3

// Options configures a Model.
type Options struct {
	Title      string
	Scrollback int                           // Lines kept in the log; 0 keeps everything
	OnSend     func(text string) hub.Outcome // Send callback for entered payloads
	Stats      func() string                 // Text shown by /stats
	Styles     *Styles
}

// Model is the bubbletea model of the console.
type Model struct {
	opts     Options
	styles   Styles
	loop     *Loop
	log      viewport.Model
	input    textinput.Model
	lines    []string
	content  strings.Builder // lines joined by newlines
	stale    bool            // content not yet handed to the log view
	follow   bool            // log view was at the bottom before the pending appends
	status   string
	ready    bool
	quitting bool
}

// New creates the console model draining events.
func New(events *hub.Hub[msg.Message], opts Options) *Model {
	if opts.Title == "" {
		opts.Title = "mqtt console"
	}
	styles := DefaultStyles()
	if opts.Styles != nil {
		styles = *opts.Styles
	}
	in := textinput.New()
	in.Placeholder = "message to publish, or /help"
	in.Prompt = "> "
	in.Focus()

	m := &Model{
		opts:   opts,
		styles: styles,
		log:    viewport.New(80, 20),
		input:  in,
	}
	m.loop = NewLoop(events, m, styles.Render())
	return m
}

// Init starts the consumer loop and the cursor blink.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loop.Wait(), textinput.Blink)
}

// AppendLog adds one entry to the log. The log view picks it up on the next
// render and follows the tail when it was already at the bottom.
func (m *Model) AppendLog(text string) {
	if !m.stale {
		m.follow = m.log.AtBottom()
		m.stale = true
	}
	m.lines = append(m.lines, text)
	if n := m.opts.Scrollback; n > 0 && len(m.lines) > n {
		m.lines = m.lines[len(m.lines)-n:]
		m.content.Reset()
		for i, line := range m.lines {
			if i > 0 {
				m.content.WriteByte('\n')
			}
			m.content.WriteString(line)
		}
		return
	}
	if len(m.lines) > 1 {
		m.content.WriteByte('\n')
	}
	m.content.WriteString(text)
}

// syncLog hands pending entries to the log view.
func (m *Model) syncLog() {
	if !m.stale {
		return
	}
	m.log.SetContent(m.content.String())
	if m.follow {
		m.log.GotoBottom()
	}
	m.stale = false
}

// Lines returns the log entries currently held.
func (m *Model) Lines() []string {
	return m.lines
}

// Status returns the text of the status line.
func (m *Model) Status() string {
	return m.status
}

// Update implements tea.Model.
func (m *Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, ok := m.loop.Handle(message); ok {
		if m.loop.Done() {
			m.status = "connection closed"
		}
		return m, cmd
	}

	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.resize(message.Width, message.Height)
		return m, nil
	case tea.KeyMsg:
		switch message.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			m.syncLog()
			var cmd tea.Cmd
			m.log, cmd = m.log.Update(message)
			return m, cmd
		}
	case tea.MouseMsg:
		m.syncLog()
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(message)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(message)
	return m, cmd
}

func (m *Model) resize(width, height int) {
	m.log.Width = width
	m.log.Height = max(1, height-chromeHeight)
	m.input.Width = max(1, width-len(m.input.Prompt)-1)
	m.ready = true
	m.log.GotoBottom()
}

// submit handles the entry line: console commands run here, anything else
// goes to the send callback.
func (m *Model) submit() tea.Cmd {
	line := m.input.Value()
	m.input.Reset()
	if strings.TrimSpace(line) == "" {
		return nil
	}

	name, payload, isCommand := parseEntry(line)
	if !isCommand {
		m.send(payload)
		return nil
	}

	switch name {
	case cmdQuit:
		m.quitting = true
		return tea.Quit
	case cmdClear:
		m.lines = nil
		m.content.Reset()
		m.stale = false
		m.log.SetContent("")
		m.status = ""
	case cmdHelp:
		m.AppendLog(m.styles.Status.Render(helpText))
	case cmdStats:
		if m.opts.Stats != nil {
			m.status = m.opts.Stats()
		}
	default:
		if s, ok := suggest(name); ok {
			m.status = fmt.Sprintf("unknown command %s, did you mean %s?", name, s)
		} else {
			m.status = fmt.Sprintf("unknown command %s, try /help", name)
		}
	}
	return nil
}

func (m *Model) send(payload string) {
	if m.opts.OnSend == nil {
		m.status = "sending is not available"
		return
	}
	switch m.opts.OnSend(payload) {
	case hub.Enqueued:
		m.status = ""
	case hub.Full:
		m.status = "command queue full, message dropped"
	case hub.Closed:
		m.status = "sending has stopped"
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "starting..."
	}
	m.syncLog()
	title := m.styles.Title.Width(m.log.Width).Render(m.opts.Title)
	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.log.View(),
		m.input.View(),
		m.styles.Status.Render(m.status),
	)
}
