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

package console

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/markoxley/unfezant/msg"
)

// PlainText renders a message without styling.
func PlainText(m msg.Message) string {
	switch m.Kind {
	case msg.DecodedPayloadKind:
		return fmt.Sprintf("received on %s:\n%s", m.Topic, m.Text)
	case msg.SendFailureKind:
		return "error: " + m.Text
	default:
		return m.Text
	}
}

// Styles holds the lipgloss styles used by the console.
type Styles struct {
	Title   lipgloss.Style
	Raw     lipgloss.Style
	Label   lipgloss.Style
	Payload lipgloss.Style
	Error   lipgloss.Style
	Status  lipgloss.Style
	Stamp   lipgloss.Style
}

// DefaultStyles returns the console's colour scheme.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1),
		Raw:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Label:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Payload: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		Status:  lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244")),
		Stamp:   lipgloss.NewStyle().Faint(true),
	}
}

// Render returns a Renderer applying s.
func (s Styles) Render() Renderer {
	return func(m msg.Message) string {
		stamp := s.Stamp.Render(m.At.Format("15:04:05"))
		switch m.Kind {
		case msg.DecodedPayloadKind:
			return fmt.Sprintf("%s %s\n%s", stamp, s.Label.Render("received on "+m.Topic+":"), s.Payload.Render(m.Text))
		case msg.SendFailureKind:
			return fmt.Sprintf("%s %s", stamp, s.Error.Render("error: "+m.Text))
		default:
			return fmt.Sprintf("%s %s", stamp, s.Raw.Render(m.Text))
		}
	}
}
