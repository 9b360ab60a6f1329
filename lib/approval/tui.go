// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// promptKeyMap defines the key bindings for the approve/deny prompt.
type promptKeyMap struct {
	Approve    key.Binding
	ApproveAll key.Binding
	Deny       key.Binding
}

var defaultPromptKeyMap = promptKeyMap{
	Approve: key.NewBinding(
		key.WithKeys("y", "Y", "enter"),
		key.WithHelp("y", "approve"),
	),
	ApproveAll: key.NewBinding(
		key.WithKeys("a", "A"),
		key.WithHelp("a", "approve for session"),
	),
	Deny: key.NewBinding(
		key.WithKeys("n", "N", "esc", "ctrl+c", "q"),
		key.WithHelp("n", "deny"),
	),
}

// maxInlineKeys bounds how many key names render inline in the prompt
// body before the list is shown in a scrollable viewport instead.
const maxInlineKeys = 6

// keyListViewportHeight is the number of visible lines when the
// requested key set needs scrolling.
const keyListViewportHeight = 5

// theme is the interactive broker's color palette, trimmed to what a
// single confirm prompt needs.
type theme struct {
	normalText   lipgloss.Color
	faintText    lipgloss.Color
	borderColor  lipgloss.Color
	headerColor  lipgloss.Color
	approveColor lipgloss.Color
	denyColor    lipgloss.Color
}

var defaultTheme = theme{
	normalText:   lipgloss.Color("252"),
	faintText:    lipgloss.Color("245"),
	borderColor:  lipgloss.Color("240"),
	headerColor:  lipgloss.Color("255"),
	approveColor: lipgloss.Color("114"),
	denyColor:    lipgloss.Color("196"),
}

// confirmModel is a bubbletea model presenting a single approve/deny
// prompt and exiting once the user answers. A long key set scrolls in
// a bubbles/viewport rather than stretching the prompt box past the
// terminal height.
type confirmModel struct {
	request  Request
	theme    theme
	keys     promptKeyMap
	decision Decision
	done     bool

	keyList    viewport.Model
	useKeyList bool
}

func newConfirmModel(request Request) confirmModel {
	m := confirmModel{request: request, theme: defaultTheme, keys: defaultPromptKeyMap}
	if len(request.Keys) > maxInlineKeys {
		m.useKeyList = true
		m.keyList = viewport.New(40, keyListViewportHeight)
		m.keyList.SetContent(strings.Join(request.Keys, "\n"))
	}
	return m
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := message.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Approve):
		m.decision = Decision{Approved: true}
		m.done = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Deny):
		m.decision = Decision{Approved: false, Reason: "denied by operator"}
		m.done = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.ApproveAll):
		m.decision = Decision{Approved: true, Remember: true}
		m.done = true
		return m, tea.Quit
	}

	if m.useKeyList {
		var cmd tea.Cmd
		m.keyList, cmd = m.keyList.Update(message)
		return m, cmd
	}
	return m, nil
}

func (m confirmModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(m.theme.headerColor)
	faintStyle := lipgloss.NewStyle().Foreground(m.theme.faintText)
	approveStyle := lipgloss.NewStyle().Foreground(m.theme.approveColor).Bold(true)
	denyStyle := lipgloss.NewStyle().Foreground(m.theme.denyColor).Bold(true)

	var body strings.Builder
	fmt.Fprintf(&body, "%s\n\n", titleStyle.Render("Vault access request"))
	fmt.Fprintf(&body, "project:  %s\n", m.request.Project)
	fmt.Fprintf(&body, "action:   %s\n", m.request.Action)
	switch {
	case m.useKeyList:
		fmt.Fprintf(&body, "keys (%d, scroll with ↑/↓):\n%s\n", len(m.request.Keys), m.keyList.View())
	case len(m.request.Keys) > 0:
		fmt.Fprintf(&body, "keys:     %s\n", strings.Join(m.request.Keys, ", "))
	}
	if m.request.Client != "" {
		fmt.Fprintf(&body, "client:   %s\n", m.request.Client)
	}
	body.WriteString("\n")
	body.WriteString(approveStyle.Render("["+m.keys.Approve.Help().Key+"] "+m.keys.Approve.Help().Desc) + "   ")
	body.WriteString(faintStyle.Render("["+m.keys.ApproveAll.Help().Key+"] "+m.keys.ApproveAll.Help().Desc) + "   ")
	body.WriteString(denyStyle.Render("[" + m.keys.Deny.Help().Key + "] " + m.keys.Deny.Help().Desc))

	// Size the box to the widest rendered line rather than letting it
	// collapse to the shortest — a long key list or client address
	// should widen the whole prompt, not wrap mid-word.
	contentWidth := 0
	for _, line := range strings.Split(body.String(), "\n") {
		if width := ansi.StringWidth(line); width > contentWidth {
			contentWidth = width
		}
	}

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.theme.borderColor).
		Padding(1, 2).
		Width(contentWidth)
	return boxStyle.Render(body.String())
}

// Interactive is a Broker that prompts the operator in the terminal
// for each request, using a bubbletea program scoped to the lifetime
// of a single prompt. mu both guards sessionApprovals and serializes
// RequestApproval itself, so at most one prompt is ever on screen at
// a time even when the access server is handling several requests
// concurrently.
type Interactive struct {
	mu sync.Mutex
	// sessionApprovals records projects approved "for session" via
	// the 'a' key, so repeated requests for the same project don't
	// re-prompt until the daemon restarts.
	sessionApprovals map[string]bool
}

// NewInteractive creates an Interactive broker with no standing
// session approvals.
func NewInteractive() *Interactive {
	return &Interactive{sessionApprovals: map[string]bool{}}
}

func (b *Interactive) RequestApproval(ctx context.Context, request Request) (Decision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sessionApprovals[request.Project] {
		return Decision{Approved: true}, nil
	}

	program := tea.NewProgram(newConfirmModel(request))
	result, err := program.Run()
	if err != nil {
		return Decision{}, fmt.Errorf("approval: running prompt: %w", err)
	}

	final := result.(confirmModel)
	if final.decision.Remember {
		b.sessionApprovals[request.Project] = true
	}
	return final.decision, nil
}
