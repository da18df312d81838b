package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Prev      key.Binding
	Next      key.Binding
	First     key.Binding
	Last      key.Binding
	Play      key.Binding
	Faster    key.Binding
	Slower    key.Binding
	Channel   key.Binding
	Composite key.Binding
	MarkStart key.Binding
	MarkEnd   key.Binding
	Clear     key.Binding
	Export    key.Binding
	NextFile  key.Binding
	PrevFile  key.Binding
	Snapshot  key.Binding
	Help      key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Prev: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←", "prev frame"),
	),
	Next: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→", "next frame"),
	),
	First: key.NewBinding(
		key.WithKeys("home", "g"),
		key.WithHelp("home", "first"),
	),
	Last: key.NewBinding(
		key.WithKeys("end", "G"),
		key.WithHelp("end", "last"),
	),
	Play: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "play/pause"),
	),
	Faster: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "faster"),
	),
	Slower: key.NewBinding(
		key.WithKeys("-"),
		key.WithHelp("-", "slower"),
	),
	Channel: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "channel"),
	),
	Composite: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "rgb composite"),
	),
	MarkStart: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "mark start"),
	),
	MarkEnd: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "mark end"),
	),
	Clear: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "clear interval"),
	),
	Export: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "export"),
	),
	NextFile: key.NewBinding(
		key.WithKeys("n", "pgdown"),
		key.WithHelp("n", "next file"),
	),
	PrevFile: key.NewBinding(
		key.WithKeys("p", "pgup"),
		key.WithHelp("p", "prev file"),
	),
	Snapshot: key.NewBinding(
		key.WithKeys("w"),
		key.WithHelp("w", "snapshot"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp returns the bindings shown in the footer
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Play, k.MarkStart, k.MarkEnd, k.Export, k.Help, k.Quit}
}

// FullHelp returns every binding, grouped
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Prev, k.Next, k.First, k.Last},
		{k.Play, k.Faster, k.Slower},
		{k.Channel, k.Composite, k.Snapshot},
		{k.MarkStart, k.MarkEnd, k.Clear, k.Export},
		{k.NextFile, k.PrevFile, k.Help, k.Quit},
	}
}
