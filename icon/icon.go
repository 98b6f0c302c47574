// Package icon renders the status symbols printed by the CLI.
//
// Icons can be displayed as emoji, nerd-font glyphs, plain ASCII
// or Unicode squares depending on user preference.
package icon

import (
	"github.com/mpvbridge/mpvbridge/key"
	"github.com/spf13/viper"
)

const (
	emoji   = "emoji"
	nerd    = "nerd"
	plain   = "plain"
	squares = "squares"
)

// AvailableVariants returns every icon style identifier.
func AvailableVariants() []string {
	return []string{emoji, nerd, plain, squares}
}

// Icon identifies a symbol.
type Icon int

const (
	Success Icon = iota
	Fail
	Warn
	Play
	Pause
	Stop
	Waiting
	Video
	Audio
	Subtitle
	Engine
)

type iconDef struct {
	emoji   string
	nerd    string
	plain   string
	squares string
}

func (d iconDef) get() string {
	switch viper.GetString(key.IconsVariant) {
	case emoji:
		return d.emoji
	case nerd:
		return d.nerd
	case plain:
		return d.plain
	case squares:
		return d.squares
	default:
		return ""
	}
}

var icons = map[Icon]iconDef{
	Success:  {emoji: "✅", nerd: "", plain: "+", squares: "🟩"},
	Fail:     {emoji: "❌", nerd: "", plain: "x", squares: "🟥"},
	Warn:     {emoji: "⚠️", nerd: "", plain: "!", squares: "🟨"},
	Play:     {emoji: "▶️", nerd: "", plain: ">", squares: "🟦"},
	Pause:    {emoji: "⏸️", nerd: "", plain: "||", squares: "🟪"},
	Stop:     {emoji: "⏹️", nerd: "", plain: "[]", squares: "⬛"},
	Waiting:  {emoji: "⏳", nerd: "", plain: "~", squares: "🟧"},
	Video:    {emoji: "🎬", nerd: "", plain: "V", squares: "▣"},
	Audio:    {emoji: "🎧", nerd: "", plain: "A", squares: "▤"},
	Subtitle: {emoji: "💬", nerd: "", plain: "S", squares: "▥"},
	Engine:   {emoji: "⚙️", nerd: "", plain: "*", squares: "▦"},
}

// Get returns the symbol for i in the configured variant, or "" when the variant is unknown.
func Get(i Icon) string {
	return icons[i].get()
}
