package cmd

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mpvbridge/mpvbridge/color"
	"github.com/mpvbridge/mpvbridge/style"
	"github.com/mpvbridge/mpvbridge/where"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type location struct {
	flag   string
	short  string
	what   string
	path   func() string
	hidden bool
}

var locations = []location{
	{flag: "config", short: "c", what: "Config file directory", path: where.Config},
	{flag: "settings", short: "s", what: "Saved volume and playback rate", path: where.Settings},
	{flag: "logs", short: "l", what: "Log files", path: where.Logs},
	{flag: "sockets", what: "mpv IPC sockets", path: where.Temp, hidden: true},
}

func init() {
	rootCmd.AddCommand(whereCmd)

	for _, l := range locations {
		whereCmd.Flags().BoolP(l.flag, l.short, false, "Print only the "+l.what+" path")
		if l.hidden {
			lo.Must0(whereCmd.Flags().MarkHidden(l.flag))
		}
	}

	whereCmd.MarkFlagsMutuallyExclusive(lo.Map(locations, func(l location, _ int) string {
		return l.flag
	})...)
}

var whereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where mpvbridge keeps its files",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()

		for _, l := range locations {
			if lo.Must(cmd.Flags().GetBool(l.flag)) {
				cmd.SetOut(out)
				cmd.Println(l.path())
				return
			}
		}

		t := table.New().
			Border(lipgloss.HiddenBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == table.HeaderRow:
					return style.New().Bold(true).Foreground(color.HiPurple)
				case col == 1:
					return style.New().Foreground(color.Yellow)
				}
				return style.New()
			}).
			Headers("WHAT", "FLAG", "PATH")

		for _, l := range locations {
			if !l.hidden {
				t.Row(l.what, "--"+l.flag, l.path())
			}
		}

		cmd.SetOut(out)
		cmd.Println(t.Render())
	},
}
