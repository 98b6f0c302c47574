package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/charmbracelet/lipgloss"
	"github.com/mpvbridge/mpvbridge/color"
	"github.com/mpvbridge/mpvbridge/constant"
	"github.com/mpvbridge/mpvbridge/icon"
	"github.com/mpvbridge/mpvbridge/key"
	"github.com/mpvbridge/mpvbridge/style"
	"github.com/spf13/viper"
)

// checkEngine exits with an install hint when the configured mpv binary is not on PATH.
func checkEngine() {
	binary := viper.GetString(key.EngineBinary)
	if binary == "" {
		binary = "mpv"
	}
	if _, err := exec.LookPath(binary); err != nil {
		printMissingEngine(binary)
		os.Exit(1)
	}
}

func printMissingEngine(binary string) {
	var install string
	switch runtime.GOOS {
	case constant.Darwin:
		install = "brew install mpv"
	case constant.Linux:
		install = "sudo apt install mpv"
	case constant.Windows:
		install = "scoop install mpv"
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color.HiRed).
		Padding(1, 2).
		Margin(1, 0)

	title := style.New().Bold(true).Foreground(color.HiRed).Render(fmt.Sprintf("%s Missing playback engine", icon.Get(icon.Fail)))
	body := fmt.Sprintf("%q was not found in your PATH. Set %s or pass --mpv to point at it.", binary, style.Fg(color.Purple)(key.EngineBinary))

	hint := ""
	if install != "" {
		hint = fmt.Sprintf("\n\nTo install it, try running:\n  %s", style.New().Foreground(color.Orange).Bold(true).Render(install))
	}

	fmt.Println(box.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, hint)))
}
