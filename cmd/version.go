package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/mpvbridge/mpvbridge/color"
	"github.com/mpvbridge/mpvbridge/constant"
	"github.com/mpvbridge/mpvbridge/key"
	"github.com/mpvbridge/mpvbridge/style"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("short", "s", false, "Print only the version number")
	versionCmd.Flags().BoolP("json", "j", false, "Print version information as JSON")
}

type versionInfo struct {
	App      string `json:"app"`
	Version  string `json:"version"`
	Revision string `json:"revision"`
	BuiltAt  string `json:"built_at"`
	BuiltBy  string `json:"built_by"`
	Platform string `json:"platform"`
	Engine   string `json:"engine"`
}

// engineVersion returns the first line of `mpv --version`, or why it could not be read.
func engineVersion(binary string) string {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "not found (" + binary + ")"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var buf bytes.Buffer
	c := exec.CommandContext(ctx, path, "--version")
	c.Stdout = &buf
	if err := c.Run(); err != nil {
		return "unknown (" + err.Error() + ")"
	}

	first, _, _ := strings.Cut(buf.String(), "\n")
	return strings.TrimSpace(first)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print mpvbridge and mpv versions",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if lo.Must(cmd.Flags().GetBool("short")) {
			fmt.Fprintln(out, constant.Version)
			return
		}

		info := versionInfo{
			App:      constant.App,
			Version:  constant.Version,
			Revision: constant.Revision,
			BuiltAt:  strings.TrimSpace(constant.BuiltAt),
			BuiltBy:  constant.BuiltBy,
			Platform: runtime.GOOS + "/" + runtime.GOARCH,
			Engine:   engineVersion(viper.GetString(key.EngineBinary)),
		}

		if lo.Must(cmd.Flags().GetBool("json")) {
			handleErr(json.NewEncoder(out).Encode(info))
			return
		}

		fmt.Fprintf(out, "%s %s\n\n", style.Fg(color.Purple)("▇▇▇"), style.Fg(color.Purple)(info.App))
		for _, row := range [][2]string{
			{"Version", info.Version},
			{"Git Commit", info.Revision},
			{"Build Date", info.BuiltAt},
			{"Built By", info.BuiltBy},
			{"Platform", info.Platform},
			{"Engine", info.Engine},
		} {
			fmt.Fprintf(out, "  %s %s\n", style.Faint(fmt.Sprintf("%-12s", row[0])), style.Bold(row[1]))
		}
	},
}
