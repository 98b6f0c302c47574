package cmd

import (
	"os"

	"github.com/mpvbridge/mpvbridge/color"
	"github.com/mpvbridge/mpvbridge/config"
	"github.com/mpvbridge/mpvbridge/style"
	"github.com/mpvbridge/mpvbridge/where"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"
)

func init() {
	rootCmd.AddCommand(envCmd)
	envCmd.Flags().BoolP("set-only", "s", false, "Only variables that are set")
	envCmd.Flags().BoolP("unset-only", "u", false, "Only variables that are not set")

	envCmd.MarkFlagsMutuallyExclusive("set-only", "unset-only")
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "List the environment variables that override configuration",
	Run: func(cmd *cobra.Command, args []string) {
		setOnly := lo.Must(cmd.Flags().GetBool("set-only"))
		unsetOnly := lo.Must(cmd.Flags().GetBool("unset-only"))

		envs := []string{where.EnvConfigPath}
		for _, k := range config.EnvExposed {
			field := config.Default[k]
			envs = append(envs, field.Env())
		}
		slices.Sort(envs)

		envs = lo.Filter(envs, func(env string, _ int) bool {
			_, present := os.LookupEnv(env)
			return !(setOnly && !present) && !(unsetOnly && present)
		})

		name := style.New().Bold(true).Foreground(color.Purple).Render
		for _, env := range envs {
			value, present := os.LookupEnv(env)
			if present {
				cmd.Printf("%s=%s\n", name(env), style.Fg(color.Green)(value))
			} else {
				cmd.Printf("%s=%s\n", name(env), style.Fg(color.Red)("unset"))
			}
		}
	},
}
