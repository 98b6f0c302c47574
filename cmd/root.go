// Package cmd implements the command-line interface for mpvbridge.
package cmd

import (
	"fmt"
	"os"
	"strings"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/mpvbridge/mpvbridge/color"
	"github.com/mpvbridge/mpvbridge/config"
	"github.com/mpvbridge/mpvbridge/constant"
	"github.com/mpvbridge/mpvbridge/icon"
	"github.com/mpvbridge/mpvbridge/key"
	"github.com/mpvbridge/mpvbridge/log"
	"github.com/mpvbridge/mpvbridge/style"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print the application version")

	rootCmd.PersistentFlags().StringP("icons", "I", "", "Set the visual icon variant (e.g., nerd, emoji, squares)")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("icons", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return icon.AvailableVariants(), cobra.ShellCompDirectiveDefault
	}))
	lo.Must0(viper.BindPFlag(key.IconsVariant, rootCmd.PersistentFlags().Lookup("icons")))

	rootCmd.PersistentFlags().String("mpv", "", "Path or name of the mpv executable")
	lo.Must0(viper.BindPFlag(key.EngineBinary, rootCmd.PersistentFlags().Lookup("mpv")))

	rootCmd.PersistentFlags().String("log-level", "", "Write logs at this level (trace, debug, info, warn, error)")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("log-level", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"trace", "debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	}))
}

// applyFlags re-reads settings that persistent flags may have overridden.
func applyFlags(cmd *cobra.Command) error {
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		viper.Set(key.LogsLevel, level)
		viper.Set(key.LogsWrite, true)
		if err := log.Setup(); err != nil {
			return err
		}
	}
	return config.Validate()
}

var rootCmd = &cobra.Command{
	Use:           constant.App,
	Short:         "Drive mpv as the playback engine of a media server web UI",
	SilenceErrors: true,
	Long: constant.Banner + "\n\n" +
		style.New().Italic(true).Foreground(color.HiCyan).Render("  Library-indexed track selection and playback lifecycle on top of mpv"),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		handleErr(applyFlags(cmd))
	},
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("version") {
			versionCmd.Run(versionCmd, args)
			return
		}
		_ = cmd.Help()
	},
}

// Execute runs the command named on the command line.
func Execute() {
	if viper.GetBool(key.CliColored) {
		cc.Init(&cc.Config{
			RootCmd:       rootCmd,
			Headings:      cc.HiCyan + cc.Bold + cc.Underline,
			Commands:      cc.HiYellow + cc.Bold,
			Example:       cc.Italic,
			ExecName:      cc.Bold,
			Flags:         cc.Bold,
			FlagsDataType: cc.Italic + cc.HiBlue,
		})
	}

	if err := rootCmd.Execute(); err != nil {
		handleErr(err)
	}
}

func handleErr(err error) {
	if err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "%s %s\n", icon.Get(icon.Fail), strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}
