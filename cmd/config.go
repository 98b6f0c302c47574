package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	levenshtein "github.com/ka-weihe/fast-levenshtein"
	"github.com/mpvbridge/mpvbridge/color"
	"github.com/mpvbridge/mpvbridge/config"
	"github.com/mpvbridge/mpvbridge/constant"
	"github.com/mpvbridge/mpvbridge/filesystem"
	"github.com/mpvbridge/mpvbridge/icon"
	"github.com/mpvbridge/mpvbridge/style"
	"github.com/mpvbridge/mpvbridge/where"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slices"
)

func errUnknownKey(key string) error {
	closest := lo.MinBy(lo.Keys(config.Default), func(a, b string) bool {
		return levenshtein.Distance(key, a) < levenshtein.Distance(key, b)
	})
	return fmt.Errorf(
		"unknown key %s, did you mean %s?",
		style.Fg(color.Red)(key),
		style.Fg(color.Yellow)(closest),
	)
}

func completionConfigKeys(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return sortedKeys(), cobra.ShellCompDirectiveNoFileComp
}

func sortedKeys() []string {
	keys := lo.Keys(config.Default)
	slices.Sort(keys)
	return keys
}

// keyArg takes the key from the first argument or, failing that, the --key flag.
func keyArg(cmd *cobra.Command, args []string) (string, error) {
	key := lo.Must(cmd.Flags().GetString("key"))
	if len(args) > 0 {
		key = args[0]
	}
	if key == "" {
		return "", errors.New("key is required as an argument or --key flag")
	}
	if _, ok := config.Default[key]; !ok {
		return "", errUnknownKey(key)
	}
	return key, nil
}

func configFile() string {
	return filepath.Join(where.Config(), constant.App+".toml")
}

// saveConfig writes viper's state, creating the file on first use.
func saveConfig() error {
	err := viper.WriteConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return viper.SafeWriteConfig()
	}
	return err
}

func success(out io.Writer, format string, args ...any) {
	fmt.Fprintf(out, "%s %s\n", style.Fg(color.Green)(icon.Get(icon.Success)), fmt.Sprintf(format, args...))
}

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change engine, player and host settings",
}

func init() {
	configCmd.AddCommand(configInfoCmd)
	configInfoCmd.Flags().StringSliceP("key", "k", []string{}, "Only describe these keys")
	configInfoCmd.Flags().BoolP("json", "j", false, "Print the descriptions as JSON")
	_ = configInfoCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)
}

var configInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe configuration keys, their types and defaults",
	Run: func(cmd *cobra.Command, args []string) {
		keys := lo.Must(cmd.Flags().GetStringSlice("key"))
		if len(keys) == 0 {
			keys = sortedKeys()
		}

		fields := make([]config.Field, 0, len(keys))
		for _, k := range keys {
			field, ok := config.Default[k]
			if !ok {
				handleErr(errUnknownKey(k))
			}
			fields = append(fields, field)
		}

		out := cmd.OutOrStdout()
		if lo.Must(cmd.Flags().GetBool("json")) {
			handleErr(json.NewEncoder(out).Encode(fields))
			return
		}

		for i := range fields {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, fields[i].Pretty())
		}
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configSetCmd.Flags().StringP("key", "k", "", "Key to change")
	configSetCmd.Flags().StringSliceP("value", "v", []string{}, "New value; repeat for list keys")
	_ = configSetCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)
}

var configSetCmd = &cobra.Command{
	Use:               "set [key] [value...]",
	Short:             "Change a key and save it to the config file",
	ValidArgsFunction: completionConfigKeys,
	Run: func(cmd *cobra.Command, args []string) {
		key, err := keyArg(cmd, args)
		handleErr(err)

		value := lo.Must(cmd.Flags().GetStringSlice("value"))
		if len(args) > 1 {
			value = args[1:]
		}
		if len(value) == 0 {
			handleErr(errors.New("value is required as an argument or --value flag"))
		}

		v, err := parseValue(config.Default[key].Value, value)
		handleErr(err)

		previous := viper.Get(key)
		viper.Set(key, v)
		if err := config.Validate(); err != nil {
			viper.Set(key, previous)
			handleErr(err)
		}
		handleErr(saveConfig())

		success(cmd.OutOrStdout(), "set %s to %s", style.Fg(color.Purple)(key), style.Fg(color.Yellow)(fmt.Sprint(v)))
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configGetCmd.Flags().StringP("key", "k", "", "Key to print")
	_ = configGetCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)
}

var configGetCmd = &cobra.Command{
	Use:               "get [key]",
	Short:             "Print the effective value of a key",
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: completionConfigKeys,
	Run: func(cmd *cobra.Command, args []string) {
		key, err := keyArg(cmd, args)
		handleErr(err)
		fmt.Fprintln(cmd.OutOrStdout(), viper.Get(key))
	},
}

func init() {
	configCmd.AddCommand(configWriteCmd)
	configWriteCmd.Flags().BoolP("force", "f", false, "Replace an existing config file")
}

var configWriteCmd = &cobra.Command{
	Use:   "write",
	Short: "Write the effective configuration to the config file",
	Run: func(cmd *cobra.Command, args []string) {
		path := configFile()
		if lo.Must(cmd.Flags().GetBool("force")) {
			handleErr(filesystem.API().Remove(path))
		}
		handleErr(viper.SafeWriteConfig())
		success(cmd.OutOrStdout(), "wrote config to %s", path)
	},
}

func init() {
	configCmd.AddCommand(configDeleteCmd)
}

var configDeleteCmd = &cobra.Command{
	Use:     "delete",
	Short:   "Remove the config file",
	Aliases: []string{"remove"},
	Run: func(cmd *cobra.Command, args []string) {
		handleErr(filesystem.API().Remove(configFile()))
		success(cmd.OutOrStdout(), "deleted config")
	},
}

func init() {
	configCmd.AddCommand(configResetCmd)
	configResetCmd.Flags().StringP("key", "k", "", "Key to restore")
	configResetCmd.Flags().BoolP("all", "a", false, "Restore every key")
	configResetCmd.MarkFlagsMutuallyExclusive("key", "all")
	configResetCmd.MarkFlagsOneRequired("key", "all")
	_ = configResetCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore keys to their defaults",
	Run: func(cmd *cobra.Command, args []string) {
		if lo.Must(cmd.Flags().GetBool("all")) {
			for k, field := range config.Default {
				viper.Set(k, field.Value)
			}
			handleErr(saveConfig())
			success(cmd.OutOrStdout(), "reset all config values")
			return
		}

		key, err := keyArg(cmd, nil)
		handleErr(err)
		def := config.Default[key].Value
		viper.Set(key, def)
		handleErr(saveConfig())
		success(cmd.OutOrStdout(), "reset %s to %s", style.Fg(color.Purple)(key), style.Fg(color.Yellow)(fmt.Sprint(def)))
	},
}

// parseValue converts command-line values into the type of the key's default.
func parseValue(def any, value []string) (any, error) {
	var (
		parsed any
		err    error
	)
	switch def.(type) {
	case string:
		return value[0], nil
	case []string:
		return value, nil
	case int:
		parsed, err = strconv.Atoi(value[0])
	case float64:
		parsed, err = strconv.ParseFloat(value[0], 64)
	case bool:
		parsed, err = strconv.ParseBool(value[0])
	default:
		return nil, fmt.Errorf("unsupported value type %T", def)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %T value %q", def, value[0])
	}
	return parsed, nil
}
