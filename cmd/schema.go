package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/mpvbridge/mpvbridge/host"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(schemaCmd)

	schemaCmd.Flags().BoolP("notification", "n", false, "Generate the JSON Schema for notifications instead of commands")
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate JSON schemas for the websocket messages",
	Run: func(cmd *cobra.Command, args []string) {
		reflector := new(jsonschema.Reflector)
		reflector.Anonymous = true
		reflector.Namer = func(t reflect.Type) string {
			return filepath.Base(t.PkgPath()) + "." + t.Name()
		}

		var schema *jsonschema.Schema
		if lo.Must(cmd.Flags().GetBool("notification")) {
			schema = reflector.Reflect(&host.Notification{})
		} else {
			schema = reflector.Reflect(&host.Command{})
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		handleErr(encoder.Encode(schema))
	},
}
