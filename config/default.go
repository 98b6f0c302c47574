package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/template"

	"github.com/mpvbridge/mpvbridge/color"
	"github.com/mpvbridge/mpvbridge/constant"
	"github.com/mpvbridge/mpvbridge/key"
	"github.com/mpvbridge/mpvbridge/style"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Field is one configuration key with its default value.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Section is the part of the key before the first dot: engine, player, host...
func (f *Field) Section() string {
	section, _, _ := strings.Cut(f.Key, ".")
	return section
}

// Type names the Go type of the default, which is also the type viper coerces to.
func (f *Field) Type() string {
	if f.Value == nil {
		return "unknown"
	}
	return reflect.TypeOf(f.Value).String()
}

// Env is the environment variable that overrides the key.
func (f *Field) Env() string {
	return strings.ToUpper(constant.App + "_" + EnvKeyReplacer.Replace(f.Key))
}

func (f *Field) Pretty() string {
	var b strings.Builder
	lo.Must0(prettyTemplate.Execute(&b, f))
	return b.String()
}

func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key         string `json:"key"`
		Section     string `json:"section"`
		Value       any    `json:"value"`
		Default     any    `json:"default"`
		Description string `json:"description"`
		Type        string `json:"type"`
	}{
		Key:         f.Key,
		Section:     f.Section(),
		Value:       viper.Get(f.Key),
		Default:     f.Value,
		Description: f.Description,
		Type:        f.Type(),
	})
}

// Default holds every known key.
var Default = make(map[string]Field)

// EnvExposed lists the keys bound to environment variables.
var EnvExposed []string

func register(k string, v any, desc string) {
	if _, exists := Default[k]; exists {
		panic("duplicate config key: " + k)
	}
	Default[k] = Field{Key: k, Value: v, Description: desc}
	EnvExposed = append(EnvExposed, k)
}

func init() {
	// engine
	register(key.EngineBinary, "mpv", "Path or name of the mpv executable")
	register(key.EngineSocketWaitRetries, 20, "How many times to poll for the mpv IPC socket before giving up")
	register(key.EngineSocketWaitDelayMs, 150, "Delay between IPC socket polls, in milliseconds")
	register(key.EngineCommandTimeoutMs, 5000, "Maximum time to wait for a reply to a single engine command, in milliseconds")
	register(key.EngineKeepOpen, true, "Keep the last frame on screen when a file ends instead of unloading it")
	register(key.EngineHwdec, "auto-safe", "Hardware decoding mode passed to mpv (--hwdec)")
	register(key.EngineExtraArgs, []string{}, "Additional raw arguments passed to mpv on startup")

	// player
	register(key.PlayerRestoreVolume, true, "Restore the last used volume when a new source starts")
	register(key.PlayerDefaultVolume, 100, "Volume applied on first start when no saved volume exists (0-100)")
	register(key.PlayerRememberRate, false, "Re-apply the last playback rate when a new source starts")

	// host
	register(key.HostAddress, "127.0.0.1:8097", "Listen address of the UI host websocket endpoint")
	register(key.HostAllowedOrigins, []string{}, "Origins allowed to open the websocket.\nEmpty means same-origin only, * allows any")

	register(key.IconsVariant, "plain", "Icons variant.\nAvailable options are: emoji, plain, squares, nerd (nerd-font required)")
	register(key.LogsWrite, false, "Write logs")
	register(key.LogsLevel, "info", "Available options are: (from less to most verbose)\npanic, fatal, error, warn, info, debug, trace")
	register(key.LogsJson, false, "Use json format for logs")
	register(key.CliColored, true, "Enable colored CLI output")
}

func highlight(v any) string {
	switch value := v.(type) {
	case bool:
		if value {
			return style.Fg(color.Green)(strconv.FormatBool(value))
		}
		return style.Fg(color.Red)(strconv.FormatBool(value))
	case string:
		if value == "" {
			return style.Faint(`""`)
		}
		return style.Fg(color.Yellow)(value)
	case []string:
		if len(value) == 0 {
			return style.Faint("[]")
		}
		return style.Fg(color.Yellow)(strings.Join(value, ", "))
	default:
		return fmt.Sprint(value)
	}
}

var prettyTemplate = lo.Must(template.New("pretty").Funcs(template.FuncMap{
	"faint":  style.Faint,
	"purple": style.Fg(color.Purple),
	"blue":   style.Fg(color.Blue),
	"value":  viper.Get,
	"hl":     highlight,
}).Parse(`{{ faint .Description }}
{{ blue "Key:" }}     {{ purple .Key }}
{{ blue "Env:" }}     {{ .Env }}
{{ blue "Value:" }}   {{ hl (value .Key) }}
{{ blue "Default:" }} {{ hl .Value }}
{{ blue "Type:" }}    {{ .Type }}`))
