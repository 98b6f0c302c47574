// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Media Engine - these keys control how the mpv process is spawned and talked to.
const (
	EngineBinary            = "engine.binary"
	EngineSocketWaitRetries = "engine.socket_wait_retries"
	EngineSocketWaitDelayMs = "engine.socket_wait_delay_ms"
	EngineCommandTimeoutMs  = "engine.command_timeout_ms"
	EngineKeepOpen          = "engine.keep_open"
	EngineHwdec             = "engine.hwdec"
	EngineExtraArgs         = "engine.extra_args"
)

// Media Playback - these keys govern the behaviour applied when a source first starts.
const (
	PlayerRestoreVolume = "player.restore_volume"
	PlayerDefaultVolume = "player.default_volume"
	PlayerRememberRate  = "player.remember_rate"
)

// UI Host - these keys configure the websocket endpoint the web UI connects to.
const (
	HostAddress        = "host.address"
	HostAllowedOrigins = "host.allowed_origins"
)

// Iconography - these keys manage the visual rendering of UI symbols.
const (
	IconsVariant = "icons.variant"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics and auditing system.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these flags and settings govern the non-interactive application behavior.
const (
	CliColored = "cli.colored"
)
