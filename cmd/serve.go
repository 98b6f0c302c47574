package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mpvbridge/mpvbridge/color"
	"github.com/mpvbridge/mpvbridge/engine"
	"github.com/mpvbridge/mpvbridge/host"
	"github.com/mpvbridge/mpvbridge/icon"
	"github.com/mpvbridge/mpvbridge/key"
	"github.com/mpvbridge/mpvbridge/log"
	"github.com/mpvbridge/mpvbridge/playback"
	"github.com/mpvbridge/mpvbridge/settings"
	"github.com/mpvbridge/mpvbridge/style"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("address", "a", "", "Listen address of the websocket endpoint")
	lo.Must0(viper.BindPFlag(key.HostAddress, serveCmd.Flags().Lookup("address")))

	serveCmd.Flags().StringSlice("allow-origin", nil, "Additional origins allowed to connect")
	lo.Must0(viper.BindPFlag(key.HostAllowedOrigins, serveCmd.Flags().Lookup("allow-origin")))

	serveCmd.SetOut(os.Stdout)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the video and audio players to the web UI over a websocket",
	Long: `Serve the video and audio players to the web UI over a websocket.

The web UI connects to /ws and sends play, stop, track selection and transport
commands. Commands with mediaType "Audio" drive the audio-only player; all
others drive the video player. Both share a single mpv process.`,
	Run: func(cmd *cobra.Command, args []string) {
		checkEngine()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		session := engine.NewSession(engine.IPCFactory(engine.OptionsFromConfig()))

		hub := host.NewHub(viper.GetStringSlice(key.HostAllowedOrigins))
		prefs := settings.Default()
		video := playback.New(session, hub.Notifier("Video"), prefs, playback.DefaultOptions(engine.ModeVideo))
		audio := playback.New(session, hub.Notifier(host.MediaTypeAudio), prefs, playback.DefaultOptions(engine.ModeAudio))
		server := host.NewServer(hub, video, audio, session)

		address := viper.GetString(key.HostAddress)
		cmd.Printf(
			"%s listening on %s\n",
			style.Fg(color.Green)(icon.Get(icon.Engine)),
			style.Fg(color.Yellow)(fmt.Sprintf("ws://%s/ws", address)),
		)

		err := server.ListenAndServe(ctx, address)
		if terr := session.Teardown(); terr != nil {
			log.Warnf("teardown engine: %v", terr)
		}
		handleErr(err)
	},
}
