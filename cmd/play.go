package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mpvbridge/mpvbridge/color"
	"github.com/mpvbridge/mpvbridge/engine"
	"github.com/mpvbridge/mpvbridge/filesystem"
	"github.com/mpvbridge/mpvbridge/icon"
	"github.com/mpvbridge/mpvbridge/log"
	"github.com/mpvbridge/mpvbridge/playback"
	"github.com/mpvbridge/mpvbridge/settings"
	"github.com/mpvbridge/mpvbridge/style"
	"github.com/mpvbridge/mpvbridge/util"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().StringP("source", "s", "", "JSON file describing the media source and its streams")
	playCmd.Flags().IntP("audio", "a", 0, "Library index of the audio stream to select")
	playCmd.Flags().IntP("subtitle", "t", playback.SubtitlesOff, "Library index of the subtitle stream to select, -1 for none")
	playCmd.Flags().Float64P("start", "p", 0, "Start position in seconds")
	playCmd.Flags().Bool("audio-only", false, "Play without video output")
	playCmd.Flags().String("item", "", "Library item id reported when playback stops")
	playCmd.Flags().String("server", "", "Base URL of the media server, used for relative subtitle URLs")

	playCmd.SetOut(os.Stdout)
}

var playCmd = &cobra.Command{
	Use:   "play <url>",
	Short: "Play a single source and print its lifecycle notifications",
	Long: `Play a single source and print the notifications a web UI would receive.

Track selections use library stream indices, which are correlated with the tracks
mpv enumerates using the streams listed in --source. Without --source mpv keeps its
own track choice, and only --subtitle -1 is accepted.`,
	Example: `  mpvbridge play https://server/Videos/1/stream.mkv --source source.json --audio 5 --subtitle 7`,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		checkEngine()

		req := playback.Request{
			URL:           args[0],
			ItemID:        lo.Must(cmd.Flags().GetString("item")),
			StartSeconds:  lo.Must(cmd.Flags().GetFloat64("start")),
			ServerBaseURL: lo.Must(cmd.Flags().GetString("server")),
		}
		if path := lo.Must(cmd.Flags().GetString("source")); path != "" {
			source, err := readSource(path)
			handleErr(err)
			req.MediaSource = source
		}
		if cmd.Flags().Changed("audio") {
			req.AudioStreamIndex = mo.Some(lo.Must(cmd.Flags().GetInt("audio")))
		}
		if cmd.Flags().Changed("subtitle") {
			req.SubtitleStreamIndex = mo.Some(lo.Must(cmd.Flags().GetInt("subtitle")))
		}

		handleErr(checkSelections(req))

		mode := engine.ModeVideo
		if lo.Must(cmd.Flags().GetBool("audio-only")) {
			mode = engine.ModeAudio
		}

		handleErr(runPlay(cmd.OutOrStdout(), mode, req))
	},
}

// checkSelections refuses library indices that cannot be resolved because the request
// carries no stream list.
func checkSelections(req playback.Request) error {
	if len(req.MediaSource.MediaStreams) > 0 {
		return nil
	}
	if req.AudioStreamIndex.IsPresent() {
		return errors.New("--audio needs --source: library indices are resolved against the source's streams")
	}
	if idx, ok := req.SubtitleStreamIndex.Get(); ok && idx >= 0 {
		return errors.New("--subtitle needs --source: library indices are resolved against the source's streams")
	}
	return nil
}

func readSource(path string) (playback.MediaSource, error) {
	var source playback.MediaSource
	if err := filesystem.ReadJSON(path, &source); err != nil {
		return source, fmt.Errorf("read media source: %w", err)
	}
	return source, nil
}

func runPlay(out io.Writer, mode engine.Mode, req playback.Request) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := engine.NewSession(engine.IPCFactory(engine.OptionsFromConfig()))
	defer func() {
		if err := session.Teardown(); err != nil {
			log.Warnf("teardown engine: %v", err)
		}
	}()

	notes := newConsoleNotifier(out, util.IsTerminal())
	controller := playback.New(session, notes, settings.Default(), playback.DefaultOptions(mode))

	if err := controller.Play(ctx, req); err != nil {
		return err
	}

	select {
	case <-notes.done:
	case <-ctx.Done():
		controller.Stop(context.Background(), true)
	}
	return notes.err
}

// consoleNotifier prints lifecycle notifications and closes done when the source ends.
type consoleNotifier struct {
	out io.Writer
	tty bool

	mu    sync.Mutex
	erase func()
	err   error

	done chan struct{}
	once sync.Once
}

func newConsoleNotifier(out io.Writer, tty bool) *consoleNotifier {
	return &consoleNotifier{out: out, tty: tty, done: make(chan struct{})}
}

func (n *consoleNotifier) line(i icon.Icon, format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.erase != nil {
		n.erase()
		n.erase = nil
	}
	_, _ = fmt.Fprintf(n.out, "%s %s\n", icon.Get(i), fmt.Sprintf(format, args...))
}

func (n *consoleNotifier) finish(err error) {
	n.once.Do(func() {
		n.mu.Lock()
		n.err = err
		n.mu.Unlock()
		close(n.done)
	})
}

func (n *consoleNotifier) Playing() {
	n.line(icon.Play, "%s", style.Fg(color.Green)("playing"))
}

func (n *consoleNotifier) Pause() {
	n.line(icon.Pause, "%s", style.Fg(color.Yellow)("paused"))
}

func (n *consoleNotifier) Unpause() {
	n.line(icon.Play, "%s", style.Fg(color.Green)("resumed"))
}

func (n *consoleNotifier) Waiting() {
	n.line(icon.Waiting, "%s", style.Faint("buffering"))
}

func (n *consoleNotifier) Stopped(info playback.StopInfo) {
	n.line(icon.Stop, "stopped at %s", style.Bold(util.Clock(info.PositionMs)))
	n.finish(nil)
}

func (n *consoleNotifier) TimeUpdate(ms int64) {
	if !n.tty {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.erase != nil {
		n.erase()
	}
	n.erase = util.PrintErasable(style.Faint(util.Clock(ms)))
}

func (n *consoleNotifier) Error(err *playback.DecodeError) {
	n.line(icon.Fail, "%s", style.Fg(color.Red)(err.Reason))
	n.finish(err)
}
