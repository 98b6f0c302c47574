package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mpvbridge/mpvbridge/color"
	"github.com/mpvbridge/mpvbridge/constant"
	"github.com/mpvbridge/mpvbridge/engine"
	"github.com/mpvbridge/mpvbridge/icon"
	"github.com/mpvbridge/mpvbridge/log"
	"github.com/mpvbridge/mpvbridge/style"
	"github.com/mpvbridge/mpvbridge/track"
	"github.com/mpvbridge/mpvbridge/util"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(tracksCmd)

	tracksCmd.Flags().StringP("source", "s", "", "JSON file describing the media source; prints the correlation when set")
	tracksCmd.Flags().Duration("timeout", 30*time.Second, "How long to wait for mpv to open the source")

	tracksCmd.SetOut(os.Stdout)
}

var tracksCmd = &cobra.Command{
	Use:   "tracks <url>",
	Short: "Open a source and print the tracks mpv enumerates",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		checkEngine()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, lo.Must(cmd.Flags().GetDuration("timeout")))
		defer cancel()

		tracks, err := openTracks(ctx, args[0])
		handleErr(err)

		out := cmd.OutOrStdout()
		printEngineTracks(out, tracks)

		if path := lo.Must(cmd.Flags().GetString("source")); path != "" {
			source, err := readSource(path)
			handleErr(err)

			correlator := track.NewCorrelator()
			correlator.SetStreams(source.MediaStreams)
			result := correlator.Rebuild(tracks)

			_, _ = fmt.Fprintln(out)
			printCorrelation(out, correlator.Snapshot(), result)
		}
	},
}

// openTracks opens url paused and returns the engine's track list once the file is loaded.
func openTracks(ctx context.Context, url string) ([]track.EngineTrack, error) {
	target, err := engine.SanitizeTarget(url)
	if err != nil {
		return nil, err
	}

	session := engine.NewSession(engine.IPCFactory(engine.OptionsFromConfig()))
	defer func() {
		if err := session.Teardown(); err != nil {
			log.Warnf("teardown engine: %v", err)
		}
	}()

	if err := session.EnsureReady(ctx, engine.ModeAudio); err != nil {
		return nil, err
	}

	loaded := make(chan struct{}, 1)
	failed := make(chan string, 1)
	att := session.Attach("tracks")
	att.Subscribe(engine.KindFileLoaded, func(engine.Event) {
		select {
		case loaded <- struct{}{}:
		default:
		}
	})
	att.Subscribe(engine.KindEndFile, func(ev engine.Event) {
		if e, ok := ev.(engine.EndFile); ok && e.Reason == engine.EndReasonError {
			select {
			case failed <- e.Error:
			default:
			}
		}
	})

	att.Subscribe(engine.KindEngineLost, func(engine.Event) {
		select {
		case failed <- "mpv exited":
		default:
		}
	})

	if err := session.SetProperty(ctx, constant.PropPause, true); err != nil {
		return nil, err
	}
	if _, err := session.Command(ctx, constant.CmdLoadFile, target, "replace"); err != nil {
		return nil, err
	}

	select {
	case <-loaded:
	case reason := <-failed:
		return nil, fmt.Errorf("open %s: %s", url, lo.Ternary(reason == "", "playback failed", reason))
	case <-ctx.Done():
		return nil, fmt.Errorf("open %s: %w", url, ctx.Err())
	}

	v, err := session.GetProperty(ctx, constant.PropTrackList)
	if err != nil {
		return nil, err
	}
	tracks, err := engine.DecodeTrackList(v)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, errors.New("mpv reported no tracks")
	}
	return tracks, nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(style.New().Foreground(color.Gray)).
		Headers(headers...)
}

func typeIcon(t track.Type) string {
	switch t {
	case track.Audio:
		return icon.Get(icon.Audio)
	case track.Subtitle:
		return icon.Get(icon.Subtitle)
	default:
		return icon.Get(icon.Video)
	}
}

func printEngineTracks(out io.Writer, tracks []track.EngineTrack) {
	t := newTable("", "Type", "ID", "Language", "Codec", "Title", "Flags")
	for _, et := range tracks {
		var flags []string
		if et.Selected {
			flags = append(flags, "selected")
		}
		if et.External {
			flags = append(flags, "external")
		}
		t.Row(typeIcon(et.Type), string(et.Type), strconv.Itoa(et.ID), et.Language, et.Codec, et.Title, fmt.Sprint(flags))
	}

	_, _ = fmt.Fprintln(out, style.Bold(util.Quantify(len(tracks), "engine track", "engine tracks")))
	_, _ = fmt.Fprintln(out, t.String())
}

func printCorrelation(out io.Writer, rows []track.Row, result track.Result) {
	t := newTable("", "Type", "Library index", "Language", "Codec", "Engine ID")
	for _, r := range rows {
		id := style.Fg(color.Red)("unresolved")
		if r.Resolved {
			id = style.Fg(color.Green)(strconv.Itoa(r.EngineID))
		}
		t.Row(typeIcon(r.Stream.Type), string(r.Stream.Type), strconv.Itoa(r.Stream.Index), r.Stream.Language, r.Stream.Codec, id)
	}

	_, _ = fmt.Fprintln(out, style.Bold(util.Quantify(result.Mapped, "stream mapped", "streams mapped")))
	_, _ = fmt.Fprintln(out, t.String())

	for _, k := range result.Unresolved {
		_, _ = fmt.Fprintf(out, "%s %s falls back to its position\n", icon.Get(icon.Warn), k)
	}
}
