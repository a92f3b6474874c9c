package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dorsalhub/dorsal-whisper/internal/audio"
	"github.com/dorsalhub/dorsal-whisper/internal/media"
	"github.com/spf13/cobra"
)

func newProbeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <media-file>",
		Short: "Inspect a media file without transcribing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.probeCommand(cmd, args[0])
		},
	}

	bindLoggingFlags(cmd, app)
	bindConfigFlag(cmd, app)
	bindSilenceFlags(cmd, app)
	return cmd
}

func (a *appState) probeCommand(cmd *cobra.Command, mediaPath string) error {
	mediaPath = filepath.Clean(mediaPath)
	if _, err := os.Stat(mediaPath); err != nil {
		return fmt.Errorf("media file not found: %w", err)
	}

	out := cmd.OutOrStdout()
	kind := media.KindOf(mediaPath)
	fmt.Fprintf(out, "kind: %s\n", kind)

	if tags, ok, err := media.ProbeTags(mediaPath); err == nil && ok {
		if tags.Format != "" {
			fmt.Fprintf(out, "tag format: %s\n", tags.Format)
		}
		if tags.Title != "" {
			fmt.Fprintf(out, "title: %s\n", tags.Title)
		}
		if tags.Artist != "" {
			fmt.Fprintf(out, "artist: %s\n", tags.Artist)
		}
		if tags.Album != "" {
			fmt.Fprintf(out, "album: %s\n", tags.Album)
		}
	}

	if kind == media.KindAudio && strings.EqualFold(filepath.Ext(mediaPath), ".wav") {
		info, err := audio.Probe(mediaPath)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "format: %s %d-bit\n", info.Format, info.BitsPerSample)
		fmt.Fprintf(out, "channels: %d\n", info.Channels)
		fmt.Fprintf(out, "sample rate: %d Hz\n", info.SampleRate)
		fmt.Fprintf(out, "duration: %.3f s\n", info.Duration)
		fmt.Fprintf(out, "rms: %.1f dBFS\n", info.RMSdBFS)
		fmt.Fprintf(out, "peak: %.1f dBFS\n", info.PeakdBFS)
		fmt.Fprintf(out, "silent: %v\n", info.SilentAt(a.silenceDBFS))
	}

	return nil
}
