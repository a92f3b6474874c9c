package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dorsalhub/dorsal-whisper/internal/media"
	"github.com/dorsalhub/dorsal-whisper/internal/whisper"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <media-file>",
		Short: "Transcribe a media file into a structured record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.transcribeCommand(cmd, args[0])
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindConfigFlag(cmd, app)
	bindModelFlags(cmd, app)
	bindDecodeFlags(cmd, app)
	bindSilenceFlags(cmd, app)
	cmd.Flags().StringVarP(&app.output, "output", "o", app.output, "Write the record to a file instead of stdout")
	cmd.Flags().BoolVar(&app.force, "force", app.force, "Keep transcripts that exceed the schema text limit")
	return cmd
}

func (a *appState) transcribeCommand(cmd *cobra.Command, mediaPath string) error {
	mediaPath = filepath.Clean(mediaPath)
	if _, err := os.Stat(mediaPath); err != nil {
		return fmt.Errorf("audio file not found: %w", err)
	}

	if media.KindOf(mediaPath) == media.KindUnknown {
		return fmt.Errorf("unsupported media type: %q", filepath.Ext(mediaPath))
	}

	if a.silentMedia(mediaPath) {
		a.log().Warn(noSpeechHint())
		return nil
	}

	runFn := a.runFn
	if runFn == nil {
		runFn = a.runTranscription
	}

	log := a.log().With(zap.String("invocation_id", uuid.NewString()))
	log.Info("transcribing",
		zap.String("media", mediaPath),
		zap.String("model", a.modelSize),
		zap.String("task", a.task))

	progress, stopProgress := a.decodeProgress()
	defer stopProgress()
	started := time.Now()

	record, err := runFn(cmd.Context(), whisper.Request{
		FilePath:    mediaPath,
		ModelSize:   a.modelSize,
		ComputeType: a.computeType,
		BeamSize:    a.beamSize,
		VADFilter:   a.vadFilter,
		BatchSize:   a.batchSize,
		Force:       a.force,
		Decode: whisper.DecodeOptions{
			Task:           a.task,
			Language:       a.language,
			WordTimestamps: a.wordTimestamps,
			InitialPrompt:  a.initialPrompt,
		},
		Progress: progress,
	})
	stopProgress()
	if err != nil {
		log.Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return err
	}

	log.Info("transcription finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.String("language", record.Language),
		zap.Int("segments", len(record.Segments)))

	if isBlankTranscript(record.Text) {
		log.Warn(noSpeechHint())
	}

	return a.emitRecord(cmd, record)
}

func (a *appState) emitRecord(cmd *cobra.Command, record *whisper.Record) error {
	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	encoded = append(encoded, '\n')

	if a.output != "" {
		if err := os.WriteFile(a.output, encoded, 0o644); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		a.log().Info("record written", zap.String("path", a.output))
		return nil
	}

	_, err = cmd.OutOrStdout().Write(encoded)
	return err
}
