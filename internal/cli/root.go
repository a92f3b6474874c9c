package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dorsalhub/dorsal-whisper/internal/audio"
	"github.com/dorsalhub/dorsal-whisper/internal/config"
	"github.com/dorsalhub/dorsal-whisper/internal/logging"
	"github.com/dorsalhub/dorsal-whisper/internal/version"
	"github.com/dorsalhub/dorsal-whisper/internal/whisper"
	"github.com/dorsalhub/dorsal-whisper/internal/whisper/fasterwhisper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose    bool
	quiet      bool
	jsonLogs   bool
	noProgress bool
	configFile string

	modelSize      string
	computeType    string
	python         string
	beamSize       int
	vadFilter      bool
	batchSize      int
	task           string
	language       string
	wordTimestamps bool
	initialPrompt  string
	force          bool
	output         string
	silenceGate    bool
	silenceDBFS    float64

	logger *zap.Logger

	availableFn  func() (string, error)
	runFn        func(ctx context.Context, req whisper.Request) (*whisper.Record, error)
	isTerminalFn func() bool
	progressOut  io.Writer
}

func NewRootCmd() *cobra.Command {
	defaults := config.Defaults()
	app := &appState{
		modelSize:   defaults.ModelSize,
		computeType: defaults.ComputeType,
		beamSize:    defaults.BeamSize,
		vadFilter:   defaults.VADFilter,
		task:        defaults.Task,
		silenceGate: defaults.SilenceGate,
		silenceDBFS: defaults.SilenceDBFS,
	}
	app.availableFn = app.engineAvailable
	app.runFn = app.runTranscription

	cmd := &cobra.Command{
		Use:           "dorsal-whisper",
		Short:         "Transcribe speech to structured records with faster-whisper",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, Quiet: app.quiet, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			logger.Debug("dorsal-whisper starting", zap.String("version", version.Resolve()))

			if err := app.applyConfig(cmd); err != nil {
				return err
			}
			app.language = sanitizeLanguage(app.language)
			return nil
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newProbeCmd(app))
	cmd.AddCommand(newCheckCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.Flags().BoolVar(&app.quiet, "quiet", app.quiet, "Only log warnings and errors")
	cmd.Flags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindConfigFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.configFile, "config", app.configFile, "Path to a config file")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.modelSize, "model", app.modelSize, "Model size (tiny|base|small|medium|large-v3|...)")
	cmd.Flags().StringVar(&app.computeType, "compute-type", app.computeType, "Compute type (default|int8|float16|...)")
	cmd.Flags().StringVar(&app.python, "python", app.python, "Python interpreter hosting faster-whisper")
}

func bindDecodeFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().IntVar(&app.beamSize, "beam-size", app.beamSize, "Beam size for decoding")
	cmd.Flags().BoolVar(&app.vadFilter, "vad-filter", app.vadFilter, "Filter silence with voice activity detection")
	cmd.Flags().IntVar(&app.batchSize, "batch-size", app.batchSize, "Batch size for batched decoding; 0 decodes sequentially")
	cmd.Flags().StringVar(&app.task, "task", app.task, "Task: transcribe|translate")
	cmd.Flags().StringVar(&app.language, "language", app.language, "Spoken language code (auto|en|de|...)")
	cmd.Flags().BoolVar(&app.wordTimestamps, "word-timestamps", app.wordTimestamps, "Extract per-word timestamps")
	cmd.Flags().StringVar(&app.initialPrompt, "initial-prompt", app.initialPrompt, "Initial prompt to bias decoding")
}

func bindSilenceFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Detect near-silent WAV audio and skip transcription")
	cmd.Flags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
}

func (a *appState) applyConfig(cmd *cobra.Command) error {
	settings, err := config.Load(a.configFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	merge := func(name string, apply func()) {
		if f := flags.Lookup(name); f == nil || !f.Changed {
			apply()
		}
	}

	merge("model", func() { a.modelSize = settings.ModelSize })
	merge("compute-type", func() { a.computeType = settings.ComputeType })
	merge("python", func() { a.python = settings.Python })
	merge("beam-size", func() { a.beamSize = settings.BeamSize })
	merge("vad-filter", func() { a.vadFilter = settings.VADFilter })
	merge("batch-size", func() { a.batchSize = settings.BatchSize })
	merge("task", func() { a.task = settings.Task })
	merge("language", func() { a.language = settings.Language })
	merge("word-timestamps", func() { a.wordTimestamps = settings.WordTimestamps })
	merge("initial-prompt", func() { a.initialPrompt = settings.InitialPrompt })
	merge("silence-gate", func() { a.silenceGate = settings.SilenceGate })
	merge("silence-threshold-dbfs", func() { a.silenceDBFS = settings.SilenceDBFS })

	return nil
}

func (a *appState) runTranscription(ctx context.Context, req whisper.Request) (*whisper.Record, error) {
	loader := fasterwhisper.NewLoader(a.python, a.log())
	cache := whisper.NewModelCache(loader, a.log())
	defer cache.Evict()

	return whisper.NewTranscriber(cache, fasterwhisper.EngineName, a.log()).Run(ctx, req)
}

func (a *appState) engineAvailable() (string, error) {
	loader := fasterwhisper.NewLoader(a.python, a.log())
	if err := loader.Available(); err != nil {
		return "", err
	}
	return loader.Version(), nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	if a.isTerminalFn != nil {
		return a.isTerminalFn()
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) silentMedia(mediaPath string) bool {
	if !a.silenceGate {
		return false
	}

	if !strings.EqualFold(filepath.Ext(mediaPath), ".wav") {
		return false
	}

	info, err := audio.Probe(mediaPath)
	if err != nil {
		a.log().Warn("silence gate analysis failed, continuing transcription", zap.Error(err), zap.String("media", mediaPath))
		return false
	}

	if !info.SilentAt(a.silenceDBFS) {
		return false
	}

	a.log().Info(
		"audio considered silent, skipping transcription",
		zap.String("media", mediaPath),
		zap.Float64("rms_dbfs", info.RMSdBFS),
		zap.Float64("peak_dbfs", info.PeakdBFS),
		zap.Float64("threshold_dbfs", a.silenceDBFS),
	)

	return true
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "auto" {
		return ""
	}
	return trimmed
}
