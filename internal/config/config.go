package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dorsalhub/dorsal-whisper/internal/platform"
	"github.com/dorsalhub/dorsal-whisper/internal/whisper"
)

const envPrefix = "DORSAL_WHISPER"

type Settings struct {
	ModelSize      string  `mapstructure:"model_size"`
	ComputeType    string  `mapstructure:"compute_type"`
	BeamSize       int     `mapstructure:"beam_size"`
	VADFilter      bool    `mapstructure:"vad_filter"`
	BatchSize      int     `mapstructure:"batch_size"`
	Task           string  `mapstructure:"task"`
	Language       string  `mapstructure:"language"`
	WordTimestamps bool    `mapstructure:"word_timestamps"`
	InitialPrompt  string  `mapstructure:"initial_prompt"`
	Python         string  `mapstructure:"python"`
	SilenceGate    bool    `mapstructure:"silence_gate"`
	SilenceDBFS    float64 `mapstructure:"silence_threshold_dbfs"`
}

func Defaults() Settings {
	return Settings{
		ModelSize:   whisper.DefaultModelSize,
		ComputeType: whisper.DefaultComputeType,
		BeamSize:    whisper.DefaultBeamSize,
		VADFilter:   true,
		Task:        "transcribe",
		SilenceGate: true,
		SilenceDBFS: -65,
	}
}

// Load merges settings from, in rising precedence, built-in defaults, a
// config file, and DORSAL_WHISPER_* environment variables. A .env file in
// the working directory is read first so local overrides reach the
// environment lookup.
func Load(configFile string) (Settings, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	v := viper.New()
	applyDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := platform.ResolveConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Settings{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("parse config: %w", err)
	}

	return settings, nil
}

func applyDefaults(v *viper.Viper) {
	defaults := Defaults()
	v.SetDefault("model_size", defaults.ModelSize)
	v.SetDefault("compute_type", defaults.ComputeType)
	v.SetDefault("beam_size", defaults.BeamSize)
	v.SetDefault("vad_filter", defaults.VADFilter)
	v.SetDefault("batch_size", defaults.BatchSize)
	v.SetDefault("task", defaults.Task)
	v.SetDefault("language", defaults.Language)
	v.SetDefault("word_timestamps", defaults.WordTimestamps)
	v.SetDefault("initial_prompt", defaults.InitialPrompt)
	v.SetDefault("python", defaults.Python)
	v.SetDefault("silence_gate", defaults.SilenceGate)
	v.SetDefault("silence_threshold_dbfs", defaults.SilenceDBFS)
}
