package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"go.uber.org/zap"
)

const scoreExplanation = "Probability derived from avg_logprob (exp)"

type Transcriber struct {
	cache  *ModelCache
	engine string
	logger *zap.Logger
}

func NewTranscriber(cache *ModelCache, engine string, logger *zap.Logger) *Transcriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcriber{cache: cache, engine: engine, logger: logger}
}

func (t *Transcriber) Run(ctx context.Context, req Request) (*Record, error) {
	if err := t.cache.loader.Available(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	size := req.ModelSize
	if size == "" {
		size = DefaultModelSize
	}
	beam := req.BeamSize
	if beam < 1 {
		beam = DefaultBeamSize
	}

	model, err := t.cache.Acquire(ctx, size, req.ComputeType)
	if err != nil {
		return nil, err
	}
	if req.BatchSize > 0 {
		model = WithBatching(model, req.BatchSize)
	}

	t.logger.Debug("transcribing",
		zap.String("path", req.FilePath),
		zap.String("model", size),
		zap.Int("beam_size", beam),
		zap.Bool("vad_filter", req.VADFilter))

	args := DecodeArgs{BeamSize: beam, VADFilter: req.VADFilter, Options: req.Decode}
	source, info, err := model.Transcribe(ctx, req.FilePath, args)
	if err != nil {
		return nil, &TranscribeError{Path: req.FilePath, Err: err}
	}
	defer source.Close()

	total := round2(info.Duration)
	var raw []RawSegment
	for {
		seg, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &TranscribeError{Path: req.FilePath, Err: err}
		}
		raw = append(raw, seg)
		if req.Progress != nil {
			req.Progress(seg.End, total)
		}
	}

	segments := make([]OutputSegment, 0, len(raw))
	parts := make([]string, 0, len(raw))
	for _, seg := range raw {
		text := strings.TrimSpace(seg.Text)
		parts = append(parts, text)

		start, end := seg.Start, seg.End
		if req.Decode.WordTimestamps && len(seg.Words) > 0 {
			start = seg.Words[0].Start
			end = seg.Words[len(seg.Words)-1].End
		}

		segments = append(segments, OutputSegment{
			Text:      text,
			StartTime: round3(start),
			EndTime:   round3(end),
			Score:     round4(math.Exp(seg.AvgLogprob)),
		})
	}

	text := strings.Join(parts, " ")
	if runes := []rune(text); len(runes) > MaxTextLength {
		if req.Force {
			t.logger.Warn("transcript exceeds schema limit, keeping full text",
				zap.Int("length", len(runes)), zap.Int("limit", MaxTextLength))
		} else {
			t.logger.Warn("transcript exceeds schema limit, truncating",
				zap.Int("length", len(runes)), zap.Int("limit", MaxTextLength))
			text = string(runes[:MaxTextLength])
		}
	}

	return &Record{
		Producer:         t.engine + "-" + size,
		Text:             text,
		Language:         NormalizeLanguage(info.Language),
		Duration:         info.Duration,
		ScoreExplanation: scoreExplanation,
		Segments:         segments,
		Attributes:       Attributes{LanguageProbability: round4(info.LanguageProbability)},
	}, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
