package whisper

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func newTestTranscriber(loader *fakeLoader) *Transcriber {
	return NewTranscriber(NewModelCache(loader, nil), "faster-whisper", nil)
}

func loaderForModel(model *fakeModel) *fakeLoader {
	return &fakeLoader{
		loadFn: func(LoadSpec) (Model, error) { return model, nil },
	}
}

func TestRunReportsMissingEngineDependency(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{
		available: errors.New("missing dependency: faster-whisper (pip install faster-whisper)"),
	}
	transcriber := newTestTranscriber(loader)

	record, err := transcriber.Run(context.Background(), Request{FilePath: "sample.wav"})
	require.Nil(t, record)
	require.ErrorIs(t, err, ErrEngineUnavailable)
	require.Contains(t, err.Error(), "faster-whisper")
	require.Empty(t, loader.recordedLoads())
}

func TestRunProducesRecord(t *testing.T) {
	t.Parallel()

	source := &sliceSource{segments: []RawSegment{
		{Text: "  Hello world.  ", Start: 0, End: 2.4, AvgLogprob: -0.5},
		{Text: " Second segment. ", Start: 2.4, End: 4.1, AvgLogprob: 0},
	}}
	model := &fakeModel{
		transcribeFn: func(string, DecodeArgs) (SegmentSource, Info, error) {
			return source, Info{Language: "en", LanguageProbability: 0.987654, Duration: 4.125}, nil
		},
	}
	transcriber := newTestTranscriber(loaderForModel(model))

	record, err := transcriber.Run(context.Background(), Request{FilePath: "sample.wav", VADFilter: true})
	require.NoError(t, err)

	require.Equal(t, "faster-whisper-base", record.Producer)
	require.Equal(t, "eng", record.Language)
	require.Equal(t, 4.125, record.Duration)
	require.Equal(t, "Hello world. Second segment.", record.Text)
	require.Equal(t, "Probability derived from avg_logprob (exp)", record.ScoreExplanation)
	require.Equal(t, 0.9877, record.Attributes.LanguageProbability)

	require.Len(t, record.Segments, 2)
	require.Equal(t, OutputSegment{Text: "Hello world.", StartTime: 0, EndTime: 2.4, Score: 0.6065}, record.Segments[0])
	require.Equal(t, OutputSegment{Text: "Second segment.", StartTime: 2.4, EndTime: 4.1, Score: 1}, record.Segments[1])

	require.True(t, source.closed)
	require.Equal(t, "sample.wav", model.lastPath)
}

func TestRunScoresStayWithinUnitInterval(t *testing.T) {
	t.Parallel()

	source := &sliceSource{segments: []RawSegment{
		{Text: "a", Start: 0, End: 1, AvgLogprob: -4.2},
		{Text: "b", Start: 1, End: 2, AvgLogprob: -0.0001},
		{Text: "c", Start: 2, End: 3, AvgLogprob: 0},
	}}
	model := &fakeModel{
		transcribeFn: func(string, DecodeArgs) (SegmentSource, Info, error) {
			return source, Info{Language: "en", Duration: 3}, nil
		},
	}
	transcriber := newTestTranscriber(loaderForModel(model))

	record, err := transcriber.Run(context.Background(), Request{FilePath: "sample.wav"})
	require.NoError(t, err)

	for _, seg := range record.Segments {
		require.Greater(t, seg.Score, 0.0)
		require.LessOrEqual(t, seg.Score, 1.0)
	}
	require.Equal(t, 0.015, record.Segments[0].Score)
	require.Equal(t, 0.9999, record.Segments[1].Score)
	require.Equal(t, 1.0, record.Segments[2].Score)
}

func TestRunSharpensSegmentBoundsFromWords(t *testing.T) {
	t.Parallel()

	words := []Word{
		{Start: 1.0, End: 1.4, Word: " Hello", Probability: 0.91},
		{Start: 2.8, End: 3.2, Word: " world", Probability: 0.87},
	}

	tests := []struct {
		name           string
		wordTimestamps bool
		words          []Word
		wantStart      float64
		wantEnd        float64
	}{
		{name: "requested with words", wordTimestamps: true, words: words, wantStart: 1.0, wantEnd: 3.2},
		{name: "requested without words", wordTimestamps: true, words: nil, wantStart: 0.9, wantEnd: 3.3},
		{name: "not requested", wordTimestamps: false, words: words, wantStart: 0.9, wantEnd: 3.3},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			source := &sliceSource{segments: []RawSegment{
				{Text: "Hello world", Start: 0.9, End: 3.3, AvgLogprob: -0.2, Words: tt.words},
			}}
			model := &fakeModel{
				transcribeFn: func(string, DecodeArgs) (SegmentSource, Info, error) {
					return source, Info{Language: "en", Duration: 3.3}, nil
				},
			}
			transcriber := newTestTranscriber(loaderForModel(model))

			record, err := transcriber.Run(context.Background(), Request{
				FilePath: "sample.wav",
				Decode:   DecodeOptions{WordTimestamps: tt.wordTimestamps},
			})
			require.NoError(t, err)
			require.Len(t, record.Segments, 1)
			require.Equal(t, tt.wantStart, record.Segments[0].StartTime)
			require.Equal(t, tt.wantEnd, record.Segments[0].EndTime)
		})
	}
}

func TestRunTruncatesOverlongTranscript(t *testing.T) {
	t.Parallel()

	source := &sliceSource{segments: []RawSegment{
		{Text: strings.Repeat("a", MaxTextLength), Start: 0, End: 100, AvgLogprob: -0.1},
		{Text: "tail", Start: 100, End: 101, AvgLogprob: -0.1},
	}}
	model := &fakeModel{
		transcribeFn: func(string, DecodeArgs) (SegmentSource, Info, error) {
			return source, Info{Language: "en", Duration: 101}, nil
		},
	}
	transcriber := newTestTranscriber(loaderForModel(model))

	record, err := transcriber.Run(context.Background(), Request{FilePath: "sample.wav"})
	require.NoError(t, err)

	require.Equal(t, MaxTextLength, utf8.RuneCountInString(record.Text))
	require.True(t, strings.HasSuffix(record.Text, "a"))
	require.Len(t, record.Segments, 2)
}

func TestRunTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	source := &sliceSource{segments: []RawSegment{
		{Text: strings.Repeat("ü", MaxTextLength+10), Start: 0, End: 100, AvgLogprob: -0.1},
	}}
	model := &fakeModel{
		transcribeFn: func(string, DecodeArgs) (SegmentSource, Info, error) {
			return source, Info{Language: "de", Duration: 100}, nil
		},
	}
	transcriber := newTestTranscriber(loaderForModel(model))

	record, err := transcriber.Run(context.Background(), Request{FilePath: "sample.wav"})
	require.NoError(t, err)

	require.Equal(t, MaxTextLength, utf8.RuneCountInString(record.Text))
	require.True(t, strings.HasSuffix(record.Text, "ü"))
}

func TestRunForceKeepsOverlongTranscript(t *testing.T) {
	t.Parallel()

	source := &sliceSource{segments: []RawSegment{
		{Text: strings.Repeat("a", MaxTextLength), Start: 0, End: 100, AvgLogprob: -0.1},
		{Text: "tail", Start: 100, End: 101, AvgLogprob: -0.1},
	}}
	model := &fakeModel{
		transcribeFn: func(string, DecodeArgs) (SegmentSource, Info, error) {
			return source, Info{Language: "en", Duration: 101}, nil
		},
	}
	transcriber := newTestTranscriber(loaderForModel(model))

	record, err := transcriber.Run(context.Background(), Request{FilePath: "sample.wav", Force: true})
	require.NoError(t, err)
	require.Equal(t, MaxTextLength+len(" tail"), utf8.RuneCountInString(record.Text))
}

func TestRunReportsProgressPerSegment(t *testing.T) {
	t.Parallel()

	source := &sliceSource{segments: []RawSegment{
		{Text: "a", Start: 0, End: 1.5, AvgLogprob: -0.1},
		{Text: "b", Start: 1.5, End: 3.0, AvgLogprob: -0.1},
		{Text: "c", Start: 3.0, End: 4.5, AvgLogprob: -0.1},
	}}
	model := &fakeModel{
		transcribeFn: func(string, DecodeArgs) (SegmentSource, Info, error) {
			return source, Info{Language: "en", Duration: 4.5049}, nil
		},
	}
	transcriber := newTestTranscriber(loaderForModel(model))

	type report struct{ current, total float64 }
	var reports []report

	_, err := transcriber.Run(context.Background(), Request{
		FilePath: "sample.wav",
		Progress: func(current, total float64) {
			reports = append(reports, report{current, total})
		},
	})
	require.NoError(t, err)

	require.Equal(t, []report{{1.5, 4.5}, {3.0, 4.5}, {4.5, 4.5}}, reports)
	for i := 1; i < len(reports); i++ {
		require.GreaterOrEqual(t, reports[i].current, reports[i-1].current)
	}
}

func TestRunKeepsSegmentsInStreamOrder(t *testing.T) {
	t.Parallel()

	source := &sliceSource{segments: []RawSegment{
		{Text: "one", Start: 0, End: 1, AvgLogprob: -0.1},
		{Text: "two", Start: 1, End: 2.5, AvgLogprob: -0.1},
		{Text: "three", Start: 2.5, End: 4, AvgLogprob: -0.1},
	}}
	model := &fakeModel{
		transcribeFn: func(string, DecodeArgs) (SegmentSource, Info, error) {
			return source, Info{Language: "en", Duration: 4}, nil
		},
	}
	transcriber := newTestTranscriber(loaderForModel(model))

	record, err := transcriber.Run(context.Background(), Request{FilePath: "sample.wav"})
	require.NoError(t, err)

	require.Equal(t, "one two three", record.Text)
	for i, seg := range record.Segments {
		require.GreaterOrEqual(t, seg.EndTime, seg.StartTime)
		if i > 0 {
			require.GreaterOrEqual(t, seg.StartTime, record.Segments[i-1].StartTime)
		}
	}
}

func TestRunBatchSizeSelectsBatchedDecode(t *testing.T) {
	t.Parallel()

	model := &fakeModel{}
	transcriber := newTestTranscriber(loaderForModel(model))

	_, err := transcriber.Run(context.Background(), Request{FilePath: "sample.wav", BatchSize: 4})
	require.NoError(t, err)
	require.Equal(t, 4, model.lastArgs.BatchSize)

	_, err = transcriber.Run(context.Background(), Request{FilePath: "sample.wav"})
	require.NoError(t, err)
	require.Equal(t, 0, model.lastArgs.BatchSize)
}

func TestRunAppliesRequestDefaults(t *testing.T) {
	t.Parallel()

	model := &fakeModel{}
	loader := loaderForModel(model)
	transcriber := newTestTranscriber(loader)

	record, err := transcriber.Run(context.Background(), Request{FilePath: "sample.wav"})
	require.NoError(t, err)

	require.Equal(t, "faster-whisper-base", record.Producer)
	require.Equal(t, DefaultBeamSize, model.lastArgs.BeamSize)

	loads := loader.recordedLoads()
	require.Len(t, loads, 1)
	require.Equal(t, "base", loads[0].ModelSize)
}

func TestRunForwardsDecodeOptions(t *testing.T) {
	t.Parallel()

	model := &fakeModel{}
	transcriber := newTestTranscriber(loaderForModel(model))

	decode := DecodeOptions{
		Task:           "translate",
		Language:       "de",
		WordTimestamps: true,
		InitialPrompt:  "Meeting notes.",
		Extra:          map[string]any{"temperature": 0.2},
	}
	_, err := transcriber.Run(context.Background(), Request{
		FilePath:  "sample.wav",
		BeamSize:  3,
		VADFilter: true,
		Decode:    decode,
	})
	require.NoError(t, err)

	require.Equal(t, decode, model.lastArgs.Options)
	require.Equal(t, 3, model.lastArgs.BeamSize)
	require.True(t, model.lastArgs.VADFilter)
}

func TestRunDecodeFailureReturnsTranscribeError(t *testing.T) {
	t.Parallel()

	model := &fakeModel{
		transcribeFn: func(string, DecodeArgs) (SegmentSource, Info, error) {
			return nil, Info{}, errors.New("audio file unreadable")
		},
	}
	transcriber := newTestTranscriber(loaderForModel(model))

	record, err := transcriber.Run(context.Background(), Request{FilePath: "broken.wav"})
	require.Nil(t, record)

	var trErr *TranscribeError
	require.ErrorAs(t, err, &trErr)
	require.Equal(t, "broken.wav", trErr.Path)
	require.Contains(t, err.Error(), "audio file unreadable")
}

func TestRunMidStreamFailureReturnsNoRecord(t *testing.T) {
	t.Parallel()

	source := &sliceSource{
		segments:  []RawSegment{{Text: "partial", Start: 0, End: 1, AvgLogprob: -0.1}},
		failAfter: errors.New("decoder crashed"),
	}
	model := &fakeModel{
		transcribeFn: func(string, DecodeArgs) (SegmentSource, Info, error) {
			return source, Info{Language: "en", Duration: 10}, nil
		},
	}
	transcriber := newTestTranscriber(loaderForModel(model))

	record, err := transcriber.Run(context.Background(), Request{FilePath: "sample.wav"})
	require.Nil(t, record)

	var trErr *TranscribeError
	require.ErrorAs(t, err, &trErr)
	require.Contains(t, err.Error(), "decoder crashed")
	require.True(t, source.closed)
}

func TestRunLoadFailurePropagates(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{
		loadFn: func(LoadSpec) (Model, error) {
			return nil, errors.New("download interrupted")
		},
	}
	transcriber := newTestTranscriber(loader)

	record, err := transcriber.Run(context.Background(), Request{FilePath: "sample.wav", ModelSize: "large-v3"})
	require.Nil(t, record)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "large-v3-default", loadErr.Key)
}

func TestRunEmptyStreamYieldsEmptyRecord(t *testing.T) {
	t.Parallel()

	model := &fakeModel{
		transcribeFn: func(string, DecodeArgs) (SegmentSource, Info, error) {
			return &sliceSource{}, Info{Language: "en", LanguageProbability: 0.5, Duration: 1.2}, nil
		},
	}
	transcriber := newTestTranscriber(loaderForModel(model))

	record, err := transcriber.Run(context.Background(), Request{FilePath: "silence.wav"})
	require.NoError(t, err)
	require.Empty(t, record.Text)
	require.Empty(t, record.Segments)
	require.NotNil(t, record.Segments)
	require.Equal(t, 1.2, record.Duration)
}
