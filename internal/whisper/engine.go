package whisper

import "context"

type LoadSpec struct {
	ModelSize   string
	Device      string
	ComputeType string
}

type Loader interface {
	Available() error
	Load(ctx context.Context, spec LoadSpec) (Model, error)
}

type DecodeArgs struct {
	BeamSize  int
	VADFilter bool
	BatchSize int
	Options   DecodeOptions
}

type Model interface {
	Transcribe(ctx context.Context, path string, args DecodeArgs) (SegmentSource, Info, error)
	Close() error
}

// SegmentSource streams decoded segments in order. Next returns io.EOF once
// the stream is exhausted. Sources are finite and cannot be restarted.
type SegmentSource interface {
	Next() (RawSegment, error)
	Close() error
}
