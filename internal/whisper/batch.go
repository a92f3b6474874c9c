package whisper

import "context"

type batchedModel struct {
	Model
	batchSize int
}

// WithBatching wraps a model so every decode carries the given batch size,
// selecting the engine's batched inference path.
func WithBatching(model Model, batchSize int) Model {
	if batchSize <= 0 {
		return model
	}
	return &batchedModel{Model: model, batchSize: batchSize}
}

func (b *batchedModel) Transcribe(ctx context.Context, path string, args DecodeArgs) (SegmentSource, Info, error) {
	args.BatchSize = b.batchSize
	return b.Model.Transcribe(ctx, path, args)
}
