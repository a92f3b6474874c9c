package whisper

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ModelCache keeps at most one loaded model resident, keyed by model size and
// compute type. Acquiring a different key closes the resident model before
// the new one is loaded.
type ModelCache struct {
	loader Loader
	logger *zap.Logger

	mu    sync.Mutex
	key   string
	model Model
}

func NewModelCache(loader Loader, logger *zap.Logger) *ModelCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelCache{loader: loader, logger: logger}
}

func (c *ModelCache) Acquire(ctx context.Context, size, computeType string) (Model, error) {
	if size == "" {
		size = DefaultModelSize
	}
	if computeType == "" {
		computeType = DefaultComputeType
	}
	key := size + "-" + computeType

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model != nil && c.key == key {
		c.logger.Debug("loading from cache", zap.String("model", key))
		return c.model, nil
	}

	if c.model != nil {
		c.logger.Info("evicting cached model", zap.String("evicted", c.key), zap.String("requested", key))
		c.dropLocked()
	}

	c.logger.Info("loading model", zap.String("model", key))

	model, err := c.loader.Load(ctx, LoadSpec{ModelSize: size, Device: "auto", ComputeType: computeType})
	if err != nil {
		if !errors.Is(err, ErrUnsupportedDevice) {
			return nil, &LoadError{Key: key, Err: err}
		}
		c.logger.Warn("acceleration unavailable, falling back to cpu int8",
			zap.String("model", key), zap.Error(err))
		model, err = c.loader.Load(ctx, LoadSpec{ModelSize: size, Device: "cpu", ComputeType: "int8"})
		if err != nil {
			return nil, &LoadError{Key: key, Err: err}
		}
	}

	c.logger.Info("model loaded", zap.String("model", key))
	c.key = key
	c.model = model
	return model, nil
}

func (c *ModelCache) Resident() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key, c.model != nil
}

func (c *ModelCache) Evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model == nil {
		return
	}
	c.logger.Info("evicting cached model", zap.String("model", c.key))
	c.dropLocked()
}

func (c *ModelCache) dropLocked() {
	if err := c.model.Close(); err != nil {
		c.logger.Warn("closing evicted model", zap.String("model", c.key), zap.Error(err))
	}
	c.model = nil
	c.key = ""
}
