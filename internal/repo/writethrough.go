package repo

import (
	"context"

	"go.uber.org/zap"
)

// WriteThrough keeps the foreground's working copy in a fast KV and mirrors
// every write to a durable KV. A failed durable write is logged and the
// in-memory value stays authoritative.
type WriteThrough struct {
	Cache   KV
	Durable KV
	Logger  *zap.Logger
}

func NewWriteThrough(cache, durable KV, log *zap.Logger) *WriteThrough {
	if log == nil {
		log = zap.NewNop()
	}
	return &WriteThrough{Cache: cache, Durable: durable, Logger: log}
}

func (w *WriteThrough) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := w.Cache.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}
	v, ok, err := w.Durable.Get(ctx, key)
	if err != nil {
		w.Logger.Warn("store_durable_read_error", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	if ok {
		_ = w.Cache.Set(ctx, key, v)
	}
	return v, ok, nil
}

func (w *WriteThrough) Set(ctx context.Context, key string, value []byte) error {
	if err := w.Cache.Set(ctx, key, value); err != nil {
		return err
	}
	if err := w.Durable.Set(ctx, key, value); err != nil {
		w.Logger.Warn("store_durable_write_error", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (w *WriteThrough) Delete(ctx context.Context, key string) error {
	if err := w.Cache.Delete(ctx, key); err != nil {
		return err
	}
	if err := w.Durable.Delete(ctx, key); err != nil {
		w.Logger.Warn("store_durable_delete_error", zap.String("key", key), zap.Error(err))
	}
	return nil
}
