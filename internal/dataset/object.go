package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/tabletalk/tabletalk/internal/storage"
)

// ObjectSource fetches datasets out of an object store, picking the
// format from the key's extension.
type ObjectSource struct {
	store  storage.ObjectStore
	limits Limits
}

func NewObjectSource(store storage.ObjectStore, lim Limits) *ObjectSource {
	return &ObjectSource{store: store, limits: lim.withDefaults()}
}

// Fetch stats the object first so oversized payloads are rejected before
// any bytes move. The dataset name is the key's base without extension.
func (s *ObjectSource) Fetch(ctx context.Context, key string) (Dataset, error) {
	if err := storage.ValidateKey(key); err != nil {
		return Dataset{}, err
	}
	ext := strings.ToLower(path.Ext(key))
	if ext != ".csv" && ext != ".parquet" {
		return Dataset{}, fmt.Errorf("%w %q, want .csv or .parquet", ErrUnsupportedFormat, ext)
	}

	info, err := s.store.Stat(ctx, key)
	if err != nil {
		return Dataset{}, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.Size > s.limits.MaxBytes {
		return Dataset{}, fmt.Errorf("object %s is %d bytes, limit is %d: %w", key, info.Size, s.limits.MaxBytes, ErrTooLarge)
	}

	body, err := s.store.Get(ctx, key)
	if err != nil {
		return Dataset{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() {
		_ = body.Close()
	}()

	name := strings.TrimSuffix(path.Base(key), path.Ext(key))
	if ext == ".csv" {
		return FromCSV(name, body, s.limits)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Dataset{}, fmt.Errorf("read %s: %w", key, err)
	}
	return FromParquet(name, bytes.NewReader(data), int64(len(data)), s.limits)
}
