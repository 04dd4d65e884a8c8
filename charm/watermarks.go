// ABOUTME: Watermark store kept in Charm KV so several machines share sync progress
// ABOUTME: One key per category holding an RFC3339 timestamp; a missing key means never synced

package charm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/harperreed/crmsync/db"
)

const watermarkPrefix = "watermark:"

// WatermarkStore implements the engine's watermark store on charm KV.
type WatermarkStore struct {
	client *Client
}

func NewWatermarkStore(c *Client) *WatermarkStore {
	return &WatermarkStore{client: c}
}

func watermarkKey(category string) []byte {
	return []byte(watermarkPrefix + category)
}

// GetWatermark returns the stored timestamp, or ok=false when none exists.
func (w *WatermarkStore) GetWatermark(ctx context.Context, category string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	raw, err := w.client.Get(watermarkKey(category))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: charm kv: %v", db.ErrStoreUnavailable, err)
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse watermark %q: %w", raw, err)
	}
	return t, true, nil
}

// SetWatermark overwrites the timestamp for a category.
func (w *WatermarkStore) SetWatermark(ctx context.Context, category string, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := []byte(t.UTC().Format(time.RFC3339Nano))
	if err := w.client.Set(watermarkKey(category), value); err != nil {
		return fmt.Errorf("%w: charm kv: %v", db.ErrStoreUnavailable, err)
	}
	return nil
}

// ListWatermarks returns every stored watermark keyed by category.
func (w *WatermarkStore) ListWatermarks(ctx context.Context) (map[string]time.Time, error) {
	keys, err := w.client.KeysWithPrefix([]byte(watermarkPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: charm kv: %v", db.ErrStoreUnavailable, err)
	}
	out := make(map[string]time.Time, len(keys))
	for _, k := range keys {
		category := strings.TrimPrefix(string(k), watermarkPrefix)
		t, ok, err := w.GetWatermark(ctx, category)
		if err != nil {
			return nil, err
		}
		if ok {
			out[category] = t
		}
	}
	return out, nil
}

// ResetWatermark forgets a category so the next run starts from the default.
func (w *WatermarkStore) ResetWatermark(ctx context.Context, category string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := w.client.Delete(watermarkKey(category))
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: charm kv: %v", db.ErrStoreUnavailable, err)
	}
	return nil
}
