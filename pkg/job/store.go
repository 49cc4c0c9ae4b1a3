package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/matzehuels/tilestitch/pkg/cache"
	"github.com/matzehuels/tilestitch/pkg/observability"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// ResultStore persists successful tile outputs so that a re-run of the same
// job only computes tiles that are missing.
type ResultStore interface {
	Load(ctx context.Context, fingerprint, tileKey string) (tile.Value, bool, error)
	Save(ctx context.Context, fingerprint, tileKey string, v tile.Value) error
}

// CacheStore is a ResultStore on top of a cache.Cache. Values are encoded
// as zstd-compressed JSON. Raw values are not persisted.
type CacheStore struct {
	cache cache.Cache
	keyer cache.Keyer
	ttl   time.Duration
}

// NewCacheStore creates a store. A nil keyer uses cache.NewDefaultKeyer.
func NewCacheStore(c cache.Cache, k cache.Keyer) *CacheStore {
	if k == nil {
		k = cache.NewDefaultKeyer()
	}
	return &CacheStore{cache: c, keyer: k, ttl: cache.TTLResult}
}

// Load fetches a stored value.
func (s *CacheStore) Load(ctx context.Context, fingerprint, tileKey string) (tile.Value, bool, error) {
	data, hit, err := s.cache.Get(ctx, s.keyer.ResultKey(fingerprint, tileKey))
	if err != nil || !hit {
		if err == nil {
			observability.Cache().OnCacheMiss(ctx, "result")
		}
		return tile.Value{}, false, err
	}
	v, err := decodeValue(data)
	if err != nil {
		return tile.Value{}, false, err
	}
	observability.Cache().OnCacheHit(ctx, "result")
	return v, true, nil
}

// Save stores a value. Raw values are skipped.
func (s *CacheStore) Save(ctx context.Context, fingerprint, tileKey string, v tile.Value) error {
	if v.Kind == tile.KindRaw {
		return nil
	}
	data, err := encodeValue(v)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, s.keyer.ResultKey(fingerprint, tileKey), data, s.ttl); err != nil {
		return err
	}
	observability.Cache().OnCacheSet(ctx, "result", len(data))
	return nil
}

var _ ResultStore = (*CacheStore)(nil)

var zstdEncPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil)
		return enc
	},
}

var zstdDecPool = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	},
}

func encodeValue(v tile.Value) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tile value: %w", err)
	}
	enc := zstdEncPool.Get().(*zstd.Encoder)
	defer zstdEncPool.Put(enc)
	return enc.EncodeAll(raw, nil), nil
}

func decodeValue(data []byte) (tile.Value, error) {
	dec := zstdDecPool.Get().(*zstd.Decoder)
	defer zstdDecPool.Put(dec)
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return tile.Value{}, fmt.Errorf("zstd decode: %w", err)
	}
	var v tile.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return tile.Value{}, fmt.Errorf("decode tile value: %w", err)
	}
	return v, nil
}
