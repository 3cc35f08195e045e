package cart

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/logger"
	"github.com/Sung-star/storefront-checkout/internal/storage"
)

// PersistedStore reads and writes the cart lines of a session under
// storage.KeyCart. It never fails: reads fall back to an empty cart and
// write errors are logged.
type PersistedStore struct {
	kv  storage.KV
	log *zap.Logger
}

func NewPersistedStore(kv storage.KV, log *zap.Logger) *PersistedStore {
	return &PersistedStore{kv: kv, log: logger.OrNop(log)}
}

// Load returns the stored lines, or an empty slice when the value is absent,
// unreadable or not a JSON array.
func (s *PersistedStore) Load(ctx context.Context, sessionID string) []Line {
	raw, err := s.kv.Get(ctx, sessionID, storage.KeyCart)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("load cart failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return []Line{}
	}
	var lines []Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		s.log.Warn("discarding unreadable cart", zap.String("session_id", sessionID), zap.Error(err))
		return []Line{}
	}
	if lines == nil {
		lines = []Line{}
	}
	return lines
}

// Save overwrites the stored lines.
func (s *PersistedStore) Save(ctx context.Context, sessionID string, lines []Line) {
	if lines == nil {
		lines = []Line{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		s.log.Error("marshal cart failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if err := s.kv.Put(ctx, sessionID, storage.KeyCart, raw); err != nil {
		s.log.Error("save cart failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}
