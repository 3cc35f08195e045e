package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/logger"
	"github.com/Sung-star/storefront-checkout/internal/storage"
)

// DraftStore keeps the draft of a session under storage.KeyCheckoutDraft.
type DraftStore struct {
	kv  storage.KV
	log *zap.Logger
}

func NewDraftStore(kv storage.KV, log *zap.Logger) *DraftStore {
	return &DraftStore{kv: kv, log: logger.OrNop(log)}
}

// Load returns the stored draft or nil. Unreadable drafts are discarded.
func (s *DraftStore) Load(ctx context.Context, sessionID string) *Draft {
	raw, err := s.kv.Get(ctx, sessionID, storage.KeyCheckoutDraft)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("load draft failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil
	}
	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil || !d.Step.Valid() {
		s.log.Warn("discarding unreadable draft", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	return &d
}

func (s *DraftStore) Save(ctx context.Context, sessionID string, d *Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.kv.Put(ctx, sessionID, storage.KeyCheckoutDraft, raw); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (s *DraftStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.kv.Delete(ctx, sessionID, storage.KeyCheckoutDraft); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
