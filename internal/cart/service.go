package cart

import (
	"context"

	"github.com/Sung-star/storefront-checkout/internal/keylock"
)

// Service runs cart operations for a session as load, mutate, save. Calls
// for the same session are serialized.
type Service struct {
	store *PersistedStore
	locks *keylock.Mutex
}

func NewService(store *PersistedStore) *Service {
	return &Service{store: store, locks: keylock.New()}
}

// Get returns the current cart of a session.
func (s *Service) Get(ctx context.Context, sessionID string) Cart {
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	return Cart{Lines: s.store.Load(ctx, sessionID)}
}

func (s *Service) mutate(ctx context.Context, sessionID string, fn func(*Cart)) Cart {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	c := Cart{Lines: s.store.Load(ctx, sessionID)}
	fn(&c)
	s.store.Save(ctx, sessionID, c.Lines)
	if c.Lines == nil {
		c.Lines = []Line{}
	}
	return c
}

func (s *Service) AddToCart(ctx context.Context, sessionID string, p Product) Cart {
	return s.mutate(ctx, sessionID, func(c *Cart) { c.Add(p) })
}

func (s *Service) RemoveFromCart(ctx context.Context, sessionID, productID string) Cart {
	return s.mutate(ctx, sessionID, func(c *Cart) { c.Remove(productID) })
}

func (s *Service) UpdateQuantity(ctx context.Context, sessionID, productID string, n int) Cart {
	return s.mutate(ctx, sessionID, func(c *Cart) { c.SetQuantity(productID, n) })
}

// ClampToStock applies Cart.ClampToStock and saves only when a line changed.
func (s *Service) ClampToStock(ctx context.Context, sessionID string) (Cart, bool) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	c := Cart{Lines: s.store.Load(ctx, sessionID)}
	changed := c.ClampToStock()
	if changed {
		s.store.Save(ctx, sessionID, c.Lines)
	}
	if c.Lines == nil {
		c.Lines = []Line{}
	}
	return c, changed
}

func (s *Service) ClearCart(ctx context.Context, sessionID string) Cart {
	return s.mutate(ctx, sessionID, func(c *Cart) { c.Clear() })
}

func (s *Service) Total(ctx context.Context, sessionID string) int64 {
	return s.Get(ctx, sessionID).Total()
}

func (s *Service) ItemCount(ctx context.Context, sessionID string) int {
	return s.Get(ctx, sessionID).ItemCount()
}

func (s *Service) IsInCart(ctx context.Context, sessionID, productID string) bool {
	return s.Get(ctx, sessionID).Has(productID)
}
