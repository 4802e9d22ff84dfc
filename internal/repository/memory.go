package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/cart-aggregation-service/internal/domain"
)

// MemoryStore implements CartStore with in-memory maps. One store-wide
// mutex is held for the whole logical transaction, so sequential
// upserts for a (user, product) pair are trivially linearizable. Used
// by the unit tests and as the no-Postgres dev mode.
//
// There is no rollback: a transaction that fails midway may leave
// partial writes behind. Good enough for tests and local runs, not for
// durability guarantees.
type MemoryStore struct {
	mu sync.Mutex

	products map[int64]domain.Product
	headers  map[int64]domain.CartHeader
	byUser   map[string]int64 // userID -> header id
	items    map[int64]domain.CartLineItem

	nextHeaderID int64
	nextItemID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[int64]domain.Product),
		headers:  make(map[int64]domain.CartHeader),
		byUser:   make(map[string]int64),
		items:    make(map[int64]domain.CartLineItem),
	}
}

func (s *MemoryStore) InTx(_ context.Context, fn func(tx CartTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memoryTx{s: s})
}

func (s *MemoryStore) GetCartByUserID(_ context.Context, userID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	headerID, ok := s.byUser[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	header := s.headers[headerID]
	items := s.listItems(headerID)
	return &domain.Cart{Header: header, Items: items}, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// listItems returns the header's line items in insertion (id) order.
// Caller must hold s.mu.
func (s *MemoryStore) listItems(headerID int64) []domain.CartLineItem {
	var items []domain.CartLineItem
	for id := int64(1); id <= s.nextItemID; id++ {
		item, ok := s.items[id]
		if !ok || item.HeaderID != headerID {
			continue
		}
		if p, ok := s.products[item.ProductID]; ok {
			snapshot := p
			item.Product = &snapshot
		}
		items = append(items, item)
	}
	return items
}

// memoryTx operates on the store directly; the store mutex is already
// held for the duration of the transaction.
type memoryTx struct {
	s *MemoryStore
}

func (t *memoryTx) FindProductByID(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (t *memoryTx) InsertProduct(_ context.Context, p *domain.Product) error {
	if _, exists := t.s.products[p.ID]; exists {
		return ErrDuplicateProduct
	}
	t.s.products[p.ID] = *p
	return nil
}

func (t *memoryTx) FindHeaderForUser(_ context.Context, userID string) (*domain.CartHeader, error) {
	headerID, ok := t.s.byUser[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	h := t.s.headers[headerID]
	return &h, nil
}

func (t *memoryTx) InsertHeader(_ context.Context, h *domain.CartHeader) error {
	if _, exists := t.s.byUser[h.UserID]; exists {
		return ErrDuplicateHeader
	}
	t.s.nextHeaderID++
	h.ID = t.s.nextHeaderID
	now := time.Now()
	h.CreatedAt = now
	h.UpdatedAt = now
	t.s.headers[h.ID] = *h
	t.s.byUser[h.UserID] = h.ID
	return nil
}

func (t *memoryTx) FindLineItem(_ context.Context, headerID, productID int64) (*domain.CartLineItem, error) {
	for _, item := range t.s.items {
		if item.HeaderID == headerID && item.ProductID == productID {
			found := item
			return &found, nil
		}
	}
	return nil, ErrItemNotFound
}

func (t *memoryTx) InsertLineItem(_ context.Context, item *domain.CartLineItem) error {
	for _, existing := range t.s.items {
		if existing.HeaderID == item.HeaderID && existing.ProductID == item.ProductID {
			return ErrDuplicateItem
		}
	}
	t.s.nextItemID++
	item.ID = t.s.nextItemID
	item.AddedAt = time.Now()
	t.s.items[item.ID] = *item
	return nil
}

func (t *memoryTx) UpdateLineItemCount(_ context.Context, id int64, count int) error {
	item, ok := t.s.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.Count = count
	t.s.items[id] = item
	return nil
}

func (t *memoryTx) DeleteLineItem(_ context.Context, id int64) (bool, error) {
	if _, ok := t.s.items[id]; !ok {
		return false, nil
	}
	delete(t.s.items, id)
	return true, nil
}

func (t *memoryTx) ListLineItemsByHeader(_ context.Context, headerID int64) ([]domain.CartLineItem, error) {
	return t.s.listItems(headerID), nil
}

func (t *memoryTx) DeleteLineItemsByHeader(_ context.Context, headerID int64) error {
	for id, item := range t.s.items {
		if item.HeaderID == headerID {
			delete(t.s.items, id)
		}
	}
	return nil
}

func (t *memoryTx) DeleteHeader(_ context.Context, headerID int64) error {
	h, ok := t.s.headers[headerID]
	if !ok {
		return nil
	}
	delete(t.s.headers, headerID)
	delete(t.s.byUser, h.UserID)
	return nil
}
