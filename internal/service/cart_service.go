package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/cart-aggregation-service/internal/domain"
	"github.com/fjod/go_cart/cart-aggregation-service/internal/repository"
)

// UpsertRequest is the desired-cart shape for AddItem and
// UpdateQuantity: one line item plus the product snapshot supplied by
// the caller (the catalog is not called from here).
type UpsertRequest struct {
	UserID     string
	CouponCode string
	Product    domain.Product
	Count      int
}

type mergeMode int

const (
	// mergeAccumulate sums the desired count onto the existing one:
	// repeated adds accumulate, they do not overwrite.
	mergeAccumulate mergeMode = iota
	// mergeReplace sets the count to the desired value.
	mergeReplace
)

type CartService struct {
	store repository.CartStore
	sfg   singleflight.Group // collapses concurrent reads for the same user
}

func NewCartService(store repository.CartStore) *CartService {
	return &CartService{store: store}
}

// GetCart assembles the user's full cart. Returns
// repository.ErrCartNotFound when the user has no cart; callers treat
// that as "empty cart", not as a fault.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		return s.store.GetCartByUserID(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// AddItem merges the desired line item into the user's cart. Adding a
// product that is already in the cart accumulates the count.
func (s *CartService) AddItem(ctx context.Context, req UpsertRequest) (*domain.Cart, error) {
	return s.upsert(ctx, req, mergeAccumulate)
}

// UpdateQuantity sets the line item's count to exactly req.Count. Used
// for explicit "set quantity" edits; otherwise follows the same
// resolution flow as AddItem.
func (s *CartService) UpdateQuantity(ctx context.Context, req UpsertRequest) (*domain.Cart, error) {
	return s.upsert(ctx, req, mergeReplace)
}

func (s *CartService) upsert(ctx context.Context, req UpsertRequest, mode mergeMode) (*domain.Cart, error) {
	if req.UserID == "" {
		return nil, ErrEmptyUserID
	}
	if req.Product.ID <= 0 {
		return nil, ErrInvalidProductID
	}
	if req.Count <= 0 {
		return nil, ErrInvalidQuantity
	}

	var cart *domain.Cart
	err := s.store.InTx(ctx, func(tx repository.CartTx) error {
		if err := resolveProduct(ctx, tx, req.Product); err != nil {
			return err
		}

		header, err := resolveHeader(ctx, tx, req)
		if err != nil {
			return err
		}

		item, err := tx.FindLineItem(ctx, header.ID, req.Product.ID)
		switch {
		case errors.Is(err, repository.ErrItemNotFound):
			item = &domain.CartLineItem{
				HeaderID:  header.ID,
				ProductID: req.Product.ID,
				Count:     req.Count,
			}
			if err := tx.InsertLineItem(ctx, item); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			count := req.Count
			if mode == mergeAccumulate {
				count += item.Count
			}
			if err := tx.UpdateLineItemCount(ctx, item.ID, count); err != nil {
				return err
			}
		}

		items, err := tx.ListLineItemsByHeader(ctx, header.ID)
		if err != nil {
			return err
		}
		cart = &domain.Cart{Header: *header, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// resolveProduct caches the caller-supplied snapshot if no copy exists
// yet. An existing copy is never overwritten: the catalog owns the
// product, and stale pricing here is an accepted tradeoff.
func resolveProduct(ctx context.Context, tx repository.CartTx, p domain.Product) error {
	_, err := tx.FindProductByID(ctx, p.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrProductNotFound) {
		return err
	}

	insertErr := tx.InsertProduct(ctx, &p)
	if insertErr != nil && !errors.Is(insertErr, repository.ErrDuplicateProduct) {
		return insertErr
	}
	return nil
}

// resolveHeader returns the user's header with its row held locked,
// creating it on first write. Coupon fields are only applied on
// creation; mutating them on an existing header is a separate
// operation.
func resolveHeader(ctx context.Context, tx repository.CartTx, req UpsertRequest) (*domain.CartHeader, error) {
	header, err := tx.FindHeaderForUser(ctx, req.UserID)
	if err == nil {
		return header, nil
	}
	if !errors.Is(err, repository.ErrCartNotFound) {
		return nil, err
	}

	header = &domain.CartHeader{
		UserID:     req.UserID,
		CouponCode: req.CouponCode,
	}
	insertErr := tx.InsertHeader(ctx, header)
	if errors.Is(insertErr, repository.ErrDuplicateHeader) {
		// Lost the first-write race; re-read the winner's row locked.
		return tx.FindHeaderForUser(ctx, req.UserID)
	}
	if insertErr != nil {
		return nil, insertErr
	}
	return header, nil
}

// RemoveItem deletes one line item and reports whether a deletion
// occurred. The header stays even when it becomes empty; clearing the
// whole cart is an explicit separate operation.
func (s *CartService) RemoveItem(ctx context.Context, lineItemID int64) (bool, error) {
	if lineItemID <= 0 {
		return false, fmt.Errorf("line item id must be greater than 0")
	}

	var removed bool
	err := s.store.InTx(ctx, func(tx repository.CartTx) error {
		ok, err := tx.DeleteLineItem(ctx, lineItemID)
		if err != nil {
			return err
		}
		removed = ok
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// ClearCart deletes the user's line items and header. Returns false
// when the user has no cart; that is a no-op, not an error.
func (s *CartService) ClearCart(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, ErrEmptyUserID
	}

	var cleared bool
	err := s.store.InTx(ctx, func(tx repository.CartTx) error {
		header, err := tx.FindHeaderForUser(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.DeleteLineItemsByHeader(ctx, header.ID); err != nil {
			return err
		}
		if err := tx.DeleteHeader(ctx, header.ID); err != nil {
			return err
		}
		cleared = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return cleared, nil
}
