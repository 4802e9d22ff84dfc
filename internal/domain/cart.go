package domain

import "time"

// Product is the cart-local snapshot of a catalog product. The catalog
// service owns the product; this copy only exists so line items can be
// priced and displayed without a live catalog call. It may go stale.
type Product struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Description  string  `json:"description"`
	CategoryName string  `json:"category_name"`
	ImageURL     string  `json:"image_url"`
}

// CartHeader is the per-user cart record. At most one non-deleted
// header exists per user at any time.
type CartHeader struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	CouponCode     string    `json:"coupon_code,omitempty"`
	DiscountAmount float64   `json:"discount_amount,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CartLineItem is one product-quantity pairing within a cart. At most
// one line item exists per (HeaderID, ProductID) pair.
type CartLineItem struct {
	ID        int64     `json:"id"`
	HeaderID  int64     `json:"header_id"`
	ProductID int64     `json:"product_id"`
	Count     int       `json:"count"`
	Product   *Product  `json:"product,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// Cart is the aggregate returned to callers: a header plus its line
// items in insertion order. It is assembled on read, never persisted
// as a unit.
type Cart struct {
	Header CartHeader     `json:"header"`
	Items  []CartLineItem `json:"items"`
}
