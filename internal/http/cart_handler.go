package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_cart/cart-aggregation-service/internal/domain"
	"github.com/fjod/go_cart/cart-aggregation-service/internal/repository"
	"github.com/fjod/go_cart/cart-aggregation-service/internal/service"
)

// CartService is what the handlers need from the aggregator; the
// concrete implementation lives in internal/service.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, req service.UpsertRequest) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, req service.UpsertRequest) (*domain.Cart, error)
	RemoveItem(ctx context.Context, lineItemID int64) (bool, error)
	ClearCart(ctx context.Context, userID string) (bool, error)
}

type CartHandler struct {
	service CartService
	timeout time.Duration
}

func NewCartHandler(service CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{
		service: service,
		timeout: timeout,
	}
}

// Request DTOs mirror the desired-cart shape: one header plus one line
// item carrying the caller-supplied product snapshot.

type CartHeaderDTO struct {
	UserID     string `json:"user_id"`
	CouponCode string `json:"coupon_code,omitempty"`
}

type CartDetailDTO struct {
	ProductID int64          `json:"product_id"`
	Count     int32          `json:"count"`
	Product   domain.Product `json:"product"`
}

type CartRequestDTO struct {
	CartHeader CartHeaderDTO `json:"cart_header"`
	CartDetail CartDetailDTO `json:"cart_detail"`
}

// Response envelopes are typed per endpoint instead of one untyped
// result field, so each endpoint's contract is statically checkable.

type CartDTO struct {
	CartHeader  domain.CartHeader     `json:"cart_header"`
	CartDetails []domain.CartLineItem `json:"cart_details"`
}

type CartResponse struct {
	IsSuccess     bool     `json:"isSuccess"`
	Result        *CartDTO `json:"result"`
	ErrorMessages []string `json:"errorMessages,omitempty"`
}

type BoolResponse struct {
	IsSuccess     bool     `json:"isSuccess"`
	Result        bool     `json:"result"`
	ErrorMessages []string `json:"errorMessages,omitempty"`
}

func convertCart(c *domain.Cart) *CartDTO {
	dto := &CartDTO{
		CartHeader:  c.Header,
		CartDetails: make([]domain.CartLineItem, len(c.Items)),
	}
	copy(dto.CartDetails, c.Items)
	return dto
}

func emptyCart(userID string) *CartDTO {
	return &CartDTO{
		CartHeader:  domain.CartHeader{UserID: userID},
		CartDetails: []domain.CartLineItem{},
	}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondCartError(w, http.StatusBadRequest, "user id is required")
		return
	}

	cart, err := h.service.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		// No header yet means empty cart, never a failure.
		respondJSON(w, http.StatusOK, CartResponse{IsSuccess: true, Result: emptyCart(userID)})
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CartResponse{IsSuccess: true, Result: convertCart(cart)})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	req, ok := decodeCartRequest(w, r)
	if !ok {
		return
	}

	cart, err := h.service.AddItem(ctx, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CartResponse{IsSuccess: true, Result: convertCart(cart)})
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	req, ok := decodeCartRequest(w, r)
	if !ok {
		return
	}

	cart, err := h.service.UpdateQuantity(ctx, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CartResponse{IsSuccess: true, Result: convertCart(cart)})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// The body is the bare line item id, e.g. `17`.
	var lineItemID int64
	if err := json.NewDecoder(r.Body).Decode(&lineItemID); err != nil {
		respondBoolError(w, http.StatusBadRequest, "body must be a line item id")
		return
	}
	if lineItemID <= 0 {
		respondBoolError(w, http.StatusBadRequest, "line item id must be positive")
		return
	}

	removed, err := h.service.RemoveItem(ctx, lineItemID)
	if err != nil {
		respondBoolError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, BoolResponse{IsSuccess: true, Result: removed})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// The body is the bare user id, e.g. `"u1"`.
	var userID string
	if err := json.NewDecoder(r.Body).Decode(&userID); err != nil || userID == "" {
		respondBoolError(w, http.StatusBadRequest, "body must be a user id")
		return
	}

	cleared, err := h.service.ClearCart(ctx, userID)
	if err != nil {
		respondBoolError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, BoolResponse{IsSuccess: true, Result: cleared})
}

func decodeCartRequest(w http.ResponseWriter, r *http.Request) (service.UpsertRequest, bool) {
	var dto CartRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondCartError(w, http.StatusBadRequest, "invalid JSON body")
		return service.UpsertRequest{}, false
	}

	if dto.CartHeader.UserID == "" {
		respondCartError(w, http.StatusBadRequest, "user_id is required")
		return service.UpsertRequest{}, false
	}
	if dto.CartDetail.ProductID <= 0 {
		respondCartError(w, http.StatusBadRequest, "product_id must be positive")
		return service.UpsertRequest{}, false
	}
	if dto.CartDetail.Count <= 0 || dto.CartDetail.Count > 99 {
		respondCartError(w, http.StatusBadRequest, "count must be between 1 and 99")
		return service.UpsertRequest{}, false
	}

	product := dto.CartDetail.Product
	product.ID = dto.CartDetail.ProductID

	return service.UpsertRequest{
		UserID:     dto.CartHeader.UserID,
		CouponCode: dto.CartHeader.CouponCode,
		Product:    product,
		Count:      int(dto.CartDetail.Count),
	}, true
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyUserID),
		errors.Is(err, service.ErrInvalidProductID),
		errors.Is(err, service.ErrInvalidQuantity):
		respondCartError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrItemNotFound):
		respondCartError(w, http.StatusNotFound, err.Error())
	default:
		respondCartError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondCartError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, CartResponse{
		IsSuccess:     false,
		ErrorMessages: []string{message},
	})
}

func respondBoolError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, BoolResponse{
		IsSuccess:     false,
		ErrorMessages: []string{message},
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
