package handler

import (
	"net/http"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Carrinho
// ============================================================

func getCartHandler(svc *service.CartService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/cart")
		defer span.End()

		cart, err := svc.Get(ctx, IdentityFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, cart)
	}
}

func addCartItemHandler(svc *service.CartService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/cart/items")
		defer span.End()

		var req domain.AddItemRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		cart, err := svc.AddItem(ctx, IdentityFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, cart)
	}
}

func updateCartItemHandler(svc *service.CartService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/cart/items/{itemId}")
		defer span.End()

		var req domain.UpdateQuantityRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		cart, err := svc.UpdateQuantity(ctx, IdentityFromContext(ctx), chi.URLParam(r, "itemId"), req.Quantity)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, cart)
	}
}

func removeCartItemHandler(svc *service.CartService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/cart/items/{itemId}")
		defer span.End()

		cart, err := svc.RemoveItem(ctx, IdentityFromContext(ctx), chi.URLParam(r, "itemId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, cart)
	}
}

func checkoutHandler(svc *service.CartService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/cart/checkout")
		defer span.End()

		var req domain.CheckoutRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		order, err := svc.Checkout(ctx, IdentityFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, order)
	}
}

// ============================================================
// Pedidos
// ============================================================

func listOrdersHandler(svc *service.OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/orders")
		defer span.End()

		orders, err := svc.List(ctx, IdentityFromContext(ctx), r.URL.Query().Get("state"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"orders": orders,
			"total":  len(orders),
		})
	}
}

func getOrderHandler(svc *service.OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/orders/{orderId}")
		defer span.End()

		order, err := svc.Get(ctx, IdentityFromContext(ctx), chi.URLParam(r, "orderId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, order)
	}
}

func updateOrderStateHandler(svc *service.OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/admin/orders/{orderId}/status")
		defer span.End()

		var req domain.UpdateOrderStateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		order, err := svc.UpdateState(ctx, IdentityFromContext(ctx), chi.URLParam(r, "orderId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, order)
	}
}
