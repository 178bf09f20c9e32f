// Package handler exposes the order, payment, and delivery services over
// HTTP. The acting identity comes from the X-User-ID header, which the edge
// proxy is trusted to have authenticated.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/feastline/orderflow/internal/domain/delivery"
	"github.com/feastline/orderflow/internal/domain/order"
	"github.com/feastline/orderflow/internal/domain/payment"
)

const identityHeader = "X-User-ID"

// Server bundles the domain services behind the HTTP routes.
type Server struct {
	orders     *order.Service
	payments   *payment.Service
	deliveries *delivery.Service
}

// NewServer creates the HTTP server facade.
func NewServer(orders *order.Service, payments *payment.Service, deliveries *delivery.Service) *Server {
	return &Server{
		orders:     orders,
		payments:   payments,
		deliveries: deliveries,
	}
}

// Routes mounts every handler under /api.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", s.placeOrder)
			r.Get("/number/{orderNumber}", s.getOrderByNumber)

			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", s.getOrder)
				r.Post("/status", s.updateOrderStatus)
				r.Post("/cancel", s.cancelOrder)

				r.Route("/delivery", func(r chi.Router) {
					r.Post("/", s.createDelivery)
					r.Get("/", s.getDelivery)
					r.Post("/assign", s.assignDeliveryPartner)
					r.Post("/status", s.updateDeliveryStatus)
				})

				r.Route("/payment", func(r chi.Router) {
					r.Post("/", s.processPayment)
					r.Get("/", s.getPayment)
					r.Post("/refund", s.refundPayment)
				})
			})
		})

		r.Get("/customers/{customerID}/orders", s.listCustomerOrders)
		r.Get("/restaurants/{restaurantID}/orders", s.listRestaurantOrders)
		r.Get("/payments/{transactionID}", s.getPaymentByTransaction)
	})
}

// actingUser reads the authenticated user id from the identity header.
func actingUser(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(identityHeader), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// pathID parses a numeric path parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
