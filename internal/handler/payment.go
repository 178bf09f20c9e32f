package handler

import (
	"net/http"
	"time"

	"github.com/feastline/orderflow/internal/domain/payment"
)

type paymentResponse struct {
	ID              int64     `json:"id"`
	OrderID         int64     `json:"orderId"`
	TransactionID   string    `json:"transactionId"`
	Status          string    `json:"status"`
	Method          string    `json:"method"`
	Amount          string    `json:"amount"`
	GatewayResponse string    `json:"gatewayResponse,omitempty"`
	FailureReason   string    `json:"failureReason,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toPaymentResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		OrderID:         p.OrderID,
		TransactionID:   p.TransactionID,
		Status:          string(p.Status),
		Method:          string(p.Method),
		Amount:          p.Amount.String(),
		GatewayResponse: p.GatewayResponse,
		FailureReason:   p.FailureReason,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

type processPaymentRequest struct {
	Method string `json:"paymentMethod"`
}

func (s *Server) processPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		respondBadRequest(w, "invalid order id")
		return
	}
	var req processPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	method, err := payment.ParseMethod(req.Method)
	if err != nil {
		respondError(w, r, err)
		return
	}

	p, err := s.payments.Process(r.Context(), orderID, method)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPaymentResponse(p))
}

func (s *Server) getPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		respondBadRequest(w, "invalid order id")
		return
	}
	p, err := s.payments.GetByOrder(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (s *Server) getPaymentByTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := pathParam(r, "transactionID")
	if transactionID == "" {
		respondBadRequest(w, "invalid transaction id")
		return
	}
	p, err := s.payments.GetByTransaction(r.Context(), transactionID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (s *Server) refundPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		respondBadRequest(w, "invalid order id")
		return
	}
	p, err := s.payments.Refund(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentResponse(p))
}
