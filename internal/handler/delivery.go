package handler

import (
	"net/http"
	"time"

	"github.com/feastline/orderflow/internal/domain/delivery"
)

type deliveryResponse struct {
	ID                    int64      `json:"id"`
	OrderID               int64      `json:"orderId"`
	DeliveryPartnerID     *int64     `json:"deliveryPartnerId,omitempty"`
	Status                string     `json:"status"`
	PickupAddress         string     `json:"pickupAddress"`
	DeliveryAddress       string     `json:"deliveryAddress"`
	EstimatedDeliveryTime time.Time  `json:"estimatedDeliveryTime"`
	ActualDeliveryTime    *time.Time `json:"actualDeliveryTime,omitempty"`
	TrackingURL           string     `json:"trackingUrl"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

func toDeliveryResponse(d *delivery.Delivery) deliveryResponse {
	return deliveryResponse{
		ID:                    d.ID,
		OrderID:               d.OrderID,
		DeliveryPartnerID:     d.DeliveryPartnerID,
		Status:                string(d.Status),
		PickupAddress:         d.PickupAddress,
		DeliveryAddress:       d.DeliveryAddress,
		EstimatedDeliveryTime: d.EstimatedDeliveryTime,
		ActualDeliveryTime:    d.ActualDeliveryTime,
		TrackingURL:           d.TrackingURL,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

func (s *Server) createDelivery(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		respondBadRequest(w, "invalid order id")
		return
	}
	d, err := s.deliveries.Create(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toDeliveryResponse(d))
}

func (s *Server) getDelivery(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		respondBadRequest(w, "invalid order id")
		return
	}
	d, err := s.deliveries.GetByOrder(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toDeliveryResponse(d))
}

type assignPartnerRequest struct {
	DeliveryPartnerID int64 `json:"deliveryPartnerId"`
}

func (s *Server) assignDeliveryPartner(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		respondBadRequest(w, "invalid order id")
		return
	}
	var req assignPartnerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DeliveryPartnerID <= 0 {
		respondBadRequest(w, "deliveryPartnerId is required")
		return
	}

	d, err := s.deliveries.AssignPartner(r.Context(), orderID, req.DeliveryPartnerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toDeliveryResponse(d))
}

type updateDeliveryStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) updateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := actingUser(r)
	if !ok {
		respondBadRequest(w, "missing or invalid "+identityHeader+" header")
		return
	}
	orderID, ok := pathID(r, "orderID")
	if !ok {
		respondBadRequest(w, "invalid order id")
		return
	}
	var req updateDeliveryStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	next, err := delivery.ParseStatus(req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}

	d, err := s.deliveries.UpdateStatus(r.Context(), orderID, next, partnerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toDeliveryResponse(d))
}
