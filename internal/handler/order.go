package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/feastline/orderflow/internal/domain/order"
	"github.com/feastline/orderflow/internal/domain/pricing"
)

type orderLineRequest struct {
	MenuItemID int64 `json:"menuItemId"`
	Quantity   int   `json:"quantity"`
}

type placeOrderRequest struct {
	RestaurantID        int64              `json:"restaurantId"`
	Items               []orderLineRequest `json:"items"`
	DeliveryAddress     string             `json:"deliveryAddress"`
	DeliveryCity        string             `json:"deliveryCity"`
	DeliveryPincode     string             `json:"deliveryPincode"`
	DeliveryPhone       string             `json:"deliveryPhone"`
	SpecialInstructions string             `json:"specialInstructions,omitempty"`
}

type orderLineResponse struct {
	MenuItemID int64  `json:"menuItemId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
	LineTotal  string `json:"lineTotal"`
}

type orderResponse struct {
	ID                  int64               `json:"id"`
	OrderNumber         string              `json:"orderNumber"`
	CustomerID          int64               `json:"customerId"`
	RestaurantID        int64               `json:"restaurantId"`
	Status              string              `json:"status"`
	Items               []orderLineResponse `json:"items"`
	Subtotal            string              `json:"subtotal"`
	DeliveryFee         string              `json:"deliveryFee"`
	Tax                 string              `json:"tax"`
	TotalAmount         string              `json:"totalAmount"`
	DeliveryAddress     string              `json:"deliveryAddress"`
	DeliveryCity        string              `json:"deliveryCity"`
	DeliveryPincode     string              `json:"deliveryPincode"`
	DeliveryPhone       string              `json:"deliveryPhone"`
	SpecialInstructions string              `json:"specialInstructions,omitempty"`
	DeliveryPartnerID   *int64              `json:"deliveryPartnerId,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	lines := make([]orderLineResponse, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = orderLineResponse{
			MenuItemID: l.MenuItemID,
			Name:       l.Name,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice.String(),
			LineTotal:  l.LineTotal.String(),
		}
	}
	return orderResponse{
		ID:                  o.ID,
		OrderNumber:         o.OrderNumber,
		CustomerID:          o.CustomerID,
		RestaurantID:        o.RestaurantID,
		Status:              string(o.Status),
		Items:               lines,
		Subtotal:            o.Subtotal.String(),
		DeliveryFee:         o.DeliveryFee.String(),
		Tax:                 o.Tax.String(),
		TotalAmount:         o.TotalAmount.String(),
		DeliveryAddress:     o.DeliveryAddress,
		DeliveryCity:        o.DeliveryCity,
		DeliveryPincode:     o.DeliveryPincode,
		DeliveryPhone:       o.DeliveryPhone,
		SpecialInstructions: o.SpecialInstructions,
		DeliveryPartnerID:   o.DeliveryPartnerID,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	customerID, ok := actingUser(r)
	if !ok {
		respondBadRequest(w, "missing or invalid "+identityHeader+" header")
		return
	}
	var req placeOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RestaurantID <= 0 {
		respondBadRequest(w, "restaurantId is required")
		return
	}

	lines := make([]pricing.CartLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = pricing.CartLine{MenuItemID: it.MenuItemID, Quantity: it.Quantity}
	}

	o, err := s.orders.Place(r.Context(), order.PlaceRequest{
		CustomerID:          customerID,
		RestaurantID:        req.RestaurantID,
		Lines:               lines,
		DeliveryAddress:     req.DeliveryAddress,
		DeliveryCity:        req.DeliveryCity,
		DeliveryPincode:     req.DeliveryPincode,
		DeliveryPhone:       req.DeliveryPhone,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		respondBadRequest(w, "invalid order id")
		return
	}
	o, err := s.orders.GetByID(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

func (s *Server) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	number := pathParam(r, "orderNumber")
	if number == "" {
		respondBadRequest(w, "invalid order number")
		return
	}
	o, err := s.orders.GetByNumber(r.Context(), number)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actingUser(r)
	if !ok {
		respondBadRequest(w, "missing or invalid "+identityHeader+" header")
		return
	}
	orderID, ok := pathID(r, "orderID")
	if !ok {
		respondBadRequest(w, "invalid order id")
		return
	}
	var req updateOrderStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	next, err := order.ParseStatus(req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}

	o, err := s.orders.AdvanceStatus(r.Context(), orderID, next, actorID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	customerID, ok := actingUser(r)
	if !ok {
		respondBadRequest(w, "missing or invalid "+identityHeader+" header")
		return
	}
	orderID, ok := pathID(r, "orderID")
	if !ok {
		respondBadRequest(w, "invalid order id")
		return
	}

	o, err := s.orders.Cancel(r.Context(), orderID, customerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

func (s *Server) listCustomerOrders(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathID(r, "customerID")
	if !ok {
		respondBadRequest(w, "invalid customer id")
		return
	}
	list, err := s.orders.ListByCustomer(r.Context(), customerID, pageFrom(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOrderList(w, list)
}

func (s *Server) listRestaurantOrders(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := pathID(r, "restaurantID")
	if !ok {
		respondBadRequest(w, "invalid restaurant id")
		return
	}
	list, err := s.orders.ListByRestaurant(r.Context(), restaurantID, pageFrom(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOrderList(w, list)
}

func respondOrderList(w http.ResponseWriter, list []order.Order) {
	out := make([]orderResponse, len(list))
	for i := range list {
		out[i] = toOrderResponse(&list[i])
	}
	respondJSON(w, http.StatusOK, out)
}

func pageFrom(r *http.Request) order.Page {
	var p order.Page
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		p.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		p.Offset = v
	}
	return p
}
