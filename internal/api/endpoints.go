package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// Wire types mirror the backend's JSON shapes. Status and type references
// come back as nested objects ({"statusName": "ACTIVE"}), not strings.

// StatusRef is the backend's nested status object.
type StatusRef struct {
	StatusName string `json:"statusName"`
}

// TypeRef is the backend's nested assignment type object.
type TypeRef struct {
	TypeName string `json:"typeName"`
}

// Store is a backend store as embedded in assignments and visits.
type Store struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	QRCode    string     `json:"qrCode"`
	Phone     string     `json:"phone"`
	Status    *StatusRef `json:"status"`
}

// Product is a backend catalog product.
type Product struct {
	ID     int64      `json:"id"`
	Name   string     `json:"name"`
	SKU    string     `json:"sku"`
	Unit   string     `json:"unit"`
	Price  float64    `json:"price"`
	Image  string     `json:"image"`
	Status *StatusRef `json:"status"`
}

// Dealer is the backend user reference embedded in assignments.
type Dealer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Assignment is a backend dealer assignment with its embedded store and
// product.
type Assignment struct {
	ID             int64      `json:"id"`
	Store          *Store     `json:"store"`
	Product        *Product   `json:"product"`
	Dealer         *Dealer    `json:"dealer"`
	Status         *StatusRef `json:"status"`
	AssignmentType *TypeRef   `json:"assignmentType"`
}

// Visit is a server-side visit record.
type Visit struct {
	ID    int64  `json:"id"`
	Store *Store `json:"store"`
}

// Order is a server-side order record.
type Order struct {
	ID int64 `json:"id"`
}

// CheckInRequest is the payload for the QR check-in endpoint.
type CheckInRequest struct {
	QRCode    string  `json:"qrCode"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// OrderItemRequest is one order line as the backend expects it.
type OrderItemRequest struct {
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Notes     string  `json:"notes"`
}

// CreateOrderRequest is the payload for order creation. OfflineUniqueID is
// the client-generated idempotency key; the server collapses duplicate
// submissions carrying the same value.
type CreateOrderRequest struct {
	VisitID         int64              `json:"visitId"`
	Items           []OrderItemRequest `json:"items"`
	Total           float64            `json:"total"`
	Notes           string             `json:"notes"`
	OfflineUniqueID string             `json:"offlineUniqueId"`
}

// CheckInByQR performs a store check-in and returns the server visit.
func (c *Client) CheckInByQR(ctx context.Context, req *CheckInRequest) (*Visit, error) {
	result, err := c.Post(ctx, "/api/visits/check-in/qr", req)
	if err != nil {
		return nil, err
	}
	var visit Visit
	if err := json.Unmarshal(result, &visit); err != nil {
		return nil, fmt.Errorf("failed to decode visit: %w", err)
	}
	return &visit, nil
}

// TodayVisits returns the dealer's visits for the current day.
func (c *Client) TodayVisits(ctx context.Context) ([]*Visit, error) {
	result, err := c.Get(ctx, "/api/visits/today", nil)
	if err != nil {
		return nil, err
	}
	var visits []*Visit
	if err := json.Unmarshal(result, &visits); err != nil {
		return nil, fmt.Errorf("failed to decode visits: %w", err)
	}
	return visits, nil
}

// CreateOrder submits an order under a server visit id.
func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error) {
	result, err := c.Post(ctx, "/api/orders/", req)
	if err != nil {
		return nil, err
	}
	var order Order
	if err := json.Unmarshal(result, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	return &order, nil
}

// MyAssignments returns the current dealer's assignments with embedded
// stores and products.
func (c *Client) MyAssignments(ctx context.Context) ([]*Assignment, error) {
	result, err := c.Get(ctx, "/api/assignments/me", nil)
	if err != nil {
		return nil, err
	}
	var assignments []*Assignment
	if err := json.Unmarshal(result, &assignments); err != nil {
		return nil, fmt.Errorf("failed to decode assignments: %w", err)
	}
	return assignments, nil
}

// ActiveProducts returns the active product catalog.
func (c *Client) ActiveProducts(ctx context.Context) ([]*Product, error) {
	result, err := c.Get(ctx, "/api/products/active", nil)
	if err != nil {
		return nil, err
	}
	var products []*Product
	if err := json.Unmarshal(result, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return products, nil
}

// StatusName flattens a nested status reference, defaulting to ACTIVE the
// way the SPA did.
func StatusName(ref *StatusRef) string {
	if ref == nil || ref.StatusName == "" {
		return "ACTIVE"
	}
	return ref.StatusName
}
