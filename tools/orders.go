package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Order statuses used by the mock order book.
const (
	OrderInTransit  = "in_transit"
	OrderDelivered  = "delivered"
	OrderProcessing = "processing"
)

// ReturnWindow is how long after placement a non-defective item may be
// returned.
const ReturnWindow = 30 * 24 * time.Hour

// Order is one record in the mock order system.
type Order struct {
	Status           string
	PlacedAt         time.Time
	Items            []string
	Tracking         string
	ExpectedDelivery time.Time
	DeliveredAt      time.Time
	ExpectedShip     time.Time
}

// OrderBook is a mock stand-in for an order management system. In production
// these would be database or API lookups.
type OrderBook struct {
	mu     sync.RWMutex
	orders map[string]Order
}

// NewOrderBook seeds the demo orders. Order 555 is past the return window on
// purpose, to exercise the denial path.
func NewOrderBook() *OrderBook {
	now := time.Now()
	return &OrderBook{orders: map[string]Order{
		"123456": {
			Status:           OrderInTransit,
			PlacedAt:         now.AddDate(0, 0, -3),
			Items:            []string{"Wireless Headphones", "USB Cable"},
			Tracking:         "1Z999AA10123456784",
			ExpectedDelivery: now.AddDate(0, 0, 2),
		},
		"789012": {
			Status:      OrderDelivered,
			PlacedAt:    now.AddDate(0, 0, -10),
			Items:       []string{"Laptop Stand"},
			DeliveredAt: now.AddDate(0, 0, -3),
		},
		"345678": {
			Status:       OrderProcessing,
			PlacedAt:     now.AddDate(0, 0, -1),
			Items:        []string{"Mechanical Keyboard", "Mouse Pad"},
			ExpectedShip: now.AddDate(0, 0, 1),
		},
		"555": {
			Status:      OrderDelivered,
			PlacedAt:    now.AddDate(0, 0, -40),
			Items:       []string{"Desk Lamp"},
			DeliveredAt: now.AddDate(0, 0, -36),
		},
	}}
}

// Get looks up an order by id.
func (b *OrderBook) Get(id string) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	return o, ok
}

func normalizeOrderID(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, "#", ""))
}

// OrderStatusTool looks up tracking and delivery status for an order.
type OrderStatusTool struct {
	Orders *OrderBook
}

func (t *OrderStatusTool) Name() string { return "get_order_status" }

func (t *OrderStatusTool) Description() string {
	return "Look up the current status, tracking information, and delivery date for a customer's order. Args: order_id (string)."
}

func (t *OrderStatusTool) Schema() *Schema {
	return &Schema{
		Properties: map[string]Property{
			"order_id": {Type: "string", Description: "The order number, typically 6 digits, with or without a leading #."},
		},
		Required: []string{"order_id"},
	}
}

func (t *OrderStatusTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	orderID := normalizeOrderID(stringArg(args, "order_id"))
	order, ok := t.Orders.Get(orderID)
	if !ok {
		// Lookup misses are content, not errors, so the model can ask the
		// customer to double-check the number.
		return Result{Content: fmt.Sprintf(
			"Order #%s not found. Please verify the order number and try again. Order numbers are typically 6 digits and can be found in the confirmation email. If the customer continues to have trouble, offer to escalate to a human agent.",
			orderID)}, nil
	}

	switch order.Status {
	case OrderInTransit:
		return Result{Content: fmt.Sprintf(
			"Order #%s - In Transit\nYour order is on its way!\nExpected delivery: %s\nTracking number: %s\nItems: %s\nTrack the package at https://track.example.com/%s",
			orderID, order.ExpectedDelivery.Format("Jan 2, 2006"), order.Tracking,
			strings.Join(order.Items, ", "), order.Tracking)}, nil
	case OrderDelivered:
		return Result{Content: fmt.Sprintf(
			"Order #%s - Delivered\nDelivered on: %s\nItems: %s\nIf the package has not arrived or there is any issue, the customer can ask for help.",
			orderID, order.DeliveredAt.Format("Jan 2, 2006"), strings.Join(order.Items, ", "))}, nil
	case OrderProcessing:
		return Result{Content: fmt.Sprintf(
			"Order #%s - Processing\nYour order is being prepared for shipment.\nExpected ship date: %s\nItems: %s\nA tracking number will be emailed once the order ships.",
			orderID, order.ExpectedShip.Format("Jan 2, 2006"), strings.Join(order.Items, ", "))}, nil
	}
	return Result{Content: fmt.Sprintf("Order #%s status: %s", orderID, order.Status)}, nil
}

// InitiateReturnTool starts a return and enforces the return policy:
// defective or damaged items are always accepted with free shipping; other
// reasons are denied once the order is older than the return window.
type InitiateReturnTool struct {
	Orders *OrderBook
}

func (t *InitiateReturnTool) Name() string { return "initiate_return" }

func (t *InitiateReturnTool) Description() string {
	return "Start the return process for an order. Defective or damaged items always qualify; other returns must be within 30 days of purchase. Args: order_id (string), reason (string)."
}

func (t *InitiateReturnTool) Schema() *Schema {
	return &Schema{
		Properties: map[string]Property{
			"order_id": {Type: "string", Description: "The order number to return."},
			"reason":   {Type: "string", Description: "Why the customer is returning: defective, damaged, wrong_item, changed_mind, not_as_described."},
		},
		Required: []string{"order_id", "reason"},
	}
}

func (t *InitiateReturnTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	orderID := normalizeOrderID(stringArg(args, "order_id"))
	reason := stringArg(args, "reason")

	order, ok := t.Orders.Get(orderID)
	if !ok {
		return Result{Content: fmt.Sprintf("Order #%s not found. Please verify the order number before initiating a return.", orderID)}, nil
	}

	defective := isDefectReason(reason)
	if !defective && time.Since(order.PlacedAt) > ReturnWindow {
		days := int(time.Since(order.PlacedAt).Hours() / 24)
		return Result{Content: fmt.Sprintf(
			"Return denied for order #%s: this order was placed %d days ago, which is outside our 30-day return window for non-defective items. Defective or damaged items are exempt from the window. The customer can ask to speak with a human agent if they believe an exception applies.",
			orderID, days)}, nil
	}

	rma := fmt.Sprintf("RMA-%s-%s", orderID, strings.ToUpper(uuid.NewString()[:6]))
	if defective {
		return Result{Content: fmt.Sprintf(
			"Return authorized for order #%s\nReturn authorization: %s\nReason: %s\nItems: %s\nSince the item is defective or damaged, a FREE return shipping label will be emailed within 1 hour. Full refund is processed within 5-7 business days of receipt.",
			orderID, rma, reason, strings.Join(order.Items, ", "))}, nil
	}
	return Result{Content: fmt.Sprintf(
		"Return authorized for order #%s\nReturn authorization: %s\nReason: %s\nItems: %s\nA return label will be emailed within 1 hour ($7.99 deducted from the refund). Items must be unused and in original condition. Refund is processed within 5-7 business days of receipt.",
		orderID, rma, reason, strings.Join(order.Items, ", "))}, nil
}

func isDefectReason(reason string) bool {
	r := strings.ToLower(reason)
	return strings.Contains(r, "defect") || strings.Contains(r, "damaged") || strings.Contains(r, "broken")
}

// stringArg pulls a string argument out of the raw argument map. Validation
// has already run, so a missing optional field simply yields "".
func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
