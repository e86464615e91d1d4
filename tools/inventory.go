package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Stock statuses used by the mock inventory.
const (
	StockIn  = "in_stock"
	StockLow = "low_stock"
	StockOut = "out_of_stock"
)

// StockItem is one record in the mock inventory system.
type StockItem struct {
	Quantity    int
	Status      string
	RestockDate string
}

// InventoryBook is a mock stand-in for an inventory system.
type InventoryBook struct {
	mu    sync.RWMutex
	items map[string]StockItem
}

func NewInventoryBook() *InventoryBook {
	return &InventoryBook{items: map[string]StockItem{
		"laptop":     {Quantity: 15, Status: StockIn},
		"headphones": {Quantity: 3, Status: StockLow},
		"mouse":      {Quantity: 0, Status: StockOut, RestockDate: "Nov 5, 2025"},
		"keyboard":   {Quantity: 25, Status: StockIn},
		"monitor":    {Quantity: 8, Status: StockIn},
		"webcam":     {Quantity: 1, Status: StockLow},
	}}
}

// Match returns items whose name matches the query by substring in either
// direction, in stable name order.
func (b *InventoryBook) Match(query string) []MatchedItem {
	q := strings.ToLower(strings.TrimSpace(query))
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []MatchedItem
	for name, item := range b.items {
		if strings.Contains(q, name) || strings.Contains(name, q) {
			out = append(out, MatchedItem{Name: name, Item: item})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type MatchedItem struct {
	Name string
	Item StockItem
}

// InventoryTool checks whether a product is in stock.
type InventoryTool struct {
	Inventory *InventoryBook
}

func (t *InventoryTool) Name() string { return "check_inventory" }

func (t *InventoryTool) Description() string {
	return "Check whether a product is currently in stock and how many units are available. Args: product_name (string)."
}

func (t *InventoryTool) Schema() *Schema {
	return &Schema{
		Properties: map[string]Property{
			"product_name": {Type: "string", Description: "Name or description of the product to check."},
		},
		Required: []string{"product_name"},
	}
}

func (t *InventoryTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	product := stringArg(args, "product_name")
	matches := t.Inventory.Match(product)
	if len(matches) == 0 {
		return Result{Content: fmt.Sprintf(
			"No inventory information found for %q. Ask the customer for more detail, or offer the online catalog and a product specialist.",
			product)}, nil
	}

	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		title := capitalize(m.Name)
		switch m.Item.Status {
		case StockIn:
			lines = append(lines, fmt.Sprintf("%s: IN STOCK (%d units available). Ready to ship within 1-2 business days.", title, m.Item.Quantity))
		case StockLow:
			lines = append(lines, fmt.Sprintf("%s: LOW STOCK (%d units remaining). Order soon to avoid missing out.", title, m.Item.Quantity))
		case StockOut:
			restock := m.Item.RestockDate
			if restock == "" {
				restock = "TBD"
			}
			lines = append(lines, fmt.Sprintf("%s: OUT OF STOCK. Expected restock: %s.", title, restock))
		}
	}
	return Result{Content: strings.Join(lines, "\n")}, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
