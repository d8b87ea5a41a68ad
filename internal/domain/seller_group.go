package domain

import "time"

// SellerGroup is the slice of a cart that becomes one seller's order.
type SellerGroup struct {
	SellerID string
	Lines    []CartLine
}

func (g SellerGroup) Total() int64 {
	var total int64
	for _, line := range g.Lines {
		total += line.Subtotal()
	}
	return total
}

// GroupBySeller splits lines per seller. Groups keep the order in which their
// seller first appears and lines keep cart order; nothing is de-duplicated.
func GroupBySeller(lines []CartLine) []SellerGroup {
	index := make(map[string]int)
	groups := make([]SellerGroup, 0)
	for _, line := range lines {
		i, ok := index[line.SellerID]
		if !ok {
			i = len(groups)
			index[line.SellerID] = i
			groups = append(groups, SellerGroup{SellerID: line.SellerID})
		}
		groups[i].Lines = append(groups[i].Lines, line)
	}
	return groups
}

// Order builds the order this group produces for a confirmed payment.
func (g SellerGroup) Order(buyerID, paymentID, currency string, address ShippingAddress, now time.Time) Order {
	items := make([]OrderItem, len(g.Lines))
	for i, line := range g.Lines {
		items[i] = OrderItem{
			BookID:   line.BookID,
			Name:     line.Name,
			Quantity: line.Quantity,
			Price:    line.Price,
		}
	}
	return Order{
		ID:          OrderID(buyerID, g.SellerID, paymentID),
		BuyerID:     buyerID,
		SellerID:    g.SellerID,
		Items:       items,
		TotalAmount: g.Total(),
		Currency:    currency,
		PaymentID:   paymentID,
		Address:     address,
		Status:      OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
