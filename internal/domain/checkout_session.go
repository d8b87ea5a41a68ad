package domain

import "time"

// CheckoutSession is one pass through the checkout workflow, from the moment
// the payment widget is opened until the orders are committed.
type CheckoutSession struct {
	ID             string
	BuyerID        string
	Address        ShippingAddress
	State          CheckoutState
	Amount         int64
	Currency       string
	GatewayOrderID string
	PaymentID      string
	Lines          []CartLine
	Report         *CommitReport
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SellerCommit tracks the writes issued for one seller's slice of the cart.
type SellerCommit struct {
	SellerID   string `json:"seller_id"`
	OrderID    string `json:"order_id"`
	Total      int64  `json:"total"`
	BuyerCopy  bool   `json:"buyer_copy"`
	SellerCopy bool   `json:"seller_copy"`
	Counted    bool   `json:"counted"`
	Error      string `json:"error,omitempty"`
}

func (c *SellerCommit) Written() bool {
	return c.BuyerCopy && c.SellerCopy
}

func (c *SellerCommit) Done() bool {
	return c.Written() && c.Counted
}

type CommitReport struct {
	Groups      []SellerCommit `json:"groups"`
	CartCleared bool           `json:"cart_cleared"`
}

func (r *CommitReport) Group(sellerID string) *SellerCommit {
	if r == nil {
		return nil
	}
	for i := range r.Groups {
		if r.Groups[i].SellerID == sellerID {
			return &r.Groups[i]
		}
	}
	return nil
}

func (r *CommitReport) Complete() bool {
	if r == nil || !r.CartCleared {
		return false
	}
	for i := range r.Groups {
		if !r.Groups[i].Done() {
			return false
		}
	}
	return true
}

// Failed lists the sellers whose order or counter was not committed.
func (r *CommitReport) Failed() []string {
	var out []string
	if r == nil {
		return out
	}
	for i := range r.Groups {
		if !r.Groups[i].Done() {
			out = append(out, r.Groups[i].SellerID)
		}
	}
	return out
}
