package domain

import "time"

type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"-"`
	UserID    string     `bson:"user_id" json:"user_id"`
	Items     []CartItem `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

type CartItem struct {
	BookID   string    `bson:"book_id" json:"book_id"`
	Quantity int       `bson:"quantity" json:"quantity"`
	AddedAt  time.Time `bson:"added_at" json:"added_at"`
}

// Quantity returns the quantity stored for bookID, 0 when the line is absent.
func (c *Cart) Quantity(bookID string) int {
	if c == nil {
		return 0
	}
	for _, item := range c.Items {
		if item.BookID == bookID {
			return item.Quantity
		}
	}
	return 0
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// CartLine is a cart item joined with its catalog entry at read time.
type CartLine struct {
	BookID   string `json:"book_id"`
	Name     string `json:"name"`
	Author   string `json:"author"`
	Price    int64  `json:"price"`
	ImageURL string `json:"image_url"`
	SellerID string `json:"seller_id"`
	Quantity int    `json:"quantity"`
}

func (l CartLine) Subtotal() int64 {
	return l.Price * int64(l.Quantity)
}

// CartView is what the storefront renders: enriched lines and their total.
// Missing lists books referenced by the cart that no longer exist in the catalog.
type CartView struct {
	UserID  string     `json:"user_id"`
	Lines   []CartLine `json:"lines"`
	Total   int64      `json:"total"`
	Missing []string   `json:"missing,omitempty"`
}

func (v *CartView) IsEmpty() bool {
	return v == nil || len(v.Lines) == 0
}
