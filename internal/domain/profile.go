package domain

import (
	"fmt"
	"strings"
	"time"
)

type Address struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Label     string    `bson:"label" json:"label"`
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

const defaultAddressLabel = "Unnamed"

// AddressID keys a saved address by its owner and label, so saving the same
// label twice replaces the earlier address.
func AddressID(userID, label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		label = defaultAddressLabel
	}
	return fmt.Sprintf("%s-%s", userID, label)
}

func (a *Address) Snapshot() ShippingAddress {
	return ShippingAddress{ID: a.ID, Label: a.Label, Text: a.Text}
}

type WishlistItem struct {
	UserID   string    `bson:"user_id" json:"user_id"`
	BookID   string    `bson:"book_id" json:"book_id"`
	Name     string    `bson:"name" json:"name"`
	Author   string    `bson:"author" json:"author"`
	Price    int64     `bson:"price" json:"price"`
	ImageURL string    `bson:"image_url" json:"image_url"`
	AddedAt  time.Time `bson:"added_at" json:"added_at"`
}

// SellerProfile is what a seller tells buyers about the shop. It lives on
// the same seller document as the pending counter.
type SellerProfile struct {
	SellerID          string    `bson:"-" json:"seller_id"`
	SellerName        string    `bson:"seller_name" json:"seller_name"`
	EnterpriseName    string    `bson:"enterprise_name" json:"enterprise_name"`
	GSTNumber         string    `bson:"gst_number" json:"gst_number"`
	WarehouseLocation string    `bson:"warehouse_location" json:"warehouse_location"`
	Genres            []string  `bson:"genres" json:"genres"`
	CreatedAt         time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at" json:"updated_at"`
}
