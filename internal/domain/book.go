package domain

import (
	"fmt"
	"strings"
	"time"
)

type Book struct {
	ID          string    `bson:"_id" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Author      string    `bson:"author" json:"author"`
	Category    string    `bson:"category" json:"category"`
	Description string    `bson:"description" json:"description"`
	Price       int64     `bson:"price" json:"price"` // minor units
	ImageURL    string    `bson:"image_url" json:"image_url"`
	SellerID    string    `bson:"seller_id" json:"seller_id"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// ListingID is the catalog key of a seller's listing. A seller can list a
// title only once.
func ListingID(sellerID, name string) string {
	return fmt.Sprintf("%s-%s", sellerID, strings.TrimSpace(name))
}

type CatalogFilter struct {
	Category string
	SellerID string
	MinPrice *int64
	MaxPrice *int64
	Limit    int64
}
