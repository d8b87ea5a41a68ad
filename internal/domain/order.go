package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusDelivered OrderStatus = "DELIVERED"
)

// Partition selects which physical copy of an order is addressed.
type Partition string

const (
	PartitionBuyer  Partition = "buyer"
	PartitionSeller Partition = "seller"
)

// orderNamespace seeds the name-based order ids.
var orderNamespace = uuid.MustParse("7c1f3e0a-5d2b-4f8e-9a61-3b0d2c4e8f17")

type OrderItem struct {
	BookID   string `bson:"book_id" json:"book_id"`
	Name     string `bson:"name" json:"name"`
	Quantity int    `bson:"quantity" json:"quantity"`
	Price    int64  `bson:"price" json:"price"`
}

type ShippingAddress struct {
	ID    string `bson:"id" json:"id"`
	Label string `bson:"label" json:"label"`
	Text  string `bson:"text" json:"text"`
}

type Order struct {
	ID          string          `bson:"_id" json:"id"`
	BuyerID     string          `bson:"buyer_id" json:"buyer_id"`
	SellerID    string          `bson:"seller_id" json:"seller_id"`
	Items       []OrderItem     `bson:"items" json:"items"`
	TotalAmount int64           `bson:"total_amount" json:"total_amount"`
	Currency    string          `bson:"currency" json:"currency"`
	PaymentID   string          `bson:"payment_id" json:"payment_id"`
	Address     ShippingAddress `bson:"address" json:"address"`
	Status      OrderStatus     `bson:"status" json:"status"`
	CreatedAt   time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `bson:"updated_at" json:"updated_at"`
}

// OrderID derives the id of the order a payment produces for one seller.
// The same (buyer, seller, payment) triple always yields the same id, so a
// repeated submission addresses the existing order instead of creating one.
// Each part is length-prefixed, so ids may contain any character.
func OrderID(buyerID, sellerID, paymentID string) string {
	var name strings.Builder
	for _, part := range []string{buyerID, sellerID, paymentID} {
		name.WriteString(strconv.Itoa(len(part)))
		name.WriteByte(':')
		name.WriteString(part)
	}
	return uuid.NewSHA1(orderNamespace, []byte(name.String())).String()
}

// Owner returns the partition key of the copy held in p.
func (o *Order) Owner(p Partition) string {
	if p == PartitionSeller {
		return o.SellerID
	}
	return o.BuyerID
}

func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending
}

// SellerCounters is the counter part of a seller document. Pending always
// equals len(PendingOrders).
type SellerCounters struct {
	SellerID      string    `bson:"_id" json:"seller_id"`
	Pending       int64     `bson:"pending" json:"pending"`
	PendingOrders []string  `bson:"pending_orders,omitempty" json:"-"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}
