package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	// Start MongoDB container
	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, MongoOptions{URI: uri, Database: "testdb"})
	require.NoError(t, err)

	store := NewStore(db)
	require.NoError(t, store.CreateIndexes(ctx))

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return store, cleanup
}

func TestCart_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	cart, err := store.Carts.GetCart(context.Background(), "nonexistent")

	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, cart)
}

func TestCart_SetItemQuantity(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Carts.SetItemQuantity(ctx, "user1", "book-a", 1))
	require.NoError(t, store.Carts.SetItemQuantity(ctx, "user1", "book-b", 2))
	require.NoError(t, store.Carts.SetItemQuantity(ctx, "user1", "book-a", 5))

	cart, err := store.Carts.GetCart(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, "book-a", cart.Items[0].BookID)
	assert.Equal(t, 5, cart.Quantity("book-a"))
	assert.Equal(t, 2, cart.Quantity("book-b"))
	assert.False(t, cart.CreatedAt.IsZero())
}

func TestCart_ZeroQuantityRemovesLine(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Carts.SetItemQuantity(ctx, "user1", "book-a", 2))
	require.NoError(t, store.Carts.SetItemQuantity(ctx, "user1", "book-a", 0))

	cart, err := store.Carts.GetCart(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	// no cart yet is fine too
	assert.NoError(t, store.Carts.SetItemQuantity(ctx, "user2", "book-a", 0))
}

func TestCart_RemoveAndDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	assert.ErrorIs(t, store.Carts.RemoveItem(ctx, "user1", "book-a"), ErrCartNotFound)

	require.NoError(t, store.Carts.SetItemQuantity(ctx, "user1", "book-a", 1))
	require.NoError(t, store.Carts.SetItemQuantity(ctx, "user1", "book-b", 1))
	require.NoError(t, store.Carts.RemoveItem(ctx, "user1", "book-a"))

	cart, err := store.Carts.GetCart(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 0, cart.Quantity("book-a"))
	assert.Equal(t, 1, cart.Quantity("book-b"))

	require.NoError(t, store.Carts.DeleteCart(ctx, "user1"))
	assert.ErrorIs(t, store.Carts.DeleteCart(ctx, "user1"), ErrCartNotFound)
}

func TestCatalog_CreateListUpdateDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	dune := &domain.Book{ID: domain.ListingID("s1", "Dune"), Name: "Dune", Category: "scifi", Price: 50000, SellerID: "s1", CreatedAt: now}
	emma := &domain.Book{ID: domain.ListingID("s2", "Emma"), Name: "Emma", Category: "classic", Price: 20000, SellerID: "s2", CreatedAt: now.Add(time.Second)}
	require.NoError(t, store.Catalog.CreateBook(ctx, dune))
	require.NoError(t, store.Catalog.CreateBook(ctx, emma))
	assert.ErrorIs(t, store.Catalog.CreateBook(ctx, dune), ErrListingExists)

	all, err := store.Catalog.ListBooks(ctx, domain.CatalogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, emma.ID, all[0].ID)

	maxPrice := int64(30000)
	cheap, err := store.Catalog.ListBooks(ctx, domain.CatalogFilter{MaxPrice: &maxPrice})
	require.NoError(t, err)
	require.Len(t, cheap, 1)
	assert.Equal(t, "Emma", cheap[0].Name)

	scifi, err := store.Catalog.ListBooks(ctx, domain.CatalogFilter{Category: "scifi"})
	require.NoError(t, err)
	require.Len(t, scifi, 1)

	// only the listing seller may edit
	assert.ErrorIs(t, store.Catalog.UpdatePrice(ctx, "s2", dune.ID, 1), ErrBookNotFound)
	require.NoError(t, store.Catalog.UpdatePrice(ctx, "s1", dune.ID, 45000))
	got, err := store.Catalog.GetBook(ctx, dune.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(45000), got.Price)

	require.NoError(t, store.Catalog.DeleteBook(ctx, "s1", dune.ID))
	_, err = store.Catalog.GetBook(ctx, dune.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestOrders_UpsertIsIdempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	order := &domain.Order{
		ID:          domain.OrderID("b1", "s1", "pay1"),
		BuyerID:     "b1",
		SellerID:    "s1",
		Items:       []domain.OrderItem{{BookID: "x", Name: "Dune", Quantity: 2, Price: 100}},
		TotalAmount: 200,
		Status:      domain.OrderStatusPending,
		CreatedAt:   time.Now(),
	}

	created, err := store.Orders.UpsertOrder(ctx, domain.PartitionSeller, order)
	require.NoError(t, err)
	assert.True(t, created)

	// a replay must not overwrite the stored copy
	replay := *order
	replay.TotalAmount = 999
	created, err = store.Orders.UpsertOrder(ctx, domain.PartitionSeller, &replay)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := store.Orders.GetOrder(ctx, domain.PartitionSeller, "s1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.TotalAmount)

	list, err := store.Orders.ListOrders(ctx, domain.PartitionSeller, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// the buyer partition is separate
	list, err = store.Orders.ListOrders(ctx, domain.PartitionBuyer, "b1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOrders_MarkDelivered(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	order := &domain.Order{ID: "o1", BuyerID: "b1", SellerID: "s1", Status: domain.OrderStatusPending, CreatedAt: time.Now()}
	_, err := store.Orders.UpsertOrder(ctx, domain.PartitionSeller, order)
	require.NoError(t, err)

	delivered, changed, err := store.Orders.MarkDelivered(ctx, domain.PartitionSeller, "s1", "o1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.OrderStatusDelivered, delivered.Status)
	assert.Equal(t, "b1", delivered.BuyerID)

	delivered, changed, err = store.Orders.MarkDelivered(ctx, domain.PartitionSeller, "s1", "o1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.OrderStatusDelivered, delivered.Status)

	_, _, err = store.Orders.MarkDelivered(ctx, domain.PartitionSeller, "s2", "o1")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSellers_PendingIsCountedOncePerOrder(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	c, err := store.Sellers.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Pending)

	added, err := store.Sellers.AddPending(ctx, "s1", "o1")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = store.Sellers.AddPending(ctx, "s1", "o1")
	require.NoError(t, err)
	assert.False(t, added)
	added, err = store.Sellers.AddPending(ctx, "s1", "o2")
	require.NoError(t, err)
	assert.True(t, added)

	c, err = store.Sellers.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Pending)

	removed, err := store.Sellers.RemovePending(ctx, "s1", "o1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = store.Sellers.RemovePending(ctx, "s1", "o1")
	require.NoError(t, err)
	assert.False(t, removed)

	c, err = store.Sellers.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Pending)

	// releasing for an unknown seller never goes below zero
	removed, err = store.Sellers.RemovePending(ctx, "s9", "o1")
	require.NoError(t, err)
	assert.False(t, removed)
	c, err = store.Sellers.Get(ctx, "s9")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Pending)
}

func TestSellers_Profile(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.Sellers.GetProfile(ctx, "s1")
	assert.ErrorIs(t, err, ErrSellerNotFound)

	// a seller that only has counters has no profile yet
	_, err = store.Sellers.AddPending(ctx, "s1", "o1")
	require.NoError(t, err)
	_, err = store.Sellers.GetProfile(ctx, "s1")
	assert.ErrorIs(t, err, ErrSellerNotFound)

	profile := &domain.SellerProfile{
		SellerID:          "s1",
		SellerName:        "Asha",
		EnterpriseName:    "Asha Books",
		WarehouseLocation: "Pune",
		Genres:            []string{"Fiction", "History"},
	}
	require.NoError(t, store.Sellers.SaveProfile(ctx, profile))

	got, err := store.Sellers.GetProfile(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SellerID)
	assert.Equal(t, "Asha Books", got.EnterpriseName)
	assert.Equal(t, []string{"Fiction", "History"}, got.Genres)

	// saving the profile leaves the counters alone
	c, err := store.Sellers.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Pending)
}

func TestAddresses(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	home := &domain.Address{ID: domain.AddressID("u1", "Home"), UserID: "u1", Label: "Home", Text: "1 Main St"}
	require.NoError(t, store.Addresses.Save(ctx, home))
	home.Text = "2 Main St"
	require.NoError(t, store.Addresses.Save(ctx, home))

	list, err := store.Addresses.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2 Main St", list[0].Text)

	_, err = store.Addresses.Get(ctx, "u2", home.ID)
	assert.ErrorIs(t, err, ErrAddressNotFound)

	require.NoError(t, store.Addresses.Delete(ctx, "u1", home.ID))
	assert.ErrorIs(t, store.Addresses.Delete(ctx, "u1", home.ID), ErrAddressNotFound)
}

func TestWishlist(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	item := &domain.WishlistItem{UserID: "u1", BookID: "b1", Name: "Dune", AddedAt: time.Now()}
	require.NoError(t, store.Wishlists.Add(ctx, item))
	require.NoError(t, store.Wishlists.Add(ctx, item))

	ok, err := store.Wishlists.Contains(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := store.Wishlists.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.Wishlists.Remove(ctx, "u1", "b1"))
	assert.ErrorIs(t, store.Wishlists.Remove(ctx, "u1", "b1"), ErrWishlistItemNotFound)
}
