// Package memory holds map-backed repositories used for local runs
// (STORAGE=memory) and service tests.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/repository"
)

var (
	_ repository.CartRepository     = (*CartStore)(nil)
	_ repository.CatalogRepository  = (*CatalogStore)(nil)
	_ repository.OrderRepository    = (*OrderStore)(nil)
	_ repository.CounterRepository  = (*SellerStore)(nil)
	_ repository.SellerRepository   = (*SellerStore)(nil)
	_ repository.AddressRepository  = (*AddressStore)(nil)
	_ repository.WishlistRepository = (*WishlistStore)(nil)
	_ repository.SessionRepository  = (*SessionStore)(nil)
)

// CartStore implements repository.CartRepository
type CartStore struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart // userID -> cart
}

func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]*domain.Cart)}
}

func (s *CartStore) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	cp := *cart
	cp.Items = append([]domain.CartItem(nil), cart.Items...)
	return &cp, nil
}

func (s *CartStore) SetItemQuantity(ctx context.Context, userID, bookID string, quantity int) error {
	if quantity <= 0 {
		err := s.RemoveItem(ctx, userID, bookID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cart, ok := s.carts[userID]
	if !ok {
		cart = &domain.Cart{UserID: userID, CreatedAt: now}
		s.carts[userID] = cart
	}
	cart.UpdatedAt = now
	for i := range cart.Items {
		if cart.Items[i].BookID == bookID {
			cart.Items[i].Quantity = quantity
			return nil
		}
	}
	cart.Items = append(cart.Items, domain.CartItem{BookID: bookID, Quantity: quantity, AddedAt: now})
	return nil
}

func (s *CartStore) RemoveItem(_ context.Context, userID, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[userID]
	if !ok {
		return repository.ErrCartNotFound
	}
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if item.BookID != bookID {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
	cart.UpdatedAt = time.Now()
	return nil
}

func (s *CartStore) DeleteCart(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[userID]; !ok {
		return repository.ErrCartNotFound
	}
	delete(s.carts, userID)
	return nil
}

// CatalogStore implements repository.CatalogRepository
type CatalogStore struct {
	mu    sync.RWMutex
	books map[string]*domain.Book
}

func NewCatalogStore(books ...*domain.Book) *CatalogStore {
	s := &CatalogStore{books: make(map[string]*domain.Book)}
	for _, b := range books {
		cp := *b
		s.books[b.ID] = &cp
	}
	return s
}

func (s *CatalogStore) GetBook(_ context.Context, id string) (*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[id]
	if !ok {
		return nil, repository.ErrBookNotFound
	}
	cp := *book
	return &cp, nil
}

func (s *CatalogStore) ListBooks(_ context.Context, f domain.CatalogFilter) ([]*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Book, 0)
	for _, b := range s.books {
		if f.Category != "" && b.Category != f.Category {
			continue
		}
		if f.SellerID != "" && b.SellerID != f.SellerID {
			continue
		}
		if f.MinPrice != nil && b.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && b.Price > *f.MaxPrice {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && int64(len(out)) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *CatalogStore) CreateBook(_ context.Context, book *domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[book.ID]; ok {
		return repository.ErrListingExists
	}
	cp := *book
	s.books[book.ID] = &cp
	return nil
}

func (s *CatalogStore) UpdatePrice(_ context.Context, sellerID, id string, price int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[id]
	if !ok || book.SellerID != sellerID {
		return repository.ErrBookNotFound
	}
	book.Price = price
	book.UpdatedAt = time.Now()
	return nil
}

func (s *CatalogStore) DeleteBook(_ context.Context, sellerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[id]
	if !ok || book.SellerID != sellerID {
		return repository.ErrBookNotFound
	}
	delete(s.books, id)
	return nil
}

// OrderStore implements repository.OrderRepository with one map per partition.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[domain.Partition]map[string]*domain.Order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: map[domain.Partition]map[string]*domain.Order{
		domain.PartitionBuyer:  {},
		domain.PartitionSeller: {},
	}}
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp
}

func (s *OrderStore) UpsertOrder(_ context.Context, p domain.Partition, order *domain.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[p][order.ID]; ok {
		return false, nil
	}
	s.orders[p][order.ID] = copyOrder(order)
	return true, nil
}

func (s *OrderStore) GetOrder(_ context.Context, p domain.Partition, ownerID, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[p][orderID]
	if !ok || o.Owner(p) != ownerID {
		return nil, repository.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (s *OrderStore) ListOrders(_ context.Context, p domain.Partition, ownerID string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Order, 0)
	for _, o := range s.orders[p] {
		if o.Owner(p) == ownerID {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *OrderStore) MarkDelivered(_ context.Context, p domain.Partition, ownerID, orderID string) (*domain.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[p][orderID]
	if !ok || o.Owner(p) != ownerID {
		return nil, false, repository.ErrOrderNotFound
	}
	if !o.IsPending() {
		return copyOrder(o), false, nil
	}
	o.Status = domain.OrderStatusDelivered
	o.UpdatedAt = time.Now()
	return copyOrder(o), true, nil
}

// SellerStore implements repository.CounterRepository and
// repository.SellerRepository
type SellerStore struct {
	mu       sync.Mutex
	pending  map[string]map[string]struct{} // sellerID -> pending order ids
	profiles map[string]*domain.SellerProfile
}

func NewSellerStore() *SellerStore {
	return &SellerStore{
		pending:  make(map[string]map[string]struct{}),
		profiles: make(map[string]*domain.SellerProfile),
	}
}

func (s *SellerStore) AddPending(_ context.Context, sellerID, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.pending[sellerID]
	if !ok {
		set = make(map[string]struct{})
		s.pending[sellerID] = set
	}
	if _, counted := set[orderID]; counted {
		return false, nil
	}
	set[orderID] = struct{}{}
	return true, nil
}

func (s *SellerStore) RemovePending(_ context.Context, sellerID, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, counted := s.pending[sellerID][orderID]; !counted {
		return false, nil
	}
	delete(s.pending[sellerID], orderID)
	return true, nil
}

func (s *SellerStore) Get(_ context.Context, sellerID string) (*domain.SellerCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &domain.SellerCounters{SellerID: sellerID, Pending: int64(len(s.pending[sellerID]))}, nil
}

func (s *SellerStore) GetProfile(_ context.Context, sellerID string) (*domain.SellerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[sellerID]
	if !ok {
		return nil, repository.ErrSellerNotFound
	}
	cp := *p
	cp.Genres = append([]string(nil), p.Genres...)
	return &cp, nil
}

func (s *SellerStore) SaveProfile(_ context.Context, profile *domain.SellerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *profile
	cp.Genres = append([]string(nil), profile.Genres...)
	s.profiles[profile.SellerID] = &cp
	return nil
}

// AddressStore implements repository.AddressRepository
type AddressStore struct {
	mu        sync.RWMutex
	addresses map[string]*domain.Address
}

func NewAddressStore() *AddressStore {
	return &AddressStore{addresses: make(map[string]*domain.Address)}
}

func (s *AddressStore) List(_ context.Context, userID string) ([]*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Address, 0)
	for _, a := range s.addresses {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (s *AddressStore) Get(_ context.Context, userID, id string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.addresses[id]
	if !ok || a.UserID != userID {
		return nil, repository.ErrAddressNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *AddressStore) Save(_ context.Context, address *domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *address
	s.addresses[address.ID] = &cp
	return nil
}

func (s *AddressStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.addresses[id]
	if !ok || a.UserID != userID {
		return repository.ErrAddressNotFound
	}
	delete(s.addresses, id)
	return nil
}

// WishlistStore implements repository.WishlistRepository
type WishlistStore struct {
	mu    sync.RWMutex
	items map[string]map[string]*domain.WishlistItem // userID -> bookID -> item
}

func NewWishlistStore() *WishlistStore {
	return &WishlistStore{items: make(map[string]map[string]*domain.WishlistItem)}
}

func (s *WishlistStore) List(_ context.Context, userID string) ([]*domain.WishlistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.WishlistItem, 0, len(s.items[userID]))
	for _, item := range s.items[userID] {
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.After(out[j].AddedAt) })
	return out, nil
}

func (s *WishlistStore) Contains(_ context.Context, userID, bookID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.items[userID][bookID]
	return ok, nil
}

func (s *WishlistStore) Add(_ context.Context, item *domain.WishlistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.items[item.UserID] == nil {
		s.items[item.UserID] = make(map[string]*domain.WishlistItem)
	}
	cp := *item
	s.items[item.UserID][item.BookID] = &cp
	return nil
}

func (s *WishlistStore) Remove(_ context.Context, userID, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[userID][bookID]; !ok {
		return repository.ErrWishlistItemNotFound
	}
	delete(s.items[userID], bookID)
	return nil
}

// SessionStore implements repository.SessionRepository
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.CheckoutSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.CheckoutSession)}
}

func copySession(s *domain.CheckoutSession) *domain.CheckoutSession {
	cp := *s
	cp.Lines = append([]domain.CartLine(nil), s.Lines...)
	if s.Report != nil {
		r := *s.Report
		r.Groups = append([]domain.SellerCommit(nil), s.Report.Groups...)
		cp.Report = &r
	}
	return &cp
}

func (s *SessionStore) CreateSession(_ context.Context, session *domain.CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = copySession(session)
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, buyerID, id string) (*domain.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || session.BuyerID != buyerID {
		return nil, repository.ErrSessionNotFound
	}
	return copySession(session), nil
}

func (s *SessionStore) UpdateSession(_ context.Context, session *domain.CheckoutSession, from domain.CheckoutState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[session.ID]
	if !ok || stored.BuyerID != session.BuyerID || stored.State != from {
		return repository.ErrStaleSession
	}
	next := copySession(stored)
	next.State = session.State
	next.PaymentID = session.PaymentID
	next.Report = copySession(session).Report
	next.UpdatedAt = session.UpdatedAt
	s.sessions[session.ID] = next
	return nil
}

func (s *SessionStore) ListByBuyer(_ context.Context, buyerID string, states ...domain.CheckoutState) ([]*domain.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.CheckoutSession, 0)
	for _, session := range s.sessions {
		if session.BuyerID == buyerID && slices.Contains(states, session.State) {
			out = append(out, copySession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *SessionStore) ListStale(_ context.Context, state domain.CheckoutState, before time.Time, limit int) ([]*domain.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.CheckoutSession, 0)
	for _, session := range s.sessions {
		if session.State == state && session.UpdatedAt.Before(before) {
			out = append(out, copySession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
