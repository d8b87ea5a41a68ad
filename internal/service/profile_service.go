package service

import (
	"context"
	"strings"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/repository"
)

type WishlistService struct {
	wishlists repository.WishlistRepository
	catalog   BookReader
	now       func() time.Time
}

func NewWishlistService(wishlists repository.WishlistRepository, catalog BookReader) *WishlistService {
	return &WishlistService{wishlists: wishlists, catalog: catalog, now: time.Now}
}

func (s *WishlistService) List(ctx context.Context, userID string) ([]*domain.WishlistItem, error) {
	if userID == "" {
		return nil, ErrIdentityMissing
	}
	return s.wishlists.List(ctx, userID)
}

// Toggle adds the book when absent and removes it when present. It reports
// whether the book is on the wishlist afterwards.
func (s *WishlistService) Toggle(ctx context.Context, userID, bookID string) (bool, error) {
	if userID == "" {
		return false, ErrIdentityMissing
	}

	present, err := s.wishlists.Contains(ctx, userID, bookID)
	if err != nil {
		return false, err
	}
	if present {
		return false, s.wishlists.Remove(ctx, userID, bookID)
	}

	book, err := s.catalog.GetBook(ctx, bookID)
	if err != nil {
		return false, err
	}
	item := &domain.WishlistItem{
		UserID:   userID,
		BookID:   book.ID,
		Name:     book.Name,
		Author:   book.Author,
		Price:    book.Price,
		ImageURL: book.ImageURL,
		AddedAt:  s.now(),
	}
	if err := s.wishlists.Add(ctx, item); err != nil {
		return false, err
	}
	return true, nil
}

func (s *WishlistService) Remove(ctx context.Context, userID, bookID string) error {
	if userID == "" {
		return ErrIdentityMissing
	}
	return s.wishlists.Remove(ctx, userID, bookID)
}

type AddressService struct {
	addresses repository.AddressRepository
	now       func() time.Time
}

func NewAddressService(addresses repository.AddressRepository) *AddressService {
	return &AddressService{addresses: addresses, now: time.Now}
}

func (s *AddressService) List(ctx context.Context, userID string) ([]*domain.Address, error) {
	if userID == "" {
		return nil, ErrIdentityMissing
	}
	return s.addresses.List(ctx, userID)
}

func (s *AddressService) Get(ctx context.Context, userID, id string) (*domain.Address, error) {
	if userID == "" {
		return nil, ErrIdentityMissing
	}
	return s.addresses.Get(ctx, userID, id)
}

// Save stores an address under its label, replacing one saved earlier with
// the same label.
func (s *AddressService) Save(ctx context.Context, userID, label, text string) (*domain.Address, error) {
	if userID == "" {
		return nil, ErrIdentityMissing
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidAddress
	}

	id := domain.AddressID(userID, label)
	now := s.now()
	address := &domain.Address{
		ID:        id,
		UserID:    userID,
		Label:     strings.TrimPrefix(id, userID+"-"),
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, err := s.addresses.Get(ctx, userID, id); err == nil {
		address.CreatedAt = prev.CreatedAt
	}
	if err := s.addresses.Save(ctx, address); err != nil {
		return nil, err
	}
	return address, nil
}

func (s *AddressService) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return ErrIdentityMissing
	}
	return s.addresses.Delete(ctx, userID, id)
}
