package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/repository"
)

const maxProfileGenres = 20

type SellerService struct {
	sellers repository.SellerRepository
	log     *slog.Logger
	now     func() time.Time
}

func NewSellerService(sellers repository.SellerRepository, log *slog.Logger) *SellerService {
	return &SellerService{sellers: sellers, log: log, now: time.Now}
}

func (s *SellerService) GetProfile(ctx context.Context, sellerID string) (*domain.SellerProfile, error) {
	if sellerID == "" {
		return nil, ErrIdentityMissing
	}
	return s.sellers.GetProfile(ctx, sellerID)
}

// UpdateProfile replaces the seller's profile. Text fields are trimmed and
// genres are deduplicated case-insensitively, keeping the first spelling.
func (s *SellerService) UpdateProfile(ctx context.Context, sellerID string, in domain.SellerProfile) (*domain.SellerProfile, error) {
	if sellerID == "" {
		return nil, ErrIdentityMissing
	}

	profile := &domain.SellerProfile{
		SellerID:          sellerID,
		SellerName:        strings.TrimSpace(in.SellerName),
		EnterpriseName:    strings.TrimSpace(in.EnterpriseName),
		GSTNumber:         strings.ToUpper(strings.TrimSpace(in.GSTNumber)),
		WarehouseLocation: strings.TrimSpace(in.WarehouseLocation),
		Genres:            normalizeGenres(in.Genres),
	}
	if profile.SellerName == "" || len(profile.Genres) > maxProfileGenres {
		return nil, ErrInvalidProfile
	}

	now := s.now()
	profile.CreatedAt, profile.UpdatedAt = now, now
	existing, err := s.sellers.GetProfile(ctx, sellerID)
	switch {
	case err == nil:
		profile.CreatedAt = existing.CreatedAt
	case !errors.Is(err, repository.ErrSellerNotFound):
		return nil, err
	}

	if err := s.sellers.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "seller profile updated", slog.String("seller_id", sellerID))
	return profile, nil
}

func normalizeGenres(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, g := range in {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		key := strings.ToLower(g)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, g)
	}
	return out
}
