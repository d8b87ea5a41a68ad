package service

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSellerProfile_UpdateThenGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	f.seller.now = func() time.Time { return created }

	_, err := f.seller.GetProfile(ctx, "S1")
	assert.ErrorIs(t, err, repository.ErrSellerNotFound)

	profile, err := f.seller.UpdateProfile(ctx, "S1", domain.SellerProfile{
		SellerName:        "  Asha ",
		EnterpriseName:    "Paper Lane",
		GSTNumber:         "27aapfu0939f1zv",
		WarehouseLocation: " Pune ",
		Genres:            []string{"Fiction", " fiction", "", "Poetry"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha", profile.SellerName)
	assert.Equal(t, "27AAPFU0939F1ZV", profile.GSTNumber)
	assert.Equal(t, "Pune", profile.WarehouseLocation)
	assert.Equal(t, []string{"Fiction", "Poetry"}, profile.Genres)

	f.seller.now = func() time.Time { return created.Add(24 * time.Hour) }
	_, err = f.seller.UpdateProfile(ctx, "S1", domain.SellerProfile{SellerName: "Asha", WarehouseLocation: "Mumbai"})
	require.NoError(t, err)

	got, err := f.seller.GetProfile(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "S1", got.SellerID)
	assert.Equal(t, "Mumbai", got.WarehouseLocation)
	assert.Empty(t, got.Genres)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, created.Add(24*time.Hour), got.UpdatedAt)
}

func TestSellerProfile_Invalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.seller.UpdateProfile(ctx, "S1", domain.SellerProfile{SellerName: "   "})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	many := make([]string, maxProfileGenres+1)
	for i := range many {
		many[i] = string(rune('a' + i))
	}
	_, err = f.seller.UpdateProfile(ctx, "S1", domain.SellerProfile{SellerName: "Asha", Genres: many})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = f.seller.UpdateProfile(ctx, "", domain.SellerProfile{SellerName: "Asha"})
	assert.ErrorIs(t, err, ErrIdentityMissing)
	_, err = f.seller.GetProfile(ctx, "")
	assert.ErrorIs(t, err, ErrIdentityMissing)

	// the pending count on the same seller record is untouched
	assert.Equal(t, int64(0), f.pending(t, "S1"))
}
