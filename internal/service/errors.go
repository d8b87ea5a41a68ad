package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/repository"
)

var (
	ErrIdentityMissing  = errors.New("identity missing")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrAddressRequired  = errors.New("delivery address required")
	ErrCommitInProgress = errors.New("checkout commit already in progress")
	ErrUnsettled        = errors.New("a paid checkout is not settled yet; retry it before starting another")
	ErrPaymentMismatch  = errors.New("payment does not belong to this checkout")
	ErrPartialCommit    = errors.New("some items may not have been ordered - contact support")
	ErrInvalidPrice     = errors.New("price must be between 0 and 100000000.00 with at most two decimals")
	ErrInvalidListing   = errors.New("listing needs a name")
	ErrInvalidAddress   = errors.New("address text must not be empty")
	ErrInvalidProfile   = errors.New("seller profile needs a seller name")

	ErrItemNotFound = repository.ErrItemNotFound
	ErrBookNotFound = repository.ErrBookNotFound
)

// PartialCommitError reports a commit that wrote orders for some sellers
// only. The session is left Failed and can be retried.
type PartialCommitError struct {
	SessionID string
	Report    *domain.CommitReport
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("checkout %s: %s (uncommitted sellers: %s)",
		e.SessionID, ErrPartialCommit, strings.Join(e.Report.Failed(), ", "))
}

func (e *PartialCommitError) Is(target error) bool {
	return target == ErrPartialCommit
}
