package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/metrics"
	"github.com/fjod/book_market/internal/payment"
	"github.com/fjod/book_market/internal/publisher"
	"github.com/fjod/book_market/internal/repository"
	"github.com/google/uuid"
)

type AddressReader interface {
	Get(ctx context.Context, userID, id string) (*domain.Address, error)
}

type CheckoutConfig struct {
	Currency string
	Retry    RetryPolicy
	// CommitTimeout bounds one run of the commit pipeline. The pipeline is
	// detached from the request so a dropped connection cannot stop it
	// halfway.
	CommitTimeout time.Duration
	// StaleAfter is how long a session may sit in Committing before recovery
	// marks it Failed.
	StaleAfter time.Duration
}

func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		Currency:      "INR",
		Retry:         DefaultRetryPolicy(),
		CommitTimeout: 30 * time.Second,
		StaleAfter:    5 * time.Minute,
	}
}

type CheckoutService struct {
	cart      *CartService
	addresses AddressReader
	sessions  repository.SessionRepository
	orders    repository.OrderRepository
	counters  repository.CounterRepository
	gateway   payment.Gateway
	events    publisher.OrderPublisher
	log       *slog.Logger
	cfg       CheckoutConfig
	now       func() time.Time
}

func NewCheckoutService(
	cart *CartService,
	addresses AddressReader,
	sessions repository.SessionRepository,
	orders repository.OrderRepository,
	counters repository.CounterRepository,
	gateway payment.Gateway,
	events publisher.OrderPublisher,
	log *slog.Logger,
	cfg CheckoutConfig,
) *CheckoutService {
	if events == nil {
		events = publisher.Nop{}
	}
	defaults := DefaultCheckoutConfig()
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = defaults.CommitTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaults.StaleAfter
	}
	return &CheckoutService{
		cart:      cart,
		addresses: addresses,
		sessions:  sessions,
		orders:    orders,
		counters:  counters,
		gateway:   gateway,
		events:    events,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Begin opens a gateway payment for the buyer's current cart and parks the
// session in AwaitingPayment. The lines priced now are the lines ordered
// later, whatever happens to the cart in between.
//
// A buyer with a paid session still Committing or Failed is refused: the
// lines left in the cart by such a session are already paid for.
func (s *CheckoutService) Begin(ctx context.Context, buyerID, addressID string) (*domain.CheckoutSession, error) {
	if buyerID == "" {
		return nil, ErrIdentityMissing
	}

	unsettled, err := s.sessions.ListByBuyer(ctx, buyerID, domain.CheckoutStateCommitting, domain.CheckoutStateFailed)
	if err != nil {
		return nil, fmt.Errorf("check unsettled checkouts: %w", err)
	}
	if len(unsettled) > 0 {
		s.log.WarnContext(ctx, "checkout refused while a paid session is unsettled",
			slog.String("buyer_id", buyerID), slog.String("session_id", unsettled[0].ID))
		return nil, fmt.Errorf("%w (session %s)", ErrUnsettled, unsettled[0].ID)
	}

	view, err := s.cart.freshView(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("build cart view: %w", err)
	}
	if view.IsEmpty() || view.Total <= 0 {
		return nil, ErrEmptyCart
	}

	if addressID == "" {
		return nil, ErrAddressRequired
	}
	address, err := s.addresses.Get(ctx, buyerID, addressID)
	if err != nil {
		return nil, err
	}

	state, err := domain.Transition(domain.CheckoutStateIdle, domain.EventCheckoutRequested)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	order, err := s.gateway.CreateOrder(ctx, view.Total, s.cfg.Currency, sessionID)
	if err != nil {
		s.log.ErrorContext(ctx, "payment order creation failed",
			slog.String("buyer_id", buyerID), slog.Int64("amount", view.Total), slog.Any("error", err))
		return nil, fmt.Errorf("open payment: %w", err)
	}

	now := s.now()
	session := &domain.CheckoutSession{
		ID:             sessionID,
		BuyerID:        buyerID,
		Address:        address.Snapshot(),
		State:          state,
		Amount:         view.Total,
		Currency:       s.cfg.Currency,
		GatewayOrderID: order.ID,
		Lines:          view.Lines,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("store checkout session: %w", err)
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("started").Inc()
	s.log.InfoContext(ctx, "checkout started",
		slog.String("session_id", session.ID),
		slog.String("buyer_id", buyerID),
		slog.Int64("amount", session.Amount),
		slog.Int("lines", len(session.Lines)))

	return session, nil
}

// ConfirmPayment handles the gateway success callback and commits the orders.
// Replaying the callback of an already processed payment returns the stored
// outcome without writing anything.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, buyerID, sessionID, paymentID, signature string) (*domain.CheckoutSession, error) {
	if buyerID == "" {
		return nil, ErrIdentityMissing
	}

	session, err := s.sessions.GetSession(ctx, buyerID, sessionID)
	if err != nil {
		return nil, err
	}

	if session.PaymentID != "" {
		if session.PaymentID != paymentID {
			return nil, ErrPaymentMismatch
		}
		return s.replay(session)
	}

	next, err := domain.Transition(session.State, domain.EventPaymentSucceeded)
	if err != nil {
		return nil, err
	}

	if err := s.gateway.VerifyPayment(session.GatewayOrderID, paymentID, signature); err != nil {
		s.log.WarnContext(ctx, "payment verification failed",
			slog.String("session_id", session.ID), slog.String("payment_id", paymentID), slog.Any("error", err))
		return nil, err
	}

	from := session.State
	session.State = next
	session.PaymentID = paymentID
	session.UpdatedAt = s.now()
	if err := s.sessions.UpdateSession(ctx, session, from); err != nil {
		if errors.Is(err, repository.ErrStaleSession) {
			return nil, ErrCommitInProgress
		}
		return nil, fmt.Errorf("move session to committing: %w", err)
	}

	return s.commit(ctx, session)
}

func (s *CheckoutService) replay(session *domain.CheckoutSession) (*domain.CheckoutSession, error) {
	switch session.State {
	case domain.CheckoutStateIdle:
		return session, nil
	case domain.CheckoutStateFailed:
		return session, &PartialCommitError{SessionID: session.ID, Report: session.Report}
	default:
		return nil, ErrCommitInProgress
	}
}

// Abandon closes a session whose payment widget was dismissed. Nothing but
// the session changes; abandoning twice is a no-op.
func (s *CheckoutService) Abandon(ctx context.Context, buyerID, sessionID string) (*domain.CheckoutSession, error) {
	if buyerID == "" {
		return nil, ErrIdentityMissing
	}

	session, err := s.sessions.GetSession(ctx, buyerID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == domain.CheckoutStateIdle && session.PaymentID == "" {
		return session, nil
	}

	next, err := domain.Transition(session.State, domain.EventPaymentAbandoned)
	if err != nil {
		return nil, err
	}

	from := session.State
	session.State = next
	session.UpdatedAt = s.now()
	if err := s.sessions.UpdateSession(ctx, session, from); err != nil {
		if errors.Is(err, repository.ErrStaleSession) {
			return nil, fmt.Errorf("%w: session changed while abandoning", domain.ErrIllegalTransition)
		}
		return nil, fmt.Errorf("abandon session: %w", err)
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("abandoned").Inc()
	s.log.InfoContext(ctx, "checkout abandoned", slog.String("session_id", session.ID))
	return session, nil
}

// RetryCommit resumes a Failed session. Steps the stored report marks as done
// are skipped.
func (s *CheckoutService) RetryCommit(ctx context.Context, buyerID, sessionID string) (*domain.CheckoutSession, error) {
	if buyerID == "" {
		return nil, ErrIdentityMissing
	}

	session, err := s.sessions.GetSession(ctx, buyerID, sessionID)
	if err != nil {
		return nil, err
	}

	next, err := domain.Transition(session.State, domain.EventRetryRequested)
	if err != nil {
		return nil, err
	}

	from := session.State
	session.State = next
	session.UpdatedAt = s.now()
	if err := s.sessions.UpdateSession(ctx, session, from); err != nil {
		if errors.Is(err, repository.ErrStaleSession) {
			return nil, ErrCommitInProgress
		}
		return nil, fmt.Errorf("move session to committing: %w", err)
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("retried").Inc()
	return s.commit(ctx, session)
}

func (s *CheckoutService) GetSession(ctx context.Context, buyerID, sessionID string) (*domain.CheckoutSession, error) {
	if buyerID == "" {
		return nil, ErrIdentityMissing
	}
	return s.sessions.GetSession(ctx, buyerID, sessionID)
}
