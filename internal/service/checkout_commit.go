package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/metrics"
	"github.com/fjod/book_market/internal/publisher"
	"github.com/fjod/book_market/internal/repository"
	"golang.org/x/sync/errgroup"
)

// commit runs the pipeline for a session in Committing:
// group lines by seller, write both order copies per seller and await them,
// count every written order as pending for its seller and await those, then
// clear the cart. Per-seller progress goes into the session report so a
// retry resumes where this run stopped. Every step is keyed by the order id,
// so a retry that lost the report repeats steps without effect.
func (s *CheckoutService) commit(ctx context.Context, session *domain.CheckoutSession) (*domain.CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CommitTimeout)
	defer cancel()

	groups := domain.GroupBySeller(session.Lines)
	report := reportFor(session.Report, groups)
	orders := make([]domain.Order, len(groups))
	now := s.now()

	var writes errgroup.Group
	for i, group := range groups {
		orders[i] = group.Order(session.BuyerID, session.PaymentID, session.Currency, session.Address, now)
		entry := &report.Groups[i]
		if entry.Written() {
			continue
		}
		writes.Go(func() error {
			s.writeOrder(ctx, &orders[i], entry)
			return nil
		})
	}
	_ = writes.Wait()

	var counts errgroup.Group
	for i := range groups {
		entry := &report.Groups[i]
		if !entry.Written() || entry.Counted {
			continue
		}
		orderID := orders[i].ID
		counts.Go(func() error {
			err := s.cfg.Retry.do(ctx, func() error {
				_, err := s.counters.AddPending(ctx, entry.SellerID, orderID)
				return err
			})
			if err != nil {
				s.stepFailed(ctx, session, "counter", entry, err)
				return nil
			}
			entry.Counted = true
			return nil
		})
	}
	_ = counts.Wait()

	s.checkpoint(ctx, session, report)
	s.settleCart(ctx, session, report)

	event := domain.EventCommitSucceeded
	outcome := "committed"
	if !report.Complete() {
		event = domain.EventCommitFailed
		outcome = "failed"
	}
	next, err := domain.Transition(session.State, event)
	if err != nil {
		return nil, err
	}

	from := session.State
	session.State = next
	session.Report = report
	session.UpdatedAt = s.now()
	if err := s.sessions.UpdateSession(ctx, session, from); err != nil {
		s.log.ErrorContext(ctx, "checkout session update failed",
			slog.String("session_id", session.ID), slog.String("state", string(next)), slog.Any("error", err))
		return nil, fmt.Errorf("record commit outcome: %w", err)
	}
	metrics.CheckoutSessionsTotal.WithLabelValues(outcome).Inc()

	if next == domain.CheckoutStateFailed {
		s.log.ErrorContext(ctx, "checkout partially committed",
			slog.String("session_id", session.ID),
			slog.String("payment_id", session.PaymentID),
			slog.Any("uncommitted_sellers", report.Failed()),
			slog.Bool("cart_cleared", report.CartCleared))
		return session, &PartialCommitError{SessionID: session.ID, Report: report}
	}

	s.log.InfoContext(ctx, "checkout committed",
		slog.String("session_id", session.ID),
		slog.String("payment_id", session.PaymentID),
		slog.Int("orders", len(orders)))
	s.publishPlaced(ctx, orders)

	return session, nil
}

// reportFor lines up the stored report with the current groups. Groups are
// derived from the session snapshot, so a stored report has the same sellers
// in the same order.
func reportFor(stored *domain.CommitReport, groups []domain.SellerGroup) *domain.CommitReport {
	report := &domain.CommitReport{Groups: make([]domain.SellerCommit, len(groups))}
	if stored != nil {
		report.CartCleared = stored.CartCleared
	}
	for i, g := range groups {
		if prev := stored.Group(g.SellerID); prev != nil {
			report.Groups[i] = *prev
			report.Groups[i].Error = ""
			continue
		}
		report.Groups[i] = domain.SellerCommit{SellerID: g.SellerID, Total: g.Total()}
	}
	return report
}

func (s *CheckoutService) writeOrder(ctx context.Context, order *domain.Order, entry *domain.SellerCommit) {
	entry.OrderID = order.ID
	entry.Total = order.TotalAmount

	copies := []struct {
		partition domain.Partition
		done      *bool
	}{
		{domain.PartitionBuyer, &entry.BuyerCopy},
		{domain.PartitionSeller, &entry.SellerCopy},
	}
	for _, c := range copies {
		if *c.done {
			continue
		}
		var created bool
		err := s.cfg.Retry.do(ctx, func() error {
			var err error
			created, err = s.orders.UpsertOrder(ctx, c.partition, order)
			return err
		})
		if err != nil {
			metrics.CommitStepFailuresTotal.WithLabelValues(string(c.partition) + "_order").Inc()
			entry.Error = err.Error()
			s.log.ErrorContext(ctx, "order write failed",
				slog.String("order_id", order.ID),
				slog.String("seller_id", order.SellerID),
				slog.String("partition", string(c.partition)),
				slog.Any("error", err))
			return
		}
		*c.done = true
		if c.partition == domain.PartitionSeller && created {
			metrics.OrdersCommittedTotal.Inc()
		}
	}
}

// checkpoint stores the report while the session is still Committing. A
// failed checkpoint only costs a retry some repeated, idempotent steps.
func (s *CheckoutService) checkpoint(ctx context.Context, session *domain.CheckoutSession, report *domain.CommitReport) {
	snapshot := *session
	snapshot.Report = report
	snapshot.UpdatedAt = s.now()
	if err := s.sessions.UpdateSession(ctx, &snapshot, domain.CheckoutStateCommitting); err != nil {
		s.log.WarnContext(ctx, "commit checkpoint not stored",
			slog.String("session_id", session.ID), slog.Any("error", err))
	}
}

func (s *CheckoutService) stepFailed(ctx context.Context, session *domain.CheckoutSession, step string, entry *domain.SellerCommit, err error) {
	metrics.CommitStepFailuresTotal.WithLabelValues(step).Inc()
	entry.Error = err.Error()
	s.log.ErrorContext(ctx, "commit step failed",
		slog.String("session_id", session.ID),
		slog.String("step", step),
		slog.String("seller_id", entry.SellerID),
		slog.Any("error", err))
}

// settleCart empties the cart once every seller is committed. Otherwise it
// removes only the lines of committed sellers so the rest can be retried.
func (s *CheckoutService) settleCart(ctx context.Context, session *domain.CheckoutSession, report *domain.CommitReport) {
	if report.CartCleared {
		return
	}

	if len(report.Failed()) == 0 {
		err := s.cfg.Retry.do(ctx, func() error {
			return s.cart.clear(ctx, session.BuyerID)
		})
		if err != nil {
			metrics.CommitStepFailuresTotal.WithLabelValues("cart_clear").Inc()
			s.log.ErrorContext(ctx, "cart clear failed", slog.String("session_id", session.ID), slog.Any("error", err))
			return
		}
		report.CartCleared = true
		return
	}

	var committed []string
	for _, line := range session.Lines {
		if entry := report.Group(line.SellerID); entry != nil && entry.Done() {
			committed = append(committed, line.BookID)
		}
	}
	if len(committed) == 0 {
		return
	}
	err := s.cfg.Retry.do(ctx, func() error {
		return s.cart.removeLines(ctx, session.BuyerID, committed...)
	})
	if err != nil {
		metrics.CommitStepFailuresTotal.WithLabelValues("cart_trim").Inc()
		s.log.ErrorContext(ctx, "cart trim failed", slog.String("session_id", session.ID), slog.Any("error", err))
	}
}

func (s *CheckoutService) publishPlaced(ctx context.Context, orders []domain.Order) {
	ptrs := make([]*domain.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.events.Publish(pctx, publisher.EventOrderPlaced, ptrs...); err != nil {
		s.log.WarnContext(ctx, "order events not published", slog.Int("orders", len(orders)), slog.Any("error", err))
	}
}

// RecoverStale moves sessions stuck in Committing, e.g. after a crash
// mid-commit, to Failed so their buyer can retry them.
func (s *CheckoutService) RecoverStale(ctx context.Context) (int, error) {
	before := s.now().Add(-s.cfg.StaleAfter)
	sessions, err := s.sessions.ListStale(ctx, domain.CheckoutStateCommitting, before, 100)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, session := range sessions {
		next, err := domain.Transition(session.State, domain.EventCommitFailed)
		if err != nil {
			continue
		}
		from := session.State
		session.State = next
		session.UpdatedAt = s.now()
		if session.Report == nil {
			session.Report = reportFor(nil, domain.GroupBySeller(session.Lines))
		}
		if err := s.sessions.UpdateSession(ctx, session, from); err != nil {
			if !errors.Is(err, repository.ErrStaleSession) {
				s.log.ErrorContext(ctx, "stale session recovery failed", slog.String("session_id", session.ID), slog.Any("error", err))
			}
			continue
		}
		recovered++
		s.log.WarnContext(ctx, "stale checkout session marked failed", slog.String("session_id", session.ID))
	}
	return recovered, nil
}

// RunRecovery calls RecoverStale every interval until ctx is done.
func (s *CheckoutService) RunRecovery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.RecoverStale(ctx); err != nil {
				s.log.ErrorContext(ctx, "stale session scan failed", slog.Any("error", err))
			}
		case <-ctx.Done():
			return
		}
	}
}
