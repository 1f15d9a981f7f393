package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/infra/logging"
	"video-subscription-storefront/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase is the subscription ledger. The user document holds the
// authoritative projection; the subscriptions collection keeps an immutable
// history of every activation.
type SubscriptionUseCase interface {
	// Activate records a paid order. It never returns an error: false means
	// nothing usable was written and the caller must surface a failure.
	Activate(ctx context.Context, userID, planName, orderID, trackingID string) bool
	// Grant is the administrator path: days overrides the plan duration and a
	// history entry keyed by the grant time is written.
	Grant(ctx context.Context, userID, planName string, days int, actor string) (*model.Subscription, error)
	// CheckActive returns the subscription only when it currently grants access.
	CheckActive(ctx context.Context, userID string) (*model.Subscription, error)
	Deactivate(ctx context.Context, userID, actor string) error
	CountActive(ctx context.Context) (int, error)
	Now() time.Time
}

type subscriptionUC struct {
	docs  repository.DocumentStore
	clock func() time.Time
	log   *zerolog.Logger
}

func NewSubscriptionUseCase(docs repository.DocumentStore, logger *zerolog.Logger) *subscriptionUC {
	return &subscriptionUC{
		docs:  docs,
		clock: time.Now,
		log:   logger,
	}
}

// WithClock replaces the time source, for tests.
func (uc *subscriptionUC) WithClock(now func() time.Time) *subscriptionUC {
	uc.clock = now
	return uc
}

func (uc *subscriptionUC) Now() time.Time { return uc.clock() }

func (uc *subscriptionUC) Activate(ctx context.Context, userID, planName, orderID, trackingID string) bool {
	defer logging.TraceDuration(uc.log, "SubscriptionUC.Activate")()
	log := uc.log.With().Str("user_id", userID).Str("order_id", orderID).Str("plan", planName).Logger()

	if userID == "" || orderID == "" {
		log.Error().Msg("activation without user or order id")
		return false
	}
	days, ok := model.PlanDays(planName)
	if !ok {
		log.Error().Msg("activation for unknown plan")
		return false
	}

	now := uc.clock()
	sub := model.Subscription{
		Plan:            planName,
		ExpiresAt:       model.ExpiryFor(now, days),
		Active:          true,
		OrderID:         orderID,
		OrderTrackingID: trackingID,
		ActivatedAt:     &now,
		ActivatedBy:     model.ActorSystem,
		UserID:          userID,
	}

	// History first: a retry of the same order finds the record and replays
	// it, so the projection does not drift.
	record := model.SubscriptionRecord{Subscription: sub, CreatedAt: now}
	stored, err := uc.writeHistory(ctx, model.SubscriptionHistoryPath(userID, orderID), record)
	if err != nil {
		log.Error().Err(err).Msg("failed to write subscription history")
		return false
	}

	if err := uc.writeProjection(ctx, userID, stored.Subscription); err != nil {
		log.Error().Err(err).Msg("failed to write subscription projection")
		return false
	}

	metrics.IncSubscriptionActivated(planName, "payment")
	log.Info().Time("expires_at", stored.ExpiresAt).Msg("subscription activated")
	return true
}

func (uc *subscriptionUC) Grant(ctx context.Context, userID, planName string, days int, actor string) (*model.Subscription, error) {
	defer logging.TraceDuration(uc.log, "SubscriptionUC.Grant")()

	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	if planName == "" {
		if days <= 0 {
			return nil, fmt.Errorf("%w: plan or positive days required", domain.ErrInvalidArgument)
		}
		planName = model.CustomPlanName(days)
	}
	if days == 0 {
		d, ok := model.PlanDays(planName)
		if !ok {
			return nil, domain.ErrUnknownPlan
		}
		days = d
	}
	if days < 0 && days != model.LifetimeDays {
		return nil, fmt.Errorf("%w: days must be positive", domain.ErrInvalidArgument)
	}
	if actor == "" {
		actor = model.ActorAdmin
	}

	now := uc.clock()
	grantID := model.ActorAdmin + "_" + strconv.FormatInt(now.UnixMilli(), 10)
	sub := model.Subscription{
		Plan:        planName,
		ExpiresAt:   model.ExpiryFor(now, days),
		Active:      true,
		OrderID:     grantID,
		ActivatedAt: &now,
		ActivatedBy: actor,
		UserID:      userID,
	}
	if _, err := uc.writeHistory(ctx, model.SubscriptionHistoryPath(userID, grantID), model.SubscriptionRecord{Subscription: sub, CreatedAt: now}); err != nil {
		return nil, err
	}
	if err := uc.writeProjection(ctx, userID, sub); err != nil {
		return nil, err
	}

	metrics.IncSubscriptionActivated(planName, model.ActorAdmin)
	uc.log.Info().Str("user_id", userID).Str("plan", planName).Int("days", days).Str("actor", actor).Msg("subscription granted")
	return &sub, nil
}

func (uc *subscriptionUC) CheckActive(ctx context.Context, userID string) (*model.Subscription, error) {
	defer logging.TraceDuration(uc.log, "SubscriptionUC.CheckActive")()

	sub, err := uc.projection(ctx, userID)
	if err != nil || sub == nil {
		return nil, err
	}
	if !sub.GrantsAccess(uc.clock()) {
		return nil, nil
	}
	return sub, nil
}

func (uc *subscriptionUC) Deactivate(ctx context.Context, userID, actor string) error {
	defer logging.TraceDuration(uc.log, "SubscriptionUC.Deactivate")()

	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	if actor == "" {
		actor = model.ActorAdmin
	}
	if _, err := uc.docs.Get(ctx, model.UserPath(userID)); err != nil {
		return err
	}
	err := uc.docs.MergeUpdate(ctx, model.UserPath(userID), repository.Document{
		"subscription.isActive":      false,
		"subscription.deactivatedAt": uc.clock(),
		"subscription.deactivatedBy": actor,
	})
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	metrics.IncSubscriptionDeactivated()
	uc.log.Info().Str("user_id", userID).Str("actor", actor).Msg("subscription deactivated")
	return nil
}

func (uc *subscriptionUC) CountActive(ctx context.Context) (int, error) {
	defer logging.TraceDuration(uc.log, "SubscriptionUC.CountActive")()

	users, err := uc.docs.List(ctx, "users")
	if err != nil {
		return 0, err
	}
	now := uc.clock()
	n := 0
	for path, doc := range users {
		var u model.User
		if err := fromDocument(doc, &u); err != nil {
			uc.log.Warn().Err(err).Str("path", path).Msg("skipping undecodable user document")
			continue
		}
		if u.Subscription.GrantsAccess(now) {
			n++
		}
	}
	return n, nil
}

// projection reads the subscription field of the user document. A missing
// user, a missing field or an explicit null all yield nil.
func (uc *subscriptionUC) projection(ctx context.Context, userID string) (*model.Subscription, error) {
	doc, err := uc.docs.Get(ctx, model.UserPath(userID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user %s: %w", userID, err)
	}
	raw, ok := doc["subscription"]
	if !ok || raw == nil {
		return nil, nil
	}
	var sub model.Subscription
	if err := fromDocument(raw, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (uc *subscriptionUC) writeHistory(ctx context.Context, path string, record model.SubscriptionRecord) (model.SubscriptionRecord, error) {
	doc, err := toDocument(record)
	if err != nil {
		return record, err
	}
	created, err := uc.docs.Create(ctx, path, doc)
	if err != nil {
		return record, fmt.Errorf("create %s: %w", path, err)
	}
	if created {
		return record, nil
	}
	existing, err := uc.docs.Get(ctx, path)
	if err != nil {
		return record, fmt.Errorf("read %s: %w", path, err)
	}
	var prior model.SubscriptionRecord
	if err := fromDocument(existing, &prior); err != nil {
		return record, err
	}
	return prior, nil
}

func (uc *subscriptionUC) writeProjection(ctx context.Context, userID string, sub model.Subscription) error {
	doc, err := toDocument(sub)
	if err != nil {
		return err
	}
	return uc.docs.MergeUpdate(ctx, model.UserPath(userID), repository.Document{"subscription": doc})
}
