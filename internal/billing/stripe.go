// Package billing integrates the payments provider: one-time XP purchases,
// tier subscriptions, the customer portal, and the webhook that turns
// provider events into ledger credits and subscription rows.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	invoicepkg "github.com/stripe/stripe-go/v82/invoice"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/companionchat/backend/internal/config"
	"github.com/companionchat/backend/internal/database"
	"github.com/companionchat/backend/internal/models"
	"github.com/companionchat/backend/internal/repository"
)

var (
	// ErrNoSubscription is returned when an operation needs an existing subscription
	ErrNoSubscription = errors.New("no subscription found")
	// ErrSamePlan is returned when changing to the currently active plan
	ErrSamePlan = errors.New("already on this plan")
	// ErrUnknownTier is returned for tier names with no configured price
	ErrUnknownTier = errors.New("unknown subscription tier")
)

// Service manages the payments provider integration
type Service struct {
	cfg    *config.Config
	db     *database.DB
	usage  *repository.UsageRepository
	subs   *repository.SubscriptionRepository
	logger zerolog.Logger
}

// NewService initializes the provider API key and returns the billing service
func NewService(cfg *config.Config, db *database.DB, usage *repository.UsageRepository, subs *repository.SubscriptionRepository, logger zerolog.Logger) *Service {
	stripe.Key = cfg.StripeSecretKey
	return &Service{
		cfg:    cfg,
		db:     db,
		usage:  usage,
		subs:   subs,
		logger: logger.With().Str("service", "billing").Logger(),
	}
}

// priceIDForTier maps a tier name to its configured provider price ID.
func (s *Service) priceIDForTier(tier string) (string, error) {
	switch tier {
	case models.TierStarter:
		return s.cfg.StripePriceStarter, nil
	case models.TierPro:
		return s.cfg.StripePricePro, nil
	case models.TierUltimate:
		return s.cfg.StripePriceUltimate, nil
	}
	return "", ErrUnknownTier
}

// centsForPriceID maps a configured provider price ID back to the tier price.
// Unknown IDs fall through to the price amount on the subscription item.
func (s *Service) centsForPriceID(priceID string, fallback int64) int {
	switch priceID {
	case s.cfg.StripePriceStarter:
		return models.PriceStarter
	case s.cfg.StripePricePro:
		return models.PricePro
	case s.cfg.StripePriceUltimate:
		return models.PriceUltimate
	}
	return int(fallback)
}

// CreateXPCheckout creates a one-time payment session for an XP package. The
// XP amount rides in the session metadata and is credited by the webhook.
func (s *Service) CreateXPCheckout(ctx context.Context, userID, email string, xpAmount int, priceCents int64) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:                     stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		BillingAddressCollection: stripe.String("auto"),
		CustomerEmail:            stripe.String(email),
		SuccessURL:               stripe.String(s.cfg.CheckoutSuccessURL),
		CancelURL:                stripe.String(s.cfg.CheckoutCancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String("usd"),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(fmt.Sprintf("%d XP Package", xpAmount)),
					Description: stripe.String(fmt.Sprintf("One-time purchase of %d XP", xpAmount)),
				},
				UnitAmount: stripe.Int64(priceCents),
			},
			Quantity: stripe.Int64(1),
		}},
		Metadata: map[string]string{
			"user_id":   userID,
			"xp_amount": strconv.Itoa(xpAmount),
		},
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to create XP checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreateSubscriptionCheckout creates a subscription session for a tier.
func (s *Service) CreateSubscriptionCheckout(ctx context.Context, userID, email, tier string) (string, error) {
	priceID, err := s.priceIDForTier(tier)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CustomerEmail:      stripe.String(email),
		SuccessURL:         stripe.String(s.cfg.CheckoutSuccessURL),
		CancelURL:          stripe.String(s.cfg.CheckoutCancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}},
		Metadata: map[string]string{"user_id": userID},
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("tier", tier).Msg("failed to create subscription checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession creates a customer portal session for managing the
// subscription.
func (s *Service) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	sub, err := s.subs.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return "", ErrNoSubscription
		}
		return "", err
	}
	if sub.StripeCustomerID == "" {
		return "", ErrNoSubscription
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(sub.StripeCustomerID),
		ReturnURL: stripe.String(s.cfg.CheckoutSuccessURL),
	}
	params.Context = ctx

	sess, err := billingsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to create billing portal session")
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// ChangeResult is the outcome of a subscription change. Upgrades return the
// hosted invoice for the prorated difference; downgrades apply immediately.
type ChangeResult struct {
	InvoiceURL string `json:"invoice_url,omitempty"`
	Changed    bool   `json:"changed"`
}

// ChangeSubscription moves an active subscription to another tier. Upgrades
// invoice the prorated difference up front; downgrades skip proration and
// update the stored tier immediately.
func (s *Service) ChangeSubscription(ctx context.Context, userID, newTier string) (*ChangeResult, error) {
	newPriceID, err := s.priceIDForTier(newTier)
	if err != nil {
		return nil, err
	}

	sub, err := s.subs.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, err
	}
	if sub.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}
	if sub.StripePriceID == newPriceID {
		return nil, ErrSamePlan
	}

	current, err := subscriptionpkg.Get(sub.StripeSubscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}
	if len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("subscription %s has no items", sub.StripeSubscriptionID)
	}
	itemID := current.Items.Data[0].ID

	newCents := s.centsForPriceID(newPriceID, 0)
	if newCents > sub.PriceCents {
		updated, err := subscriptionpkg.Update(sub.StripeSubscriptionID, &stripe.SubscriptionParams{
			Items: []*stripe.SubscriptionItemsParams{{
				ID:    stripe.String(itemID),
				Price: stripe.String(newPriceID),
			}},
			ProrationBehavior: stripe.String("always_invoice"),
			PaymentBehavior:   stripe.String("pending_if_incomplete"),
		})
		if err != nil {
			return nil, fmt.Errorf("upgrade subscription: %w", err)
		}

		if updated.LatestInvoice != nil {
			inv, err := invoicepkg.Get(updated.LatestInvoice.ID, nil)
			if err != nil {
				return nil, fmt.Errorf("fetch upgrade invoice: %w", err)
			}
			return &ChangeResult{InvoiceURL: inv.HostedInvoiceURL, Changed: true}, nil
		}
		return &ChangeResult{Changed: true}, nil
	}

	if _, err := subscriptionpkg.Update(sub.StripeSubscriptionID, &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:    stripe.String(itemID),
			Price: stripe.String(newPriceID),
		}},
		ProrationBehavior: stripe.String("none"),
	}); err != nil {
		return nil, fmt.Errorf("downgrade subscription: %w", err)
	}

	sub.PriceCents = newCents
	sub.StripePriceID = newPriceID
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	return &ChangeResult{Changed: true}, nil
}

// VerifyEvent checks the webhook signature and parses the event.
func (s *Service) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, s.cfg.StripeWebhookSecret)
}

// HandleEvent applies one verified webhook event.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	s.logger.Info().Str("event_type", string(event.Type)).Msg("payment webhook received")

	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return fmt.Errorf("invalid checkout.session data: %w", err)
		}
		if cs.Mode == stripe.CheckoutSessionModePayment {
			return s.handleXPPurchase(ctx, &cs)
		}
		return s.handleSubscriptionCheckout(ctx, &cs)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("invalid subscription data: %w", err)
		}
		return s.upsertFromSubscription(ctx, &sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("invalid subscription data: %w", err)
		}
		return s.handleSubscriptionDeleted(ctx, &sub)

	default:
		s.logger.Debug().Str("event_type", string(event.Type)).Msg("unhandled payment webhook event")
		return nil
	}
}

// handleXPPurchase credits the purchased XP and records the transaction in
// one database transaction. Both lifetime counters move with the balance, so
// a purchase advances the level the same way spend does.
func (s *Service) handleXPPurchase(ctx context.Context, cs *stripe.CheckoutSession) error {
	userID := cs.Metadata["user_id"]
	xpAmount, _ := strconv.Atoi(cs.Metadata["xp_amount"])
	if userID == "" || xpAmount <= 0 {
		return fmt.Errorf("checkout session %s missing purchase metadata", cs.ID)
	}

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.usage.CreditTx(ctx, tx, userID, xpAmount); err != nil {
			return err
		}
		return s.usage.RecordTransactionTx(ctx, tx, userID, xpAmount)
	})
	if err != nil {
		return fmt.Errorf("credit XP purchase: %w", err)
	}

	// Remember the customer reference for future portal sessions.
	if cs.Customer != nil && cs.Customer.ID != "" {
		if err := s.rememberCustomer(ctx, userID, cs.Customer.ID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to store customer reference")
		}
	}

	s.logger.Info().Str("user_id", userID).Int("xp", xpAmount).Msg("XP purchase credited")
	return nil
}

func (s *Service) rememberCustomer(ctx context.Context, userID, customerID string) error {
	sub, err := s.subs.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrSubscriptionNotFound) {
			return err
		}
		sub = &models.Subscription{UserID: userID, PriceCents: models.PriceFree}
	}
	sub.StripeCustomerID = customerID
	return s.subs.Upsert(ctx, sub)
}

// handleSubscriptionCheckout stores the subscription opened by a completed
// subscription-mode checkout.
func (s *Service) handleSubscriptionCheckout(ctx context.Context, cs *stripe.CheckoutSession) error {
	if cs.Subscription == nil || cs.Subscription.ID == "" {
		return fmt.Errorf("checkout session %s has no subscription", cs.ID)
	}

	sub, err := subscriptionpkg.Get(cs.Subscription.ID, nil)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", cs.Subscription.ID, err)
	}
	if userID := cs.Metadata["user_id"]; userID != "" && sub.Metadata == nil {
		sub.Metadata = map[string]string{"user_id": userID}
	}
	return s.upsertFromSubscription(ctx, sub)
}

// upsertFromSubscription writes the provider subscription state to the
// database, resolving the owner from metadata or the stored subscription row.
func (s *Service) upsertFromSubscription(ctx context.Context, sub *stripe.Subscription) error {
	userID, err := s.resolveOwner(ctx, sub)
	if err != nil {
		return err
	}
	if len(sub.Items.Data) == 0 {
		return fmt.Errorf("subscription %s has no items", sub.ID)
	}

	item := sub.Items.Data[0]
	var priceID string
	var unitAmount int64
	if item.Price != nil {
		priceID = item.Price.ID
		unitAmount = item.Price.UnitAmount
	}
	periodEnd := time.Unix(item.CurrentPeriodEnd, 0)

	record := &models.Subscription{
		UserID:               userID,
		PriceCents:           s.centsForPriceID(priceID, unitAmount),
		StripeSubscriptionID: sub.ID,
		StripePriceID:        priceID,
		CurrentPeriodEnd:     &periodEnd,
	}
	if sub.Customer != nil {
		record.StripeCustomerID = sub.Customer.ID
	}

	if err := s.subs.Upsert(ctx, record); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Int("price_cents", record.PriceCents).Msg("subscription stored")
	return nil
}

// handleSubscriptionDeleted drops the user back to the free tier.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	userID, err := s.resolveOwner(ctx, sub)
	if err != nil {
		return err
	}
	if err := s.subs.Downgrade(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Msg("subscription cancelled, downgraded to free tier")
	return nil
}

// resolveOwner finds the user behind a provider subscription: metadata first,
// then the stored subscription row.
func (s *Service) resolveOwner(ctx context.Context, sub *stripe.Subscription) (string, error) {
	if userID := sub.Metadata["user_id"]; userID != "" {
		return userID, nil
	}
	stored, err := s.subs.GetByStripeSubscriptionID(ctx, sub.ID)
	if err != nil {
		return "", fmt.Errorf("cannot resolve owner of subscription %s: %w", sub.ID, err)
	}
	return stored.UserID, nil
}
