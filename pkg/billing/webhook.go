package billing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cacchoeira/FinanceProject/pkg/accounts"
	"github.com/cacchoeira/FinanceProject/pkg/apperrors"
	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

// Webhook processing outcomes, used as metric labels
const (
	OutcomeApplied          = "applied"
	OutcomeUnmatched        = "unmatched"
	OutcomeIgnored          = "ignored"
	OutcomeFailed           = "failed"
	OutcomeInvalidSignature = "invalid_signature"
)

// HandleWebhook verifies and applies one provider delivery. Only a signature
// failure is returned, as a BadRequest; every later failure is logged and
// swallowed so the delivery is acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	logger := observability.FromContext(ctx)

	event, err := s.gateway.ParseWebhook(payload, signature)
	if errors.Is(err, ErrInvalidSignature) {
		logger.WithError(err).Warn("webhook signature verification failed")
		s.metrics.RecordWebhookEvent("unknown", OutcomeInvalidSignature)
		return apperrors.BadRequest("webhook signature verification failed")
	}
	if err != nil {
		logger.WithError(err).Error("failed to decode verified webhook event")
		s.metrics.RecordWebhookEvent("unknown", OutcomeFailed)
		return nil
	}

	ctx, span := observability.Tracer().Start(ctx, "billing.webhook")
	span.SetAttributes(
		attribute.String("webhook.event_id", event.ID),
		attribute.String("webhook.event_type", event.Type),
	)
	defer span.End()

	outcome, err := s.ApplyEvent(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook processing failed")
		logger.WithFields(map[string]interface{}{
			"event_id":    event.ID,
			"event_type":  event.Type,
			"customer_id": event.CustomerID,
		}).WithError(err).Error("webhook processing failed")
	}
	s.metrics.RecordWebhookEvent(event.Type, outcome)

	return nil
}

// ApplyEvent applies a verified event to the account linked to its customer
func (s *Service) ApplyEvent(ctx context.Context, event *WebhookEvent) (string, error) {
	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"event_id":    event.ID,
		"event_type":  event.Type,
		"customer_id": event.CustomerID,
	})

	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		if event.Subscription == nil {
			return OutcomeFailed, errors.New("subscription event without subscription")
		}
		var priceID *string
		if event.Subscription.PriceID != "" {
			priceID = &event.Subscription.PriceID
		}
		return s.updateStatus(ctx, logger, event.CustomerID, accounts.StatusFromProvider(event.Subscription.Status), priceID)

	case EventSubscriptionDeleted:
		return s.updateStatus(ctx, logger, event.CustomerID, accounts.SubscriptionStatusCanceled, nil)

	case EventInvoicePaymentFailed:
		logger.WithField("invoice_id", event.InvoiceID).Info("invoice payment failed")
		return s.updateStatus(ctx, logger, event.CustomerID, accounts.SubscriptionStatusPastDue, nil)

	case EventInvoicePaymentSucceeded:
		logger.WithField("invoice_id", event.InvoiceID).Info("invoice payment succeeded")
		return OutcomeIgnored, nil

	default:
		logger.Info("unhandled webhook event type")
		return OutcomeIgnored, nil
	}
}

func (s *Service) updateStatus(ctx context.Context, logger *observability.Logger, customerID string, status accounts.SubscriptionStatus, priceID *string) (string, error) {
	if customerID == "" {
		logger.Warn("webhook event has no customer")
		return OutcomeUnmatched, nil
	}

	n, err := s.store.UpdateSubscriptionByCustomerID(ctx, customerID, status, priceID)
	if err != nil {
		return OutcomeFailed, err
	}
	if n == 0 {
		logger.WithField("status", string(status)).Warn("no account linked to customer")
		return OutcomeUnmatched, nil
	}

	s.metrics.RecordSubscriptionUpdate(string(status), "webhook")
	logger.WithField("status", string(status)).Info("subscription status updated")
	return OutcomeApplied, nil
}
