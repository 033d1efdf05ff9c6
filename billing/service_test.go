package billing

import (
	"context"
	"errors"
	"testing"

	"agentsurge/auth"

	"github.com/rs/zerolog"
)

func TestHandleSubscriptionWebhook_Validation(t *testing.T) {
	svc := NewService(nil)

	err := svc.HandleSubscriptionWebhook(context.Background(), zerolog.Nop(), SubscriptionEvent{
		EventID: "",
		UserID:  "user-1",
		Status:  auth.SubscriptionActive,
	})
	if err == nil {
		t.Errorf("expected error for empty event id")
	}

	err = svc.HandleSubscriptionWebhook(context.Background(), zerolog.Nop(), SubscriptionEvent{
		EventID: "evt-1",
		UserID:  "user-1",
		Status:  auth.SubscriptionStatus("gold_tier"),
	})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}
