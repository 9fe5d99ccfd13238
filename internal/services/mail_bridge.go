package services

import (
	"context"

	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/internal/infrastructure/outbox"
	"github.com/NightOwlRecon/IntriCase/usecase"
)

// MailBridge turns user notifications into outbox items.
type MailBridge struct {
	processor *OutboxProcessor
}

func NewMailBridge(processor *OutboxProcessor) *MailBridge {
	return &MailBridge{processor: processor}
}

func (b *MailBridge) NotifyActivation(ctx context.Context, user *domain.User) error {
	return b.dispatch(ctx, outbox.KindActivation, 2, user)
}

// NotifyPasswordReset is queued ahead of activations. Delivery always happens
// off the request path, which answers the same for known and unknown emails.
func (b *MailBridge) NotifyPasswordReset(ctx context.Context, user *domain.User) error {
	if b.processor == nil || user == nil {
		return domain.ErrInvalidPayload
	}
	return b.processor.Submit(item(outbox.KindPasswordReset, 1, user))
}

func (b *MailBridge) dispatch(ctx context.Context, kind outbox.Kind, priority int, user *domain.User) error {
	if b.processor == nil || user == nil {
		return domain.ErrInvalidPayload
	}
	return b.processor.Dispatch(ctx, item(kind, priority, user))
}

func item(kind outbox.Kind, priority int, user *domain.User) outbox.Item {
	return outbox.Item{
		Kind:     kind,
		UserID:   user.ID,
		Priority: priority,
	}
}

var _ usecase.Notifier = (*MailBridge)(nil)
