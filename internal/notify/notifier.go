package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/clock"
	"github.com/google/uuid"
)

type RecipientType string

const (
	RecipientCustomer RecipientType = "customer"
	RecipientOperator RecipientType = "operator"
)

// Event is the message the chat frontend delivers to one recipient.
type Event struct {
	Type        RecipientType `json:"type"`
	RecipientID int64         `json:"recipient_id"`
	OrderID     *uuid.UUID    `json:"order_id,omitempty"`
	Text        string        `json:"text"`
	SentAt      time.Time     `json:"sent_at"`
}

type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
}

// Notifier turns customer and operator messages into events keyed by recipient.
type Notifier struct {
	pub   Publisher
	clock clock.Clock
}

func New(pub Publisher, clk clock.Clock) *Notifier {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Notifier{pub: pub, clock: clk}
}

func (n *Notifier) NotifyCustomer(ctx context.Context, customerID int64, orderID uuid.UUID, text string) error {
	return n.send(ctx, Event{
		Type:        RecipientCustomer,
		RecipientID: customerID,
		OrderID:     &orderID,
		Text:        text,
	})
}

func (n *Notifier) NotifyOperator(ctx context.Context, operatorID int64, text string) error {
	return n.send(ctx, Event{
		Type:        RecipientOperator,
		RecipientID: operatorID,
		Text:        text,
	})
}

func (n *Notifier) send(ctx context.Context, ev Event) error {
	ev.SentAt = n.clock.Now()
	key := string(ev.Type) + ":" + strconv.FormatInt(ev.RecipientID, 10)
	if err := n.pub.Publish(ctx, key, ev); err != nil {
		return fmt.Errorf("publish %s notification: %w", ev.Type, err)
	}
	return nil
}
