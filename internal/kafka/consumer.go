package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/application"
	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/RaikyD/btc-content-shop/internal/logger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const maxCheckAttempts = 5

type ConsumerConfig struct {
	Brokers string
	Topic   string
	GroupID string
}

type PaymentChecker interface {
	CheckPayment(ctx context.Context, orderID uuid.UUID) (application.CheckResult, error)
}

// CheckCommand asks the service to verify the payment of one order.
type CheckCommand struct {
	OrderID string `json:"order_id"`
}

var errMalformed = errors.New("malformed payment check command")

// StartConsumer reads payment check commands until ctx is cancelled. The returned
// channel is closed once the reader is closed.
func StartConsumer(ctx context.Context, svc PaymentChecker, cfg ConsumerConfig) (<-chan struct{}, error) {
	brokers := strings.Split(cfg.Brokers, ",")

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         brokers,
		GroupID:         cfg.GroupID,
		Topic:           cfg.Topic,
		MinBytes:        1,
		MaxBytes:        10e6,
		CommitInterval:  0,
		StartOffset:     kafka.FirstOffset,
		ReadLagInterval: -1,
	})

	logger.Info("kafka consumer starting", "brokers", cfg.Brokers, "topic", cfg.Topic, "group", cfg.GroupID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer r.Close()

		backoff := time.Millisecond * 300
		attempts := 0
		for {
			m, err := r.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("kafka fetch error", "err", err)
				if !sleepCtx(ctx, backoff) {
					return
				}
				continue
			}

			for {
				attempts++
				err = handleCheck(ctx, svc, m.Value)
				if err == nil || errors.Is(err, errMalformed) || attempts >= maxCheckAttempts {
					break
				}
				logger.Warn("payment check failed, will retry", "offset", m.Offset, "attempt", attempts, "err", err)
				if !sleepCtx(ctx, backoff*time.Duration(attempts)) {
					return
				}
			}
			if err != nil {
				logger.Error("payment check dropped", "offset", m.Offset, "err", err)
			}
			attempts = 0

			if err := r.CommitMessages(ctx, m); err != nil {
				logger.Warn("[kafka] commit failed", "err", err)
			} else {
				logger.Debug("[kafka] committed", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset)
			}
		}
	}()
	return done, nil
}

// handleCheck runs one command. Unknown orders are not retried.
func handleCheck(ctx context.Context, svc PaymentChecker, value []byte) error {
	var cmd CheckCommand
	if err := json.Unmarshal(value, &cmd); err != nil {
		return errors.Join(errMalformed, err)
	}
	id, err := uuid.Parse(strings.TrimSpace(cmd.OrderID))
	if err != nil {
		return errors.Join(errMalformed, err)
	}

	res, err := svc.CheckPayment(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			logger.Warn("payment check for unknown order", "order_id", id)
			return nil
		}
		return err
	}
	logger.Info("payment check handled", "order_id", id, "outcome", res.Outcome)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
