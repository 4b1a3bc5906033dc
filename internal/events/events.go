// Package events publishes batch lifecycle signals to the message broker.
// Downstream consumers (analytics, notifier bots) subscribe to the topic
// exchange; the scheduler itself never depends on anyone listening.
package events

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies a batch lifecycle signal.
type Kind string

const (
	KindBatchCreated        Kind = "batch.created"
	KindRecipientsPopulated Kind = "batch.recipients.populated"
	KindRecipientsUpdated   Kind = "batch.recipients.updated"
	KindBatchExecuted       Kind = "batch.executed"
	KindBatchFinished       Kind = "batch.finished"
	KindBatchStopped        Kind = "batch.stopped"
	KindBatchSwept          Kind = "batch.swept"
)

func (k Kind) String() string { return string(k) }

func (k Kind) IsValid() bool {
	switch k {
	case KindBatchCreated, KindRecipientsPopulated, KindRecipientsUpdated,
		KindBatchExecuted, KindBatchFinished, KindBatchStopped, KindBatchSwept:
		return true
	}
	return false
}

// BatchEvent is the broker payload for a batch lifecycle signal.
type BatchEvent struct {
	Kind          Kind    `json:"kind"`
	BatchID       uint64  `json:"batchId"`
	CorrelationID string  `json:"correlationId,omitempty"`
	RewardToken   string  `json:"rewardToken,omitempty"`
	Epoch         *uint64 `json:"epoch,omitempty"`
	Period        uint64  `json:"period,omitempty"`
	Amount        string  `json:"amount,omitempty"`
}

func (e BatchEvent) Validate() error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("invalid event kind %q", e.Kind)
	}
	if e.BatchID == 0 {
		return fmt.Errorf("batchId is required")
	}
	return nil
}

// RoutingKey returns the topic routing key for the event, e.g.
// batch.executed.
func (e BatchEvent) RoutingKey() string {
	return strings.ToLower(e.Kind.String())
}

// Publisher publishes batch events to the broker.
type Publisher interface {
	Publish(ctx context.Context, e BatchEvent) error
	Close() error
}
