// Package notify sends best-effort FCM push messages about order
// lifecycle changes. The document-store subscription remains the
// authoritative update channel; a lost push is harmless.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"courierd/internal/order"
)

// openOrdersTopic fans a reopened order out to every driver subscribed to
// the open-pool feed.
const openOrdersTopic = "orders-open"

// FCM implements order.Notifier on Firebase Cloud Messaging.
type FCM struct {
	client *messaging.Client
	log    *zap.Logger
}

func NewFCM(client *messaging.Client, log *zap.Logger) *FCM {
	if log == nil {
		log = zap.NewNop()
	}
	return &FCM{client: client, log: log}
}

// StatusChanged sends a data message to the customer's tracker device.
func (n *FCM) StatusChanged(ctx context.Context, o *order.Order) error {
	if o.CustomerToken == "" {
		return nil
	}
	msg := &messaging.Message{
		Token: o.CustomerToken,
		Data: map[string]string{
			"type":     "order_status",
			"order_id": string(o.ID),
			"status":   string(o.Status),
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	}
	id, err := n.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending status push for order %s: %w", o.ID, err)
	}
	n.log.Debug("status push sent", zap.String("order_id", string(o.ID)), zap.String("message_id", id))
	return nil
}

// OrderReopened announces a released order on the open-pool topic.
func (n *FCM) OrderReopened(ctx context.Context, o *order.Order) error {
	msg := &messaging.Message{
		Topic: openOrdersTopic,
		Data: map[string]string{
			"type":     "order_reopened",
			"order_id": string(o.ID),
		},
		Notification: &messaging.Notification{
			Title: "Order back in the pool",
			Body:  "A nearby delivery was released and is available again.",
		},
	}
	id, err := n.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending reopen push for order %s: %w", o.ID, err)
	}
	n.log.Debug("reopen push sent", zap.String("order_id", string(o.ID)), zap.String("message_id", id))
	return nil
}
