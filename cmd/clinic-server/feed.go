package main

import (
	"context"

	"github.com/clinic/clinic/internal/domain/clinic"
	"github.com/clinic/clinic/internal/platform/websocket"
)

// ledgerFeed forwards committed clinic writes to WebSocket subscribers.
type ledgerFeed struct {
	hub *websocket.Hub
}

func (f ledgerFeed) Notify(ctx context.Context, c clinic.Change) {
	_ = f.hub.Publish(ctx, websocket.Event{
		Type:       c.Resource + "." + c.Action,
		Resource:   c.Resource,
		ResourceID: c.ID,
		PatientID:  c.PatientID,
		Timestamp:  c.At,
	})
}
