// README: Decode/encode between Order and raw store documents.
package order

import (
	"time"

	"courierd/internal/docstore"
	"courierd/internal/types"
)

// Store document field names, as the mobile clients wrote them.
const (
	fieldStatus             = "status"
	fieldAssignedDriverID   = "assignedDriverId"
	fieldAccessPool         = "accessPool"
	fieldBasePool           = "basePool"
	fieldPoolOpen           = "poolOpen"
	fieldCustomerID         = "customerId"
	fieldCustomerToken      = "customerToken"
	fieldNoContact          = "noContact"
	fieldDropoff            = "dropoff"
	fieldProofPhotoURL      = "proofPhotoUrl"
	fieldProofSignature     = "proofSignature"
	fieldSafeDropAck        = "safeDropAck"
	fieldCancellationReason = "cancellationReason"
	fieldLastReleaseReason  = "lastReleaseReason"
	fieldLastReleaseFrom    = "lastReleaseFrom"
	fieldCreatedAt          = "createdAt"
	fieldCompletedAt        = "completedAt"
)

// decodeOrder validates a raw snapshot into an Order. An unrecognized
// status is an ErrUnknownStatus decode error.
func decodeOrder(snap docstore.Snapshot) (*Order, error) {
	if !snap.Exists {
		return nil, ErrNotFound
	}
	d := snap.Data

	status, err := ParseStatus(asString(d[fieldStatus]))
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:                types.ID(snap.ID),
		Status:            status,
		PoolOpen:          asBool(d[fieldPoolOpen]),
		CustomerID:        types.ID(asString(d[fieldCustomerID])),
		CustomerToken:     asString(d[fieldCustomerToken]),
		NoContact:         asBool(d[fieldNoContact]),
		LastReleaseReason: asString(d[fieldLastReleaseReason]),
		CreatedAt:         asTime(d[fieldCreatedAt]),
	}

	if v := asString(d[fieldAssignedDriverID]); v != "" {
		id := types.ID(v)
		o.AssignedDriverID = &id
	}
	for _, member := range asSlice(d[fieldAccessPool]) {
		if v := asString(member); v != "" {
			o.AccessPool = append(o.AccessPool, types.ID(v))
		}
	}
	for _, member := range asSlice(d[fieldBasePool]) {
		if v := asString(member); v != "" {
			o.BasePool = append(o.BasePool, types.ID(v))
		}
	}
	if dropoff, ok := d[fieldDropoff].(map[string]any); ok {
		o.Dropoff = types.Point{Lat: asFloat(dropoff["lat"]), Lng: asFloat(dropoff["lng"])}
	}
	o.Proof = Proof{
		PhotoURL:    asString(d[fieldProofPhotoURL]),
		Signature:   asString(d[fieldProofSignature]),
		SafeDropAck: asBool(d[fieldSafeDropAck]),
	}
	if v := asString(d[fieldCancellationReason]); v != "" {
		o.CancellationReason = &v
	}
	if v := asString(d[fieldLastReleaseFrom]); v != "" {
		// A historical bad value here must not make the order undecodable.
		if from, err := ParseStatus(v); err == nil {
			o.LastReleaseFrom = from
		}
	}
	if t := asTime(d[fieldCompletedAt]); !t.IsZero() {
		o.CompletedAt = &t
	}
	return o, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	}
	return 0
}

func asTime(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func poolValues(pool []types.ID) []any {
	out := make([]any, 0, len(pool))
	for _, id := range pool {
		out = append(out, string(id))
	}
	return out
}
