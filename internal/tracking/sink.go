// README: Beacon sink — document store write, Redis GEO index, Postgres archive.
package tracking

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"courierd/internal/docstore"
	"courierd/internal/types"
)

// CollectionDriverLocations holds the last reported sample per driver/order
// key. Each write overwrites the previous one; no history is kept here —
// the Postgres archive is the historical record.
const CollectionDriverLocations = "driver_locations"

const geoDriversKey = "geo:drivers"

// BeaconStore publishes a throttled beacon to three targets: the document
// store record that the customer tracker and support console subscribe to
// (authoritative), the Redis GEO index used for nearby-driver queries, and
// a best-effort Postgres snapshot archive for later replay. Redis and
// Postgres are optional.
type BeaconStore struct {
	docs docstore.Store
	rdb  *redis.Client
	db   *pgxpool.Pool
	log  *zap.Logger
}

func NewBeaconStore(docs docstore.Store, rdb *redis.Client, db *pgxpool.Pool, log *zap.Logger) *BeaconStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &BeaconStore{docs: docs, rdb: rdb, db: db, log: log}
}

func (s *BeaconStore) Publish(ctx context.Context, b Beacon) error {
	patch := docstore.Doc{
		"driverId":   string(b.DriverID),
		"scope":      string(b.Scope),
		"lat":        b.Sample.Lat,
		"lng":        b.Sample.Lng,
		"capturedAt": b.Sample.CapturedAt,
		"reportedAt": docstore.ServerTime,
	}
	if b.OrderID != "" {
		patch["orderId"] = string(b.OrderID)
	}
	// Overwrite, not merge: the record is always exactly the latest sample.
	if err := s.docs.Write(ctx, CollectionDriverLocations, beaconDocID(b), patch, false); err != nil {
		return fmt.Errorf("beacon write: %w", err)
	}

	if s.rdb != nil {
		err := s.rdb.GeoAdd(ctx, geoDriversKey, &redis.GeoLocation{
			Name:      string(b.DriverID),
			Longitude: b.Sample.Lng,
			Latitude:  b.Sample.Lat,
		}).Err()
		if err != nil {
			s.log.Warn("geo index update failed", zap.String("driver_id", string(b.DriverID)), zap.Error(err))
		}
	}

	if s.db != nil {
		_, err := s.db.Exec(ctx, `
			INSERT INTO location_snapshots (driver_id, order_id, scope, lat, lng, captured_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			string(b.DriverID), string(b.OrderID), string(b.Scope),
			b.Sample.Lat, b.Sample.Lng, b.Sample.CapturedAt,
		)
		if err != nil {
			s.log.Warn("location snapshot archive failed", zap.String("driver_id", string(b.DriverID)), zap.Error(err))
		}
	}
	return nil
}

// LastPosition reads the driver's most recent reported sample, preferring
// the order-scoped record over the app-wide one. The record may be stale
// from a previous tracking period; callers decide how much staleness they
// tolerate.
func (s *BeaconStore) LastPosition(ctx context.Context, driverID, orderID types.ID) (types.Point, bool) {
	for _, id := range []string{
		beaconDocID(Beacon{DriverID: driverID, OrderID: orderID, Scope: ScopeOrder}),
		beaconDocID(Beacon{DriverID: driverID, Scope: ScopeApp}),
	} {
		snap, err := s.docs.Read(ctx, CollectionDriverLocations, id)
		if err != nil {
			continue
		}
		lat, okLat := snap.Data["lat"].(float64)
		lng, okLng := snap.Data["lng"].(float64)
		if okLat && okLng {
			return types.Point{Lat: lat, Lng: lng}, true
		}
	}
	return types.Point{}, false
}

// beaconDocID keys the live record: one per driver for app scope, one per
// driver/order pair for order scope.
func beaconDocID(b Beacon) string {
	if b.Scope == ScopeOrder && b.OrderID != "" {
		return string(b.DriverID) + ":" + string(b.OrderID)
	}
	return string(b.DriverID)
}
