// Package track recomputes the courier ETA and route when a live position
// changes, keeping the calls against the metered routing API bounded.
package track

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/quickmart/go-delivery-orderflow/internal/metrics"
	"github.com/quickmart/go-delivery-orderflow/internal/orders"
	"github.com/quickmart/go-delivery-orderflow/internal/routing"
)

// routeUpdateInterval is the minimum gap between routing API calls per order.
// Couriers report positions roughly every 3 seconds; without this the quota
// would drain at the full report rate.
const routeUpdateInterval = 5 * time.Second

// MinMoveMeters is the suppression radius: position updates closer than this
// to the stored position are dropped before anything is written, so GPS
// jitter never triggers the pipeline.
const MinMoveMeters = 2.0

const earthRadiusMeters = 6371000.0

// Tracker drives ETA/route recomputation.
type Tracker struct {
	store   *orders.Store
	routing *routing.Client
	metrics *metrics.Emitter
	nowFunc func() time.Time
}

// NewTracker wires the tracker.
func NewTracker(store *orders.Store, routingClient *routing.Client, emitter *metrics.Emitter) *Tracker {
	return &Tracker{
		store:   store,
		routing: routingClient,
		metrics: emitter,
		nowFunc: time.Now,
	}
}

// HandleLocationChange reacts to a courier position write on the order.
// Missing coordinates, an unconfigured routing client and a throttled window
// all exit quietly; routing API failures are logged rather than retried so a
// redelivered event cannot double-spend the quota.
func (t *Tracker) HandleLocationChange(ctx context.Context, orderID string) error {
	order, err := t.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		log.Printf("[track] order %s not found, skipping", orderID)
		return nil
	}
	if order.DeliveryPartnerLat == nil || order.DeliveryPartnerLng == nil {
		return nil
	}
	dest := order.DeliveryAddress
	if dest.Latitude == nil || dest.Longitude == nil {
		return nil
	}
	if !t.routing.Configured() {
		log.Printf("[track] no routing api key configured, skipping ETA for %s", orderID)
		return nil
	}

	now := t.nowFunc()
	if now.UnixMilli()-order.LastRouteUpdateAt < routeUpdateInterval.Milliseconds() {
		// within the throttle window; protect the routing quota
		return nil
	}

	route, err := t.routing.Directions(ctx,
		*order.DeliveryPartnerLat, *order.DeliveryPartnerLng,
		*dest.Latitude, *dest.Longitude)
	if err != nil {
		log.Printf("[track] directions lookup for %s failed: %v", orderID, err)
		return nil
	}
	t.metrics.Count(ctx, metrics.RouteLookups)
	if route == nil {
		return nil
	}

	return t.store.UpdateRoute(ctx, orderID, route.EtaSeconds, route.EtaText, route.Polyline)
}

// ShouldPersist decides whether a reported position is worth writing. The
// first report for an order always persists; afterwards moves under
// MinMoveMeters from the stored position are discarded.
func ShouldPersist(prevLat, prevLng *float64, lat, lng float64) bool {
	if prevLat == nil || prevLng == nil {
		return true
	}
	return HaversineMeters(*prevLat, *prevLng, lat, lng) >= MinMoveMeters
}

// HaversineMeters is the great-circle distance between two coordinates.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
