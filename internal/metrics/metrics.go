// Package metrics emits operational counters to CloudWatch. Emission is
// best-effort; a failed put is logged and never fails the caller.
package metrics

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/quickmart/go-delivery-orderflow/internal/aws"
)

const namespace = "DeliveryOrderflow"

// Metric names.
const (
	OrdersCreated     = "OrdersCreated"
	AmountMismatch    = "AmountMismatch"
	ClaimConflict     = "CourierClaimConflict"
	CouriersExhausted = "CouriersExhausted"
	RouteLookups      = "RouteLookups"
	WebhookDuplicates = "WebhookDuplicates"
)

// Emitter publishes count metrics.
type Emitter struct {
	client  aws.CloudWatchAPI
	nowFunc func() time.Time
}

// NewEmitter returns an Emitter. A nil client disables emission.
func NewEmitter(client aws.CloudWatchAPI) *Emitter {
	return &Emitter{client: client, nowFunc: time.Now}
}

// Count adds 1 to the named counter.
func (e *Emitter) Count(ctx context.Context, name string) {
	if e == nil || e.client == nil {
		return
	}
	now := e.nowFunc()
	one := 1.0
	ns := namespace
	metricName := name
	_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &ns,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: &metricName,
				Timestamp:  &now,
				Value:      &one,
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	})
	if err != nil {
		log.Printf("[metrics] put %s failed: %v", name, err)
	}
}
