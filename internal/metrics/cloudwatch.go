// Package metrics emits operational metrics to AWS CloudWatch. Emission is
// best-effort: a metrics failure is logged and never propagates into the
// request path.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"seatscan/internal/types"
)

// Namespace is the CloudWatch namespace all seatscan metrics publish under.
const Namespace = "SeatScan"

// Metric names.
const (
	MetricProviderSearch  = "ProviderSearch"
	MetricProviderLatency = "ProviderSearchLatency"
	MetricSeatmapView     = "SeatmapView"
	MetricLimitRejection  = "LimitRejection"
)

// Dimension names.
const (
	DimProvider = "Provider"
	DimResult   = "Result"
	DimRole     = "Role"
)

// Result values for the Result dimension.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Emitter publishes seatscan metrics to CloudWatch.
type Emitter struct {
	client CloudWatchClient
	logger *slog.Logger
}

// NewEmitter creates an Emitter. A nil logger gets slog.Default().
func NewEmitter(client CloudWatchClient, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{client: client, logger: logger}
}

// RecordProviderSearch emits one search outcome with Provider and Result
// dimensions, plus the latency of the call.
func (e *Emitter) RecordProviderSearch(ctx context.Context, tag types.ProviderTag, ok bool, latency time.Duration) {
	result := ResultSuccess
	if !ok {
		result = ResultFailure
	}
	e.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricProviderSearch),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimProvider), Value: aws.String(string(tag))},
				{Name: aws.String(DimResult), Value: aws.String(result)},
			},
		},
		{
			MetricName: aws.String(MetricProviderLatency),
			Value:      aws.Float64(float64(latency.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimProvider), Value: aws.String(string(tag))},
			},
		},
	})
}

// RecordSeatmapView emits one seat-map view with the caller's role.
func (e *Emitter) RecordSeatmapView(ctx context.Context, role types.Role) {
	e.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricSeatmapView),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimRole), Value: aws.String(string(role))},
			},
		},
	})
}

// RecordLimitRejection emits one usage-limit refusal with the caller's role.
func (e *Emitter) RecordLimitRejection(ctx context.Context, role types.Role) {
	e.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricLimitRejection),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimRole), Value: aws.String(string(role))},
			},
		},
	})
}

func (e *Emitter) put(ctx context.Context, data []cwtypes.MetricDatum) {
	if e.client == nil {
		return
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(Namespace),
		MetricData: data,
	}
	if _, err := e.client.PutMetricData(ctx, input); err != nil {
		e.logger.Error("failed to publish metrics", "error", err)
	}
}
