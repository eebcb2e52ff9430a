package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all the metric instruments for the media service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter
	// limiter
	RateLimitHitsTotal metric.Int64Counter
	// image pipeline
	ImagesProcessedTotal metric.Int64Counter
	ImageProcessDuration metric.Float64Histogram
	VariantsStoredTotal  metric.Int64Counter
	UploadsRejectedTotal metric.Int64Counter
	ImagesDroppedTotal   metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	httpRequestsTotal, err := meter.Int64Counter(
		"http_requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests: %w", err)
	}

	httpRequestDuration, err := meter.Float64Histogram(
		"http_request_duration",
		metric.WithDescription("HTTP request latency in ms"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration: %w", err)
	}

	httpActiveRequests, err := meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of in-flight requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_active_requests: %w", err)
	}

	rateLimitHitsTotal, err := meter.Int64Counter(
		"rate_limit_hits",
		metric.WithDescription("Number of rate limiter blocked requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit_hits: %w", err)
	}

	imagesProcessedTotal, err := meter.Int64Counter(
		"images_processed",
		metric.WithDescription("Uploads decoded and turned into variants"),
		metric.WithUnit("{image}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create images_processed: %w", err)
	}

	imageProcessDuration, err := meter.Float64Histogram(
		"image_process_duration",
		metric.WithDescription("Decode, resize and encode time per upload"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create image_process_duration: %w", err)
	}

	variantsStoredTotal, err := meter.Int64Counter(
		"variants_stored",
		metric.WithDescription("Variant blobs written to the store"),
		metric.WithUnit("{blob}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create variants_stored: %w", err)
	}

	uploadsRejectedTotal, err := meter.Int64Counter(
		"uploads_rejected",
		metric.WithDescription("Uploads refused, by reason"),
		metric.WithUnit("{image}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploads_rejected: %w", err)
	}

	imagesDroppedTotal, err := meter.Int64Counter(
		"images_dropped",
		metric.WithDescription("Images silently discarded by the per-post cap"),
		metric.WithUnit("{image}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create images_dropped: %w", err)
	}

	return &Metrics{
		HTTPRequestsTotal:    httpRequestsTotal,
		HTTPRequestDuration:  httpRequestDuration,
		HTTPActiveRequests:   httpActiveRequests,
		RateLimitHitsTotal:   rateLimitHitsTotal,
		ImagesProcessedTotal: imagesProcessedTotal,
		ImageProcessDuration: imageProcessDuration,
		VariantsStoredTotal:  variantsStoredTotal,
		UploadsRejectedTotal: uploadsRejectedTotal,
		ImagesDroppedTotal:   imagesDroppedTotal,
	}, nil
}

// RecordProcessed counts one processed upload and its latency, tagged by output format
func (m *Metrics) RecordProcessed(ctx context.Context, format string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("format", format))
	m.ImagesProcessedTotal.Add(ctx, 1, attrs)
	m.ImageProcessDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

func (m *Metrics) RecordRejected(ctx context.Context, reason string) {
	m.UploadsRejectedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
