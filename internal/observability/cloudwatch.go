// Package observability publishes service metrics to AWS CloudWatch.
package observability

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"astroscope/internal/types"
)

const (
	// maxDatumsPerPut is the PutMetricData request limit.
	maxDatumsPerPut = 1000

	defaultBufferSize    = 4096
	defaultFlushInterval = 30 * time.Second
	finalFlushTimeout    = 5 * time.Second
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Config tunes buffering. Zero values select defaults.
type Config struct {
	Namespace     string
	BufferSize    int
	FlushInterval time.Duration
}

// Collector buffers metric datums and publishes them in batches, so request
// paths never wait on CloudWatch. Datums are dropped when the buffer is full.
//
// Metrics emitted:
//   - APIRequestCount, APILatency: Dims {Method, Endpoint, Status}
//   - TransitScanDays, TransitScanEvents: Dims {Body}
//   - EphemerisCacheHit / EphemerisCacheMiss: Dims {Provider}
type Collector struct {
	client    CloudWatchClient
	namespace string
	interval  time.Duration
	logger    *slog.Logger
	data      chan cwtypes.MetricDatum
	flushMu   sync.Mutex
	now       func() time.Time
}

// NewCollector creates a Collector. Call Run to start periodic publishing.
func NewCollector(client CloudWatchClient, cfg Config, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = types.MetricNamespace
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	return &Collector{
		client:    client,
		namespace: cfg.Namespace,
		interval:  cfg.FlushInterval,
		logger:    logger,
		data:      make(chan cwtypes.MetricDatum, cfg.BufferSize),
		now:       time.Now,
	}
}

// RecordRequest emits request count and latency for one API call.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		dimension(types.DimMethod, method),
		dimension(types.DimEndpoint, endpoint),
		dimension(types.DimStatus, status),
	}
	c.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAPIRequestCount),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	})
	c.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAPILatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: dims,
	})
}

// RecordScan emits the number of sampled days and detected events of a scan.
func (c *Collector) RecordScan(_ context.Context, body string, days, events int) {
	dims := []cwtypes.Dimension{dimension(types.DimBody, body)}
	c.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricScanDays),
		Value:      aws.Float64(float64(days)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	})
	c.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricScanEvents),
		Value:      aws.Float64(float64(events)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	})
}

// RecordCacheLookup emits one ephemeris cache hit or miss.
func (c *Collector) RecordCacheLookup(_ context.Context, provider string, hit bool) {
	name := types.MetricEphemerisCacheMiss
	if hit {
		name = types.MetricEphemerisCacheHit
	}
	c.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dimension(types.DimProvider, provider)},
	})
}

func (c *Collector) enqueue(d cwtypes.MetricDatum) {
	d.Timestamp = aws.Time(c.now())
	select {
	case c.data <- d:
	default:
		c.logger.Warn("metric buffer full, dropping datum", "metric", aws.ToString(d.MetricName))
	}
}

// Run publishes buffered datums every flush interval until ctx is done, then
// performs a final flush.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			c.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			c.Flush(ctx)
		}
	}
}

// Flush publishes everything currently buffered.
func (c *Collector) Flush(ctx context.Context) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	batch := make([]cwtypes.MetricDatum, 0, 64)
	for {
		select {
		case d := <-c.data:
			batch = append(batch, d)
			if len(batch) == maxDatumsPerPut {
				c.put(ctx, batch)
				batch = make([]cwtypes.MetricDatum, 0, 64)
			}
		default:
			if len(batch) > 0 {
				c.put(ctx, batch)
			}
			return
		}
	}
}

func (c *Collector) put(ctx context.Context, batch []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: batch,
	}
	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.logger.Error("failed to publish metrics",
			"error", err.Error(),
			"datums", strconv.Itoa(len(batch)),
		)
	}
}

func dimension(name, value string) cwtypes.Dimension {
	if value == "" {
		value = "unknown"
	}
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// Nop discards every metric. It is used when CloudWatch publishing is disabled.
type Nop struct{}

func (Nop) RecordRequest(string, string, string, time.Duration) {}
func (Nop) RecordScan(context.Context, string, int, int)        {}
func (Nop) RecordCacheLookup(context.Context, string, bool)     {}
