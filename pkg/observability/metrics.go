package observability

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatch caps one PutMetricData call at 1000 datums; we flush long
// before that to keep datapoints timely
const (
	maxDatumsPerPut = 1000
	flushThreshold  = 20
	flushInterval   = 30 * time.Second
)

// Metrics buffers counters and timings and ships them to CloudWatch in
// batches. All methods are safe for concurrent use; a failed flush drops
// the batch rather than blocking callers.
type Metrics struct {
	namespace string
	client    *cloudwatch.Client

	mu     sync.Mutex
	datums []types.MetricDatum

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewMetrics creates a metrics recorder publishing under the given
// namespace. A nil client turns every method into a no-op, which keeps
// local development free of AWS calls.
func NewMetrics(namespace string, client *cloudwatch.Client) *Metrics {
	m := &Metrics{
		namespace: namespace,
		client:    client,
		stopChan:  make(chan struct{}),
	}
	if client != nil {
		go m.flushLoop()
	}
	return m
}

// Increment adds one to a counter metric
func (m *Metrics) Increment(metric, label string) {
	m.record(metric, label, 1, types.StandardUnitCount)
}

// RecordCount adds an arbitrary count to a metric
func (m *Metrics) RecordCount(metric, label string, count float64) {
	m.record(metric, label, count, types.StandardUnitCount)
}

// RecordDuration records a timing in milliseconds
func (m *Metrics) RecordDuration(metric, label string, d time.Duration) {
	m.record(metric, label, float64(d.Milliseconds()), types.StandardUnitMilliseconds)
}

// Timer measures one timed section
type Timer interface {
	Stop()
}

type timer struct {
	metrics *Metrics
	metric  string
	label   string
	start   time.Time
}

// Stop records the elapsed time since the timer started
func (t *timer) Stop() {
	t.metrics.RecordDuration(t.metric, t.label, time.Since(t.start))
}

// StartTimer begins timing a section; Stop records it
func (m *Metrics) StartTimer(metric, label string) Timer {
	return &timer{
		metrics: m,
		metric:  metric,
		label:   label,
		start:   time.Now(),
	}
}

// Flush ships everything buffered so far. Lambda handlers call this before
// returning since the runtime may freeze the goroutine that would flush.
func (m *Metrics) Flush(ctx context.Context) error {
	if m.client == nil {
		return nil
	}

	m.mu.Lock()
	datums := m.datums
	m.datums = nil
	m.mu.Unlock()

	return m.put(ctx, datums)
}

// Close stops the background flusher and drains the buffer
func (m *Metrics) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopChan) })
	return m.Flush(ctx)
}

func (m *Metrics) record(metric, label string, value float64, unit types.StandardUnit) {
	if m.client == nil {
		return
	}

	datum := types.MetricDatum{
		MetricName: aws.String(metric),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(time.Now()),
		Dimensions: []types.Dimension{
			{Name: aws.String("Label"), Value: aws.String(label)},
		},
	}

	m.mu.Lock()
	m.datums = append(m.datums, datum)
	shouldFlush := len(m.datums) >= flushThreshold
	m.mu.Unlock()

	if shouldFlush {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = m.Flush(ctx)
		}()
	}
}

func (m *Metrics) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = m.Flush(ctx)
			cancel()
		}
	}
}

func (m *Metrics) put(ctx context.Context, datums []types.MetricDatum) error {
	for start := 0; start < len(datums); start += maxDatumsPerPut {
		end := start + maxDatumsPerPut
		if end > len(datums) {
			end = len(datums)
		}
		_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(m.namespace),
			MetricData: datums[start:end],
		})
		if err != nil {
			return err
		}
	}
	return nil
}
