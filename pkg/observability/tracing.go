package observability

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// Tracer wraps X-Ray segment handling for the pipeline stages
type Tracer struct {
	serviceName string
}

// NewTracer creates a new tracer instance
func NewTracer(serviceName string) *Tracer {
	return &Tracer{
		serviceName: serviceName,
	}
}

// Trace runs fn inside a subsegment named after the pipeline stage.
// Inside Lambda the runtime provides the facade segment; the subsegment
// nests under the invocation trace.
func (t *Tracer) Trace(ctx context.Context, stage string, fn func(context.Context) error) error {
	ctx, seg := xray.BeginSubsegment(ctx, fmt.Sprintf("%s.%s", t.serviceName, stage))
	defer seg.Close(nil)

	err := fn(ctx)
	if err != nil {
		seg.AddError(err)
	}

	return err
}

// Annotate adds an indexed annotation to the current segment so traces can
// be filtered by page key or user
func (t *Tracer) Annotate(ctx context.Context, key, value string) {
	if seg := xray.GetSegment(ctx); seg != nil {
		seg.AddAnnotation(key, value)
	}
}

// AddMetadata attaches unindexed detail to the current segment
func (t *Tracer) AddMetadata(ctx context.Context, key string, value interface{}) {
	if seg := xray.GetSegment(ctx); seg != nil {
		seg.AddMetadata(key, value)
	}
}
