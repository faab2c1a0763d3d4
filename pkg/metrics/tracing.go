package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// MethodTracer times a single method call as a segment of the New Relic
// transaction carried by a context. The zero and nil values are usable and
// record nothing, so callers never need to check whether tracing is on.
type MethodTracer struct {
	txn     *newrelic.Transaction
	segment *newrelic.Segment
}

// TraceMethodCall starts a "<component> <method>" segment. Callers must End
// the returned tracer.
func TraceMethodCall(ctx context.Context, component, method string) *MethodTracer {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return &MethodTracer{}
	}
	return &MethodTracer{
		txn:     txn,
		segment: txn.StartSegment(component + " " + method),
	}
}

func (t *MethodTracer) enabled() bool {
	return t != nil && t.segment != nil
}

// AddAttributes annotates the segment
func (t *MethodTracer) AddAttributes(attributes map[string]interface{}) {
	if !t.enabled() {
		return
	}
	for key, value := range attributes {
		t.segment.AddAttribute(key, value)
	}
}

// OnError notices err on the owning transaction. Nil errors are ignored.
func (t *MethodTracer) OnError(err error) {
	if err != nil && t.enabled() {
		t.txn.NoticeError(err)
	}
}

func (t *MethodTracer) End() {
	if t.enabled() {
		t.segment.End()
	}
}
