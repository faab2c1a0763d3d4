package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNoApplicationInContext(t *testing.T) {
	ctx := context.Background()

	_, ok := FromContext(ctx)
	assert.False(t, ok)

	assert.Equal(t, ctx, NewContext(ctx, nil))

	// None of these should panic without a New Relic application or
	// transaction available.
	RecordCount(ctx, "count", 1)
	RecordDuration(ctx, "duration", time.Second)
	RecordEvent(ctx, "event", map[string]interface{}{"key": "value"})

	tracer := TraceMethodCall(ctx, "metrics", "TestNoApplicationInContext")
	assert.False(t, tracer.enabled())
	tracer.AddAttributes(map[string]interface{}{"key": "value"})
	tracer.OnError(errors.New("error"))
	tracer.End()

	var nilTracer *MethodTracer
	nilTracer.OnError(errors.New("error"))
	nilTracer.End()
}

func TestForwardedMessage(t *testing.T) {
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "trade failed"
	assert.Equal(t, "trade failed", forwardedMessage(entry))

	entry = entry.WithError(errors.New("transfer failed")).WithField("subject", "alice")
	entry.Message = "trade failed"
	assert.Equal(
		t,
		`message="trade failed", error="transfer failed", data={"subject":"alice"}`,
		forwardedMessage(entry),
	)
}
