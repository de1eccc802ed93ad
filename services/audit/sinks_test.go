package auditsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/audit"
)

// captureLogger records info lines.
type captureLogger struct {
	core.Logger

	mu     sync.Mutex
	msgs   []string
	fields []map[string]interface{}
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{Logger: core.NoopLogger}
}

func (l *captureLogger) Info(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
	for _, arg := range args {
		if f, ok := arg.(map[string]interface{}); ok {
			l.fields = append(l.fields, f)
		}
	}
}

var testEvent = audit.Event{
	Type:         audit.PaymentApproved,
	ActorID:      "admin-1",
	CourseID:     "course-1",
	EnrollmentID: "enr-1",
	PaymentID:    "pmt-1",
	OccurredAt:   time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
	Data:         map[string]interface{}{"reference_id": "3F2A9C-b71e-482913"},
}

func TestLoggerSink(t *testing.T) {
	logger := newCaptureLogger()
	NewLoggerSink(logger).Emit(context.Background(), testEvent)

	require.Equal(t, []string{"audit: PAYMENT_APPROVED"}, logger.msgs)
	fields := logger.fields[0]
	assert.Equal(t, "PAYMENT_APPROVED", fields["audit_type"])
	assert.Equal(t, "pmt-1", fields["payment_id"])
	assert.Equal(t, "3F2A9C-b71e-482913", fields["data_reference_id"])
	assert.NotContains(t, fields, "session_id")
}

func TestFanout(t *testing.T) {
	first, second := NewRecorder(), NewRecorder()
	sink := Fanout(first, audit.Discard, second)

	sink.Emit(context.Background(), testEvent)
	sink.Emit(context.Background(), audit.Event{Type: audit.LiveScheduled})

	want := []audit.EventType{audit.PaymentApproved, audit.LiveScheduled}
	assert.Equal(t, want, first.Types())
	assert.Equal(t, want, second.Types())

	first.Reset()
	assert.Empty(t, first.Events())
	assert.Len(t, second.Events(), 2)
}

func TestRedisSink(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	channel := fmt.Sprintf("masomo:audit:test:%d", time.Now().UnixNano())
	sub := client.Subscribe(ctx, channel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	NewRedisSinkMock(client, channel, core.NoopLogger).Emit(ctx, testEvent)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got audit.Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, testEvent.Type, got.Type)
	assert.Equal(t, testEvent.PaymentID, got.PaymentID)
	assert.True(t, testEvent.OccurredAt.Equal(got.OccurredAt))
}
