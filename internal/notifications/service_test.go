package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/registry"
)

// MockSNS is a mock implementation of the SNSAPI interface
type MockSNS struct {
	mock.Mock
}

func (m *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*sns.PublishOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func sampleEvent() registry.Event {
	return registry.Event{
		ID:         "evt-1",
		Type:       registry.EventCreditRetired,
		ProjectID:  "project-1",
		CreditID:   "credit-1",
		OccurredAt: time.Date(2025, 4, 22, 12, 0, 0, 0, time.UTC),
		Data:       map[string]any{"token_id": "BCR-PROJECT1-1-1"},
	}
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryProjects, CategoryOf(registry.EventProjectVerified))
	assert.Equal(t, CategoryCredits, CategoryOf(registry.EventCreditMinted))
	assert.Equal(t, CategoryTelemetry, CategoryOf(registry.EventSensorRecorded))
	assert.Equal(t, "AUDIT", CategoryOf("audit.logged"))
}

func TestMessageFromEvent(t *testing.T) {
	msg := MessageFromEvent(sampleEvent())
	assert.Equal(t, MessageTypeEvent, msg.Type)
	assert.Equal(t, "credit.retired", msg.Event)
	assert.Equal(t, "project", msg.Channel)
	assert.Equal(t, "project-1", msg.ProjectID)

	msg = MessageFromEvent(registry.Event{Type: registry.EventProjectRegistered})
	assert.Equal(t, "broadcast", msg.Channel)
}

func TestDispatcherFansOutAndJoinsFailures(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var got []string
	d.Register("first", registry.PublisherFunc(func(_ context.Context, e registry.Event) error {
		got = append(got, "first:"+e.ID)
		return nil
	}))
	d.Register("broken", registry.PublisherFunc(func(context.Context, registry.Event) error {
		return errors.New("unreachable")
	}))
	d.Register("last", registry.PublisherFunc(func(_ context.Context, e registry.Event) error {
		got = append(got, "last:"+e.ID)
		return nil
	}))

	err := d.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: unreachable")
	assert.Equal(t, []string{"first:evt-1", "last:evt-1"}, got)

	status := d.DeliveryStatus()
	require.Len(t, status, 3)
	assert.Equal(t, ChannelDeliveryStatus{Channel: "first", Sent: 1}, status[0])
	assert.Equal(t, ChannelDeliveryStatus{Channel: "broken", Failed: 1, LastError: "unreachable"}, status[1])
}

func TestDispatcherRegisterReplaces(t *testing.T) {
	d := NewDispatcher(nil)
	calls := 0
	d.Register("ch", registry.PublisherFunc(func(context.Context, registry.Event) error { return errors.New("old") }))
	d.Register("ch", registry.PublisherFunc(func(context.Context, registry.Event) error { calls++; return nil }))

	require.NoError(t, d.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, 1, calls)
	assert.Len(t, d.DeliveryStatus(), 1)
}

func TestSNSPublisher(t *testing.T) {
	client := new(MockSNS)
	const topic = "arn:aws:sns:us-east-1:000000000000:registry-events"

	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		var msg Message
		if err := json.Unmarshal([]byte(aws.ToString(in.Message)), &msg); err != nil {
			return false
		}
		return aws.ToString(in.TopicArn) == topic &&
			msg.Event == "credit.retired" &&
			aws.ToString(in.MessageAttributes["event_type"].StringValue) == "credit.retired" &&
			aws.ToString(in.MessageAttributes["category"].StringValue) == CategoryCredits
	})).Return(&sns.PublishOutput{MessageId: aws.String("m-1")}, nil).Once()

	p := NewSNSPublisher(client, topic)
	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	client.AssertExpectations(t)
}

func TestSNSPublisherError(t *testing.T) {
	client := new(MockSNS)
	client.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	err := NewSNSPublisher(client, "arn").Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
