package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"carbon-scribe/blue-carbon-registry/internal/registry"
)

var _ registry.Publisher = (*SNSPublisher)(nil)

// SNSAPI is the subset of the SNS client used for event fan-out
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher forwards events to an SNS topic as JSON messages. The event
// type and category travel as message attributes so subscribers can filter.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

// NewSNSPublisher creates a publisher for the given topic
func NewSNSPublisher(client SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

// NewSNSPublisherFromConfig builds the SNS client from an AWS config
func NewSNSPublisherFromConfig(cfg aws.Config, topicARN string) *SNSPublisher {
	return NewSNSPublisher(sns.NewFromConfig(cfg), topicARN)
}

// Publish sends one SNS message per event
func (p *SNSPublisher) Publish(ctx context.Context, event registry.Event) error {
	body, err := json.Marshal(MessageFromEvent(event))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String("Blue carbon registry: " + string(event.Type)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(string(event.Type))},
			"category":   {DataType: aws.String("String"), StringValue: aws.String(CategoryOf(event.Type))},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
