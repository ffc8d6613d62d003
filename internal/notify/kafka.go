package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"certflow/pkg/platform/sentinel"
)

// KafkaSender publishes notifications to a Kafka topic. Message attributes
// travel as record headers so subscribers can filter without decoding the
// body.
type KafkaSender struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSender connects to the brokers and ensures the destination topic
// exists.
func NewKafkaSender(ctx context.Context, brokers []string, topic string) (*KafkaSender, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", topic, resp.Err)
	}

	return &KafkaSender{client: client, topic: topic}, nil
}

func (s *KafkaSender) Publish(ctx context.Context, subject, body string, attrs map[string]string) (string, error) {
	headers := make([]kgo.RecordHeader, 0, len(attrs)+1)
	headers = append(headers, kgo.RecordHeader{Key: "subject", Value: []byte(subject)})
	for k, v := range attrs {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	record := &kgo.Record{Topic: s.topic, Value: []byte(body), Headers: headers}
	results := s.client.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		return "", classifyProduceErr(s.topic, err)
	}

	produced, err := results.First()
	if err != nil {
		return "", classifyProduceErr(s.topic, err)
	}
	return fmt.Sprintf("%s/%d/%d", produced.Topic, produced.Partition, produced.Offset), nil
}

func (s *KafkaSender) Close() {
	s.client.Close()
}

func classifyProduceErr(topic string, err error) error {
	switch {
	case errors.Is(err, kerr.UnknownTopicOrPartition):
		return fmt.Errorf("topic %s: %w: %v", topic, sentinel.ErrNotFound, err)
	case errors.Is(err, kerr.InvalidRecord), errors.Is(err, kerr.MessageTooLarge):
		return fmt.Errorf("topic %s: %w: %v", topic, sentinel.ErrInvalidInput, err)
	default:
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
}
