//go:build integration

package notify_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"certflow/internal/notify"
	"certflow/pkg/testutil/containers"
)

type KafkaSenderSuite struct {
	suite.Suite
	ctx    context.Context
	broker string
	sender *notify.KafkaSender
}

const kafkaTestTopic = "cert-notifications"

func TestKafkaSenderSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSenderSuite))
}

func (s *KafkaSenderSuite) SetupSuite() {
	s.ctx = context.Background()
	s.broker = containers.NewRedpandaContainer(s.T()).Broker

	var err error
	s.sender, err = notify.NewKafkaSender(s.ctx, []string{s.broker}, kafkaTestTopic)
	s.Require().NoError(err)
	s.T().Cleanup(s.sender.Close)
}

func (s *KafkaSenderSuite) TestPublish() {
	messageID, err := s.sender.Publish(s.ctx, "SSL Certificate Update - example.com",
		`{"notification_type":"certificates_updated"}`,
		map[string]string{"notification_type": "certificates_updated", "domain": "example.com"})
	s.Require().NoError(err)

	// Message id is topic/partition/offset.
	parts := strings.Split(messageID, "/")
	s.Require().Len(parts, 3)
	s.Equal(kafkaTestTopic, parts[0])

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(kafkaTestTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().NotEmpty(records)

	record := records[0]
	s.Contains(string(record.Value), "certificates_updated")

	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal("SSL Certificate Update - example.com", headers["subject"])
	s.Equal("example.com", headers["domain"])
}

func (s *KafkaSenderSuite) TestNewKafkaSenderIsIdempotent() {
	// Creating a second sender for an existing topic must not fail.
	other, err := notify.NewKafkaSender(s.ctx, []string{s.broker}, kafkaTestTopic)
	s.Require().NoError(err)
	other.Close()
}
