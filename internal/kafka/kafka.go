// Package kafka prepares the task topic and checks broker readiness
package kafka

import (
	"context"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"
)

// InitKafkaTopics creates the given topics, retrying until every topic exists or ctx is done.
func InitKafkaTopics(ctx context.Context, brokerAddr string, delay time.Duration, topics ...string) error {
	client := &kafkago.Client{
		Addr:    kafkago.TCP(brokerAddr),
		Timeout: 10 * time.Second,
	}

	req := kafkago.CreateTopicsRequest{
		Topics: make([]kafkago.TopicConfig, 0, len(topics)),
	}

	for _, t := range topics {
		req.Topics = append(req.Topics, kafkago.TopicConfig{
			Topic:             t,
			NumPartitions:     3,
			ReplicationFactor: 1,
		})
	}

	for {
		resp, err := client.CreateTopics(ctx, &req)
		if err == nil && topicsReady(resp) {
			zlog.Logger.Info().Strs("topics", topics).Msg("Kafka topics are ready")
			return nil
		}
		if err != nil {
			zlog.Logger.Warn().Err(err).Dur("retry_in", delay).Msg("Failed to run topics creation request")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func topicsReady(resp *kafkago.CreateTopicsResponse) bool {
	ready := true
	for topic, err := range resp.Errors {
		if err == nil || errors.Is(err, kafkago.TopicAlreadyExists) {
			continue
		}
		zlog.Logger.Warn().Err(err).Str("topic", topic).Msg("Topic creation error")
		ready = false
	}
	return ready
}

// WaitKafkaReady blocks until the broker accepts TCP connections or ctx is done.
func WaitKafkaReady(ctx context.Context, brokerAddr string, delay time.Duration) error {
	for {
		conn, err := kafkago.DialContext(ctx, "tcp", brokerAddr)
		if err == nil {
			if errConn := conn.Close(); errConn != nil {
				zlog.Logger.Warn().Err(errConn).Msg("Failed to close connection after testing Kafka readiness")
			}
			zlog.Logger.Info().Str("broker", brokerAddr).Msg("Kafka is ready")
			return nil
		}
		zlog.Logger.Info().Dur("retry_in", delay).Msg("Kafka not ready yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
