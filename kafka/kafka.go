/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package kafka

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/config"
	"github.com/redhatinsights/deid-export-go/models"
)

var (
	messagesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deid_export_kafka_produced",
		Help: "Number of messages produced to kafka",
	}, []string{"topic"})
	messagePublishElapsed = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "deid_export_publish_seconds",
		Help: "Number of seconds spent writing kafka messages",
	}, []string{"topic"})
	publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deid_export_kafka_produce_failures",
		Help: "Number of times a message was failed to be produced",
	}, []string{"topic"})
	producerCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "deid_export_kafka_producer_go_routine_count",
		Help: "Number of go routines currently publishing to kafka",
	})
)

func init() {
	prometheus.MustRegister(messagesPublished)
	prometheus.MustRegister(messagePublishElapsed)
	prometheus.MustRegister(publishFailures)
	prometheus.MustRegister(producerCount)
}

// Producer publishes file export statuses. It is a status sink of the
// container exporter.
type Producer struct {
	*kafka.Producer
	topic    string
	messages chan *kafka.Message
	wg       sync.WaitGroup
	log      *zap.SugaredLogger
}

// StartProducer publishes queued messages until Close is called.
func (p *Producer) StartProducer() {
	p.log.Infow("started kafka producer", "topic", p.topic)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for v := range p.messages {
			p.publish(v)
		}
	}()
}

func (p *Producer) publish(v *kafka.Message) {
	producerCount.Inc()
	defer producerCount.Dec()
	start := time.Now()

	delivery := make(chan kafka.Event, 1)
	if err := p.Produce(v, delivery); err != nil {
		p.log.Errorw("error publishing to kafka", "error", err)
		publishFailures.With(prometheus.Labels{"topic": p.topic}).Inc()
		return
	}
	e := <-delivery
	messagePublishElapsed.With(prometheus.Labels{"topic": p.topic}).Observe(time.Since(start).Seconds())

	// Delivery report handler for produced messages
	switch ev := e.(type) {
	case *kafka.Message:
		if ev.TopicPartition.Error != nil {
			p.log.Errorw("error publishing to kafka", "error", ev.TopicPartition.Error)
			publishFailures.With(prometheus.Labels{"topic": p.topic}).Inc()
		} else {
			p.log.Debugf("delivered message to %v", ev.TopicPartition)
			messagesPublished.With(prometheus.Labels{"topic": p.topic}).Inc()
		}
	}
}

// RecordStatuses queues one status message per row.
func (p *Producer) RecordStatuses(ctx context.Context, runID uuid.UUID, statuses []models.ExportStatus) error {
	now := time.Now()
	for _, status := range statuses {
		msg, err := NewStatusMessage(runID, status, now).ToMessage(p.topic)
		if err != nil {
			return err
		}
		select {
		case p.messages <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close drains the queue and waits up to timeout for outstanding deliveries.
func (p *Producer) Close(timeout time.Duration) {
	close(p.messages)
	p.wg.Wait()
	if remaining := p.Flush(int(timeout.Milliseconds())); remaining > 0 {
		p.log.Warnw("kafka messages left undelivered", "count", remaining)
	}
	p.Producer.Close()
}

func NewProducer(cfg *config.ExportConfig, log *zap.SugaredLogger) (*Producer, error) {
	brokers := strings.Join(cfg.KafkaConfig.KafkaBrokers, ",")
	log.Infow("kakfa configuration values",
		"client.id", cfg.Hostname,
		"bootstrap.servers", brokers,
		"topic", cfg.KafkaConfig.StatusTopic,
		"loglevel", cfg.LogLevel,
		"debug", cfg.Debug,
	)
	kcfg := &kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         cfg.Hostname,
	}
	if cfg.KafkaConfig.KafkaSSLConfig.SASLMechanism != "" {
		ssl := cfg.KafkaConfig.KafkaSSLConfig
		kcfg = &kafka.ConfigMap{
			"bootstrap.servers": brokers,
			"client.id":         cfg.Hostname,
			"security.protocol": ssl.Protocol,
			"sasl.mechanism":    ssl.SASLMechanism,
			"ssl.ca.location":   ssl.KafkaCA,
			"sasl.username":     ssl.KafkaUsername,
			"sasl.password":     ssl.KafkaPassword,
		}
	}

	p, err := kafka.NewProducer(kcfg)
	if err != nil {
		return nil, err
	}
	return &Producer{
		Producer: p,
		topic:    cfg.KafkaConfig.StatusTopic,
		messages: make(chan *kafka.Message, 100),
		log:      log,
	}, nil
}
