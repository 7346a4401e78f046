// Package publish announces finished forecast runs on Kafka.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/redispatch/curtailcast/internal/config"
	"github.com/redispatch/curtailcast/internal/evaluation"
	"github.com/redispatch/curtailcast/internal/models"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ForecastMessage is the JSON value of one published run.
type ForecastMessage struct {
	FacilityID  string              `json:"facility_id"`
	Strategy    string              `json:"strategy"`
	MAE         float64             `json:"mae"`
	RMSE        float64             `json:"rmse"`
	Compared    int                 `json:"compared"`
	Predictions []models.Prediction `json:"predictions"`
	PublishedAt time.Time           `json:"published_at"`
}

// KafkaPublisher writes one message per run, keyed by facility and strategy
// so that runs of the same pair land on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	logger *logrus.Logger
	now    func() time.Time
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger *logrus.Logger) *KafkaPublisher {
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}, logger)
}

func newPublisher(w messageWriter, logger *logrus.Logger) *KafkaPublisher {
	if logger == nil {
		logger = logrus.New()
	}
	return &KafkaPublisher{writer: w, logger: logger, now: time.Now}
}

// Publish sends the predictions and their scores.
func (p *KafkaPublisher) Publish(ctx context.Context, predictions models.PredictionSeries, metrics evaluation.Metrics) error {
	msg, err := BuildMessage(predictions, metrics, p.now())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	p.logger.WithFields(logrus.Fields{
		"key":   string(msg.Key),
		"bytes": len(msg.Value),
	}).Debug("Published forecast")
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// BuildMessage encodes a run as a keyed Kafka message.
func BuildMessage(predictions models.PredictionSeries, metrics evaluation.Metrics, now time.Time) (kafka.Message, error) {
	value, err := json.Marshal(ForecastMessage{
		FacilityID:  predictions.FacilityID,
		Strategy:    predictions.Strategy,
		MAE:         metrics.MAE,
		RMSE:        metrics.RMSE,
		Compared:    metrics.Count,
		Predictions: predictions.Points,
		PublishedAt: now.UTC(),
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode forecast: %w", err)
	}
	return kafka.Message{
		Key:   []byte(predictions.FacilityID + "/" + predictions.Strategy),
		Value: value,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}, nil
}
