// Package consumer runs team approval checks requested over Kafka.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dcshock/reviewpipe/internal/approval"
)

// Reader is the subset of *kafka.Reader the consumer uses. Messages are
// fetched and committed explicitly so a crash mid-check redelivers.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TeamChecker checks one team.
type TeamChecker interface {
	CheckTeamByID(ctx context.Context, scope approval.OrganizationAndTeamData) (approval.TeamReport, error)
}

// Request is the message payload: {"organizationId": "...", "teamId": "..."}.
type Request = approval.OrganizationAndTeamData

// NewReader returns a kafka-go reader for topic in consumer group groupID.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		CommitInterval: 0,
		MinBytes:       1,
		MaxBytes:       10e6,
	})
}

type Consumer struct {
	reader  Reader
	checker TeamChecker
	logger  *slog.Logger
	backoff time.Duration
}

// New returns a Consumer reading from r.
func New(r Reader, checker TeamChecker, logger *slog.Logger) *Consumer {
	return &Consumer{reader: r, checker: checker, logger: logger, backoff: time.Second}
}

// Run consumes until ctx is canceled or the reader is closed. Every message
// is committed once handled, including ones that cannot be decoded or name
// an unknown team.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("starting approval check consumer")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("approval check consumer stopped")
				return nil
			}
			c.logger.Error("error fetching message", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// Left uncommitted; redelivered after restart.
				return nil
			}
			c.logger.Error("approval check failed", attrs(msg, slog.String("error", err.Error()))...)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var req Request
	if err := json.Unmarshal(msg.Value, &req); err != nil || req.TeamID == "" {
		c.logger.Warn("skipping malformed approval check request", attrs(msg)...)
		return nil
	}
	report, err := c.checker.CheckTeamByID(ctx, req)
	if errors.Is(err, approval.ErrTeamNotFound) {
		c.logger.Warn("skipping approval check for unknown team", attrs(msg, slog.String("team_id", req.TeamID))...)
		return nil
	}
	if err != nil {
		return err
	}
	c.logger.Info("approval check finished", attrs(msg,
		slog.String("team_id", req.TeamID),
		slog.String("pipeline_id", report.PipelineID),
		slog.Int("pull_requests", len(report.Results)),
	)...)
	return nil
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func attrs(msg kafka.Message, extra ...any) []any {
	return append([]any{
		slog.String("topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	}, extra...)
}
