// Package queue provides the SQS producer that dispatches fare-alert jobs to
// the background worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"seatscan/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// AlertJob is the message body the fare-alert worker consumes. It carries the
// discrete routing fields so the worker can refresh the seat map without
// loading the bookmark first.
type AlertJob struct {
	JobID        string            `json:"jobId"`
	UserID       string            `json:"userId"`
	BookmarkID   string            `json:"bookmarkId"`
	ProviderTag  types.ProviderTag `json:"providerTag"`
	CarrierCode  string            `json:"carrierCode"`
	FlightNumber string            `json:"flightNumber"`
	Origin       string            `json:"origin"`
	Destination  string            `json:"destination"`
	DepartureAt  time.Time         `json:"departureAt"`
	EnqueuedAt   time.Time         `json:"enqueuedAt"`
}

// AlertTrigger enqueues fare-alert jobs when a bookmark is created with
// alerts enabled. Enqueue failures are surfaced to the caller, who treats
// them as non-fatal: the bookmark itself is already persisted.
type AlertTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewAlertTrigger creates an AlertTrigger publishing to the given queue URL.
func NewAlertTrigger(client SQSSender, queueURL string, logger *slog.Logger) *AlertTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertTrigger{client: client, queueURL: queueURL, logger: logger}
}

// EnqueueAlert serializes an AlertJob for the bookmark and sends it.
func (t *AlertTrigger) EnqueueAlert(ctx context.Context, bm types.Bookmark, reason string) error {
	job := AlertJob{
		JobID:        uuid.New().String(),
		UserID:       bm.UserID,
		BookmarkID:   bm.BookmarkID,
		ProviderTag:  bm.ProviderTag,
		CarrierCode:  bm.CarrierCode,
		FlightNumber: bm.FlightNumber,
		Origin:       bm.Origin,
		Destination:  bm.Destination,
		DepartureAt:  bm.DepartureAt,
		EnqueuedAt:   time.Now().UTC(),
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal AlertJob: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send AlertJob to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "fare alert job enqueued",
		"job_id", job.JobID,
		"bookmark_id", bm.BookmarkID,
		"provider", string(bm.ProviderTag),
		"reason", reason,
	)
	return nil
}
