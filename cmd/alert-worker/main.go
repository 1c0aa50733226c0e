// Package main is the fare-alert worker. It consumes AlertJob messages from
// SQS, refreshes the seat map for each bookmarked flight via the provider
// that minted it, and records seat availability for alerting.
//
// Failed refreshes return an error for the affected message only, so SQS
// redelivers just that record rather than the whole batch.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"seatscan/internal/bookmarks"
	"seatscan/internal/config"
	"seatscan/internal/providers"
	"seatscan/internal/queue"
	"seatscan/internal/types"
)

// worker holds the wiring the handler needs per invocation.
type worker struct {
	replayer *bookmarks.Replayer
	logger   *slog.Logger
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("alert worker starting", "environment", cfg.Environment)

	amadeus := providers.NewAmadeusAdapter(
		&http.Client{Timeout: cfg.Amadeus.Timeout},
		providers.AmadeusConfig{
			APIKey:    cfg.Amadeus.APIKey,
			APISecret: cfg.Amadeus.APISecret,
			Endpoint:  cfg.Amadeus.Endpoint,
			Logger:    logger,
		},
	)
	sabre := providers.NewSabreAdapter(
		&http.Client{Timeout: cfg.Sabre.Timeout},
		providers.SabreAdapterConfig{
			Username: cfg.Sabre.Username,
			Password: cfg.Sabre.Password,
			PCC:      cfg.Sabre.PCC,
			Endpoint: cfg.Sabre.Endpoint,
			Logger:   logger,
		},
	)
	registry := providers.NewRegistry(amadeus, sabre)

	w := &worker{
		replayer: bookmarks.NewReplayer(registry, logger),
		logger:   logger,
	}

	lambda.Start(w.handle)
}

// handle processes one SQS batch, reporting per-item failures so only the
// affected messages are redelivered.
func (w *worker) handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var failures []events.SQSBatchItemFailure

	for _, record := range event.Records {
		if err := w.processRecord(ctx, record); err != nil {
			w.logger.Error("alert job failed",
				"message_id", record.MessageId,
				"error", err,
			)
			failures = append(failures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}

	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

// processRecord refreshes the seat map for one fare-alert job.
func (w *worker) processRecord(ctx context.Context, record events.SQSMessage) error {
	var job queue.AlertJob
	if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
		// A malformed body will never parse; dropping it beats redelivery.
		w.logger.Error("dropping unparseable alert job", "message_id", record.MessageId, "error", err)
		return nil
	}

	bm := &types.Bookmark{
		UserID:       job.UserID,
		BookmarkID:   job.BookmarkID,
		ProviderTag:  job.ProviderTag,
		CarrierCode:  job.CarrierCode,
		FlightNumber: job.FlightNumber,
		Origin:       job.Origin,
		Destination:  job.Destination,
		DepartureAt:  job.DepartureAt,
	}

	result, err := w.replayer.Replay(ctx, bm)
	if err != nil {
		return err
	}

	available := 0
	if result.SeatMap != nil {
		for _, deck := range result.SeatMap.Decks {
			for _, seat := range deck.Seats {
				if seat.Available {
					available++
				}
			}
		}
	}

	w.logger.Info("fare alert evaluated",
		"job_id", job.JobID,
		"bookmark", job.BookmarkID,
		"provider", string(job.ProviderTag),
		"available_seats", available,
	)
	return nil
}
