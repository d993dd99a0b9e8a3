package database

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/market-sync/pkg/config"
	"github.com/market-sync/pkg/models"
	"github.com/sirupsen/logrus"
)

const quoteMeasurement = "quotes"

// InfluxClient records fetched quotes as time-series points
type InfluxClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *logrus.Entry
	bucket   string
}

// NewInfluxClient creates a new InfluxDB client
func NewInfluxClient(cfg *config.InfluxConfig, logger *logrus.Logger) *InfluxClient {
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetHTTPRequestTimeout(uint(cfg.Timeout.Seconds())).
			SetLogLevel(0),
	)

	return &InfluxClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger:   logger.WithField("component", "influxdb"),
		bucket:   cfg.Bucket,
	}
}

// Close closes the InfluxDB client
func (ic *InfluxClient) Close() {
	ic.client.Close()
}

// Health checks InfluxDB health
func (ic *InfluxClient) Health(ctx context.Context) error {
	health, err := ic.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influxdb health check failed: %s", msg)
	}

	return nil
}

// WriteQuote writes a single quote point
func (ic *InfluxClient) WriteQuote(ctx context.Context, quote *models.Quote) error {
	if err := ic.writeAPI.WritePoint(ctx, QuotePoint(quote)); err != nil {
		return fmt.Errorf("failed to write quote for %s: %w", quote.Symbol, err)
	}

	ic.logger.WithFields(logrus.Fields{
		"symbol": quote.Symbol,
		"bucket": ic.bucket,
	}).Debug("Quote written")

	return nil
}

// QuotePoint converts a quote into an InfluxDB point
func QuotePoint(quote *models.Quote) *write.Point {
	source := quote.Source
	if source == "" {
		source = "unknown"
	}

	return influxdb2.NewPoint(
		quoteMeasurement,
		map[string]string{
			"symbol": quote.Symbol,
			"source": source,
		},
		map[string]interface{}{
			"price":          quote.Price,
			"volume":         quote.Volume,
			"change":         quote.Change,
			"change_percent": quote.ChangePercent,
			"previous_close": quote.PreviousClose,
		},
		quote.Timestamp,
	)
}
