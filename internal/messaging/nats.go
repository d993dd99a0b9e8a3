package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/market-sync/pkg/config"
	"github.com/market-sync/pkg/models"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const portfolioStream = "PORTFOLIOS"

// Publisher is the subset of a NATS connection used for publishing
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATSClient publishes portfolio synchronization events
type NATSClient struct {
	conn      *nats.Conn
	publisher Publisher
	logger    *logrus.Entry
}

// NewNATSClient creates a new NATS client
func NewNATSClient(cfg *config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name("market-sync"),
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := initializeStreams(js); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize streams: %w", err)
	}

	nc := NewNATSClientWithPublisher(conn, logger)
	nc.conn = conn
	return nc, nil
}

// NewNATSClientWithPublisher creates a client over an existing publisher
func NewNATSClientWithPublisher(publisher Publisher, logger *logrus.Logger) *NATSClient {
	return &NATSClient{
		publisher: publisher,
		logger:    logger.WithField("component", "nats"),
	}
}

// initializeStreams creates the JetStream stream holding sync events
func initializeStreams(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     portfolioStream,
		Subjects: []string{"portfolios.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
		MaxMsgs:  100000,
		Replicas: 1,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("failed to create %s stream: %w", portfolioStream, err)
	}
	return nil
}

// Close closes the NATS connection
func (nc *NATSClient) Close() error {
	if nc.conn == nil {
		return nil
	}
	if err := nc.conn.Drain(); err != nil {
		nc.conn.Close()
		return err
	}
	return nil
}

// IsConnected checks if NATS is connected
func (nc *NATSClient) IsConnected() bool {
	return nc.conn != nil && nc.conn.IsConnected()
}

// SyncedSubject returns the subject a portfolio's sync results go to
func SyncedSubject(portfolioID int64) string {
	return fmt.Sprintf("portfolios.%d.synced", portfolioID)
}

// PublishJSON publishes any value as JSON
func (nc *NATSClient) PublishJSON(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if err := nc.publisher.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	return nil
}

// PublishPortfolioSynced announces a finished synchronization
func (nc *NATSClient) PublishPortfolioSynced(result *models.SyncResult) error {
	subject := SyncedSubject(result.PortfolioID)
	if err := nc.PublishJSON(subject, result); err != nil {
		return err
	}

	nc.logger.WithFields(logrus.Fields{
		"subject": subject,
		"updated": result.Updated,
		"failed":  result.Failed,
	}).Debug("Published sync event")

	return nil
}
