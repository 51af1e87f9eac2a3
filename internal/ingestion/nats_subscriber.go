// Package ingestion connects the engine to NATS JetStream: price quotes flow
// in, committed ledger events flow out.
package ingestion

import (
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	PriceStream          = "SYNTH_PRICES"
	PriceSubjectPrefix   = "synth.prices."
	PriceConsumer        = "synthledger-prices"
	LedgerEventStream    = "SYNTH_LEDGER_EVENTS"
	LedgerSubjectPrefix  = "synth.ledger.events."
	streamMaxAge         = 72 * time.Hour
	priceConsumerAckWait = 30 * time.Second
)

// ErrStaleRound is returned for a quote older than the one already held.
var ErrStaleRound = errors.New("ingestion: stale price round")

// PriceSubscriber consumes price quotes and applies them to a FeedBook,
// the live source the oracle adapter reads on every valuation.
type PriceSubscriber struct {
	js       jetstream.JetStream
	book     *oracle.FeedBook
	metrics  *observability.Metrics
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewPriceSubscriber(js jetstream.JetStream, book *oracle.FeedBook, metrics *observability.Metrics) *PriceSubscriber {
	return &PriceSubscriber{
		js:      js,
		book:    book,
		metrics: metrics,
		log:     observability.NewLogger("price-subscriber"),
	}
}

// Subscribe creates the durable price consumer and starts consuming.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ps *PriceSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ps.js.CreateOrUpdateConsumer(ctx, PriceStream, jetstream.ConsumerConfig{
		Durable:       PriceConsumer,
		FilterSubject: PriceSubjectPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       priceConsumerAckWait,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", PriceConsumer, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		switch err := ps.Handle(msg.Subject(), msg.Data()); {
		case err == nil, errors.Is(err, ErrStaleRound):
			msg.Ack()
		default:
			// Malformed quotes never become valid; stop redelivery.
			ps.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("price message rejected")
			msg.Term()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", PriceConsumer, err)
	}
	ps.consumer = cc
	ps.log.Info().Str("subject", PriceSubjectPrefix+">").Str("consumer", PriceConsumer).Msg("subscribed")
	return nil
}

// Handle parses one price message and applies it to the book.
func (ps *PriceSubscriber) Handle(subject string, data []byte) error {
	q, err := ParsePriceUpdate(subject, data)
	if err != nil {
		ps.reject("malformed")
		return err
	}
	if !ps.book.Apply(q) {
		ps.reject("stale_round")
		return fmt.Errorf("%w: feed %s round %d", ErrStaleRound, q.Feed, q.Round)
	}
	if ps.metrics != nil {
		ps.metrics.PriceUpdates.WithLabelValues(q.Feed).Inc()
	}
	ps.log.Debug().Str("feed", q.Feed).Uint64("round", q.Round).Str("price", q.Price.Dec()).Msg("price applied")
	return nil
}

func (ps *PriceSubscriber) reject(reason string) {
	if ps.metrics != nil {
		ps.metrics.PriceRejected.WithLabelValues(reason).Inc()
	}
}

// Stop gracefully stops the consumer.
func (ps *PriceSubscriber) Stop() {
	if ps.consumer != nil {
		ps.consumer.Stop()
	}
	ps.log.Info().Msg("price subscriber stopped")
}

// EnsureStreams creates the price and ledger event streams if they don't
// exist. Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	log := observability.NewLogger("ingestion")
	streams := []jetstream.StreamConfig{
		{
			Name:              PriceStream,
			Subjects:          []string{PriceSubjectPrefix + ">"},
			Storage:           jetstream.FileStorage,
			Retention:         jetstream.LimitsPolicy,
			MaxAge:            streamMaxAge,
			MaxMsgsPerSubject: 1024,
			Replicas:          1,
		},
		{
			Name:       LedgerEventStream,
			Subjects:   []string{LedgerSubjectPrefix + ">"},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     streamMaxAge,
			Duplicates: 2 * time.Minute,
			Replicas:   1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	log := observability.NewLogger("nats")
	nc, err := nats.Connect(url,
		nats.Name("synthledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
