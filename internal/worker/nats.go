package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// connection abstracts the broker handle so tests can run without a server.
type connection interface {
	Close()
}

// connect dials NATS, ensures the durable stream, and binds the pull
// consumer. Split from Start so tests can inject fakes instead.
func (w *Worker) connect() error {
	nc, err := nats.Connect(w.cfg.URL, nats.Name(w.cfg.Consumer))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	w.conn = nc
	w.logger.Info("worker.nats_connected")

	js, err := nc.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}

	// Idempotent: an existing stream is fine.
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     w.cfg.Stream,
		Subjects: []string{w.cfg.Subject, w.cfg.Subject + ".>"},
	})
	switch {
	case err == nil:
		w.logger.Info("worker.stream_created", "stream", w.cfg.Stream)
	case errors.Is(err, nats.ErrStreamNameAlreadyInUse):
		w.logger.Info("worker.stream_exists", "stream", w.cfg.Stream)
	default:
		return fmt.Errorf("ensure stream %s: %w", w.cfg.Stream, err)
	}

	sub, err := js.PullSubscribe(w.cfg.Subject, w.cfg.Consumer, nats.AckWait(w.cfg.AckWait))
	if err != nil {
		return fmt.Errorf("pull subscribe %s: %w", w.cfg.Subject, err)
	}
	w.logger.Info("worker.pull_subscription_created", "consumer", w.cfg.Consumer)

	w.fetch = natsFetcher{sub: sub}
	w.pub = natsPublisher{nc: nc}
	return nil
}

type natsFetcher struct {
	sub *nats.Subscription
}

func (f natsFetcher) Fetch(batch int, maxWait time.Duration) ([]queueMsg, error) {
	msgs, err := f.sub.Fetch(batch, nats.MaxWait(maxWait))
	if err != nil {
		// An empty pull is not an error.
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]queueMsg, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, natsMsg{m: m})
	}
	return out, nil
}

type natsMsg struct {
	m *nats.Msg
}

func (n natsMsg) Data() []byte { return n.m.Data }
func (n natsMsg) Ack() error   { return n.m.Ack() }
func (n natsMsg) Nak() error   { return n.m.Nak() }

type natsPublisher struct {
	nc *nats.Conn
}

func (p natsPublisher) Publish(subject string, data []byte) error {
	return p.nc.Publish(subject, data)
}
