package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"
)

// JetStreamBus реализует EventBus поверх NATS JetStream.
// Позволяет наблюдать за событиями сессии с другой машины и
// дочитывать историю после переподключения.
type JetStreamBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream string

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

// NewJetStreamBus подключается к NATS и гарантирует наличие стрима.
// url: nats://127.0.0.1:4222, stream: "EVENTS".
func NewJetStreamBus(url, stream string, retention time.Duration) (*JetStreamBus, error) {
	if stream == "" {
		stream = "EVENTS"
	}

	nc, err := nats.Connect(url,
		nats.Name("hungryHatchling"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Drain()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if err := ensureStream(js, stream, retention); err != nil {
		nc.Drain()
		return nil, err
	}

	return &JetStreamBus{nc: nc, js: js, stream: stream}, nil
}

// ensureStream создаёт стрим, если его ещё нет.
// Типы событий содержат точки (player.joined), поэтому маска ">".
func ensureStream(js nats.JetStreamContext, stream string, retention time.Duration) error {
	if _, err := js.StreamInfo(stream); err == nil {
		return nil
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      stream,
		Subjects:  []string{"events.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    retention,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("add stream: %w", err)
	}
	return nil
}

// Publish сериализует Envelope в JSON и публикует в subject events.<type>.
func (b *JetStreamBus) Publish(ctx context.Context, ev *Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := b.js.Publish(fmt.Sprintf("events.%s", ev.EventType), data); err != nil {
		return err
	}
	b.published.Add(1)
	return nil
}

// Subscribe создаёт свежий durable consumer: сначала доставляется вся
// история стрима, затем живые события. Фильтр по единственному типу
// уходит в subject, остальное отсеивается на клиенте.
func (b *JetStreamBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	subj := "events.>"
	if len(f.Types) == 1 {
		subj = fmt.Sprintf("events.%s", f.Types[0])
	}

	durable := nats.Durable(fmt.Sprintf("sub_%d", time.Now().UnixNano()))

	natSub, err := b.js.Subscribe(subj, func(msg *nats.Msg) {
		defer msg.Ack()

		var ev Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.dropped.Add(1)
			return
		}
		if !f.allows(&ev) {
			return
		}
		h(ctx, &ev)
		b.consumed.Add(1)
	}, nats.ManualAck(), durable, nats.AckWait(30*time.Second))
	if err != nil {
		return nil, err
	}

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			_ = natSub.Unsubscribe()
		}()
	}

	return &jsSub{natSub}, nil
}

// Metrics возвращает счётчики шины. InFlight живёт на стороне JetStream.
func (b *JetStreamBus) Metrics() Stats {
	return Stats{
		Published: b.published.Load(),
		Consumed:  b.consumed.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Close разрывает соединение с NATS, дав недосланным сообщениям уйти.
func (b *JetStreamBus) Close() {
	if b.nc != nil {
		_ = b.nc.Drain()
	}
}

// jsSub адаптирует *nats.Subscription к нашему интерфейсу подписки.
type jsSub struct {
	s *nats.Subscription
}

func (j *jsSub) Unsubscribe() {
	_ = j.s.Unsubscribe()
}
