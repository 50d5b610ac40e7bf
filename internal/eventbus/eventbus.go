package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Типы событий жизненного цикла сетевой сессии.
const (
	EventPlayerJoined   = "player.joined"
	EventPlayerLeft     = "player.left"
	EventConnectionLost = "connection.lost"
	EventServerFound    = "server.discovered"
	EventServerExpired  = "server.expired"
	EventSessionStarted = "session.started"
	EventSessionEnded   = "session.ended"
)

// subQueueDepth — глубина очереди доставки одного подписчика.
// Медленный подписчик теряет события, но не тормозит остальных.
const subQueueDepth = 64

// Envelope описывает универсальный контейнер события.
// Поля фиксированы для версиирования и трассировки.
type Envelope struct {
	ID        string            // Глобально уникальный идентификатор (UUID).
	Timestamp time.Time         // Время создания события (UTC).
	Source    string            // Компонент-источник (network, discovery, session).
	EventType string            // Тип события (player.joined…).
	Version   int               // Схема полезной нагрузки.
	Priority  int               // 0=Low … 9=Critical (для backpressure).
	Payload   []byte            // Сериализованный JSON.
	Metadata  map[string]string // Произвольные метаданные.
}

// NewEnvelope собирает конверт с UUID и текущим временем.
// payload сериализуется в JSON; ошибка сериализации оставляет Payload пустым.
func NewEnvelope(source, eventType string, priority int, payload interface{}) *Envelope {
	ev := &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   1,
		Priority:  priority,
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// Filter позволяет подписаться только на нужные события.
type Filter struct {
	Types   []string // Если пусто — все типы.
	Sources []string // Если пусто — все источники.
}

// allows проверяет конверт против фильтра. Пустые списки пропускают всё.
func (f Filter) allows(ev *Envelope) bool {
	contains := func(arr []string, val string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return contains(f.Types, ev.EventType) && contains(f.Sources, ev.Source)
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus определяет абстракцию шины событий.
// Реализации: in-memory для одиночного процесса, JetStream для
// наблюдения за сессией снаружи.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
}

//================ In-Memory implementation =================//

// memBus раздаёт события через центральный приёмный канал и
// персональные очереди подписчиков. У каждого подписчика своя
// горутина доставки, поэтому зависший handler изолирован.
type memBus struct {
	mu     sync.RWMutex
	subs   map[int]*memSub
	nextID int

	intake chan *Envelope

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

// NewMemoryBus создаёт in-memory Bus с указанным буфером приёма.
func NewMemoryBus(capacity int) EventBus {
	b := &memBus{
		subs:   make(map[int]*memSub),
		intake: make(chan *Envelope, capacity),
	}
	go b.fanout()
	return b
}

// Publish кладёт событие в приёмный канал. При переполнении события
// с приоритетом ниже 5 теряются молча, важные ждут места или отмены
// контекста.
func (b *memBus) Publish(ctx context.Context, ev *Envelope) error {
	select {
	case b.intake <- ev:
		b.published.Add(1)
		return nil
	default:
	}

	if ev.Priority < 5 {
		b.dropped.Add(1)
		return nil
	}

	select {
	case b.intake <- ev:
		b.published.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *memBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	cctx, cancel := context.WithCancel(ctx)
	sub := &memSub{
		bus:     b,
		filter:  f,
		handler: h,
		queue:   make(chan *Envelope, subQueueDepth),
		ctx:     cctx,
		cancel:  cancel,
	}

	b.mu.Lock()
	sub.id = b.nextID
	b.nextID++
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.pump()
	return sub, nil
}

func (b *memBus) Metrics() Stats {
	return Stats{
		Published: b.published.Load(),
		Consumed:  b.consumed.Load(),
		Dropped:   b.dropped.Load(),
		InFlight:  len(b.intake),
	}
}

// fanout раскладывает события из приёмного канала по очередям
// подписчиков. Переполненная очередь конкретного подписчика считается
// его проблемой: событие для него теряется, остальные получают своё.
func (b *memBus) fanout() {
	for ev := range b.intake {
		b.mu.RLock()
		targets := make([]*memSub, 0, len(b.subs))
		for _, sub := range b.subs {
			if sub.filter.allows(ev) {
				targets = append(targets, sub)
			}
		}
		b.mu.RUnlock()

		for _, sub := range targets {
			select {
			case sub.queue <- ev:
			default:
				b.dropped.Add(1)
			}
		}
	}
}

type memSub struct {
	bus     *memBus
	id      int
	filter  Filter
	handler Handler
	queue   chan *Envelope
	ctx     context.Context
	cancel  context.CancelFunc
}

// pump доставляет события из персональной очереди, пока подписка жива
func (s *memSub) pump() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.queue:
			s.handler(s.ctx, ev)
			s.bus.consumed.Add(1)
		}
	}
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.cancel()
}
