// Package interp сглаживает нерегулярно приходящие снапшоты мира:
// буферизация с отставанием рендера, интерполяция между соседними
// состояниями, ограниченная экстраполяция и dead reckoning, когда
// данных нет совсем. Весь пакет рассчитан на вызовы из одного потока
// (главного цикла клиента), внутренних блокировок нет.
package interp

import (
	"math"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/protocol"
)

const (
	defaultBufferDelay = 80 * time.Millisecond
	defaultCapacity    = 30
	defaultExtrapStop  = 500 * time.Millisecond

	// initialTickInterval — стартовая оценка, пока не накопились замеры
	initialTickInterval = 1.0 / 60.0
)

type entry struct {
	snap   *protocol.WorldSnapshot
	tick   uint64
	recvAt time.Time
}

// BufferConfig — настройки буфера состояний
type BufferConfig struct {
	Delay      time.Duration // отставание рендера от реального времени
	Capacity   int           // сколько снапшотов держать
	ExtrapStop time.Duration // дальше этого за новейший снапшот не экстраполируем
}

// StateBuffer хранит последние снапшоты и отвечает, какую пару состояний
// и с каким коэффициентом смешивать для текущего момента рендера.
type StateBuffer struct {
	cfg     BufferConfig
	entries []entry

	lastRecv     time.Time
	tickInterval float64 // сглаженная оценка секунд на тик хоста

	now func() time.Time
}

// NewStateBuffer создаёт буфер; нулевые поля конфига получают значения
// по умолчанию (80ms / 30 / 500ms).
func NewStateBuffer(cfg BufferConfig) *StateBuffer {
	if cfg.Delay <= 0 {
		cfg.Delay = defaultBufferDelay
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.ExtrapStop <= 0 {
		cfg.ExtrapStop = defaultExtrapStop
	}
	return &StateBuffer{
		cfg:          cfg,
		entries:      make([]entry, 0, cfg.Capacity),
		tickInterval: initialTickInterval,
		now:          time.Now,
	}
}

// Add принимает снапшот. Тик обязан строго расти: повторы и
// опоздавшие снапшоты отбрасываются, возвращается false.
func (b *StateBuffer) Add(snap *protocol.WorldSnapshot) bool {
	if snap == nil {
		return false
	}
	nowT := b.now()

	if n := len(b.entries); n > 0 {
		last := b.entries[n-1]
		if snap.Tick <= last.tick {
			return false
		}
		// уточняем оценку интервала тика по фактическим поступлениям
		dTick := snap.Tick - last.tick
		dT := nowT.Sub(last.recvAt).Seconds()
		if dT > 0 {
			estimate := dT / float64(dTick)
			b.tickInterval = 0.9*b.tickInterval + 0.1*estimate
		}
	}

	b.entries = append(b.entries, entry{snap: snap, tick: snap.Tick, recvAt: nowT})
	if len(b.entries) > b.cfg.Capacity {
		b.entries = b.entries[1:]
	}
	b.lastRecv = nowT
	return true
}

// RenderState возвращает пару снапшотов и коэффициент смешивания для
// момента now-Delay. after == nil или factor == 0 означает "взять before
// как есть". При экстраполяции factor больше единицы и НЕ ограничен:
// предел применяет вызывающая сторона.
func (b *StateBuffer) RenderState() (before, after *protocol.WorldSnapshot, factor float64) {
	n := len(b.entries)
	if n == 0 {
		return nil, nil, 0
	}
	if n == 1 {
		return b.entries[0].snap, nil, 0
	}

	renderTime := b.now().Add(-b.cfg.Delay)

	// ищем пару соседей, между которыми лежит renderTime
	for i := 0; i < n-1; i++ {
		lo, hi := b.entries[i], b.entries[i+1]
		if lo.recvAt.After(renderTime) || renderTime.After(hi.recvAt) {
			continue
		}
		span := hi.recvAt.Sub(lo.recvAt).Seconds()
		if span <= 0 {
			return hi.snap, nil, 0
		}
		f := renderTime.Sub(lo.recvAt).Seconds() / span
		if f < 0 {
			f = 0
		} else if f > 1 {
			f = 1
		}
		return lo.snap, hi.snap, f
	}

	// renderTime старше самого старого снапшота
	if renderTime.Before(b.entries[0].recvAt) {
		return b.entries[0].snap, nil, 0
	}

	// renderTime новее всех: экстраполяция от последней пары
	lo, hi := b.entries[n-2], b.entries[n-1]
	since := b.now().Sub(hi.recvAt)
	if since > b.cfg.ExtrapStop {
		return hi.snap, nil, 0
	}
	span := hi.recvAt.Sub(lo.recvAt).Seconds()
	if span < 0.001 {
		span = 0.001
	}
	return lo.snap, hi.snap, 1 + since.Seconds()/span
}

// Latest возвращает новейший снапшот без смешивания
func (b *StateBuffer) Latest() *protocol.WorldSnapshot {
	if len(b.entries) == 0 {
		return nil
	}
	return b.entries[len(b.entries)-1].snap
}

// Len возвращает текущую глубину буфера
func (b *StateBuffer) Len() int { return len(b.entries) }

// Ticks возвращает тики в порядке хранения (для диагностики и тестов)
func (b *StateBuffer) Ticks() []uint64 {
	out := make([]uint64, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.tick
	}
	return out
}

// TickInterval — текущая сглаженная оценка секунд на тик хоста
func (b *StateBuffer) TickInterval() float64 { return b.tickInterval }

// TimeSinceLastUpdate возвращает время с последнего принятого снапшота.
// До первого снапшота возвращается бесконечность.
func (b *StateBuffer) TimeSinceLastUpdate() time.Duration {
	if b.lastRecv.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return b.now().Sub(b.lastRecv)
}

// Clear очищает буфер; оценка интервала тика сбрасывается к начальной
func (b *StateBuffer) Clear() {
	b.entries = b.entries[:0]
	b.lastRecv = time.Time{}
	b.tickInterval = initialTickInterval
}
