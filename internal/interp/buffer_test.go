package interp

import (
	"math"
	"testing"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/protocol"
	"github.com/suntank/hungryHatchling-sub000/internal/vec"
)

// fakeClock — управляемое время для детерминированных тестов
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func snapAt(tick uint64) *protocol.WorldSnapshot {
	return &protocol.WorldSnapshot{Tick: tick}
}

func snapWithEntity(tick uint64, entityID int, cells ...vec.Vec2) *protocol.WorldSnapshot {
	return &protocol.WorldSnapshot{
		Tick: tick,
		Entities: []protocol.EntitySnapshot{{
			EntityID:  entityID,
			Positions: cells,
			Facing:    protocol.DirRight,
			Active:    true,
			Meta:      protocol.DefaultMeta,
		}},
	}
}

func TestAddRejectsNonIncreasingTicks(t *testing.T) {
	clock := newFakeClock()
	b := NewStateBuffer(BufferConfig{})
	b.now = clock.now

	accepted := []bool{
		b.Add(snapAt(1)),
		b.Add(snapAt(5)),
		b.Add(snapAt(5)), // дубликат
		b.Add(snapAt(3)), // опоздавший
		b.Add(snapAt(6)),
	}
	want := []bool{true, true, false, false, true}
	for i := range want {
		if accepted[i] != want[i] {
			t.Errorf("Add #%d: ожидалось %v, получено %v", i, want[i], accepted[i])
		}
	}

	ticks := b.Ticks()
	if len(ticks) != 3 || ticks[0] != 1 || ticks[1] != 5 || ticks[2] != 6 {
		t.Errorf("После отбраковки тики должны быть [1 5 6], получено %v", ticks)
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] <= ticks[i-1] {
			t.Fatalf("Тики обязаны строго расти, получено %v", ticks)
		}
	}
}

func TestBoundedHistory(t *testing.T) {
	clock := newFakeClock()
	b := NewStateBuffer(BufferConfig{Capacity: 5})
	b.now = clock.now

	for tick := uint64(1); tick <= 8; tick++ {
		b.Add(snapAt(tick))
		clock.advance(10 * time.Millisecond)
	}

	if b.Len() != 5 {
		t.Fatalf("Буфер должен держать ровно 5 снапшотов, держит %d", b.Len())
	}
	ticks := b.Ticks()
	for i, want := range []uint64{4, 5, 6, 7, 8} {
		if ticks[i] != want {
			t.Fatalf("Должны остаться 5 новейших тиков [4..8], получено %v", ticks)
		}
	}
}

func TestRenderStateEmptyAndSingle(t *testing.T) {
	clock := newFakeClock()
	b := NewStateBuffer(BufferConfig{})
	b.now = clock.now

	before, after, factor := b.RenderState()
	if before != nil || after != nil || factor != 0 {
		t.Error("Пустой буфер должен вернуть nil, nil, 0")
	}

	b.Add(snapAt(1))
	before, after, factor = b.RenderState()
	if before == nil || before.Tick != 1 || after != nil || factor != 0 {
		t.Errorf("Единственный снапшот возвращается как есть: before=%v after=%v factor=%v", before, after, factor)
	}
}

func TestRenderStateBracketsPair(t *testing.T) {
	clock := newFakeClock()
	b := NewStateBuffer(BufferConfig{Delay: 80 * time.Millisecond})
	b.now = clock.now

	b.Add(snapAt(1))
	clock.advance(100 * time.Millisecond)
	b.Add(snapAt(2))

	// render_time = now-80ms должен попасть в середину пары
	clock.advance(30 * time.Millisecond)

	before, after, factor := b.RenderState()
	if before == nil || after == nil {
		t.Fatal("Ожидалась пара снапшотов")
	}
	if before.Tick != 1 || after.Tick != 2 {
		t.Errorf("Пара должна быть (1, 2), получено (%d, %d)", before.Tick, after.Tick)
	}
	if math.Abs(factor-0.5) > 1e-9 {
		t.Errorf("Ожидался factor 0.5, получен %v", factor)
	}
}

func TestRenderStateBeforeOldest(t *testing.T) {
	clock := newFakeClock()
	b := NewStateBuffer(BufferConfig{Delay: 80 * time.Millisecond})
	b.now = clock.now

	b.Add(snapAt(1))
	clock.advance(10 * time.Millisecond)
	b.Add(snapAt(2))

	// render_time = now-80ms раньше первого поступления
	before, after, factor := b.RenderState()
	if before == nil || before.Tick != 1 || after != nil || factor != 0 {
		t.Errorf("Старше истории: ожидался старейший вербатим, получено before=%v after=%v factor=%v",
			before, after, factor)
	}
}

func TestRenderStateExtrapolationFactor(t *testing.T) {
	clock := newFakeClock()
	b := NewStateBuffer(BufferConfig{Delay: 80 * time.Millisecond})
	b.now = clock.now

	b.Add(snapAt(1))
	clock.advance(100 * time.Millisecond)
	b.Add(snapAt(2))

	// 200ms после новейшего: factor = 1 + 0.2/0.1 = 3 (без ограничения)
	clock.advance(200 * time.Millisecond)

	before, after, factor := b.RenderState()
	if before == nil || after == nil {
		t.Fatal("При экстраполяции должна вернуться последняя пара")
	}
	if before.Tick != 1 || after.Tick != 2 {
		t.Errorf("Экстраполяция от пары (1, 2), получено (%d, %d)", before.Tick, after.Tick)
	}
	if math.Abs(factor-3.0) > 1e-9 {
		t.Errorf("Ожидался сырой factor 3.0, получен %v", factor)
	}
}

func TestRenderStateExtrapolationStops(t *testing.T) {
	clock := newFakeClock()
	b := NewStateBuffer(BufferConfig{Delay: 80 * time.Millisecond})
	b.now = clock.now

	b.Add(snapAt(1))
	clock.advance(100 * time.Millisecond)
	b.Add(snapAt(2))

	// далеко за пределом 500ms: новейший вербатим, никакого дрейфа
	clock.advance(700 * time.Millisecond)

	before, after, factor := b.RenderState()
	if before == nil || before.Tick != 2 || after != nil || factor != 0 {
		t.Errorf("За пределом экстраполяции ожидался новейший вербатим, получено before=%v after=%v factor=%v",
			before, after, factor)
	}
}

func TestTickIntervalEMA(t *testing.T) {
	clock := newFakeClock()
	b := NewStateBuffer(BufferConfig{})
	b.now = clock.now

	if math.Abs(b.TickInterval()-1.0/60.0) > 1e-9 {
		t.Fatalf("Начальная оценка должна быть 1/60, получено %v", b.TickInterval())
	}

	b.Add(snapAt(1))
	clock.advance(100 * time.Millisecond)
	b.Add(snapAt(2))

	// 0.9 * (1/60) + 0.1 * 0.1 = 0.025
	want := 0.9*(1.0/60.0) + 0.1*0.1
	if math.Abs(b.TickInterval()-want) > 1e-9 {
		t.Errorf("EMA после одного замера: ожидалось %v, получено %v", want, b.TickInterval())
	}
}

func TestTimeSinceLastUpdate(t *testing.T) {
	clock := newFakeClock()
	b := NewStateBuffer(BufferConfig{})
	b.now = clock.now

	if b.TimeSinceLastUpdate() < time.Hour {
		t.Error("До первого снапшота давность должна быть практически бесконечной")
	}

	b.Add(snapAt(1))
	clock.advance(50 * time.Millisecond)
	if got := b.TimeSinceLastUpdate(); got != 50*time.Millisecond {
		t.Errorf("Ожидалось 50ms, получено %v", got)
	}
}

func TestClearResetsEstimate(t *testing.T) {
	clock := newFakeClock()
	b := NewStateBuffer(BufferConfig{})
	b.now = clock.now

	b.Add(snapAt(1))
	clock.advance(time.Second)
	b.Add(snapAt(2))
	b.Clear()

	if b.Len() != 0 {
		t.Error("Clear должен опустошить буфер")
	}
	if math.Abs(b.TickInterval()-1.0/60.0) > 1e-9 {
		t.Error("Clear должен вернуть оценку интервала к начальной")
	}
	// после очистки старые тики принимаются заново
	if !b.Add(snapAt(1)) {
		t.Error("После Clear буфер должен принимать тики с начала")
	}
}
