package interp

import (
	"math"
	"testing"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/protocol"
	"github.com/suntank/hungryHatchling-sub000/internal/vec"
)

// newTestSync собирает синхронизатор на управляемых часах
func newTestSync(opts Options) (*Synchronizer, *fakeClock) {
	clock := newFakeClock()
	s := NewSynchronizer(opts)
	s.buffer.now = clock.now
	s.predictor.now = clock.now
	return s, clock
}

func TestIngestDropsStaleTicks(t *testing.T) {
	s, _ := newTestSync(Options{})

	s.Ingest(snapWithEntity(10, 0, vec.Vec2{X: 3, Y: 3}))
	s.Ingest(snapWithEntity(10, 0, vec.Vec2{X: 4, Y: 3})) // дубликат тика
	s.Ingest(snapWithEntity(9, 0, vec.Vec2{X: 5, Y: 3}))  // опоздавший

	if got := s.buffer.Len(); got != 1 {
		t.Errorf("Несвежие тики не должны попадать в буфер, глубина %d", got)
	}
	latest := s.buffer.Latest()
	if latest.Entities[0].Positions[0].X != 3 {
		t.Error("Опоздавший снапшот перезаписал актуальное состояние")
	}
}

func TestPositionsForSingleSnapshotVerbatim(t *testing.T) {
	s, _ := newTestSync(Options{})

	s.Ingest(snapWithEntity(10, 0, vec.Vec2{X: 3, Y: 3}))

	got := s.PositionsFor(0, 16)
	if len(got) != 1 || got[0] != (vec.Vec2Float{X: 3, Y: 3}) {
		t.Fatalf("Сразу после первого снапшота позиции вербатим [[3,3]], получено %v", got)
	}
}

func TestPositionsForUnknownEntity(t *testing.T) {
	s, _ := newTestSync(Options{})

	if got := s.PositionsFor(7, 16); got != nil {
		t.Errorf("Сущность не видел никто: ожидался nil, получено %v", got)
	}

	s.Ingest(snapWithEntity(10, 0, vec.Vec2{X: 3, Y: 3}))
	if got := s.PositionsFor(7, 16); got != nil {
		t.Errorf("Чужая сущность в буфере не делает известной эту: %v", got)
	}
}

func TestPositionsForInterpolatesMidway(t *testing.T) {
	s, clock := newTestSync(Options{BufferDelay: 80 * time.Millisecond})

	s.Ingest(snapWithEntity(10, 0, vec.Vec2{X: 2, Y: 3}))
	clock.advance(100 * time.Millisecond)
	s.Ingest(snapWithEntity(11, 0, vec.Vec2{X: 3, Y: 3}))
	clock.advance(30 * time.Millisecond) // render_time в середине пары

	got := s.PositionsFor(0, 16)
	if len(got) != 1 {
		t.Fatalf("Ожидалась одна позиция, получено %v", got)
	}
	if math.Abs(got[0].X-2.5) > 1e-9 || math.Abs(got[0].Y-3.0) > 1e-9 {
		t.Errorf("Середина пары должна дать (2.5, 3), получено %v", got[0])
	}

	stats := s.Stats()
	if stats.Interpolations != 1 || stats.Extrapolations != 0 {
		t.Errorf("Счётчики: ожидалась одна интерполяция, получено %+v", stats)
	}
}

func TestPositionsForExtrapolationCapped(t *testing.T) {
	s, clock := newTestSync(Options{BufferDelay: 80 * time.Millisecond})

	s.Ingest(snapWithEntity(10, 0, vec.Vec2{X: 4, Y: 3}))
	clock.advance(100 * time.Millisecond)
	s.Ingest(snapWithEntity(11, 0, vec.Vec2{X: 5, Y: 3}))

	// 200ms за новейшим: сырой factor 3.0, но применяется предел 1.5
	clock.advance(200 * time.Millisecond)

	got := s.PositionsFor(0, 16)
	if len(got) != 1 {
		t.Fatalf("Ожидалась одна позиция, получено %v", got)
	}
	want := 4.0 + (5.0-4.0)*1.5
	if math.Abs(got[0].X-want) > 1e-9 {
		t.Errorf("Экстраполяция ограничена 1.5: ожидалось x=%v, получено %v", want, got[0].X)
	}

	if s.Stats().Extrapolations != 1 {
		t.Errorf("Ожидалась одна экстраполяция, получено %+v", s.Stats())
	}
}

func TestPositionsForPredictionFallback(t *testing.T) {
	s, clock := newTestSync(Options{})

	// буфер пуст, но предсказатель знает сущность
	s.predictor.OnServerUpdate(0, []vec.Vec2{{X: 3, Y: 3}}, protocol.DirRight, true, 10)
	clock.advance(300 * time.Millisecond) // один ход при interval=16

	got := s.PositionsFor(0, 16)
	if len(got) != 1 || got[0] != (vec.Vec2Float{X: 4, Y: 3}) {
		t.Fatalf("Ожидалось предсказание [(4,3)], получено %v", got)
	}
	if s.Stats().Predictions != 1 {
		t.Errorf("Ожидалось одно предсказание, получено %+v", s.Stats())
	}
}

func TestLatestAccessorsWithDefaults(t *testing.T) {
	s, _ := newTestSync(Options{})

	if s.FacingFor(0) != protocol.DirRight {
		t.Error("Направление по умолчанию RIGHT")
	}
	if !s.ActiveFor(0) {
		t.Error("Активность по умолчанию true")
	}
	if s.MetaFor(0) != protocol.DefaultMeta {
		t.Errorf("meta по умолчанию %d", protocol.DefaultMeta)
	}

	snap := &protocol.WorldSnapshot{
		Tick: 10,
		Entities: []protocol.EntitySnapshot{{
			EntityID:  0,
			Positions: []vec.Vec2{{X: 1, Y: 1}},
			Facing:    protocol.DirLeft,
			Active:    false,
			Meta:      1,
		}},
	}
	s.Ingest(snap)

	if s.FacingFor(0) != protocol.DirLeft {
		t.Errorf("Ожидалось LEFT, получено %s", s.FacingFor(0))
	}
	if s.ActiveFor(0) {
		t.Error("Сущность помечена неактивной")
	}
	if s.MetaFor(0) != 1 {
		t.Errorf("Ожидалось meta=1, получено %d", s.MetaFor(0))
	}
}

func TestIsStale(t *testing.T) {
	s, clock := newTestSync(Options{StaleAfter: 500 * time.Millisecond})

	if !s.IsStale(0) {
		t.Error("До первого снапшота состояние устаревшее")
	}

	s.Ingest(snapWithEntity(10, 0, vec.Vec2{X: 3, Y: 3}))
	if s.IsStale(0) {
		t.Error("Сразу после снапшота состояние свежее")
	}

	clock.advance(600 * time.Millisecond)
	if !s.IsStale(0) {
		t.Error("Через 600ms при пределе 500ms состояние устаревшее")
	}
	if s.IsStale(time.Second) {
		t.Error("Явный maxAge важнее настройки")
	}
}

func TestResetClearsEverything(t *testing.T) {
	s, clock := newTestSync(Options{})

	s.Ingest(snapWithEntity(10, 0, vec.Vec2{X: 3, Y: 3}))
	clock.advance(30 * time.Millisecond)
	s.PositionsFor(0, 16)

	s.Reset()

	if got := s.PositionsFor(0, 16); got != nil {
		t.Errorf("После Reset сущность забыта, получено %v", got)
	}
	stats := s.Stats()
	if stats.Interpolations != 0 || stats.Extrapolations != 0 || stats.Predictions != 0 || stats.BufferLen != 0 {
		t.Errorf("После Reset счётчики нулевые, получено %+v", stats)
	}

	// новая сессия начинает нумерацию тиков заново
	s.Ingest(snapWithEntity(1, 0, vec.Vec2{X: 5, Y: 5}))
	if got := s.PositionsFor(0, 16); len(got) != 1 || got[0] != (vec.Vec2Float{X: 5, Y: 5}) {
		t.Errorf("После Reset принимаются тики с начала, получено %v", got)
	}
}
