package interp

import (
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/protocol"
	"github.com/suntank/hungryHatchling-sub000/internal/vec"
)

const (
	defaultExtrapCap  = 1.5
	defaultStaleAfter = 500 * time.Millisecond
	defaultGridW      = 15
	defaultGridH      = 15
)

// Options — настройки синхронизатора. Нулевые поля получают значения
// по умолчанию; пределы подобраны эмпирически и намеренно вынесены
// в конфигурацию.
type Options struct {
	BufferDelay       time.Duration // отставание рендера (80ms)
	BufferCapacity    int           // глубина буфера состояний (30)
	ExtrapolationStop time.Duration // стоп экстраполяции по времени (500ms)
	ExtrapolationCap  float64       // максимум factor при экстраполяции (1.5)
	PredictionCap     int           // максимум предсказанных ходов (5)
	TickRate          float64       // тиков хоста в секунду (60)
	StaleAfter        time.Duration // возраст, после которого IsStale() (500ms)
	Grid              vec.Grid      // размеры тора (15x15)
}

func (o *Options) applyDefaults() {
	if o.ExtrapolationCap <= 0 {
		o.ExtrapolationCap = defaultExtrapCap
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = defaultStaleAfter
	}
	if o.Grid.W <= 0 || o.Grid.H <= 0 {
		o.Grid = vec.Grid{W: defaultGridW, H: defaultGridH}
	}
}

// Stats — счётчики работы синхронизатора для диагностики
type Stats struct {
	Interpolations  int
	Extrapolations  int
	Predictions     int
	BufferLen       int
	SinceLastUpdate time.Duration
}

// Synchronizer — точка сборки сглаживания на клиенте: буфер состояний,
// предсказатель и чистая интерполяция под одним фасадом. Все методы
// вызываются из одного потока (главного цикла), блокировок нет.
type Synchronizer struct {
	opts      Options
	buffer    *StateBuffer
	predictor *Predictor

	lastTick uint64
	seenTick bool

	interpolations int
	extrapolations int
	predictions    int
}

// NewSynchronizer собирает синхронизатор по настройкам
func NewSynchronizer(opts Options) *Synchronizer {
	opts.applyDefaults()
	return &Synchronizer{
		opts: opts,
		buffer: NewStateBuffer(BufferConfig{
			Delay:      opts.BufferDelay,
			Capacity:   opts.BufferCapacity,
			ExtrapStop: opts.ExtrapolationStop,
		}),
		predictor: NewPredictor(opts.Grid, opts.TickRate, opts.PredictionCap),
	}
}

// Ingest принимает авторитетный снапшот: кладёт его в буфер и обновляет
// записи предсказателя по всем сущностям. Снапшоты с неростущим тиком
// отбрасываются.
func (s *Synchronizer) Ingest(snap *protocol.WorldSnapshot) {
	if snap == nil {
		return
	}
	if s.seenTick && snap.Tick <= s.lastTick {
		return
	}
	s.lastTick = snap.Tick
	s.seenTick = true

	s.buffer.Add(snap)
	for i := range snap.Entities {
		e := &snap.Entities[i]
		s.predictor.OnServerUpdate(e.EntityID, e.Positions, e.Facing, e.Active, snap.Tick)
	}
	metricBufferDepth.Set(float64(s.buffer.Len()))
}

// PositionsFor возвращает сглаженные позиции сущности для рендера.
// Сначала буфер состояний (интерполяция или ограниченная экстраполяция),
// при пустом буфере — предсказание. nil, если сущность не видел ни один
// из источников.
func (s *Synchronizer) PositionsFor(entityID, moveIntervalTicks int) []vec.Vec2Float {
	before, after, factor := s.buffer.RenderState()

	if before == nil {
		predicted := s.predictor.Predict(entityID, moveIntervalTicks)
		if predicted == nil {
			return nil
		}
		s.predictions++
		metricOperations.WithLabelValues("prediction").Inc()
		return toFloat(predicted)
	}

	be, ok := before.Entity(entityID)
	if !ok {
		return nil
	}
	if after == nil || factor == 0 {
		return toFloat(be.Positions)
	}
	ae, ok := after.Entity(entityID)
	if !ok {
		return toFloat(be.Positions)
	}

	if factor > 1 {
		s.extrapolations++
		metricOperations.WithLabelValues("extrapolation").Inc()
		if factor > s.opts.ExtrapolationCap {
			factor = s.opts.ExtrapolationCap
		}
	} else {
		s.interpolations++
		metricOperations.WithLabelValues("interpolation").Inc()
	}
	return InterpolateTrail(be.Positions, ae.Positions, factor, s.opts.Grid)
}

// FacingFor возвращает последнее известное направление сущности.
// По умолчанию RIGHT.
func (s *Synchronizer) FacingFor(entityID int) protocol.Direction {
	if e := s.latestEntity(entityID); e != nil && e.Facing.Valid() {
		return e.Facing
	}
	return protocol.DirRight
}

// ActiveFor возвращает последний известный признак активности.
// По умолчанию true.
func (s *Synchronizer) ActiveFor(entityID int) bool {
	if e := s.latestEntity(entityID); e != nil {
		return e.Active
	}
	return true
}

// MetaFor возвращает последнее известное значение meta.
// По умолчанию protocol.DefaultMeta.
func (s *Synchronizer) MetaFor(entityID int) int {
	if e := s.latestEntity(entityID); e != nil {
		return e.Meta
	}
	return protocol.DefaultMeta
}

func (s *Synchronizer) latestEntity(entityID int) *protocol.EntitySnapshot {
	latest := s.buffer.Latest()
	if latest == nil {
		return nil
	}
	e, ok := latest.Entity(entityID)
	if !ok {
		return nil
	}
	return e
}

// IsStale сообщает, что снапшоты не приходят дольше maxAge
// (нулевой maxAge берёт StaleAfter из настроек). Это не ошибка,
// а состояние для индикатора "переподключение".
func (s *Synchronizer) IsStale(maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = s.opts.StaleAfter
	}
	return s.buffer.TimeSinceLastUpdate() > maxAge
}

// Reset очищает буфер, предсказатель и счётчики. Вызывается при старте
// новой сессии.
func (s *Synchronizer) Reset() {
	s.buffer.Clear()
	s.predictor.Clear()
	s.lastTick = 0
	s.seenTick = false
	s.interpolations = 0
	s.extrapolations = 0
	s.predictions = 0
	metricBufferDepth.Set(0)
}

// Stats возвращает текущие счётчики
func (s *Synchronizer) Stats() Stats {
	return Stats{
		Interpolations:  s.interpolations,
		Extrapolations:  s.extrapolations,
		Predictions:     s.predictions,
		BufferLen:       s.buffer.Len(),
		SinceLastUpdate: s.buffer.TimeSinceLastUpdate(),
	}
}

// TickInterval — сглаженная оценка интервала тика хоста (диагностика)
func (s *Synchronizer) TickInterval() float64 {
	return s.buffer.TickInterval()
}
