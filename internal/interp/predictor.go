package interp

import (
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/protocol"
	"github.com/suntank/hungryHatchling-sub000/internal/vec"
)

const (
	defaultTickRate = 60.0
	defaultMoveCap  = 5
)

// prediction — последнее авторитетное состояние сущности плюс учёт уже
// примененных предсказанных ходов
type prediction struct {
	positions      []vec.Vec2
	facing         protocol.Direction
	active         bool
	lastTick       uint64
	updatedAt      time.Time
	movesPredicted int
}

// Predictor оценивает текущие позиции сущности по её последнему
// известному состоянию и прошедшему времени. Используется только когда
// в буфере состояний нет вообще ничего.
type Predictor struct {
	grid     vec.Grid
	tickRate float64 // тиков хоста в секунду
	moveCap  int     // максимум ходов за один вызов Predict

	records map[int]*prediction

	now func() time.Time
}

// NewPredictor создаёт предсказатель. Нулевые tickRate и moveCap
// заменяются значениями по умолчанию (60 и 5).
func NewPredictor(grid vec.Grid, tickRate float64, moveCap int) *Predictor {
	if tickRate <= 0 {
		tickRate = defaultTickRate
	}
	if moveCap <= 0 {
		moveCap = defaultMoveCap
	}
	return &Predictor{
		grid:     grid,
		tickRate: tickRate,
		moveCap:  moveCap,
		records:  make(map[int]*prediction),
		now:      time.Now,
	}
}

// OnServerUpdate целиком заменяет запись сущности авторитетными данными
// и обнуляет счётчик предсказанных ходов.
func (p *Predictor) OnServerUpdate(entityID int, positions []vec.Vec2, facing protocol.Direction, active bool, tick uint64) {
	body := make([]vec.Vec2, len(positions))
	copy(body, positions)
	p.records[entityID] = &prediction{
		positions: body,
		facing:    facing,
		active:    active,
		lastTick:  tick,
		updatedAt: p.now(),
	}
}

// Predict возвращает оценку позиций сущности для текущего момента.
// Число новых ходов за вызов ограничено moveCap, чтобы долгий простой
// не породил дикий прыжок. Для неизвестной, неактивной или пустой
// сущности возвращается nil.
func (p *Predictor) Predict(entityID, moveIntervalTicks int) []vec.Vec2 {
	rec, ok := p.records[entityID]
	if !ok || !rec.active || len(rec.positions) == 0 {
		return nil
	}
	if moveIntervalTicks <= 0 {
		moveIntervalTicks = 1
	}

	elapsed := p.now().Sub(rec.updatedAt).Seconds()
	expected := int(elapsed * p.tickRate / float64(moveIntervalTicks))

	apply := expected - rec.movesPredicted
	if apply > p.moveCap {
		apply = p.moveCap
	}
	if apply > 0 {
		delta := rec.facing.Delta()
		for n := 0; n < apply; n++ {
			head := p.grid.Step(rec.positions[0], delta)
			// сдвиг фиксированной длины: новая голова, хвост отпадает
			for i := len(rec.positions) - 1; i > 0; i-- {
				rec.positions[i] = rec.positions[i-1]
			}
			rec.positions[0] = head
		}
		rec.movesPredicted = expected
	}

	out := make([]vec.Vec2, len(rec.positions))
	copy(out, rec.positions)
	return out
}

// Known сообщает, видел ли предсказатель эту сущность
func (p *Predictor) Known(entityID int) bool {
	_, ok := p.records[entityID]
	return ok
}

// Clear забывает все записи
func (p *Predictor) Clear() {
	p.records = make(map[int]*prediction)
}
