package interp

import (
	"testing"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/protocol"
	"github.com/suntank/hungryHatchling-sub000/internal/vec"
)

func cellsEqual(got, want []vec.Vec2) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestPredictUnknownAndInactive(t *testing.T) {
	clock := newFakeClock()
	p := NewPredictor(testGrid, 60, 5)
	p.now = clock.now

	if got := p.Predict(42, 16); got != nil {
		t.Errorf("Неизвестная сущность должна дать nil, получено %v", got)
	}

	p.OnServerUpdate(1, []vec.Vec2{{X: 3, Y: 3}}, protocol.DirRight, false, 10)
	if got := p.Predict(1, 16); got != nil {
		t.Errorf("Неактивная сущность должна дать nil, получено %v", got)
	}

	p.OnServerUpdate(2, nil, protocol.DirRight, true, 10)
	if got := p.Predict(2, 16); got != nil {
		t.Errorf("Сущность без позиций должна дать nil, получено %v", got)
	}
}

func TestPredictNoElapsedReturnsServerBody(t *testing.T) {
	clock := newFakeClock()
	p := NewPredictor(testGrid, 60, 5)
	p.now = clock.now

	body := []vec.Vec2{{X: 5, Y: 5}, {X: 4, Y: 5}}
	p.OnServerUpdate(1, body, protocol.DirRight, true, 10)

	got := p.Predict(1, 16)
	if !cellsEqual(got, body) {
		t.Fatalf("Без прошедшего времени тело не двигается: %v", got)
	}

	// возвращённый срез не должен делить память с внутренним состоянием
	got[0] = vec.Vec2{X: 99, Y: 99}
	if again := p.Predict(1, 16); !cellsEqual(again, body) {
		t.Error("Мутация возвращённого среза просочилась во внутреннее состояние")
	}
}

func TestPredictAdvancesHeadWithWrap(t *testing.T) {
	clock := newFakeClock()
	p := NewPredictor(testGrid, 60, 5)
	p.now = clock.now

	p.OnServerUpdate(1, []vec.Vec2{{X: 14, Y: 5}, {X: 13, Y: 5}}, protocol.DirRight, true, 10)

	// 300ms * 60 / 16 = 1.125, то есть ровно один ход
	clock.advance(300 * time.Millisecond)

	got := p.Predict(1, 16)
	want := []vec.Vec2{{X: 0, Y: 5}, {X: 14, Y: 5}}
	if !cellsEqual(got, want) {
		t.Errorf("Голова должна перенестись через край: ожидалось %v, получено %v", want, got)
	}
	if len(got) != 2 {
		t.Errorf("Длина цепочки фиксирована, получено %d", len(got))
	}
}

func TestPredictMovesCapped(t *testing.T) {
	clock := newFakeClock()
	p := NewPredictor(testGrid, 60, 5)
	p.now = clock.now

	p.OnServerUpdate(1, []vec.Vec2{{X: 0, Y: 0}}, protocol.DirRight, true, 10)

	// простой на сотню ходов, но за вызов применяется не больше пяти
	clock.advance(30 * time.Second)

	got := p.Predict(1, 16)
	want := []vec.Vec2{{X: 5, Y: 0}}
	if !cellsEqual(got, want) {
		t.Errorf("Долгий простой ограничен пятью ходами: ожидалось %v, получено %v", want, got)
	}
}

func TestPredictDoesNotRepeatMoves(t *testing.T) {
	clock := newFakeClock()
	p := NewPredictor(testGrid, 60, 5)
	p.now = clock.now

	p.OnServerUpdate(1, []vec.Vec2{{X: 2, Y: 2}}, protocol.DirDown, true, 10)

	clock.advance(300 * time.Millisecond)
	first := p.Predict(1, 16)

	// повторный вызов без прошедшего времени не добавляет ходов
	second := p.Predict(1, 16)
	if !cellsEqual(first, second) {
		t.Errorf("Повторный Predict не должен двигать сущность: %v затем %v", first, second)
	}
}

func TestOnServerUpdateResetsPrediction(t *testing.T) {
	clock := newFakeClock()
	p := NewPredictor(testGrid, 60, 5)
	p.now = clock.now

	p.OnServerUpdate(1, []vec.Vec2{{X: 2, Y: 2}}, protocol.DirRight, true, 10)
	clock.advance(time.Second)
	p.Predict(1, 16)

	// свежие авторитетные данные стирают накопленное предсказание
	authoritative := []vec.Vec2{{X: 7, Y: 7}}
	p.OnServerUpdate(1, authoritative, protocol.DirLeft, true, 11)

	got := p.Predict(1, 16)
	if !cellsEqual(got, authoritative) {
		t.Errorf("После обновления с сервера тело авторитетное: ожидалось %v, получено %v", authoritative, got)
	}
}

func TestClearForgetsEverything(t *testing.T) {
	clock := newFakeClock()
	p := NewPredictor(testGrid, 60, 5)
	p.now = clock.now

	p.OnServerUpdate(1, []vec.Vec2{{X: 1, Y: 1}}, protocol.DirRight, true, 10)
	p.Clear()

	if p.Known(1) {
		t.Error("Clear должен забыть сущность")
	}
	if got := p.Predict(1, 16); got != nil {
		t.Errorf("После Clear предсказаний нет, получено %v", got)
	}
}
