package interp

import (
	"math"
	"testing"

	"github.com/suntank/hungryHatchling-sub000/internal/vec"
)

var testGrid = vec.Grid{W: 15, H: 15}

func floatsEqual(got []vec.Vec2Float, want ...vec.Vec2Float) bool {
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

func TestFactorZeroReproducesBefore(t *testing.T) {
	before := []vec.Vec2{{X: 2, Y: 3}, {X: 2, Y: 4}, {X: 2, Y: 5}}
	after := []vec.Vec2{{X: 3, Y: 3}, {X: 2, Y: 3}, {X: 2, Y: 4}}

	got := InterpolateTrail(before, after, 0, testGrid)
	if !floatsEqual(got,
		vec.Vec2Float{X: 2, Y: 3}, vec.Vec2Float{X: 2, Y: 4}, vec.Vec2Float{X: 2, Y: 5}) {
		t.Errorf("factor=0 должен дать before точно, получено %v", got)
	}
}

func TestFactorOneReproducesAfter(t *testing.T) {
	before := []vec.Vec2{{X: 2, Y: 3}, {X: 2, Y: 4}, {X: 2, Y: 5}}
	after := []vec.Vec2{{X: 3, Y: 3}, {X: 2, Y: 3}, {X: 2, Y: 4}}

	got := InterpolateTrail(before, after, 1, testGrid)
	if !floatsEqual(got,
		vec.Vec2Float{X: 3, Y: 3}, vec.Vec2Float{X: 2, Y: 3}, vec.Vec2Float{X: 2, Y: 4}) {
		t.Errorf("factor=1 должен дать after точно, получено %v", got)
	}
}

func TestWrapShortestPathX(t *testing.T) {
	// переход 1 -> 13 при ширине 15: короткий путь через левый край
	before := []vec.Vec2{{X: 1, Y: 7}}
	after := []vec.Vec2{{X: 13, Y: 7}}

	got := InterpolateTrail(before, after, 0.5, testGrid)
	if len(got) != 1 {
		t.Fatalf("Ожидалась одна позиция, получено %v", got)
	}
	x := got[0].X
	center := float64(testGrid.W) / 2
	if math.Abs(x-center) < 2 {
		t.Fatalf("Интерполяция пошла длинным путём через центр: x=%v", x)
	}
	nearLeft := x <= 1.0
	nearRight := x >= float64(testGrid.W)-2.0
	if !nearLeft && !nearRight {
		t.Errorf("x должен лежать в пределах клетки от края, получено %v", x)
	}
}

func TestWrapShortestPathY(t *testing.T) {
	before := []vec.Vec2{{X: 4, Y: 14}}
	after := []vec.Vec2{{X: 4, Y: 0}}

	got := InterpolateTrail(before, after, 0.5, testGrid)
	if len(got) != 1 {
		t.Fatalf("Ожидалась одна позиция, получено %v", got)
	}
	// короткий путь 14 -> 15(=0): середина 14.5
	if math.Abs(got[0].Y-14.5) > 1e-9 {
		t.Errorf("Ожидался y=14.5, получено %v", got[0].Y)
	}
}

func TestResultWrapsBackIntoGrid(t *testing.T) {
	// экстраполяция за край: 14 -> 0 с factor 1.5 даёт 15.5 -> 0.5
	before := []vec.Vec2{{X: 14, Y: 3}}
	after := []vec.Vec2{{X: 0, Y: 3}}

	got := InterpolateTrail(before, after, 1.5, testGrid)
	if len(got) != 1 {
		t.Fatalf("Ожидалась одна позиция, получено %v", got)
	}
	if math.Abs(got[0].X-0.5) > 1e-9 {
		t.Errorf("Результат должен завернуться в [0, 15): ожидалось 0.5, получено %v", got[0].X)
	}
	if got[0].X < 0 || got[0].X >= float64(testGrid.W) {
		t.Errorf("x вне сетки: %v", got[0].X)
	}
}

func TestGrowthSegmentsAppearOncePositive(t *testing.T) {
	before := []vec.Vec2{{X: 5, Y: 5}, {X: 4, Y: 5}}
	after := []vec.Vec2{{X: 6, Y: 5}, {X: 5, Y: 5}, {X: 4, Y: 5}}

	if got := InterpolateTrail(before, after, 0, testGrid); len(got) != 2 {
		t.Errorf("При factor=0 новый сегмент ещё не виден, получено %v", got)
	}

	got := InterpolateTrail(before, after, 0.01, testGrid)
	if len(got) != 3 {
		t.Fatalf("При factor>0 новый сегмент появляется, получено %v", got)
	}
	if got[2] != (vec.Vec2Float{X: 4, Y: 5}) {
		t.Errorf("Новый сегмент берётся из after вербатим, получено %v", got[2])
	}
}

func TestShrinkSegmentsDropAtHalf(t *testing.T) {
	before := []vec.Vec2{{X: 5, Y: 5}, {X: 4, Y: 5}, {X: 3, Y: 5}}
	after := []vec.Vec2{{X: 6, Y: 5}, {X: 5, Y: 5}}

	if got := InterpolateTrail(before, after, 0.4, testGrid); len(got) != 3 {
		t.Errorf("Пока factor<0.5 усечённый сегмент ещё жив, получено %v", got)
	}
	if got := InterpolateTrail(before, after, 0.5, testGrid); len(got) != 2 {
		t.Errorf("С factor=0.5 усечённый сегмент исчезает, получено %v", got)
	}
	if got := InterpolateTrail(before, after, 0.9, testGrid); len(got) != 2 {
		t.Errorf("При factor>0.5 фантомного сегмента быть не должно, получено %v", got)
	}
}

func TestEmptyEndpoints(t *testing.T) {
	after := []vec.Vec2{{X: 1, Y: 1}}

	if got := InterpolateTrail(nil, after, 0, testGrid); got != nil {
		t.Errorf("Пустой before с factor=0 даёт пусто, получено %v", got)
	}
	if got := InterpolateTrail(nil, after, 1, testGrid); !floatsEqual(got, vec.Vec2Float{X: 1, Y: 1}) {
		t.Errorf("Пустой before с factor=1 даёт after, получено %v", got)
	}

	before := []vec.Vec2{{X: 2, Y: 2}}
	if got := InterpolateTrail(before, nil, 0.4, testGrid); !floatsEqual(got, vec.Vec2Float{X: 2, Y: 2}) {
		t.Errorf("Пустой after с factor<0.5 даёт before, получено %v", got)
	}
	if got := InterpolateTrail(before, nil, 0.7, testGrid); got != nil {
		t.Errorf("Пустой after с factor>=0.5 даёт пусто, получено %v", got)
	}
}
