package vec

import (
	"encoding/json"
	"math"
	"testing"
)

func TestWrapCarriesAcrossEdges(t *testing.T) {
	g := Grid{W: 15, H: 10}

	cases := []struct {
		in   Vec2
		want Vec2
	}{
		{Vec2{X: 0, Y: 0}, Vec2{X: 0, Y: 0}},
		{Vec2{X: 14, Y: 9}, Vec2{X: 14, Y: 9}},
		{Vec2{X: 15, Y: 10}, Vec2{X: 0, Y: 0}},
		{Vec2{X: -1, Y: -1}, Vec2{X: 14, Y: 9}},
		{Vec2{X: -16, Y: 25}, Vec2{X: 14, Y: 5}},
		{Vec2{X: 31, Y: -11}, Vec2{X: 1, Y: 9}},
	}
	for _, c := range cases {
		if got := g.Wrap(c.in); got != c.want {
			t.Errorf("Wrap(%v) = %v, ожидалось %v", c.in, got, c.want)
		}
	}
}

func TestStepThroughEdge(t *testing.T) {
	g := Grid{W: 15, H: 15}

	if got := g.Step(Vec2{X: 14, Y: 7}, Vec2{X: 1, Y: 0}); got != (Vec2{X: 0, Y: 7}) {
		t.Errorf("Шаг вправо через край: %v", got)
	}
	if got := g.Step(Vec2{X: 3, Y: 0}, Vec2{X: 0, Y: -1}); got != (Vec2{X: 3, Y: 14}) {
		t.Errorf("Шаг вверх через край: %v", got)
	}
}

func TestWrapFStaysInRange(t *testing.T) {
	g := Grid{W: 15, H: 15}

	cases := []struct {
		in   Vec2Float
		want Vec2Float
	}{
		{Vec2Float{X: 14.5, Y: 3}, Vec2Float{X: 14.5, Y: 3}},
		{Vec2Float{X: 15.25, Y: -0.5}, Vec2Float{X: 0.25, Y: 14.5}},
		{Vec2Float{X: -14.75, Y: 30.0}, Vec2Float{X: 0.25, Y: 0}},
	}
	for _, c := range cases {
		got := g.WrapF(c.in)
		if math.Abs(got.X-c.want.X) > 1e-9 || math.Abs(got.Y-c.want.Y) > 1e-9 {
			t.Errorf("WrapF(%v) = %v, ожидалось %v", c.in, got, c.want)
		}
	}
}

func TestWrapOnDegenerateGrid(t *testing.T) {
	g := Grid{}

	// Нулевая сетка не должна делить на ноль
	if got := g.Wrap(Vec2{X: 7, Y: -3}); got != (Vec2{X: 7, Y: -3}) {
		t.Errorf("Пустая сетка изменила клетку: %v", got)
	}
}

func TestVec2JSONIsPair(t *testing.T) {
	data, err := json.Marshal(Vec2{X: 3, Y: -7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != "[3,-7]" {
		t.Errorf("Клетка на проводе должна быть парой, получено %s", data)
	}

	var v Vec2
	if err := json.Unmarshal([]byte("[5,9]"), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v != (Vec2{X: 5, Y: 9}) {
		t.Errorf("Пара разобрана неверно: %v", v)
	}
}

func TestVec2JSONRejectsNonPairs(t *testing.T) {
	bad := []string{
		`[1]`,
		`[1,2,3]`,
		`{"x":1,"y":2}`,
		`"3,4"`,
	}
	for _, in := range bad {
		var v Vec2
		if err := json.Unmarshal([]byte(in), &v); err == nil {
			t.Errorf("Вход %s должен давать ошибку", in)
		}
	}
}

func TestLerpEndpoints(t *testing.T) {
	a := Vec2Float{X: 2, Y: 3}
	b := Vec2Float{X: 6, Y: 11}

	if got := Lerp(a, b, 0); got != a {
		t.Errorf("Lerp(t=0) = %v", got)
	}
	if got := Lerp(a, b, 1); got != b {
		t.Errorf("Lerp(t=1) = %v", got)
	}
	if got := Lerp(a, b, 0.5); got != (Vec2Float{X: 4, Y: 7}) {
		t.Errorf("Lerp(t=0.5) = %v", got)
	}
}
