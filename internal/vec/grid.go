package vec

// Grid описывает размеры тороидальной сетки: выход за край
// переносит клетку на противоположную сторону.
type Grid struct {
	W, H int
}

// Wrap переносит клетку внутрь сетки
func (g Grid) Wrap(v Vec2) Vec2 {
	return Vec2{X: wrapInt(v.X, g.W), Y: wrapInt(v.Y, g.H)}
}

// WrapF переносит дробную позицию в диапазон [0, размер)
func (g Grid) WrapF(v Vec2Float) Vec2Float {
	return Vec2Float{X: wrapFloat(v.X, float64(g.W)), Y: wrapFloat(v.Y, float64(g.H))}
}

// Step сдвигает клетку на delta с переносом через край
func (g Grid) Step(v Vec2, delta Vec2) Vec2 {
	return g.Wrap(v.Add(delta))
}

// Contains сообщает, лежит ли клетка внутри сетки без переноса
func (g Grid) Contains(v Vec2) bool {
	return v.X >= 0 && v.X < g.W && v.Y >= 0 && v.Y < g.H
}

func wrapInt(v, size int) int {
	if size <= 0 {
		return v
	}
	v %= size
	if v < 0 {
		v += size
	}
	return v
}

func wrapFloat(v, size float64) float64 {
	if size <= 0 {
		return v
	}
	for v < 0 {
		v += size
	}
	for v >= size {
		v -= size
	}
	return v
}
