package vec

// Vec2Float — дробная позиция на сетке. Появляется только на клиенте:
// интерполяция между снимками даёт точки между клетками, сервер такими
// координатами не оперирует.
type Vec2Float struct {
	X, Y float64
}

// FromVec2 поднимает клетку в дробные координаты
func FromVec2(v Vec2) Vec2Float {
	return Vec2Float{X: float64(v.X), Y: float64(v.Y)}
}

// Lerp линейно смешивает a и b: t=0 даёт a, t=1 даёт b.
// Значения t вне [0, 1] продолжают тот же отрезок, на этом
// построена экстраполяция.
func Lerp(a, b Vec2Float, t float64) Vec2Float {
	return Vec2Float{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
	}
}
