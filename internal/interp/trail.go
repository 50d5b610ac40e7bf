package interp

import "github.com/suntank/hungryHatchling-sub000/internal/vec"

// InterpolateTrail смешивает две цепочки позиций одной сущности.
// factor 0 даёт before, 1 даёт after, значения больше 1 экстраполируют
// вдоль того же отрезка. Для каждой пары клеток сначала разрешается
// переход через край тора: если разница по оси больше половины размера
// сетки, короткий путь лежит через край, и один из концов сдвигается на
// полный размер. Результат заворачивается обратно в [0, размер).
//
// При разной длине цепочек сегменты только из after появляются сразу,
// как только factor > 0; сегменты только из before живут, пока
// factor < 0.5. Так рост и усечение цепочки не порождают фантомов.
func InterpolateTrail(before, after []vec.Vec2, factor float64, grid vec.Grid) []vec.Vec2Float {
	if len(before) == 0 {
		if len(after) == 0 || factor <= 0 {
			return nil
		}
		return toFloat(after)
	}
	if len(after) == 0 {
		if factor < 0.5 {
			return toFloat(before)
		}
		return nil
	}

	longest := len(before)
	if len(after) > longest {
		longest = len(after)
	}

	out := make([]vec.Vec2Float, 0, longest)
	for i := 0; i < longest; i++ {
		switch {
		case i < len(before) && i < len(after):
			bx, ax := wrapAdjust(float64(before[i].X), float64(after[i].X), grid.W)
			by, ay := wrapAdjust(float64(before[i].Y), float64(after[i].Y), grid.H)
			p := vec.Lerp(vec.Vec2Float{X: bx, Y: by}, vec.Vec2Float{X: ax, Y: ay}, factor)
			out = append(out, grid.WrapF(p))
		case i < len(after):
			if factor > 0 {
				out = append(out, vec.FromVec2(after[i]))
			}
		default:
			if factor < 0.5 {
				out = append(out, vec.FromVec2(before[i]))
			}
		}
	}
	return out
}

// wrapAdjust сдвигает один из концов отрезка на полный размер сетки,
// когда прямой путь длиннее пути через край
func wrapAdjust(b, a float64, extent int) (float64, float64) {
	if extent <= 0 {
		return b, a
	}
	half := float64(extent / 2)
	d := a - b
	if d > half {
		b += float64(extent)
	} else if -d > half {
		a += float64(extent)
	}
	return b, a
}

func toFloat(cells []vec.Vec2) []vec.Vec2Float {
	out := make([]vec.Vec2Float, len(cells))
	for i, c := range cells {
		out[i] = vec.FromVec2(c)
	}
	return out
}
