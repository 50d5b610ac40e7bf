package vec

import (
	"encoding/json"
	"fmt"
)

// Vec2 представляет клетку дискретной сетки
type Vec2 struct {
	X, Y int
}

// Add складывает два вектора
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// MarshalJSON сериализует клетку как пару [x, y]
func (v Vec2) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{v.X, v.Y})
}

// UnmarshalJSON принимает строго пару [x, y]
func (v *Vec2) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("клетка должна быть парой [x, y]: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("клетка должна быть парой [x, y], получено %d элементов", len(pair))
	}
	v.X, v.Y = pair[0], pair[1]
	return nil
}

func (v Vec2) String() string {
	return fmt.Sprintf("(%d, %d)", v.X, v.Y)
}
