package protocol

import "github.com/suntank/hungryHatchling-sub000/internal/vec"

// Direction задаёт направление движения по сетке.
// На проводе передаётся строковым именем.
type Direction string

const (
	DirUp    Direction = "UP"
	DirDown  Direction = "DOWN"
	DirLeft  Direction = "LEFT"
	DirRight Direction = "RIGHT"
)

// Valid сообщает, является ли значение одним из четырёх направлений
func (d Direction) Valid() bool {
	switch d {
	case DirUp, DirDown, DirLeft, DirRight:
		return true
	}
	return false
}

// Delta возвращает смещение на одну клетку. Ось Y растёт вниз.
func (d Direction) Delta() vec.Vec2 {
	switch d {
	case DirUp:
		return vec.Vec2{X: 0, Y: -1}
	case DirDown:
		return vec.Vec2{X: 0, Y: 1}
	case DirLeft:
		return vec.Vec2{X: -1, Y: 0}
	case DirRight:
		return vec.Vec2{X: 1, Y: 0}
	}
	return vec.Vec2{}
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	switch d {
	case DirUp:
		return DirDown
	case DirDown:
		return DirUp
	case DirLeft:
		return DirRight
	case DirRight:
		return DirLeft
	}
	return d
}
