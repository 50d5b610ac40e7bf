package protocol

import "github.com/suntank/hungryHatchling-sub000/internal/vec"

// DefaultMeta — значение meta, когда хост его не прислал
// (исторически это число жизней).
const DefaultMeta = 3

// EntitySnapshot описывает одну сущность в снапшоте мира.
// Positions[0] — голова; хвост следует за ней по клеткам сетки.
type EntitySnapshot struct {
	EntityID  int        `json:"entity_id"`
	Positions []vec.Vec2 `json:"positions"`
	Facing    Direction  `json:"facing"`
	Active    bool       `json:"active"`
	Meta      int        `json:"meta"`
}

// Head возвращает головную клетку и признак её наличия
func (e *EntitySnapshot) Head() (vec.Vec2, bool) {
	if len(e.Positions) == 0 {
		return vec.Vec2{}, false
	}
	return e.Positions[0], true
}

// LooseItem описывает свободный предмет на сетке
type LooseItem struct {
	Position vec.Vec2 `json:"position"`
	ItemKind string   `json:"item_kind"`
}

// PendingSpawn описывает отложенное появление сущности
type PendingSpawn struct {
	EntityID  int      `json:"entity_id"`
	Position  vec.Vec2 `json:"position"`
	Countdown int      `json:"countdown"`
}

// WorldSnapshot — авторитетное состояние мира на момент тика.
// Одновременно служит сообщением world_snapshot.
type WorldSnapshot struct {
	Tick          uint64           `json:"tick"`
	Entities      []EntitySnapshot `json:"entities"`
	LooseItems    []LooseItem      `json:"loose_items,omitempty"`
	PendingSpawns []PendingSpawn   `json:"pending_spawns,omitempty"`
}

// Kind возвращает тип сообщения
func (WorldSnapshot) Kind() MsgType { return MsgWorldSnapshot }

// Entity находит сущность по идентификатору
func (s *WorldSnapshot) Entity(entityID int) (*EntitySnapshot, bool) {
	for i := range s.Entities {
		if s.Entities[i].EntityID == entityID {
			return &s.Entities[i], true
		}
	}
	return nil, false
}
