package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/suntank/hungryHatchling-sub000/internal/vec"
)

// Ошибки кодека. Принимающая сторона логирует их и отбрасывает
// строку; до вызывающего кода они не доходят.
var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Encode сериализует сообщение в один компактный JSON объект с полем
// "type". Перевода строки в результате нет: кадрирование остаётся
// за менеджером соединений.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil сообщение", ErrMalformedMessage)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("сериализация %s: %w", msg.Kind(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("сериализация %s: %w", msg.Kind(), err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	typeTag, err := json.Marshal(msg.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = typeTag

	return json.Marshal(fields)
}

// Decode разбирает одну строку провода в типизированное сообщение.
// Отсутствие обязательного поля или несовпадение типа даёт
// ErrMalformedMessage, незнакомый дискриминатор — ErrUnknownMessageType.
func Decode(line []byte) (Message, error) {
	var head struct {
		Type *MsgType `json:"type"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if head.Type == nil {
		return nil, fmt.Errorf("%w: нет поля type", ErrMalformedMessage)
	}

	switch *head.Type {
	case MsgInput:
		return decodeInput(line)
	case MsgReady:
		return &Ready{}, nil
	case MsgWorldSnapshot:
		return decodeWorldSnapshot(line)
	case MsgGameStart:
		return decodeGameStart(line)
	case MsgGameEnd:
		return decodeGameEnd(line)
	case MsgPlayerAssigned:
		return decodePlayerAssigned(line)
	case MsgLobbyState:
		return decodeLobbyState(line)
	case MsgReturnToLobby:
		return &ReturnToLobby{}, nil
	case MsgPing:
		return decodePing(line)
	case MsgPong:
		return decodePong(line)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, string(*head.Type))
	}
}

func decodeInput(line []byte) (Message, error) {
	var w struct {
		EntityID  *int       `json:"entity_id"`
		Direction *Direction `json:"direction"`
	}
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: input: %v", ErrMalformedMessage, err)
	}
	if w.EntityID == nil || *w.EntityID < 0 {
		return nil, fmt.Errorf("%w: input: нет корректного entity_id", ErrMalformedMessage)
	}
	if w.Direction == nil || !w.Direction.Valid() {
		return nil, fmt.Errorf("%w: input: нет корректного direction", ErrMalformedMessage)
	}
	return &Input{EntityID: *w.EntityID, Direction: *w.Direction}, nil
}

func decodeWorldSnapshot(line []byte) (Message, error) {
	var w struct {
		Tick     *uint64 `json:"tick"`
		Entities []struct {
			EntityID  *int       `json:"entity_id"`
			Positions []vec.Vec2 `json:"positions"`
			Facing    *Direction `json:"facing"`
			Active    *bool      `json:"active"`
			Meta      *int       `json:"meta"`
		} `json:"entities"`
		LooseItems []struct {
			Position *vec.Vec2 `json:"position"`
			ItemKind string    `json:"item_kind"`
		} `json:"loose_items"`
		PendingSpawns []struct {
			EntityID  *int      `json:"entity_id"`
			Position  *vec.Vec2 `json:"position"`
			Countdown int       `json:"countdown"`
		} `json:"pending_spawns"`
	}
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: world_snapshot: %v", ErrMalformedMessage, err)
	}
	if w.Tick == nil {
		return nil, fmt.Errorf("%w: world_snapshot: нет поля tick", ErrMalformedMessage)
	}

	snap := &WorldSnapshot{
		Tick:     *w.Tick,
		Entities: make([]EntitySnapshot, 0, len(w.Entities)),
	}
	for i, e := range w.Entities {
		if e.EntityID == nil || *e.EntityID < 0 {
			return nil, fmt.Errorf("%w: world_snapshot: entity #%d без entity_id", ErrMalformedMessage, i)
		}
		ent := EntitySnapshot{
			EntityID:  *e.EntityID,
			Positions: e.Positions,
			Facing:    DirRight,
			Active:    true,
			Meta:      DefaultMeta,
		}
		if ent.Positions == nil {
			ent.Positions = []vec.Vec2{}
		}
		if e.Facing != nil {
			if !e.Facing.Valid() {
				return nil, fmt.Errorf("%w: world_snapshot: entity %d с направлением %q", ErrMalformedMessage, *e.EntityID, string(*e.Facing))
			}
			ent.Facing = *e.Facing
		}
		if e.Active != nil {
			ent.Active = *e.Active
		}
		if e.Meta != nil {
			ent.Meta = *e.Meta
		}
		snap.Entities = append(snap.Entities, ent)
	}
	for i, it := range w.LooseItems {
		if it.Position == nil {
			return nil, fmt.Errorf("%w: world_snapshot: предмет #%d без position", ErrMalformedMessage, i)
		}
		snap.LooseItems = append(snap.LooseItems, LooseItem{Position: *it.Position, ItemKind: it.ItemKind})
	}
	for i, sp := range w.PendingSpawns {
		if sp.EntityID == nil || sp.Position == nil {
			return nil, fmt.Errorf("%w: world_snapshot: spawn #%d без entity_id или position", ErrMalformedMessage, i)
		}
		snap.PendingSpawns = append(snap.PendingSpawns, PendingSpawn{
			EntityID:  *sp.EntityID,
			Position:  *sp.Position,
			Countdown: sp.Countdown,
		})
	}
	return snap, nil
}

func decodeGameStart(line []byte) (Message, error) {
	var w struct {
		ParticipantCount *int            `json:"participant_count"`
		Settings         json.RawMessage `json:"settings"`
		Walls            []vec.Vec2      `json:"walls"`
	}
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: game_start: %v", ErrMalformedMessage, err)
	}
	if w.ParticipantCount == nil || *w.ParticipantCount < 1 {
		return nil, fmt.Errorf("%w: game_start: нет корректного participant_count", ErrMalformedMessage)
	}
	return &GameStart{
		ParticipantCount: *w.ParticipantCount,
		Settings:         w.Settings,
		Walls:            w.Walls,
	}, nil
}

func decodeGameEnd(line []byte) (Message, error) {
	var w struct {
		WinnerID *int  `json:"winner_id"`
		Scores   []int `json:"scores"`
	}
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: game_end: %v", ErrMalformedMessage, err)
	}
	if w.WinnerID == nil {
		return nil, fmt.Errorf("%w: game_end: нет поля winner_id", ErrMalformedMessage)
	}
	return &GameEnd{WinnerID: *w.WinnerID, Scores: w.Scores}, nil
}

func decodePlayerAssigned(line []byte) (Message, error) {
	var w struct {
		EntityID *int `json:"entity_id"`
	}
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: player_assigned: %v", ErrMalformedMessage, err)
	}
	if w.EntityID == nil || *w.EntityID < 0 {
		return nil, fmt.Errorf("%w: player_assigned: нет корректного entity_id", ErrMalformedMessage)
	}
	return &PlayerAssigned{EntityID: *w.EntityID}, nil
}

func decodeLobbyState(line []byte) (Message, error) {
	var w struct {
		Settings       json.RawMessage `json:"settings"`
		ConnectedCount *int            `json:"connected_count"`
	}
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: lobby_state: %v", ErrMalformedMessage, err)
	}
	if w.ConnectedCount == nil || *w.ConnectedCount < 0 {
		return nil, fmt.Errorf("%w: lobby_state: нет корректного connected_count", ErrMalformedMessage)
	}
	return &LobbyState{Settings: w.Settings, ConnectedCount: *w.ConnectedCount}, nil
}

func decodePing(line []byte) (Message, error) {
	var w struct {
		SentUnixMs *int64 `json:"sent_unix_ms"`
	}
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: ping: %v", ErrMalformedMessage, err)
	}
	if w.SentUnixMs == nil {
		return nil, fmt.Errorf("%w: ping: нет поля sent_unix_ms", ErrMalformedMessage)
	}
	return &Ping{SentUnixMs: *w.SentUnixMs}, nil
}

func decodePong(line []byte) (Message, error) {
	var w struct {
		SentUnixMs *int64 `json:"sent_unix_ms"`
	}
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: pong: %v", ErrMalformedMessage, err)
	}
	if w.SentUnixMs == nil {
		return nil, fmt.Errorf("%w: pong: нет поля sent_unix_ms", ErrMalformedMessage)
	}
	return &Pong{SentUnixMs: *w.SentUnixMs}, nil
}
