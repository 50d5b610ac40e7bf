package protocol

import (
	"encoding/json"

	"github.com/suntank/hungryHatchling-sub000/internal/vec"
)

// MsgType — строковый дискриминатор сообщения на проводе
type MsgType string

const (
	// Клиент -> хост
	MsgInput MsgType = "input"
	MsgReady MsgType = "ready"

	// Хост -> клиент
	MsgWorldSnapshot  MsgType = "world_snapshot"
	MsgGameStart      MsgType = "game_start"
	MsgGameEnd        MsgType = "game_end"
	MsgPlayerAssigned MsgType = "player_assigned"
	MsgLobbyState     MsgType = "lobby_state"
	MsgReturnToLobby  MsgType = "return_to_lobby"

	// Обе стороны
	MsgPing MsgType = "ping"
	MsgPong MsgType = "pong"
)

// WinnerDraw — значение winner_id при ничьей
const WinnerDraw = -1

// Message — закрытое множество сообщений протокола.
// Каждый вариант несёт только свои поля; дискриминатор
// добавляется и снимается кодеком.
type Message interface {
	Kind() MsgType
}

// ===== Клиент -> хост =====

// Input — смена направления сущности игрока
type Input struct {
	EntityID  int       `json:"entity_id"`
	Direction Direction `json:"direction"`
}

func (Input) Kind() MsgType { return MsgInput }

// Ready — подтверждение готовности в лобби
type Ready struct{}

func (Ready) Kind() MsgType { return MsgReady }

// ===== Хост -> клиент =====

// GameStart объявляет начало раунда
type GameStart struct {
	ParticipantCount int             `json:"participant_count"`
	Settings         json.RawMessage `json:"settings,omitempty"`
	Walls            []vec.Vec2      `json:"walls,omitempty"`
}

func (GameStart) Kind() MsgType { return MsgGameStart }

// GameEnd объявляет конец раунда. WinnerID равен WinnerDraw при ничьей.
type GameEnd struct {
	WinnerID int   `json:"winner_id"`
	Scores   []int `json:"scores,omitempty"`
}

func (GameEnd) Kind() MsgType { return MsgGameEnd }

// PlayerAssigned сообщает клиенту его entity id
type PlayerAssigned struct {
	EntityID int `json:"entity_id"`
}

func (PlayerAssigned) Kind() MsgType { return MsgPlayerAssigned }

// LobbyState — текущее состояние лобби
type LobbyState struct {
	Settings       json.RawMessage `json:"settings,omitempty"`
	ConnectedCount int             `json:"connected_count"`
}

func (LobbyState) Kind() MsgType { return MsgLobbyState }

// ReturnToLobby возвращает клиентов в лобби после раунда
type ReturnToLobby struct{}

func (ReturnToLobby) Kind() MsgType { return MsgReturnToLobby }

// ===== Обе стороны =====

// Ping — проба живости; отвечающая сторона возвращает Pong
// с тем же sent_unix_ms
type Ping struct {
	SentUnixMs int64 `json:"sent_unix_ms"`
}

func (Ping) Kind() MsgType { return MsgPing }

// Pong — ответ на Ping
type Pong struct {
	SentUnixMs int64 `json:"sent_unix_ms"`
}

func (Pong) Kind() MsgType { return MsgPong }
