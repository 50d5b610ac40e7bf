package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/eventbus"
	"github.com/suntank/hungryHatchling-sub000/internal/logging"
	"github.com/suntank/hungryHatchling-sub000/internal/network"
	"github.com/suntank/hungryHatchling-sub000/internal/protocol"
	"github.com/suntank/hungryHatchling-sub000/internal/replay"
	"github.com/suntank/hungryHatchling-sub000/internal/vec"
)

// Параметры игрового цикла. Сущности двигаются раз в defaultMoveEvery
// тиков, остальные тики уходят на приём ввода и событий.
const (
	defaultMoveEvery = 16
	startLength      = 3
	itemCount        = 3
	roundDuration    = 2 * time.Minute
	spawnAttempts    = 64

	itemKindApple = "apple"
)

// seat — состояние одного участника с точки зрения хоста.
// Слот сетевого соединения совпадает с entity id.
type seat struct {
	slot    int
	ready   bool
	facing  protocol.Direction
	pending protocol.Direction
	body    []vec.Vec2
	active  bool
	grow    int
}

type sessionConfig struct {
	net       *network.Manager
	recorder  *replay.Recorder
	grid      vec.Grid
	tickRate  int
	moveEvery int
}

// session — авторитетный игровой цикл хоста: лобби, раунды, движение
// сущностей и рассылка снапшотов. Все поля трогает только горутина run.
type session struct {
	cfg sessionConfig
	rng *rand.Rand

	seats map[int]*seat // подключённые участники, ключ — слот
	round []*seat       // состав идущего раунда; выбывшие остаются с active=false
	items []protocol.LooseItem

	playing   bool
	tick      uint64
	roundNum  int
	roundEnds time.Time

	done chan struct{}
}

// roundSettings уходит клиентам внутри game_start, чтобы их
// синхронизаторы знали геометрию поля и частоту движения.
type roundSettings struct {
	GridWidth         int `json:"grid_width"`
	GridHeight        int `json:"grid_height"`
	TickRate          int `json:"tick_rate"`
	MoveIntervalTicks int `json:"move_interval_ticks"`
}

func newSession(cfg sessionConfig) *session {
	if cfg.tickRate <= 0 {
		cfg.tickRate = 60
	}
	if cfg.moveEvery <= 0 {
		cfg.moveEvery = defaultMoveEvery
	}
	s := &session{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		seats: make(map[int]*seat),
		done:  make(chan struct{}),
	}
	// Хост занимает слот 0 и всегда готов. Ввода у него нет,
	// его змейка едет по прямой.
	s.seats[network.HostSlot] = &seat{slot: network.HostSlot, ready: true, facing: protocol.DirRight}
	return s
}

// run крутит цикл с фиксированной частотой тиков до отмены контекста.
func (s *session) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.tickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.playing {
				s.endRound("остановка хоста")
			}
			return
		case <-ticker.C:
			s.handleEvents()
			s.handleMessages()
			if s.playing {
				s.stepRound()
			} else {
				s.maybeStart()
			}
		}
	}
}

// wait блокируется до полной остановки цикла.
func (s *session) wait() { <-s.done }

func (s *session) handleEvents() {
	for _, ev := range s.cfg.net.Events() {
		switch e := ev.(type) {
		case network.EventPlayerJoined:
			s.seats[e.Slot] = &seat{slot: e.Slot, facing: protocol.DirRight}
			if err := s.cfg.net.Send(e.Slot, &protocol.PlayerAssigned{EntityID: e.Slot}); err != nil {
				logging.Warn("player_assigned слоту %d не доставлен: %v", e.Slot, err)
			}
			logging.Info("🔗 Игрок подключился: слот %d (%s)", e.Slot, e.Addr)
			s.broadcastLobby()
		case network.EventPlayerLeft:
			delete(s.seats, e.Slot)
			if st := s.roundSeat(e.Slot); st != nil {
				st.active = false
			}
			logging.Info("🔗 Игрок отключился: слот %d", e.Slot)
			s.broadcastLobby()
		}
	}
}

func (s *session) handleMessages() {
	for _, in := range s.cfg.net.GetMessages() {
		switch msg := in.Msg.(type) {
		case *protocol.Ready:
			if st, ok := s.seats[in.Slot]; ok && !st.ready {
				st.ready = true
				logging.Debug("Слот %d готов", in.Slot)
			}
		case *protocol.Input:
			s.applyInput(in.Slot, msg)
		default:
			logging.Debug("Неожиданное сообщение %s от слота %d", in.Msg.Kind(), in.Slot)
		}
	}
}

// applyInput принимает смену направления. Слот управляет только своей
// сущностью; разворот на 180° отбрасывается при движении.
func (s *session) applyInput(slot int, msg *protocol.Input) {
	if !s.playing {
		return
	}
	if msg.EntityID != slot {
		logging.Warn("Слот %d прислал ввод за сущность %d, игнорируем", slot, msg.EntityID)
		return
	}
	st := s.roundSeat(slot)
	if st == nil || !st.active {
		return
	}
	st.pending = msg.Direction
}

func (s *session) roundSeat(slot int) *seat {
	for _, st := range s.round {
		if st.slot == slot {
			return st
		}
	}
	return nil
}

// maybeStart запускает раунд, когда подключён хотя бы один клиент
// и все клиенты подтвердили готовность.
func (s *session) maybeStart() {
	clients := 0
	for _, st := range s.seats {
		if st.slot == network.HostSlot {
			continue
		}
		if !st.ready {
			return
		}
		clients++
	}
	if clients == 0 {
		return
	}
	s.startRound()
}

// startRound фиксирует состав раунда. Подключившиеся позже ждут
// в лобби до следующего раунда.
func (s *session) startRound() {
	s.roundNum++
	s.playing = true
	s.tick = 0
	s.roundEnds = time.Now().Add(roundDuration)

	slots := make([]int, 0, len(s.seats))
	for slot := range s.seats {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	s.round = make([]*seat, 0, len(slots))
	for i, slot := range slots {
		st := s.seats[slot]
		st.active = true
		st.grow = 0
		st.facing = protocol.DirRight
		st.pending = ""
		st.body = s.spawnBody(i, len(slots))
		s.round = append(s.round, st)
	}

	s.items = nil
	for i := 0; i < itemCount; i++ {
		s.spawnItem()
	}

	settings, _ := json.Marshal(roundSettings{
		GridWidth:         s.cfg.grid.W,
		GridHeight:        s.cfg.grid.H,
		TickRate:          s.cfg.tickRate,
		MoveIntervalTicks: s.cfg.moveEvery,
	})
	if err := s.cfg.net.Broadcast(&protocol.GameStart{
		ParticipantCount: len(s.round),
		Settings:         settings,
	}); err != nil {
		logging.Warn("game_start разослан с ошибкой: %v", err)
	}

	if s.cfg.recorder != nil {
		id, err := s.cfg.recorder.BeginSession(fmt.Sprintf("round-%03d", s.roundNum))
		if err != nil {
			logging.Error("❌ Запись раунда не началась: %v", err)
		} else {
			logging.Debug("Запись раунда: сессия %s", id)
		}
	}

	eventbus.Emit("session", eventbus.EventSessionStarted, 5, map[string]interface{}{
		"round":        s.roundNum,
		"participants": len(s.round),
	})
	logging.Info("🏁 Раунд %d начался: участников %d, поле %dx%d",
		s.roundNum, len(s.round), s.cfg.grid.W, s.cfg.grid.H)
}

// spawnBody размещает змейку длиной startLength головой вправо.
// Ряды распределяются равномерно, чтобы старты не пересекались.
func (s *session) spawnBody(idx, total int) []vec.Vec2 {
	head := vec.Vec2{
		X: s.cfg.grid.W / 2,
		Y: (idx + 1) * s.cfg.grid.H / (total + 1),
	}
	body := make([]vec.Vec2, 0, startLength)
	for i := 0; i < startLength; i++ {
		body = append(body, s.cfg.grid.Wrap(vec.Vec2{X: head.X - i, Y: head.Y}))
	}
	return body
}

// spawnItem подбирает свободную клетку случайными пробами. После
// spawnAttempts неудач предмет не добавляется: на забитом поле он
// появится после следующего сбора.
func (s *session) spawnItem() {
	for attempt := 0; attempt < spawnAttempts; attempt++ {
		cell := vec.Vec2{X: s.rng.Intn(s.cfg.grid.W), Y: s.rng.Intn(s.cfg.grid.H)}
		if s.occupied(cell) {
			continue
		}
		s.items = append(s.items, protocol.LooseItem{Position: cell, ItemKind: itemKindApple})
		return
	}
}

func (s *session) occupied(cell vec.Vec2) bool {
	for _, st := range s.round {
		for _, p := range st.body {
			if p == cell {
				return true
			}
		}
	}
	for _, it := range s.items {
		if it.Position == cell {
			return true
		}
	}
	return false
}

func (s *session) stepRound() {
	s.tick++

	if s.tick%uint64(s.cfg.moveEvery) == 0 {
		s.moveEntities()
		s.pickupItems()

		snap := s.buildSnapshot()
		if err := s.cfg.net.Broadcast(snap); err != nil {
			logging.Warn("снапшот тика %d разослан с ошибкой: %v", snap.Tick, err)
		}
		if s.cfg.recorder != nil {
			if err := s.cfg.recorder.Record(snap); err != nil {
				logging.Error("❌ Запись снапшота: %v", err)
			}
		}
	}

	if time.Now().After(s.roundEnds) {
		s.endRound("время вышло")
		return
	}
	if s.clientsInRound() == 0 {
		s.endRound("все клиенты покинули раунд")
	}
}

// moveEntities продвигает живые сущности на одну клетку тора.
func (s *session) moveEntities() {
	for _, st := range s.round {
		if !st.active || len(st.body) == 0 {
			continue
		}
		if st.pending.Valid() && st.pending != st.facing.Opposite() {
			st.facing = st.pending
		}
		st.pending = ""

		head := s.cfg.grid.Step(st.body[0], st.facing.Delta())
		st.body = append([]vec.Vec2{head}, st.body...)
		if st.grow > 0 {
			st.grow--
		} else {
			st.body = st.body[:len(st.body)-1]
		}
	}
}

func (s *session) pickupItems() {
	for _, st := range s.round {
		if !st.active || len(st.body) == 0 {
			continue
		}
		head := st.body[0]
		for i := range s.items {
			if s.items[i].Position == head {
				st.grow++
				s.items = append(s.items[:i], s.items[i+1:]...)
				s.spawnItem()
				break
			}
		}
	}
}

// buildSnapshot собирает авторитетный снимок мира. Выбывшие сущности
// остаются в нём с active=false, чтобы клиенты убрали их с экрана,
// а не застыли на последней позиции.
func (s *session) buildSnapshot() *protocol.WorldSnapshot {
	snap := &protocol.WorldSnapshot{
		Tick:     s.tick,
		Entities: make([]protocol.EntitySnapshot, 0, len(s.round)),
	}
	for _, st := range s.round {
		positions := make([]vec.Vec2, len(st.body))
		copy(positions, st.body)
		snap.Entities = append(snap.Entities, protocol.EntitySnapshot{
			EntityID:  st.slot,
			Positions: positions,
			Facing:    st.facing,
			Active:    st.active,
			Meta:      protocol.DefaultMeta,
		})
	}
	if len(s.items) > 0 {
		snap.LooseItems = make([]protocol.LooseItem, len(s.items))
		copy(snap.LooseItems, s.items)
	}
	return snap
}

func (s *session) clientsInRound() int {
	n := 0
	for _, st := range s.round {
		if st.slot != network.HostSlot && st.active {
			n++
		}
	}
	return n
}

func (s *session) endRound(reason string) {
	winner, scores := s.tallyRound()

	if err := s.cfg.net.Broadcast(&protocol.GameEnd{WinnerID: winner, Scores: scores}); err != nil {
		logging.Warn("game_end разослан с ошибкой: %v", err)
	}
	if err := s.cfg.net.Broadcast(&protocol.ReturnToLobby{}); err != nil {
		logging.Warn("return_to_lobby разослан с ошибкой: %v", err)
	}

	if s.cfg.recorder != nil {
		if err := s.cfg.recorder.EndSession(); err != nil {
			logging.Error("❌ Завершение записи раунда: %v", err)
		}
	}

	eventbus.Emit("session", eventbus.EventSessionEnded, 5, map[string]interface{}{
		"round":  s.roundNum,
		"winner": winner,
		"ticks":  s.tick,
		"reason": reason,
	})
	if winner == protocol.WinnerDraw {
		logging.Info("🏁 Раунд %d завершён (%s): ничья", s.roundNum, reason)
	} else {
		logging.Info("🏁 Раунд %d завершён (%s): победила сущность %d", s.roundNum, reason, winner)
	}

	s.playing = false
	s.round = nil
	s.items = nil

	// Следующий раунд требует нового Ready от каждого клиента
	for _, st := range s.seats {
		st.ready = st.slot == network.HostSlot
	}
}

// tallyRound выбирает победителя по длине тела среди оставшихся.
// Очки идут в срез, индексированный entity id; при равенстве лучших
// длин объявляется ничья.
func (s *session) tallyRound() (int, []int) {
	maxSlot := 0
	for _, st := range s.round {
		if st.slot > maxSlot {
			maxSlot = st.slot
		}
	}
	scores := make([]int, maxSlot+1)

	winner := protocol.WinnerDraw
	best := -1
	tie := false
	for _, st := range s.round {
		scores[st.slot] = len(st.body)
		if !st.active {
			continue
		}
		switch {
		case len(st.body) > best:
			best = len(st.body)
			winner = st.slot
			tie = false
		case len(st.body) == best:
			tie = true
		}
	}
	if tie {
		winner = protocol.WinnerDraw
	}
	return winner, scores
}

func (s *session) broadcastLobby() {
	if err := s.cfg.net.Broadcast(&protocol.LobbyState{ConnectedCount: len(s.seats)}); err != nil {
		logging.Warn("lobby_state разослан с ошибкой: %v", err)
	}
}
