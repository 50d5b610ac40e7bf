package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/api"
	"github.com/suntank/hungryHatchling-sub000/internal/config"
	"github.com/suntank/hungryHatchling-sub000/internal/discovery"
	"github.com/suntank/hungryHatchling-sub000/internal/interp"
	"github.com/suntank/hungryHatchling-sub000/internal/logging"
	"github.com/suntank/hungryHatchling-sub000/internal/network"
	"github.com/suntank/hungryHatchling-sub000/internal/protocol"
	"github.com/suntank/hungryHatchling-sub000/internal/vec"
)

const (
	// frameInterval — период опроса сглаженных позиций, замена кадра рендера
	frameInterval = 100 * time.Millisecond
	// turnEvery — период случайных поворотов; клиент без интерфейса,
	// блуждание имитирует игрока
	turnEvery = 2 * time.Second
	// fallbackMoveInterval применяется, пока хост не прислал настройки раунда
	fallbackMoveInterval = 16
)

// client — состояние клиента: сетевой слой, синхронизатор и текущий
// раунд. Синхронизатор не потокобезопасен, поэтому mu закрывает его
// и от REST горутины.
type client struct {
	net  *network.Manager
	mu   sync.Mutex
	opts interp.Options
	sync *interp.Synchronizer
	rng  *rand.Rand

	entityID     int
	moveInterval int
	playing      bool
	lastReport   time.Time
	lastTurn     time.Time
}

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации")
	hostAddr := flag.String("host", "", "адрес хоста host:port (минуя discovery)")
	restPort := flag.Int("rest", 8089, "порт диагностического REST API, 0 отключает")
	flag.Parse()

	if err := logging.InitDefaultLogger("client"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🎮 Запуск Hungry Hatchling Client...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("❌ Ошибка чтения конфигурации: %v", err)
		log.Fatalf("❌ Ошибка чтения конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	c := &client{
		net: network.NewManager(network.Config{}),
		opts: interp.Options{
			BufferDelay:       cfg.Sync.GetBufferDelay(),
			BufferCapacity:    cfg.Sync.GetBufferCapacity(),
			ExtrapolationStop: cfg.Sync.GetExtrapolationStop(),
			ExtrapolationCap:  cfg.Sync.GetExtrapolationCap(),
			PredictionCap:     cfg.Sync.GetPredictionMoveCap(),
			TickRate:          float64(cfg.Sync.GetTickRate()),
			StaleAfter:        cfg.Sync.GetStaleAfter(),
			Grid:              vec.Grid{W: cfg.Sync.GetGridWidth(), H: cfg.Sync.GetGridHeight()},
		},
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		entityID:     -1,
		moveInterval: fallbackMoveInterval,
	}
	c.sync = interp.NewSynchronizer(c.opts)

	listener := discovery.NewListener(discovery.ListenerConfig{
		Port: cfg.Discovery.GetPort(),
		TTL:  cfg.Discovery.GetServerTTL(),
	})
	if err := listener.Start(); err != nil {
		if *hostAddr == "" {
			logging.Error("❌ Discovery не запущен: %v", err)
			log.Fatalf("❌ Discovery не запущен: %v", err)
		}
		// Прямое подключение задано, без discovery можно жить
		logging.Warn("Discovery не запущен: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	addr := *hostAddr
	if addr == "" {
		logging.Info("🔍 Поиск серверов в локальной сети (UDP %d)...", cfg.Discovery.GetPort())
		seek := time.NewTicker(500 * time.Millisecond)
	seeking:
		for {
			select {
			case <-sigCh:
				seek.Stop()
				listener.Stop()
				logging.Info("👋 Остановлено до подключения")
				return
			case <-seek.C:
				if servers := listener.Servers(); len(servers) > 0 {
					srv := servers[0]
					logging.Info("🔍 Найден сервер «%s» (%s)", srv.Name, srv.Addr())
					addr = srv.Addr()
					break seeking
				}
			}
		}
		seek.Stop()
	}

	if err := c.net.ConnectAddr(addr); err != nil {
		listener.Stop()
		logging.Error("❌ Подключение не удалось: %v", err)
		log.Fatalf("❌ Подключение не удалось: %v", err)
	}

	var restServer *api.RestServer
	if *restPort > 0 {
		restServer = api.NewRestServer(api.Config{
			Port:      fmt.Sprintf(":%d", *restPort),
			Name:      "Hatchling Client",
			Network:   c.net,
			Discovery: listener,
			SyncStats: c.stats,
		})
		go func() {
			if err := restServer.Start(); err != nil {
				logging.Error("❌ REST API: %v", err)
			}
		}()
	}

	logging.Info("✅ Клиент подключён к %s", addr)
	if *restPort > 0 {
		logging.Info("   🌐 REST API: http://localhost:%d", *restPort)
		logging.Info("💡 curl http://localhost:%d/api/sync/stats", *restPort)
	}

	frames := time.NewTicker(frameInterval)
	defer frames.Stop()

run:
	for {
		select {
		case sig := <-sigCh:
			logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
			break run
		case <-frames.C:
			if !c.step() {
				break run
			}
		}
	}

	c.net.Shutdown()
	listener.Stop()
	if restServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := restServer.Stop(shutdownCtx); err != nil {
			logging.Error("❌ Ошибка остановки REST API: %v", err)
		}
		cancel()
	}
	logging.Info("👋 Клиент остановлен")
}

// step разбирает входящие события и сообщения одного кадра.
// Возвращает false, когда соединение с хостом потеряно.
func (c *client) step() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ev := range c.net.Events() {
		if lost, ok := ev.(network.EventConnectionLost); ok {
			logging.Error("❌ Соединение с хостом потеряно: %s", lost.Reason)
			return false
		}
	}

	for _, in := range c.net.GetMessages() {
		c.handleMessage(in.Msg)
	}

	if c.playing && c.entityID >= 0 {
		c.render()
		c.wander()
	}
	return true
}

func (c *client) handleMessage(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.PlayerAssigned:
		c.entityID = m.EntityID
		logging.Info("✅ Получен слот: entity %d, подтверждаем готовность", m.EntityID)
		if err := c.net.SendToHost(&protocol.Ready{}); err != nil {
			logging.Warn("ready не отправлен: %v", err)
		}
	case *protocol.LobbyState:
		logging.Debug("Лобби: подключено %d", m.ConnectedCount)
	case *protocol.GameStart:
		c.applySettings(m.Settings)
		// Новый раунд начинается с чистого буфера и свежей геометрии
		c.sync = interp.NewSynchronizer(c.opts)
		c.playing = true
		c.lastReport = time.Time{}
		logging.Info("🎮 Раунд начался: участников %d, поле %dx%d, ход раз в %d тиков",
			m.ParticipantCount, c.opts.Grid.W, c.opts.Grid.H, c.moveInterval)
	case *protocol.WorldSnapshot:
		c.sync.Ingest(m)
	case *protocol.GameEnd:
		c.playing = false
		switch {
		case m.WinnerID == protocol.WinnerDraw:
			logging.Info("🏁 Раунд завершён: ничья")
		case m.WinnerID == c.entityID:
			logging.Info("🏁 Раунд завершён: победа!")
		default:
			logging.Info("🏁 Раунд завершён: победила сущность %d", m.WinnerID)
		}
	case *protocol.ReturnToLobby:
		c.playing = false
		logging.Info("⌛ Возврат в лобби, подтверждаем готовность")
		if err := c.net.SendToHost(&protocol.Ready{}); err != nil {
			logging.Warn("ready не отправлен: %v", err)
		}
	default:
		logging.Debug("Неожиданное сообщение %s", msg.Kind())
	}
}

// applySettings читает параметры раунда из game_start. Отсутствующие
// или битые настройки оставляют значения из конфигурации.
func (c *client) applySettings(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var s struct {
		GridWidth         int `json:"grid_width"`
		GridHeight        int `json:"grid_height"`
		TickRate          int `json:"tick_rate"`
		MoveIntervalTicks int `json:"move_interval_ticks"`
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		logging.Warn("настройки раунда не разобраны: %v", err)
		return
	}
	if s.GridWidth > 0 && s.GridHeight > 0 {
		c.opts.Grid = vec.Grid{W: s.GridWidth, H: s.GridHeight}
	}
	if s.TickRate > 0 {
		c.opts.TickRate = float64(s.TickRate)
	}
	if s.MoveIntervalTicks > 0 {
		c.moveInterval = s.MoveIntervalTicks
	}
}

// render опрашивает сглаженные позиции своей сущности. Сам опрос и есть
// кадр; в лог уходит не больше одной строки в секунду.
func (c *client) render() {
	positions := c.sync.PositionsFor(c.entityID, c.moveInterval)
	if time.Since(c.lastReport) < time.Second {
		return
	}
	c.lastReport = time.Now()

	stale := ""
	if c.sync.IsStale(0) {
		stale = " ⌛ данные устарели"
	}
	if len(positions) == 0 {
		logging.Info("📈 entity %d: позиций ещё нет%s", c.entityID, stale)
		return
	}
	st := c.sync.Stats()
	logging.Info("📈 entity %d: голова (%.2f, %.2f), длина %d, буфер %d%s",
		c.entityID, positions[0].X, positions[0].Y, len(positions), st.BufferLen, stale)
}

// wander раз в turnEvery пробует случайный поворот. Выпавшее текущее
// или обратное направление пропускает окно.
func (c *client) wander() {
	if time.Since(c.lastTurn) < turnEvery {
		return
	}
	c.lastTurn = time.Now()

	dirs := []protocol.Direction{protocol.DirUp, protocol.DirDown, protocol.DirLeft, protocol.DirRight}
	d := dirs[c.rng.Intn(len(dirs))]
	facing := c.sync.FacingFor(c.entityID)
	if d == facing || d == facing.Opposite() {
		return
	}
	if err := c.net.SendToHost(&protocol.Input{EntityID: c.entityID, Direction: d}); err != nil {
		logging.Warn("input не отправлен: %v", err)
	}
}

// stats отдаёт счётчики синхронизатора REST серверу.
func (c *client) stats() interp.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sync.Stats()
}
