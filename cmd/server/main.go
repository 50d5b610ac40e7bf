package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/api"
	"github.com/suntank/hungryHatchling-sub000/internal/config"
	"github.com/suntank/hungryHatchling-sub000/internal/discovery"
	"github.com/suntank/hungryHatchling-sub000/internal/eventbus"
	"github.com/suntank/hungryHatchling-sub000/internal/logging"
	"github.com/suntank/hungryHatchling-sub000/internal/network"
	"github.com/suntank/hungryHatchling-sub000/internal/observability"
	"github.com/suntank/hungryHatchling-sub000/internal/replay"
	"github.com/suntank/hungryHatchling-sub000/internal/vec"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🎮 Запуск Hungry Hatchling Host...")

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("❌ Ошибка чтения конфигурации: %v", err)
		log.Fatalf("❌ Ошибка чтения конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = &config.Config{} // дефолты и ENV
	}

	serverName := cfg.Server.GetName()
	gamePort := cfg.Server.GetGamePort()
	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	maxPlayers := cfg.Server.GetMaxPlayers()

	logging.Info("📡 Конфигурация: имя «%s», TCP=%d, discovery UDP=%d, REST=%s, игроков до %d",
		serverName, gamePort, cfg.Discovery.GetPort(), restPort, maxPlayers)

	// === TELEMETRY ===
	ctx := context.Background()
	shutdownTelemetry, err := observability.InitTelemetry(ctx, "hatchling-host")
	if err != nil {
		// Без коллектора трейсы просто не уходят, игра работает
		logging.Warn("OpenTelemetry не инициализирован: %v", err)
		shutdownTelemetry = nil
	}

	// === EVENT BUS ===
	var bus eventbus.EventBus
	var jsBus *eventbus.JetStreamBus
	if url := cfg.EventBus.GetURL(); url != "" {
		jsBus, err = eventbus.NewJetStreamBus(url, cfg.EventBus.GetStream(), cfg.EventBus.GetRetention())
		if err != nil {
			logging.Error("❌ NATS недоступен (%v), переключаемся на in-memory шину", err)
			jsBus = nil
		}
	}
	if jsBus != nil {
		bus = jsBus
	} else {
		bus = eventbus.NewMemoryBus(1024)
	}
	eventbus.Init(bus)

	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Журнал событий не запущен: %v", err)
	}
	unregisterBusMetrics := eventbus.RegisterBusMetrics(bus)

	// === ЖУРНАЛ ПОВТОРОВ ===
	var recorder *replay.Recorder
	if cfg.Replay.Enabled {
		logging.Debug("Открытие журнала повторов...")
		recorder, err = replay.NewRecorder(cfg.Replay.GetPath())
		if err != nil {
			logging.Error("❌ Журнал повторов не открылся: %v", err)
			log.Fatalf("❌ Журнал повторов не открылся: %v", err)
		}
	}

	// === СЕТЕВОЙ ХОСТ ===
	logging.Debug("Запуск сетевого слоя...")
	netManager := network.NewManager(network.Config{GamePort: gamePort})
	gameAddr, err := netManager.StartHost(maxPlayers)
	if err != nil {
		logging.Error("❌ Ошибка запуска хоста: %v", err)
		log.Fatalf("❌ Ошибка запуска хоста: %v", err)
	}

	// === DISCOVERY ===
	announcer := discovery.NewBroadcaster(discovery.BroadcasterConfig{
		ServerName:    serverName,
		GamePort:      gamePort,
		DiscoveryPort: cfg.Discovery.GetPort(),
		BroadcastAddr: cfg.Discovery.GetBroadcastAddr(),
		Interval:      cfg.Discovery.GetHeartbeat(),
	})
	if err := announcer.Start(); err != nil {
		// Прямое подключение по адресу всё ещё работает
		logging.Error("❌ Анонсы не запущены: %v", err)
	}

	// === REST API ===
	restServer := api.NewRestServer(api.Config{
		Port:     restPort,
		Name:     serverName,
		Network:  netManager,
		Recorder: recorder,
	})
	go func() {
		if err := restServer.Start(); err != nil {
			logging.Error("❌ REST API: %v", err)
		}
	}()

	// === ИГРОВОЙ ЦИКЛ ===
	sess := newSession(sessionConfig{
		net:       netManager,
		recorder:  recorder,
		grid:      vec.Grid{W: cfg.Sync.GetGridWidth(), H: cfg.Sync.GetGridHeight()},
		tickRate:  cfg.Sync.GetTickRate(),
		moveEvery: defaultMoveEvery,
	})
	sessionCtx, cancelSession := context.WithCancel(ctx)
	go sess.run(sessionCtx)

	logging.Info("✅ Все сервисы запущены, хост ждёт игроков")
	logging.Info("   🎮 Игровой TCP: %s", gameAddr)
	logging.Info("   📡 Discovery: UDP порт %d, анонс каждые %v", cfg.Discovery.GetPort(), cfg.Discovery.GetHeartbeat())
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)
	logging.Info("💡 Примеры:")
	logging.Info("   curl http://localhost%s/api/session", restPort)
	logging.Info("   curl http://localhost%s/api/replay/sessions", restPort)

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	// === GRACEFUL SHUTDOWN ===
	logging.Debug("Остановка игрового цикла...")
	cancelSession()
	sess.wait()

	logging.Debug("Остановка discovery и сетевого слоя...")
	announcer.Stop()
	netManager.Shutdown()

	logging.Debug("Остановка REST API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := restServer.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			logging.Error("❌ Ошибка закрытия журнала повторов: %v", err)
		}
	}

	unregisterBusMetrics()
	if jsBus != nil {
		jsBus.Close()
	}
	if shutdownTelemetry != nil {
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logging.Error("❌ Ошибка остановки телеметрии: %v", err)
		}
	}

	logging.Info("👋 Хост остановлен")
}
