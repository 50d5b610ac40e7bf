package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/suntank/hungryHatchling-sub000/internal/discovery"
	"github.com/suntank/hungryHatchling-sub000/internal/interp"
	"github.com/suntank/hungryHatchling-sub000/internal/logging"
	"github.com/suntank/hungryHatchling-sub000/internal/middleware"
	"github.com/suntank/hungryHatchling-sub000/internal/network"
	"github.com/suntank/hungryHatchling-sub000/internal/replay"
)

// serverVersion отдаётся в /api/server
const serverVersion = "v0.3.1"

// RestServer — диагностический REST API поверх игровой сессии.
// Отдаёт состояние сетевого слоя, таблицу найденных серверов,
// статистику сглаживания и журнал повторов. Игровое состояние
// обработчики не трогают; единственная мутация — пороги логирования.
type RestServer struct {
	router  *gin.Engine
	httpSrv *http.Server
	port    string
	name    string
	metrics *ProcStats

	network   *network.Manager
	listener  *discovery.Listener
	recorder  *replay.Recorder
	syncStats func() interp.Stats
}

// Config содержит зависимости диагностического API.
// Любая зависимость может быть nil: соответствующие эндпоинты
// будут отвечать 503.
type Config struct {
	Port      string              // порт для запуска сервера, по умолчанию :8080
	Name      string              // имя инстанса для /api/server
	Network   *network.Manager    // сетевой слой (хост или клиент)
	Discovery *discovery.Listener // таблица найденных серверов
	Recorder  *replay.Recorder    // журнал повторов
	SyncStats func() interp.Stats // статистика сглаживания (клиент)
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8080"
	}
	if config.Name == "" {
		config.Name = "Hungry Hatchling"
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	loggerMw := middleware.NewRequestLogger()
	router.Use(loggerMw.Handler())

	otelRouter := otelgin.Middleware("diag_api")
	router.Use(otelRouter)

	promMw := middleware.NewPrometheusMiddleware("diag_api")
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router:    router,
		port:      config.Port,
		name:      config.Name,
		metrics:   NewProcStats(),
		network:   config.Network,
		listener:  config.Discovery,
		recorder:  config.Recorder,
		syncStats: config.SyncStats,
	}

	// Настраиваем маршруты
	server.setupRoutes()

	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Группа API
	api := rs.router.Group("/api")
	{
		api.GET("/server", rs.handleServerInfo)
		api.GET("/stats", rs.handleStats)
		api.GET("/session", rs.handleSession)
		api.GET("/sync/stats", rs.handleSyncStats)
		api.GET("/discovery/servers", rs.handleDiscoveredServers)

		replays := api.Group("/replay")
		{
			replays.GET("/sessions", rs.handleReplaySessions)
			replays.GET("/sessions/:id", rs.handleReplaySession)
			replays.GET("/sessions/:id/ticks", rs.handleReplayTicks)
		}

		logs := api.Group("/logs")
		{
			logs.GET("/components", rs.handleLogComponents)
			logs.PUT("/components/:component", rs.handleSetLogLevels)
		}
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	info := map[string]interface{}{
		"version":     serverVersion,
		"name":        rs.name,
		"status":      "running",
		"uptime":      rs.metrics.Uptime(),
		"memory_mb":   fmt.Sprintf("%.1f", rs.metrics.MemoryMB()),
		"cpu_percent": fmt.Sprintf("%.1f", rs.metrics.CPUPercent()),
	}
	if rs.network != nil {
		info["role"] = rs.network.Role().String()
		info["players"] = rs.network.ConnectedPlayers()
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data:    info,
	})
}

// handleStats возвращает сводную статистику процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := make(map[string]interface{})

	// Сетевой слой
	if rs.network != nil {
		stats["network"] = map[string]interface{}{
			"role":      rs.network.Role().String(),
			"connected": rs.network.IsConnected(),
			"players":   rs.network.ConnectedPlayers(),
			"peers":     rs.peerSummaries(),
		}
	}

	// Сглаживание (только на клиенте)
	if rs.syncStats != nil {
		stats["sync"] = syncStatsView(rs.syncStats())
	}

	// Метрики сервера
	stats["server"] = map[string]interface{}{
		"uptime":      rs.metrics.Uptime(),
		"memory_mb":   fmt.Sprintf("%.2f", rs.metrics.MemoryMB()),
		"cpu_percent": fmt.Sprintf("%.2f", rs.metrics.CPUPercent()),
		"system_cpu":  fmt.Sprintf("%.2f", rs.metrics.SystemCPUPercent()),
		"server_time": time.Now().Unix(),
	}

	// Детальная статистика памяти
	stats["memory_details"] = rs.metrics.MemoryDetails()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// handleSession возвращает состояние сетевой сессии: роль, число игроков
// и замеры RTT по каждому живому соединению
func (rs *RestServer) handleSession(c *gin.Context) {
	if rs.network == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Сетевой слой не запущен",
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Состояние сессии",
		Data: map[string]interface{}{
			"role":      rs.network.Role().String(),
			"connected": rs.network.IsConnected(),
			"players":   rs.network.ConnectedPlayers(),
			"peers":     rs.peerSummaries(),
		},
	})
}

// handleSyncStats возвращает счётчики интерполяции/экстраполяции/предсказания
func (rs *RestServer) handleSyncStats(c *gin.Context) {
	if rs.syncStats == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Сглаживание не активно (не клиент)",
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика сглаживания",
		Data:    syncStatsView(rs.syncStats()),
	})
}

// handleDiscoveredServers возвращает таблицу найденных в сети серверов
func (rs *RestServer) handleDiscoveredServers(c *gin.Context) {
	if rs.listener == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Поиск серверов не запущен",
		})
		return
	}

	servers := rs.listener.Servers()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Найденные серверы",
		Data: map[string]interface{}{
			"servers": servers,
			"count":   len(servers),
		},
	})
}

// handleReplaySessions возвращает список записанных сессий
func (rs *RestServer) handleReplaySessions(c *gin.Context) {
	if rs.recorder == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Журнал повторов не подключён",
		})
		return
	}

	sessions, err := rs.recorder.Sessions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка чтения журнала",
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Записанные сессии",
		Data: map[string]interface{}{
			"sessions": sessions,
			"count":    len(sessions),
		},
	})
}

// handleReplaySession возвращает метаданные одной сессии
func (rs *RestServer) handleReplaySession(c *gin.Context) {
	if rs.recorder == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Журнал повторов не подключён",
		})
		return
	}

	meta, err := rs.recorder.Session(c.Param("id"))
	if errors.Is(err, replay.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Сессия не найдена",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка чтения журнала",
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Метаданные сессии",
		Data:    meta,
	})
}

// handleReplayTicks возвращает снапшоты сессии в порядке тиков
func (rs *RestServer) handleReplayTicks(c *gin.Context) {
	if rs.recorder == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Журнал повторов не подключён",
		})
		return
	}

	// Параметры пагинации
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	if offset < 0 {
		offset = 0
	}
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	snaps, err := rs.recorder.Snapshots(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка чтения журнала",
		})
		return
	}

	total := len(snaps)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Снапшоты сессии",
		Data: map[string]interface{}{
			"ticks":  snaps[offset:end],
			"offset": offset,
			"limit":  limit,
			"total":  total,
		},
	})
}

// handleLogComponents возвращает активные компоненты логирования с порогами
func (rs *RestServer) handleLogComponents(c *gin.Context) {
	manager := logging.GetLoggerManager()

	components := manager.ListComponents()
	out := make([]map[string]interface{}, 0, len(components))
	for _, name := range components {
		console, file, err := manager.Levels(name)
		if err != nil {
			continue
		}
		out = append(out, map[string]interface{}{
			"component": name,
			"console":   console.String(),
			"file":      file.String(),
		})
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Компоненты логирования",
		Data: map[string]interface{}{
			"components": out,
			"count":      len(out),
		},
	})
}

// logLevelsRequest — тело PUT /api/logs/components/:component.
// Не указанный порог остаётся прежним.
type logLevelsRequest struct {
	Console string `json:"console"`
	File    string `json:"file"`
}

// handleSetLogLevels меняет пороги логирования компонента на лету
func (rs *RestServer) handleSetLogLevels(c *gin.Context) {
	var req logLevelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Некорректное тело запроса",
		})
		return
	}

	manager := logging.GetLoggerManager()
	component := c.Param("component")

	console, file, err := manager.Levels(component)
	if err != nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Компонент «%s» не зарегистрирован", component),
		})
		return
	}

	if req.Console != "" {
		if console, err = logging.ParseLevel(req.Console); err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: err.Error()})
			return
		}
	}
	if req.File != "" {
		if file, err = logging.ParseLevel(req.File); err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: err.Error()})
			return
		}
	}

	if err := manager.SetLogLevel(component, console, file); err != nil {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Пороги обновлены",
		Data: map[string]interface{}{
			"component": component,
			"console":   console.String(),
			"file":      file.String(),
		},
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// peerSummaries собирает срез соединений с RTT в миллисекундах
func (rs *RestServer) peerSummaries() []map[string]interface{} {
	peers := rs.network.Peers()
	out := make([]map[string]interface{}, 0, len(peers))
	for _, p := range peers {
		out = append(out, map[string]interface{}{
			"slot":   p.Slot,
			"addr":   p.Addr,
			"rtt_ms": float64(p.RTT) / float64(time.Millisecond),
		})
	}
	return out
}

// syncStatsView переводит interp.Stats в JSON-дружелюбный вид
func syncStatsView(s interp.Stats) map[string]interface{} {
	since := float64(s.SinceLastUpdate) / float64(time.Millisecond)
	if s.SinceLastUpdate < 0 || s.SinceLastUpdate > time.Hour {
		since = -1 // снапшотов ещё не было
	}
	return map[string]interface{}{
		"interpolations":       s.Interpolations,
		"extrapolations":       s.Extrapolations,
		"predictions":          s.Predictions,
		"buffer_len":           s.BufferLen,
		"since_last_update_ms": since,
	}
}

// Start запускает REST сервер и блокируется до Stop или ошибки
func (rs *RestServer) Start() error {
	rs.httpSrv = &http.Server{
		Addr:    rs.port,
		Handler: rs.router,
	}
	err := rs.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop останавливает REST сервер, дожидаясь активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.httpSrv == nil {
		return nil
	}
	return rs.httpSrv.Shutdown(ctx)
}
