package config

import (
	"io/ioutil"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
// Все значения имеют дефолты; пустой конфиг полностью рабочий.

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Sync      SyncConfig      `yaml:"sync"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Replay    ReplayConfig    `yaml:"replay"`
}

type ServerConfig struct {
	Name       string `yaml:"name"`
	GamePort   int    `yaml:"game_port"`
	RESTPort   int    `yaml:"rest_port"`
	MaxPlayers int    `yaml:"max_players"`
}

type DiscoveryConfig struct {
	Port             int     `yaml:"port"`
	BroadcastAddr    string  `yaml:"broadcast_addr"`
	HeartbeatSeconds float64 `yaml:"heartbeat_seconds"`
	ServerTTLSeconds float64 `yaml:"server_ttl_seconds"`
}

type SyncConfig struct {
	BufferDelayMs       int     `yaml:"buffer_delay_ms"`
	BufferCapacity      int     `yaml:"buffer_capacity"`
	ExtrapolationCap    float64 `yaml:"extrapolation_cap"`
	ExtrapolationStopMs int     `yaml:"extrapolation_stop_ms"`
	PredictionMoveCap   int     `yaml:"prediction_move_cap"`
	TickRate            int     `yaml:"tick_rate"`
	GridWidth           int     `yaml:"grid_width"`
	GridHeight          int     `yaml:"grid_height"`
	StaleAfterMs        int     `yaml:"stale_after_ms"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type ReplayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// GetName возвращает имя сервера для discovery анонсов
func (s *ServerConfig) GetName() string {
	return getStringWithEnvFallback(s.Name, "HATCHLING_SERVER_NAME", "Hatchling Host")
}

// GetGamePort возвращает TCP порт игровой сессии
func (s *ServerConfig) GetGamePort() int {
	return getPortWithEnvFallback(s.GamePort, "HATCHLING_GAME_PORT", 5555)
}

// GetRESTPort возвращает порт диагностического REST API
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "HATCHLING_REST_PORT", 8088)
}

// GetMaxPlayers возвращает лимит подключаемых клиентов
func (s *ServerConfig) GetMaxPlayers() int {
	return getIntWithEnvFallback(s.MaxPlayers, "HATCHLING_MAX_PLAYERS", 4)
}

// GetPort возвращает UDP порт discovery
func (d *DiscoveryConfig) GetPort() int {
	return getPortWithEnvFallback(d.Port, "HATCHLING_DISCOVERY_PORT", 50000)
}

// GetBroadcastAddr возвращает broadcast адрес для анонсов
func (d *DiscoveryConfig) GetBroadcastAddr() string {
	return getStringWithEnvFallback(d.BroadcastAddr, "HATCHLING_BROADCAST_ADDR", "255.255.255.255")
}

// GetHeartbeat возвращает период анонсов хоста
func (d *DiscoveryConfig) GetHeartbeat() time.Duration {
	return secondsOrDefault(d.HeartbeatSeconds, time.Second)
}

// GetServerTTL возвращает срок жизни записи о сервере без свежего анонса
func (d *DiscoveryConfig) GetServerTTL() time.Duration {
	return secondsOrDefault(d.ServerTTLSeconds, 5*time.Second)
}

// GetBufferDelay возвращает задержку рендера относительно новейшего снапшота
func (s *SyncConfig) GetBufferDelay() time.Duration {
	return msOrDefault(s.BufferDelayMs, 80*time.Millisecond)
}

// GetBufferCapacity возвращает ёмкость кольца снапшотов
func (s *SyncConfig) GetBufferCapacity() int {
	return getIntWithEnvFallback(s.BufferCapacity, "HATCHLING_BUFFER_CAPACITY", 30)
}

// GetExtrapolationCap возвращает потолок фактора экстраполяции
func (s *SyncConfig) GetExtrapolationCap() float64 {
	if s.ExtrapolationCap > 1.0 {
		return s.ExtrapolationCap
	}
	return 1.5
}

// GetExtrapolationStop возвращает давность новейшего снапшота,
// после которой экстраполяция замирает на нём
func (s *SyncConfig) GetExtrapolationStop() time.Duration {
	return msOrDefault(s.ExtrapolationStopMs, 500*time.Millisecond)
}

// GetPredictionMoveCap возвращает лимит шагов предсказателя за один запрос
func (s *SyncConfig) GetPredictionMoveCap() int {
	return getIntWithEnvFallback(s.PredictionMoveCap, "HATCHLING_PREDICTION_CAP", 5)
}

// GetTickRate возвращает частоту тиков симуляции (тиков в секунду)
func (s *SyncConfig) GetTickRate() int {
	return getIntWithEnvFallback(s.TickRate, "HATCHLING_TICK_RATE", 60)
}

// GetGridWidth возвращает ширину игровой сетки
func (s *SyncConfig) GetGridWidth() int {
	return getIntWithEnvFallback(s.GridWidth, "HATCHLING_GRID_WIDTH", 15)
}

// GetGridHeight возвращает высоту игровой сетки
func (s *SyncConfig) GetGridHeight() int {
	return getIntWithEnvFallback(s.GridHeight, "HATCHLING_GRID_HEIGHT", 15)
}

// GetStaleAfter возвращает давность данных, после которой синхронизатор
// считается устаревшим
func (s *SyncConfig) GetStaleAfter() time.Duration {
	return msOrDefault(s.StaleAfterMs, 500*time.Millisecond)
}

// GetURL возвращает адрес NATS. Пустая строка означает in-memory шину.
func (e *EventBusConfig) GetURL() string {
	return getStringWithEnvFallback(e.URL, "HATCHLING_NATS_URL", "")
}

// GetStream возвращает имя JetStream потока событий
func (e *EventBusConfig) GetStream() string {
	return getStringWithEnvFallback(e.Stream, "HATCHLING_NATS_STREAM", "EVENTS")
}

// GetRetention возвращает срок хранения событий в потоке
func (e *EventBusConfig) GetRetention() time.Duration {
	if e.Retention > 0 {
		return time.Duration(e.Retention) * time.Hour
	}
	return 24 * time.Hour
}

// GetPath возвращает каталог журнала повторов
func (r *ReplayConfig) GetPath() string {
	return getStringWithEnvFallback(r.Path, "HATCHLING_REPLAY_PATH", "data/replays")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

func getIntWithEnvFallback(configVal int, envVar string, defaultVal int) int {
	if configVal > 0 {
		return configVal
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}
	return defaultVal
}

func getStringWithEnvFallback(configVal, envVar, defaultVal string) string {
	if configVal != "" {
		return configVal
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultVal
}

func secondsOrDefault(seconds float64, def time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	return def
}

func msOrDefault(ms int, def time.Duration) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV HATCHLING_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("HATCHLING_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
