package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/eventbus"
	"github.com/suntank/hungryHatchling-sub000/internal/logging"
)

// readTimeout ограничивает одну итерацию приёма, чтобы цикл
// регулярно проверял контекст и вытеснял устаревшие записи
const readTimeout = 200 * time.Millisecond

// ListenerConfig задаёт параметры прослушивания анонсов
type ListenerConfig struct {
	Port int           // по умолчанию 50000
	TTL  time.Duration // по умолчанию 5 секунд
}

// Listener слушает общий discovery порт и ведёт таблицу живых серверов.
// Ключ таблицы — IP источника: повторный анонс обновляет запись,
// молчание дольше TTL вытесняет её.
type Listener struct {
	cfg    ListenerConfig
	conn   *net.UDPConn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logging.Logger
	now    func() time.Time

	mu      sync.RWMutex
	servers map[string]DiscoveredServer
	running bool
}

// NewListener создаёт слушатель анонсов
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Port <= 0 {
		cfg.Port = 50000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	return &Listener{
		cfg:     cfg,
		logger:  logging.GetDiscoveryLogger(),
		now:     time.Now,
		servers: make(map[string]DiscoveredServer),
	}
}

// Start привязывается к discovery порту и запускает цикл приёма.
// Повторный вызов на работающем слушателе безвреден.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: l.cfg.Port})
	if err != nil {
		return fmt.Errorf("discovery: порт %d занят: %w", l.cfg.Port, err)
	}

	l.conn = conn
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.running = true

	l.wg.Add(1)
	go l.receiveLoop()

	l.logger.Info("🔍 Поиск серверов на UDP порту %d (TTL %v)", l.cfg.Port, l.cfg.TTL)
	return nil
}

// Stop прекращает прослушивание и очищает таблицу. Идемпотентен.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.mu.Unlock()

	l.cancel()
	l.conn.Close()
	l.wg.Wait()

	l.mu.Lock()
	l.servers = make(map[string]DiscoveredServer)
	l.mu.Unlock()
	l.logger.Info("🔍 Поиск серверов остановлен")
}

// Servers возвращает копию таблицы живых серверов,
// отсортированную по имени для стабильного порядка в UI
func (l *Listener) Servers() []DiscoveredServer {
	l.mu.RLock()
	out := make([]DiscoveredServer, 0, len(l.servers))
	for _, s := range l.servers {
		out = append(out, s)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].IP < out[j].IP
	})
	return out
}

// receiveLoop принимает датаграммы и вытесняет устаревшие записи
// на каждой итерации, включая итерации по таймауту
func (l *Listener) receiveLoop() {
	defer l.wg.Done()
	buffer := make([]byte, 1024)

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
			l.conn.SetReadDeadline(time.Now().Add(readTimeout))

			n, addr, err := l.conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					l.purgeExpired()
					continue
				}
				select {
				case <-l.ctx.Done():
					return
				default:
					l.logger.Debug("Ошибка чтения discovery: %v", err)
					continue
				}
			}

			l.handleDatagram(buffer[:n], addr.IP.String())
			l.purgeExpired()
		}
	}
}

// handleDatagram разбирает анонс и обновляет таблицу серверов
func (l *Listener) handleDatagram(data []byte, ip string) {
	name, port, err := parseAnnounce(data)
	if err != nil {
		if errors.Is(err, errNotAnnounce) {
			l.logger.Trace("Чужая датаграмма от %s (%d байт)", ip, len(data))
		} else {
			l.logger.Debug("Битый анонс от %s: %v", ip, err)
		}
		return
	}

	entry := DiscoveredServer{Name: name, IP: ip, Port: port, LastSeen: l.now()}

	l.mu.Lock()
	_, known := l.servers[ip]
	l.servers[ip] = entry
	l.mu.Unlock()

	if !known {
		l.logger.Info("✅ Найден сервер «%s» на %s", name, entry.Addr())
		eventbus.Emit("discovery", eventbus.EventServerFound, 3, entry)
	}
}

// purgeExpired убирает серверы, молчащие дольше TTL
func (l *Listener) purgeExpired() {
	now := l.now()

	l.mu.Lock()
	var expired []DiscoveredServer
	for ip, s := range l.servers {
		if now.Sub(s.LastSeen) > l.cfg.TTL {
			expired = append(expired, s)
			delete(l.servers, ip)
		}
	}
	l.mu.Unlock()

	for _, s := range expired {
		l.logger.Info("⌛ Сервер «%s» (%s) пропал из сети", s.Name, s.Addr())
		eventbus.Emit("discovery", eventbus.EventServerExpired, 3, s)
	}
}
