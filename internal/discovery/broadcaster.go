package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/logging"
)

// BroadcasterConfig задаёт параметры анонсирования хоста
type BroadcasterConfig struct {
	ServerName    string
	GamePort      int
	DiscoveryPort int
	BroadcastAddr string        // по умолчанию 255.255.255.255
	Interval      time.Duration // по умолчанию секунда
}

// Broadcaster периодически объявляет присутствие хоста в сети.
// Первый анонс уходит сразу при старте, дальше по таймеру.
type Broadcaster struct {
	cfg    BroadcasterConfig
	conn   *net.UDPConn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logging.Logger

	mu      sync.Mutex
	running bool
}

// NewBroadcaster создаёт broadcaster с дефолтами для пустых полей
func NewBroadcaster(cfg BroadcasterConfig) *Broadcaster {
	if cfg.BroadcastAddr == "" {
		cfg.BroadcastAddr = "255.255.255.255"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.DiscoveryPort <= 0 {
		cfg.DiscoveryPort = 50000
	}
	return &Broadcaster{
		cfg:    cfg,
		logger: logging.GetDiscoveryLogger(),
	}
}

// Start открывает UDP сокет и запускает цикл анонсов.
// Повторный вызов на работающем broadcaster безвреден.
func (b *Broadcaster) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	raddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", b.cfg.BroadcastAddr, b.cfg.DiscoveryPort))
	if err != nil {
		return fmt.Errorf("discovery: адрес анонсов: %w", err)
	}

	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return fmt.Errorf("discovery: сокет анонсов: %w", err)
	}
	if err := enableBroadcast(conn); err != nil {
		// Для unicast адресов (тесты, направленный анонс) флаг не обязателен
		b.logger.Warn("SO_BROADCAST не установлен: %v", err)
	}

	b.conn = conn
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.running = true

	b.wg.Add(1)
	go b.announceLoop()

	b.logger.Info("📡 Анонс «%s» (игровой порт %d) каждые %v на %s:%d",
		b.cfg.ServerName, b.cfg.GamePort, b.cfg.Interval, b.cfg.BroadcastAddr, b.cfg.DiscoveryPort)
	return nil
}

// Stop прекращает анонсы и закрывает сокет. Идемпотентен.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	b.cancel()
	b.conn.Close()
	b.wg.Wait()
	b.logger.Info("📡 Анонсы «%s» остановлены", b.cfg.ServerName)
}

func (b *Broadcaster) announceLoop() {
	defer b.wg.Done()

	payload := buildAnnounce(b.cfg.ServerName, b.cfg.GamePort)
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	b.send(payload)
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.send(payload)
		}
	}
}

func (b *Broadcaster) send(payload []byte) {
	if _, err := b.conn.Write(payload); err != nil {
		select {
		case <-b.ctx.Done():
			// Сокет закрыт при остановке
		default:
			b.logger.Debug("Анонс не отправлен: %v", err)
		}
	}
}
