// Package network реализует обмен сообщениями между хостом и клиентами
// поверх TCP. Каждое сообщение — одна строка JSON с завершающим \n.
// Хост обслуживает все соединения одной качающей горутиной, клиент
// держит одну горутину чтения. Принятые сообщения и события жизненного
// цикла складываются в очереди и забираются вызывающим потоком через
// GetMessages/Events, колбэков нет.
package network

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/eventbus"
	"github.com/suntank/hungryHatchling-sub000/internal/logging"
	"github.com/suntank/hungryHatchling-sub000/internal/protocol"
)

// Role — текущая роль менеджера
type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return "none"
	}
}

// HostSlot — номер слота хоста с точки зрения клиента
const HostSlot = 0

// Inbound — принятое игровое сообщение и слот отправителя.
// На клиенте Slot всегда HostSlot.
type Inbound struct {
	Slot int
	Msg  protocol.Message
}

// Event — событие жизненного цикла соединений.
// Конкретные варианты ниже; потребитель разбирает через type switch.
type Event interface{ event() }

// EventPlayerJoined — клиент подключился и получил слот (только хост)
type EventPlayerJoined struct {
	Slot int
	Addr string
}

// EventPlayerLeft — соединение клиента закрыто или признано мёртвым (только хост)
type EventPlayerLeft struct {
	Slot int
}

// EventConnectionLost — потеряно соединение с хостом (только клиент)
type EventConnectionLost struct {
	Reason string
}

func (EventPlayerJoined) event()   {}
func (EventPlayerLeft) event()     {}
func (EventConnectionLost) event() {}

// Config — настройки менеджера соединений
type Config struct {
	GamePort     int           // порт TCP; 0 = выдаёт ОС (только хост)
	DialTimeout  time.Duration // таймаут подключения клиента
	PingInterval time.Duration // период ping для замера RTT
	WriteTimeout time.Duration // дедлайн на синхронную запись
}

func (c *Config) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 2 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = time.Second
	}
}

// Manager — единая точка входа в сетевой слой для хоста и клиента
type Manager struct {
	cfg    Config
	logger *logging.Logger

	mu         sync.Mutex
	role       Role
	listener   *net.TCPListener
	conns      map[int]*peerConn // слот → соединение (хост)
	maxPlayers int               // включая хоста
	host       *peerConn         // соединение с хостом (клиент)

	queueMu sync.Mutex
	inbound []Inbound
	events  []Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// NewManager создаёт менеджер в роли RoleNone
func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:    cfg,
		logger: logging.GetNetworkLogger(),
		conns:  make(map[int]*peerConn),
		now:    time.Now,
	}
}

// Role возвращает текущую роль
func (m *Manager) Role() Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// IsConnected сообщает, есть ли живое соединение с хостом (клиент)
// или активный слушатель (хост).
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.role {
	case RoleHost:
		return m.listener != nil
	case RoleClient:
		return m.host != nil && !m.host.closed
	default:
		return false
	}
}

// ConnectedPlayers возвращает число игроков, известное этой стороне.
// Хост знает точно (клиенты + он сам); клиент узнаёт количество только
// из lobby_state, поэтому возвращает -1.
func (m *Manager) ConnectedPlayers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.role {
	case RoleHost:
		return len(m.conns) + 1
	case RoleClient:
		return -1
	default:
		return 0
	}
}

// RTT возвращает последний замеренный round-trip до слота.
// Ноль — замера ещё не было.
func (m *Manager) RTT(slot int) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role == RoleClient && slot == HostSlot && m.host != nil {
		return m.host.rtt()
	}
	if pc, ok := m.conns[slot]; ok {
		return pc.rtt()
	}
	return 0
}

// PeerInfo — сводка по одному живому соединению
type PeerInfo struct {
	Slot int           `json:"slot"`
	Addr string        `json:"addr"`
	RTT  time.Duration `json:"rtt_ns"`
}

// Peers возвращает снимок живых соединений для диагностики.
// Хост перечисляет клиентов, клиент — единственную запись про хост.
func (m *Manager) Peers() []PeerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []PeerInfo
	switch m.role {
	case RoleHost:
		for slot, pc := range m.conns {
			out = append(out, PeerInfo{Slot: slot, Addr: pc.addr, RTT: pc.rtt()})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	case RoleClient:
		if m.host != nil && !m.host.closed {
			out = append(out, PeerInfo{Slot: HostSlot, Addr: m.host.addr, RTT: m.host.rtt()})
		}
	}
	return out
}

// GetMessages атомарно забирает все накопленные игровые сообщения.
// Порядок приёма сохраняется. Очередь после вызова пуста.
func (m *Manager) GetMessages() []Inbound {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	out := m.inbound
	m.inbound = nil
	return out
}

// Events атомарно забирает все накопленные события жизненного цикла
func (m *Manager) Events() []Event {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	out := m.events
	m.events = nil
	return out
}

// Send сериализует сообщение и синхронно пишет его в слот.
// На клиенте единственный допустимый слот — HostSlot.
// Ошибка записи на хосте отключает именно этот слот.
func (m *Manager) Send(slot int, msg protocol.Message) error {
	frame, err := encodeFrame(msg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	role := m.role
	var pc *peerConn
	if role == RoleClient && slot == HostSlot {
		pc = m.host
	} else {
		pc = m.conns[slot]
	}
	m.mu.Unlock()

	if pc == nil {
		return fmt.Errorf("слот %d не подключён", slot)
	}
	if err := pc.write(frame, m.cfg.WriteTimeout); err != nil {
		if role == RoleHost {
			m.prune(slot, fmt.Sprintf("ошибка отправки: %v", err))
		} else {
			m.dropHost(fmt.Sprintf("ошибка отправки: %v", err))
		}
		return fmt.Errorf("отправка в слот %d: %w", slot, err)
	}
	metricMessages.WithLabelValues(dirSent, string(msg.Kind())).Inc()
	metricBytes.WithLabelValues(dirSent).Add(float64(len(frame)))
	return nil
}

// SendToHost — отправка хосту с клиентской стороны
func (m *Manager) SendToHost(msg protocol.Message) error {
	return m.Send(HostSlot, msg)
}

// Broadcast отправляет сообщение во все подключённые слоты.
// Мёртвые соединения отключаются поодиночке, остальных это не задевает.
func (m *Manager) Broadcast(msg protocol.Message) error {
	frame, err := encodeFrame(msg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	slots := make([]int, 0, len(m.conns))
	for slot := range m.conns {
		slots = append(slots, slot)
	}
	m.mu.Unlock()
	sort.Ints(slots)

	for _, slot := range slots {
		m.mu.Lock()
		pc := m.conns[slot]
		m.mu.Unlock()
		if pc == nil {
			continue
		}
		if err := pc.write(frame, m.cfg.WriteTimeout); err != nil {
			m.prune(slot, fmt.Sprintf("ошибка отправки: %v", err))
			continue
		}
		metricMessages.WithLabelValues(dirSent, string(msg.Kind())).Inc()
		metricBytes.WithLabelValues(dirSent).Add(float64(len(frame)))
	}
	return nil
}

// Shutdown останавливает циклы и закрывает все сокеты. Идемпотентен.
// Синтетические player_left при этом не рассылаются.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.role == RoleNone {
		m.mu.Unlock()
		return
	}
	role := m.role
	m.role = RoleNone
	if m.cancel != nil {
		m.cancel()
	}
	if m.listener != nil {
		m.listener.Close()
		m.listener = nil
	}
	conns := m.conns
	m.conns = make(map[int]*peerConn)
	host := m.host
	m.host = nil
	m.mu.Unlock()

	m.wg.Wait()

	for _, pc := range conns {
		pc.conn.Close()
		metricConnectedPeers.Dec()
	}
	if host != nil {
		host.conn.Close()
		metricConnectedPeers.Dec()
	}
	m.logger.Info("Сетевой слой остановлен (роль была %s)", role)
}

// LocalIP определяет адрес исходящего интерфейса через фиктивное
// UDP соединение. Пакеты при этом не отправляются.
func LocalIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

// ===== Общая обработка принятых строк =====

// handleLine разбирает одну завершённую строку от пира.
// ping/pong обслуживаются на месте и в очередь не попадают.
func (m *Manager) handleLine(pc *peerConn, line []byte) {
	msg, err := protocol.Decode(line)
	if err != nil {
		m.logger.WireError(pc.addr, err, line)
		metricDroppedLines.Inc()
		return
	}
	metricMessages.WithLabelValues(dirReceived, string(msg.Kind())).Inc()
	metricBytes.WithLabelValues(dirReceived).Add(float64(len(line) + 1))

	switch v := msg.(type) {
	case *protocol.Ping:
		pong := &protocol.Pong{SentUnixMs: v.SentUnixMs}
		if frame, err := encodeFrame(pong); err == nil {
			if werr := pc.write(frame, m.cfg.WriteTimeout); werr != nil {
				m.logger.Debug("pong не доставлен %s: %v", pc.addr, werr)
			}
		}
	case *protocol.Pong:
		rtt := time.Duration(m.now().UnixMilli()-v.SentUnixMs) * time.Millisecond
		if rtt < 0 {
			rtt = 0
		}
		pc.setRTT(rtt)
		metricPeerRTT.WithLabelValues(fmt.Sprintf("%d", pc.slot)).Set(rtt.Seconds())
	default:
		m.pushInbound(Inbound{Slot: pc.slot, Msg: msg})
	}
}

func (m *Manager) pushInbound(in Inbound) {
	m.queueMu.Lock()
	m.inbound = append(m.inbound, in)
	m.queueMu.Unlock()
}

func (m *Manager) pushEvent(ev Event) {
	m.queueMu.Lock()
	m.events = append(m.events, ev)
	m.queueMu.Unlock()

	switch v := ev.(type) {
	case EventPlayerJoined:
		eventbus.Emit("network", eventbus.EventPlayerJoined, 7,
			map[string]interface{}{"slot": v.Slot, "addr": v.Addr})
	case EventPlayerLeft:
		eventbus.Emit("network", eventbus.EventPlayerLeft, 7,
			map[string]interface{}{"slot": v.Slot})
	case EventConnectionLost:
		eventbus.Emit("network", eventbus.EventConnectionLost, 8,
			map[string]interface{}{"reason": v.Reason})
	}
}

// encodeFrame сериализует сообщение и добавляет кадровый \n
func encodeFrame(msg protocol.Message) ([]byte, error) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("сериализация %s: %w", msg.Kind(), err)
	}
	return append(data, '\n'), nil
}
