package network

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/protocol"
)

const (
	// acceptTimeout задаёт темп цикла качающей горутины хоста
	acceptTimeout = 50 * time.Millisecond

	// readProbe — неблокирующая проверка каждого соединения за цикл
	readProbe = time.Millisecond
)

// StartHost поднимает TCP слушатель и запускает качающую горутину.
// maxPlayers включает самого хоста; клиентам достаются слоты начиная с 1.
// Возвращает адрес, на который клиентам следует подключаться
// (при GamePort=0 порт выдаёт ОС).
func (m *Manager) StartHost(maxPlayers int) (string, error) {
	if maxPlayers < 2 {
		return "", fmt.Errorf("maxPlayers должен быть не меньше 2, получено %d", maxPlayers)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role != RoleNone {
		return "", fmt.Errorf("сетевой слой уже запущен в роли %s", m.role)
	}

	addr := &net.TCPAddr{Port: m.cfg.GamePort}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("не удалось открыть порт %d: %w", m.cfg.GamePort, err)
	}

	m.role = RoleHost
	m.listener = listener
	m.maxPlayers = maxPlayers
	m.conns = make(map[int]*peerConn)
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.hostPump()

	port := listener.Addr().(*net.TCPAddr).Port
	public := net.JoinHostPort(LocalIP(), fmt.Sprintf("%d", port))
	m.logger.Info("🎮 Хост запущен на %s (мест: %d)", public, maxPlayers)
	return public, nil
}

// hostPump — единственная горутина хоста: принимает подключения,
// вычитывает все соединения и рассылает ping. Каждая фаза ограничена
// дедлайном, поэтому цикл никогда не зависает на одном пире.
func (m *Manager) hostPump() {
	defer m.wg.Done()

	scratch := make([]byte, readChunk)
	nextPing := m.now().Add(m.cfg.PingInterval)

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.acceptPending()
		m.pollConns(scratch)

		if m.now().After(nextPing) {
			m.pingAll()
			nextPing = m.now().Add(m.cfg.PingInterval)
		}
	}
}

// acceptPending принимает все подключения, накопившиеся за цикл
func (m *Manager) acceptPending() {
	m.mu.Lock()
	listener := m.listener
	m.mu.Unlock()
	if listener == nil {
		return
	}

	if err := listener.SetDeadline(time.Now().Add(acceptTimeout)); err != nil {
		return
	}
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !isTimeout(err) {
				select {
				case <-m.ctx.Done():
				default:
					m.logger.Debug("accept: %v", err)
				}
			}
			return
		}
		m.register(conn)
	}
}

// register выдаёт подключившемуся клиенту наименьший свободный слот.
// Освободившиеся слоты переиспользуются, у существующих игроков номера
// не меняются. При заполненном лобби соединение закрывается сразу.
func (m *Manager) register(conn net.Conn) {
	m.mu.Lock()
	if len(m.conns) >= m.maxPlayers-1 {
		m.mu.Unlock()
		m.logger.Warn("Подключение %s отклонено: лобби заполнено", conn.RemoteAddr())
		conn.Close()
		return
	}
	slot := 1
	for {
		if _, taken := m.conns[slot]; !taken {
			break
		}
		slot++
	}
	pc := newPeerConn(slot, conn)
	m.conns[slot] = pc
	m.mu.Unlock()

	metricConnectedPeers.Inc()
	m.logger.Info("🔗 Игрок подключился: слот %d, %s", slot, pc.addr)
	m.pushEvent(EventPlayerJoined{Slot: slot, Addr: pc.addr})
}

// pollConns вычитывает доступные байты со всех соединений и разбирает
// завершённые строки. Мёртвые и нарушившие протокол пиры отключаются.
func (m *Manager) pollConns(scratch []byte) {
	m.mu.Lock()
	pcs := make([]*peerConn, 0, len(m.conns))
	for _, pc := range m.conns {
		pcs = append(pcs, pc)
	}
	m.mu.Unlock()
	sort.Slice(pcs, func(i, j int) bool { return pcs[i].slot < pcs[j].slot })

	for _, pc := range pcs {
		if err := pc.readAvailable(readProbe, scratch); err != nil {
			m.prune(pc.slot, fmt.Sprintf("соединение потеряно: %v", err))
			continue
		}
		for {
			line, ok := pc.nextLine()
			if !ok {
				break
			}
			m.handleLine(pc, line)
		}
		if pc.overflowed() {
			m.prune(pc.slot, fmt.Sprintf("нарушение протокола: строка больше %d байт", maxLineBytes))
		}
	}
}

// pingAll рассылает ping всем живым слотам для замера RTT
func (m *Manager) pingAll() {
	ping := &protocol.Ping{SentUnixMs: m.now().UnixMilli()}
	frame, err := encodeFrame(ping)
	if err != nil {
		return
	}

	m.mu.Lock()
	pcs := make([]*peerConn, 0, len(m.conns))
	for _, pc := range m.conns {
		pcs = append(pcs, pc)
	}
	m.mu.Unlock()

	for _, pc := range pcs {
		if werr := pc.write(frame, m.cfg.WriteTimeout); werr != nil {
			m.prune(pc.slot, fmt.Sprintf("ошибка отправки: %v", werr))
		}
	}
}

// prune снимает слот с учёта и закрывает соединение. Флаг closed под
// мьютексом гарантирует ровно одно событие player_left на слот, каким бы
// путём ни обнаружилась смерть соединения.
func (m *Manager) prune(slot int, reason string) {
	m.mu.Lock()
	pc, ok := m.conns[slot]
	if !ok || pc.closed {
		m.mu.Unlock()
		return
	}
	pc.closed = true
	delete(m.conns, slot)
	m.mu.Unlock()

	pc.conn.Close()
	metricConnectedPeers.Dec()
	m.logger.Info("❌ Игрок отключился: слот %d (%s)", slot, reason)
	m.pushEvent(EventPlayerLeft{Slot: slot})
}
