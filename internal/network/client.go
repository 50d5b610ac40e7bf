package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/protocol"
)

// clientReadTimeout — дедлайн одного ожидания чтения у клиента.
// Между дедлайнами горутина проверяет контекст и расписание ping.
const clientReadTimeout = 500 * time.Millisecond

// Connect подключается к хосту по IP на настроенный игровой порт
func (m *Manager) Connect(hostIP string) error {
	return m.ConnectAddr(net.JoinHostPort(hostIP, fmt.Sprintf("%d", m.cfg.GamePort)))
}

// ConnectAddr подключается к хосту по адресу вида host:port,
// например взятому из discovery.DiscoveredServer.Addr().
func (m *Manager) ConnectAddr(addr string) error {
	m.mu.Lock()
	if m.role != RoleNone {
		m.mu.Unlock()
		return fmt.Errorf("сетевой слой уже запущен в роли %s", m.role)
	}
	m.role = RoleClient
	m.mu.Unlock()

	conn, err := net.DialTimeout("tcp", addr, m.cfg.DialTimeout)
	if err != nil {
		m.mu.Lock()
		m.role = RoleNone
		m.mu.Unlock()
		return fmt.Errorf("не удалось подключиться к %s: %w", addr, err)
	}

	pc := newPeerConn(HostSlot, conn)
	m.mu.Lock()
	m.host = pc
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	m.wg.Add(1)
	go m.clientLoop(pc)

	metricConnectedPeers.Inc()
	m.logger.Info("📡 Подключение к %s установлено", addr)
	return nil
}

// clientLoop — единственная горутина чтения у клиента. Помимо чтения
// отвечает за периодический ping хоста, RTT при этом считается из pong.
func (m *Manager) clientLoop(pc *peerConn) {
	defer m.wg.Done()

	scratch := make([]byte, readChunk)
	nextPing := m.now().Add(m.cfg.PingInterval)

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if err := pc.readAvailable(clientReadTimeout, scratch); err != nil {
			select {
			case <-m.ctx.Done():
			default:
				m.dropHost(err.Error())
			}
			return
		}
		for {
			line, ok := pc.nextLine()
			if !ok {
				break
			}
			m.handleLine(pc, line)
		}
		if pc.overflowed() {
			m.dropHost(fmt.Sprintf("нарушение протокола: строка больше %d байт", maxLineBytes))
			return
		}

		if m.now().After(nextPing) {
			ping := &protocol.Ping{SentUnixMs: m.now().UnixMilli()}
			if frame, err := encodeFrame(ping); err == nil {
				if werr := pc.write(frame, m.cfg.WriteTimeout); werr != nil {
					m.dropHost(fmt.Sprintf("ошибка отправки: %v", werr))
					return
				}
			}
			nextPing = m.now().Add(m.cfg.PingInterval)
		}
	}
}

// dropHost фиксирует потерю соединения с хостом. Флаг closed гарантирует
// ровно одно connection_lost, как бы соединение ни умерло.
func (m *Manager) dropHost(reason string) {
	m.mu.Lock()
	pc := m.host
	if pc == nil || pc.closed {
		m.mu.Unlock()
		return
	}
	pc.closed = true
	m.host = nil
	m.mu.Unlock()

	pc.conn.Close()
	metricConnectedPeers.Dec()
	m.logger.Warn("❌ Соединение с хостом потеряно: %s", reason)
	m.pushEvent(EventConnectionLost{Reason: reason})
}
