package network

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// maxLineBytes ограничивает незавершённую строку в буфере приёма.
	// Превышение считается нарушением протокола со стороны пира.
	maxLineBytes = 64 * 1024

	// readChunk — размер одного чтения из сокета
	readChunk = 4096
)

// peerConn — одно TCP соединение с партнёром и его буфер неполной строки.
// Читает буфер только качающая горутина; запись защищена собственным мьютексом.
type peerConn struct {
	slot int
	conn net.Conn
	addr string

	buf []byte // принятые байты без завершающего \n

	wmu sync.Mutex // сериализует записи из pump и вызывающих потоков

	rttNanos atomic.Int64
	closed   bool // под мьютексом менеджера; гарантирует единственный player_left
}

func newPeerConn(slot int, conn net.Conn) *peerConn {
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return &peerConn{
		slot: slot,
		conn: conn,
		addr: conn.RemoteAddr().String(),
	}
}

// write отправляет уже сериализованное сообщение одной строкой
func (pc *peerConn) write(frame []byte, timeout time.Duration) error {
	pc.wmu.Lock()
	defer pc.wmu.Unlock()

	if err := pc.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	_, err := pc.conn.Write(frame)
	return err
}

// readAvailable забирает все доступные сейчас байты, не блокируясь
// дольше probe. Возвращает ошибку только если соединение умерло.
func (pc *peerConn) readAvailable(probe time.Duration, scratch []byte) error {
	if err := pc.conn.SetReadDeadline(time.Now().Add(probe)); err != nil {
		return err
	}
	for {
		n, err := pc.conn.Read(scratch)
		if n > 0 {
			pc.buf = append(pc.buf, scratch[:n]...)
		}
		if err != nil {
			if isTimeout(err) {
				return nil
			}
			return err
		}
	}
}

// nextLine извлекает очередную завершённую строку из буфера.
// Пустые строки пропускаются, \r перед \n срезается.
func (pc *peerConn) nextLine() ([]byte, bool) {
	for {
		i := bytes.IndexByte(pc.buf, '\n')
		if i < 0 {
			return nil, false
		}
		line := bytes.TrimSuffix(pc.buf[:i], []byte("\r"))
		pc.buf = pc.buf[i+1:]
		if len(line) == 0 {
			continue
		}
		return line, true
	}
}

// overflowed сообщает, что пир прислал строку длиннее допустимой
func (pc *peerConn) overflowed() bool {
	return len(pc.buf) > maxLineBytes
}

func (pc *peerConn) setRTT(rtt time.Duration) {
	pc.rttNanos.Store(int64(rtt))
}

func (pc *peerConn) rtt() time.Duration {
	return time.Duration(pc.rttNanos.Load())
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
