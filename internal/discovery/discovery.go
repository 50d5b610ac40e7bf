// Package discovery реализует обнаружение хостов в локальной сети:
// хост периодически рассылает UDP broadcast анонсы, клиенты слушают
// общий порт и ведут таблицу живых серверов с вытеснением по TTL.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// DiscoverMagic — префикс проб, которые могут слать клиенты.
	// Слушатели анонсов такие датаграммы пропускают.
	DiscoverMagic = "HATCHLING_DISCOVER_V1"

	// ResponseMagic — префикс анонсов хоста:
	// HATCHLING_RESPONSE_V1|<имя сервера>|<игровой порт>
	ResponseMagic = "HATCHLING_RESPONSE_V1"
)

// errNotAnnounce помечает чужие датаграммы на общем порту
var errNotAnnounce = errors.New("не анонс сервера")

// DiscoveredServer — запись о хосте, который недавно анонсировал себя
type DiscoveredServer struct {
	Name     string    `json:"name"`
	IP       string    `json:"ip"`
	Port     int       `json:"port"`
	LastSeen time.Time `json:"last_seen"`
}

// Addr возвращает адрес игрового TCP порта сервера
func (s DiscoveredServer) Addr() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

// buildAnnounce собирает полезную нагрузку анонса.
// Разделитель «|» в имени заменяется, пустое имя получает заглушку.
func buildAnnounce(name string, port int) []byte {
	name = strings.ReplaceAll(name, "|", "/")
	if name == "" {
		name = "Host"
	}
	return []byte(fmt.Sprintf("%s|%s|%d", ResponseMagic, name, port))
}

// parseAnnounce разбирает датаграмму с общего порта.
// Датаграммы без ResponseMagic (включая клиентские пробы с DiscoverMagic)
// дают errNotAnnounce; анонсы с неверной структурой — обычную ошибку.
func parseAnnounce(data []byte) (name string, port int, err error) {
	s := string(data)
	if !strings.HasPrefix(s, ResponseMagic+"|") {
		return "", 0, errNotAnnounce
	}

	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return "", 0, fmt.Errorf("анонс из %d частей вместо 3", len(parts))
	}

	port, aerr := strconv.Atoi(parts[2])
	if aerr != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("некорректный игровой порт %q", parts[2])
	}

	return parts[1], port, nil
}
