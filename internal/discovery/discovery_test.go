package discovery

import (
	"errors"
	"testing"
	"time"
)

func TestAnnouncePayloadRoundTrip(t *testing.T) {
	payload := buildAnnounce("TestServer", 5555)

	name, port, err := parseAnnounce(payload)
	if err != nil {
		t.Fatalf("Ошибка разбора собственного анонса: %v", err)
	}
	if name != "TestServer" || port != 5555 {
		t.Errorf("Анонс потерял данные: %q %d", name, port)
	}
}

func TestAnnounceSanitizesName(t *testing.T) {
	payload := buildAnnounce("Bad|Name", 5555)

	name, _, err := parseAnnounce(payload)
	if err != nil {
		t.Fatalf("Анонс с заменённым разделителем должен разбираться: %v", err)
	}
	if name != "Bad/Name" {
		t.Errorf("Разделитель не экранирован: %q", name)
	}
}

func TestParseSkipsAlienDatagrams(t *testing.T) {
	cases := [][]byte{
		[]byte(DiscoverMagic + "|probe"),
		[]byte("какой-то мусор"),
		{},
		[]byte("OTHERGAME_RESPONSE|X|1"),
	}
	for _, data := range cases {
		if _, _, err := parseAnnounce(data); !errors.Is(err, errNotAnnounce) {
			t.Errorf("%q: ожидался errNotAnnounce, получено %v", data, err)
		}
	}
}

func TestParseRejectsBrokenAnnounce(t *testing.T) {
	cases := []string{
		ResponseMagic + "|имя",            // нет порта
		ResponseMagic + "|имя|порт",       // порт не число
		ResponseMagic + "|имя|0",          // порт вне диапазона
		ResponseMagic + "|имя|5555|лишнее", // лишняя часть
	}
	for _, s := range cases {
		_, _, err := parseAnnounce([]byte(s))
		if err == nil || errors.Is(err, errNotAnnounce) {
			t.Errorf("%q: ожидалась ошибка структуры, получено %v", s, err)
		}
	}
}

func TestListenerTTLPurge(t *testing.T) {
	current := time.Unix(1000, 0)
	l := NewListener(ListenerConfig{TTL: 5 * time.Second})
	l.now = func() time.Time { return current }

	l.handleDatagram(buildAnnounce("TestServer", 5555), "192.168.1.7")
	if got := len(l.Servers()); got != 1 {
		t.Fatalf("Сервер не попал в таблицу: %d записей", got)
	}

	// Свежий анонс внутри TTL удерживает запись
	current = current.Add(4 * time.Second)
	l.handleDatagram(buildAnnounce("TestServer", 5555), "192.168.1.7")
	current = current.Add(4 * time.Second)
	l.purgeExpired()
	if got := len(l.Servers()); got != 1 {
		t.Fatalf("Обновлённая запись вытеснена раньше TTL: %d записей", got)
	}

	// Молчание дольше TTL вытесняет
	current = current.Add(2 * time.Second)
	l.purgeExpired()
	if got := len(l.Servers()); got != 0 {
		t.Errorf("Запись пережила TTL: %d записей", got)
	}
}

func TestListenerKeyedBySourceIP(t *testing.T) {
	l := NewListener(ListenerConfig{})

	l.handleDatagram(buildAnnounce("Первый", 5555), "192.168.1.7")
	l.handleDatagram(buildAnnounce("Переименованный", 5556), "192.168.1.7")
	l.handleDatagram(buildAnnounce("Второй", 5555), "192.168.1.8")

	servers := l.Servers()
	if len(servers) != 2 {
		t.Fatalf("Ожидались записи по двум IP, получено %d", len(servers))
	}
	for _, s := range servers {
		if s.IP == "192.168.1.7" && (s.Name != "Переименованный" || s.Port != 5556) {
			t.Errorf("Повторный анонс не обновил запись: %+v", s)
		}
	}
}

func TestServersSortedByName(t *testing.T) {
	l := NewListener(ListenerConfig{})

	l.handleDatagram(buildAnnounce("Браво", 5555), "10.0.0.2")
	l.handleDatagram(buildAnnounce("Альфа", 5555), "10.0.0.3")

	servers := l.Servers()
	if len(servers) != 2 || servers[0].Name != "Альфа" {
		t.Errorf("Список не отсортирован по имени: %+v", servers)
	}
}

func TestListenerIgnoresAlienTraffic(t *testing.T) {
	l := NewListener(ListenerConfig{})

	l.handleDatagram([]byte(DiscoverMagic+"|probe"), "10.0.0.9")
	l.handleDatagram([]byte("мусор"), "10.0.0.9")

	if got := len(l.Servers()); got != 0 {
		t.Errorf("Чужие датаграммы попали в таблицу: %d записей", got)
	}
}
