package eventbus

import (
	"context"

	"github.com/suntank/hungryHatchling-sub000/internal/logging"
)

// маленькие payload пишем в лог целиком, длинные обрезаем
const payloadPreviewLimit = 256

// StartLoggingListener подписывается на все события и ведёт их журнал.
// События с приоритетом 7 и выше заметны на уровне INFO, остальные
// уходят в DEBUG. Функция неблокирующая.
func StartLoggingListener(bus EventBus) error {
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		preview := ev.Payload
		if len(preview) > payloadPreviewLimit {
			preview = preview[:payloadPreviewLimit]
		}

		if ev.Priority >= 7 {
			logging.Info("🪵 [%s] %s prio=%d %s %s", ev.Source, ev.EventType, ev.Priority, ev.ID, preview)
			return
		}
		logging.Debug("🪵 [%s] %s prio=%d %s %s", ev.Source, ev.EventType, ev.Priority, ev.ID, preview)
	})
	if err != nil {
		return err
	}
	logging.Info("🪵 Журнал событий: подписка на все типы активна")
	return nil
}
