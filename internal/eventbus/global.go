package eventbus

import "context"

var globalBus EventBus

// Init устанавливает глобальную шину.
func Init(bus EventBus) { globalBus = bus }

// Publish отправляет событие в глобальную шину, если она инициализирована.
func Publish(ctx context.Context, ev *Envelope) error {
	if globalBus == nil {
		return nil
	}
	return globalBus.Publish(ctx, ev)
}

// Emit собирает конверт и публикует его в глобальную шину.
// Удобная форма для компонентов, которым не нужен прямой доступ к шине.
func Emit(source, eventType string, priority int, payload interface{}) {
	if globalBus == nil {
		return
	}
	_ = globalBus.Publish(context.Background(), NewEnvelope(source, eventType, priority, payload))
}
