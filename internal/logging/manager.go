package logging

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
)

// LoggerManager раздаёт по одному логгеру на компонент.
// Компонент регистрируется при первом обращении.
type LoggerManager struct {
	mu      sync.Mutex
	loggers map[string]*Logger
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{loggers: make(map[string]*Logger)}
	})
	return globalManager
}

// GetLogger возвращает логгер компонента, создавая его при необходимости
func (m *LoggerManager) GetLogger(component string) (*Logger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if logger, ok := m.loggers[component]; ok {
		return logger, nil
	}

	logger, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("logging: логгер «%s» не создан: %w", component, err)
	}
	m.loggers[component] = logger
	return logger, nil
}

// MustGetLogger возвращает логгер компонента. Если файл журнала открыть
// не удалось (read-only файловая система, тесты), остаётся только консоль.
func (m *LoggerManager) MustGetLogger(component string) *Logger {
	logger, err := m.GetLogger(component)
	if err == nil {
		return logger
	}

	fallback := &Logger{
		component:     component,
		consoleLogger: log.New(os.Stdout, "", log.LstdFlags),
	}
	fallback.SetLevels(INFO, ERROR)
	return fallback
}

// CloseAll закрывает все логгеры и забывает их
func (m *LoggerManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for component, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			lastErr = fmt.Errorf("logging: логгер «%s» не закрылся: %w", component, err)
		}
	}
	m.loggers = make(map[string]*Logger)
	return lastErr
}

// ListComponents возвращает отсортированный список активных компонентов
func (m *LoggerManager) ListComponents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	components := make([]string, 0, len(m.loggers))
	for component := range m.loggers {
		components = append(components, component)
	}
	sort.Strings(components)
	return components
}

// Levels возвращает текущие пороги компонента
func (m *LoggerManager) Levels(component string) (console, file LogLevel, err error) {
	m.mu.Lock()
	logger, ok := m.loggers[component]
	m.mu.Unlock()

	if !ok {
		return INFO, TRACE, fmt.Errorf("logging: компонент «%s» не зарегистрирован", component)
	}
	console, file = logger.Levels()
	return console, file, nil
}

// SetLogLevel меняет пороги компонента на лету
func (m *LoggerManager) SetLogLevel(component string, consoleLevel, fileLevel LogLevel) error {
	m.mu.Lock()
	logger, ok := m.loggers[component]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("logging: компонент «%s» не зарегистрирован", component)
	}
	logger.SetLevels(consoleLevel, fileLevel)
	return nil
}

// Удобные функции для получения логгеров
func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().MustGetLogger(component)
}

func GetNetworkLogger() *Logger {
	return GetComponentLogger("network")
}

func GetDiscoveryLogger() *Logger {
	return GetComponentLogger("discovery")
}

func GetSyncLogger() *Logger {
	return GetComponentLogger("sync")
}

func GetAPILogger() *Logger {
	return GetComponentLogger("api")
}

func GetReplayLogger() *Logger {
	return GetComponentLogger("replay")
}
