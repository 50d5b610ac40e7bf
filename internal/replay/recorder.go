// Package replay пишет журнал авторитетных снапшотов сессии во встроенное
// хранилище. Журнал самодостаточен: для просмотра повтора не нужен ни хост,
// ни внешняя база.
package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/suntank/hungryHatchling-sub000/internal/logging"
	"github.com/suntank/hungryHatchling-sub000/internal/protocol"
)

const (
	sessionKeyPrefix = "session:"
	tickKeyFormat    = "replay:%s:tick:%020d"
	tickScanFormat   = "replay:%s:tick:"
)

// ErrSessionNotFound возвращается при запросе несуществующей сессии
var ErrSessionNotFound = errors.New("сессия не найдена")

// SessionMeta описывает одну записанную сессию
type SessionMeta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Ticks     int       `json:"ticks"`
}

// Recorder пишет и читает журнал снапшотов. Снапшоты сжимаются zstd:
// соседние тики почти не отличаются, и журнал ужимается в разы.
type Recorder struct {
	db     *badger.DB
	logger *logging.Logger

	compressor   *zstd.Encoder
	decompressor *zstd.Decoder

	mutex   sync.Mutex
	isReady bool
	current *SessionMeta
}

// NewRecorder открывает журнал в каталоге dataPath
func NewRecorder(dataPath string) (*Recorder, error) {
	dbPath := filepath.Join(dataPath, "replays")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать компрессор: %w", err)
	}
	decompressor, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать декомпрессор: %w", err)
	}

	return &Recorder{
		db:           db,
		logger:       logging.GetReplayLogger(),
		compressor:   compressor,
		decompressor: decompressor,
		isReady:      true,
	}, nil
}

// BeginSession открывает новую сессию записи и возвращает её идентификатор
func (r *Recorder) BeginSession(name string) (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return "", fmt.Errorf("журнал закрыт")
	}
	if r.current != nil {
		return "", fmt.Errorf("сессия %s ещё не завершена", r.current.ID)
	}

	meta := &SessionMeta{
		ID:        uuid.New().String(),
		Name:      name,
		StartedAt: time.Now().UTC(),
	}
	if err := r.writeMeta(meta); err != nil {
		return "", err
	}
	r.current = meta
	r.logger.Info("📼 Запись сессии начата: %s (%s)", meta.Name, meta.ID)
	return meta.ID, nil
}

// Record дописывает снапшот в активную сессию
func (r *Recorder) Record(snap *protocol.WorldSnapshot) error {
	if snap == nil {
		return nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return fmt.Errorf("журнал закрыт")
	}
	if r.current == nil {
		return fmt.Errorf("нет активной сессии")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("ошибка сериализации снапшота: %w", err)
	}
	packed := r.compressor.EncodeAll(data, nil)

	key := fmt.Sprintf(tickKeyFormat, r.current.ID, snap.Tick)
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), packed)
	})
	if err != nil {
		return fmt.Errorf("ошибка записи в BadgerDB: %w", err)
	}

	r.current.Ticks++
	return nil
}

// EndSession закрывает активную сессию и фиксирует её метаданные
func (r *Recorder) EndSession() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.current == nil {
		return fmt.Errorf("нет активной сессии")
	}

	r.current.EndedAt = time.Now().UTC()
	if err := r.writeMeta(r.current); err != nil {
		return err
	}
	r.logger.Info("📼 Запись сессии завершена: %s (%d тиков)", r.current.ID, r.current.Ticks)
	r.current = nil
	return nil
}

// Sessions возвращает метаданные всех записанных сессий, новые первыми.
// Повреждённые записи пропускаются с предупреждением.
func (r *Recorder) Sessions() ([]SessionMeta, error) {
	r.mutex.Lock()
	if !r.isReady {
		r.mutex.Unlock()
		return nil, fmt.Errorf("журнал закрыт")
	}
	r.mutex.Unlock()

	var out []SessionMeta
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(sessionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var data []byte
			if err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			}); err != nil {
				return err
			}

			var meta SessionMeta
			if err := json.Unmarshal(data, &meta); err != nil {
				r.logger.Warn("Повреждённые метаданные сессии %s: %v", item.Key(), err)
				continue
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// Session возвращает метаданные одной сессии
func (r *Recorder) Session(sessionID string) (*SessionMeta, error) {
	var data []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionKeyPrefix + sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("сессия %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	var meta SessionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("ошибка десериализации метаданных: %w", err)
	}
	return &meta, nil
}

// Snapshots возвращает все снапшоты сессии в порядке тиков.
// Ключи содержат тик с ведущими нулями, поэтому порядок обхода
// BadgerDB и есть порядок тиков. Повреждённые записи пропускаются.
func (r *Recorder) Snapshots(sessionID string) ([]*protocol.WorldSnapshot, error) {
	var out []*protocol.WorldSnapshot
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(fmt.Sprintf(tickScanFormat, sessionID))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var packed []byte
			if err := item.Value(func(val []byte) error {
				packed = append([]byte{}, val...)
				return nil
			}); err != nil {
				return err
			}

			data, err := r.decompressor.DecodeAll(packed, nil)
			if err != nil {
				r.logger.Warn("Повреждённый снапшот %s: %v", item.Key(), err)
				continue
			}
			var snap protocol.WorldSnapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				r.logger.Warn("Нечитаемый снапшот %s: %v", item.Key(), err)
				continue
			}
			out = append(out, &snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return out, nil
}

// Close завершает активную сессию, если она есть, и закрывает хранилище
func (r *Recorder) Close() error {
	r.mutex.Lock()
	if !r.isReady {
		r.mutex.Unlock()
		return nil
	}
	r.isReady = false
	current := r.current
	r.current = nil
	r.mutex.Unlock()

	if current != nil {
		current.EndedAt = time.Now().UTC()
		if err := r.writeMeta(current); err != nil {
			r.logger.Warn("Не удалось зафиксировать сессию при закрытии: %v", err)
		}
	}

	r.compressor.Close()
	r.decompressor.Close()
	return r.db.Close()
}

func (r *Recorder) writeMeta(meta *SessionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sessionKeyPrefix+meta.ID), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка записи метаданных: %w", err)
	}
	return nil
}
