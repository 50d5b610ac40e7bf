package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/suntank/hungryHatchling-sub000/internal/eventbus"
)

const (
	defaultNatsURL = "nats://127.0.0.1:4222"
	timeFormat     = "2006-01-02T15:04:05Z"

	// historyIdle — пауза без событий, после которой история считается
	// дочитанной (durable consumer отдаёт стрим с начала)
	historyIdle = 2 * time.Second
)

func main() {
	var (
		natsURL = flag.String("url", defaultNatsURL, "адрес NATS")
		stream  = flag.String("stream", "EVENTS", "имя JetStream потока")
		command = flag.String("cmd", "tail", "команда: tail, stats, types")
		types   = flag.String("types", "", "фильтр типов событий через запятую")
		sources = flag.String("sources", "", "фильтр источников через запятую")
		limit   = flag.Int("limit", 100, "максимум событий (0 = без лимита)")
		follow  = flag.Bool("follow", false, "ждать новые события (как tail -f)")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Подключение к NATS не удалось: %v", err)
	}
	defer bus.Close()

	switch *command {
	case "tail":
		if err := tailEvents(bus, &tailOptions{
			Types:   parseStringList(*types),
			Sources: parseStringList(*sources),
			Limit:   *limit,
			Follow:  *follow,
		}); err != nil {
			log.Fatalf("❌ Tail: %v", err)
		}

	case "stats":
		if err := showStats(bus, eventbus.Filter{
			Types:   parseStringList(*types),
			Sources: parseStringList(*sources),
		}); err != nil {
			log.Fatalf("❌ Stats: %v", err)
		}

	case "types":
		if err := showTypes(bus); err != nil {
			log.Fatalf("❌ Types: %v", err)
		}

	default:
		fmt.Printf("❌ Неизвестная команда: %s\n", *command)
		fmt.Println("Доступные команды: tail, stats, types")
		os.Exit(1)
	}
}

type tailOptions struct {
	Types   []string
	Sources []string
	Limit   int
	Follow  bool
}

// tailEvents печатает события по мере чтения: сперва история стрима,
// в режиме follow дальше живые события до Ctrl+C.
func tailEvents(bus *eventbus.JetStreamBus, opts *tailOptions) error {
	fmt.Printf("📼 События потока (limit: %d, follow: %v)\n", opts.Limit, opts.Follow)

	count := 0
	err := consume(bus, eventbus.Filter{Types: opts.Types, Sources: opts.Sources}, opts.Follow,
		func(ev *eventbus.Envelope) bool {
			printEvent(ev)
			count++
			return opts.Follow || opts.Limit <= 0 || count < opts.Limit
		})

	fmt.Printf("\n📊 Всего событий: %d\n", count)
	return err
}

// showStats считает события истории по типам
func showStats(bus *eventbus.JetStreamBus, f eventbus.Filter) error {
	fmt.Println("📊 Статистика событий")

	counts := make(map[string]int)
	total := 0
	err := consume(bus, f, false, func(ev *eventbus.Envelope) bool {
		counts[ev.EventType]++
		total++
		return true
	})
	if err != nil {
		return err
	}

	fmt.Printf("Всего событий: %d\n", total)
	if total == 0 {
		return nil
	}

	fmt.Println("\nПо типам:")
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %d\n", name, counts[name])
	}
	return nil
}

type typeInfo struct {
	count     int
	sources   map[string]struct{}
	firstSeen time.Time
	lastSeen  time.Time
}

// showTypes выводит встреченные в истории типы событий
func showTypes(bus *eventbus.JetStreamBus) error {
	fmt.Println("📋 Типы событий в потоке")

	infos := make(map[string]*typeInfo)
	err := consume(bus, eventbus.Filter{}, false, func(ev *eventbus.Envelope) bool {
		ti := infos[ev.EventType]
		if ti == nil {
			ti = &typeInfo{sources: make(map[string]struct{}), firstSeen: ev.Timestamp}
			infos[ev.EventType] = ti
		}
		ti.count++
		ti.sources[ev.Source] = struct{}{}
		if ev.Timestamp.Before(ti.firstSeen) {
			ti.firstSeen = ev.Timestamp
		}
		if ev.Timestamp.After(ti.lastSeen) {
			ti.lastSeen = ev.Timestamp
		}
		return true
	})
	if err != nil {
		return err
	}

	names := make([]string, 0, len(infos))
	for name := range infos {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ti := infos[name]
		srcs := make([]string, 0, len(ti.sources))
		for s := range ti.sources {
			srcs = append(srcs, s)
		}
		sort.Strings(srcs)

		fmt.Printf("Тип: %s\n", name)
		fmt.Printf("  Количество: %d\n", ti.count)
		fmt.Printf("  Источники: %s\n", strings.Join(srcs, ", "))
		fmt.Printf("  Первое: %s\n", ti.firstSeen.UTC().Format(timeFormat))
		fmt.Printf("  Последнее: %s\n", ti.lastSeen.UTC().Format(timeFormat))
		fmt.Println()
	}
	return nil
}

// consume подписывается на поток и зовёт fn для каждого события.
// Без follow чтение заканчивается, когда historyIdle прошло без новых
// событий. fn возвращает false, чтобы остановиться раньше.
func consume(bus *eventbus.JetStreamBus, f eventbus.Filter, follow bool, fn func(*eventbus.Envelope) bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan *eventbus.Envelope, 256)
	sub, err := bus.Subscribe(ctx, f, func(_ context.Context, ev *eventbus.Envelope) {
		select {
		case events <- ev:
		default: // вывод не успевает, событие уже подтверждено
		}
	})
	if err != nil {
		return fmt.Errorf("подписка: %w", err)
	}
	defer sub.Unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()

	last := time.Now()
	for {
		select {
		case <-sigCh:
			return nil
		case ev := <-events:
			last = time.Now()
			if !fn(ev) {
				return nil
			}
		case <-tick.C:
			if !follow && time.Since(last) > historyIdle {
				return nil
			}
		}
	}
}

// printEvent выводит конверт одной строкой, полезную нагрузку следом
func printEvent(ev *eventbus.Envelope) {
	fmt.Printf("[%s] %-9s %s prio=%d %s\n",
		ev.Timestamp.Local().Format("15:04:05"),
		ev.Source, ev.EventType, ev.Priority, ev.ID)
	if len(ev.Payload) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, ev.Payload); err == nil {
			fmt.Printf("  %s\n", buf.String())
		} else {
			fmt.Printf("  %s\n", string(ev.Payload))
		}
	}
}

// parseStringList разбирает список через запятую
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
