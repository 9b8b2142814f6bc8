package bus

import (
	"sync"
	"sync/atomic"

	"trade_core/pkg/logger"
)

// Bus — broadcast-шина с ограниченным кольцом на каждого подписчика.
// Медленный подписчик теряет самые старые элементы, остальных это не тормозит.
// Порядок доставки внутри одного подписчика совпадает с порядком публикации.
type Bus[T any] struct {
	mu       sync.Mutex
	subs     map[string]*Subscription[T]
	capacity int
	onLag    func(name string, dropped int)
}

type Subscription[T any] struct {
	name    string
	ch      chan T
	dropped atomic.Int64
}

func New[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bus[T]{
		subs:     make(map[string]*Subscription[T]),
		capacity: capacity,
	}
}

// OnLag регистрирует колбэк на переполнение подписчика (для LaggedConsumer-событий).
func (b *Bus[T]) OnLag(fn func(name string, dropped int)) {
	b.mu.Lock()
	b.onLag = fn
	b.mu.Unlock()
}

func (b *Bus[T]) Subscribe(name string) *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &Subscription[T]{
		name: name,
		ch:   make(chan T, b.capacity),
	}
	b.subs[name] = s
	return s
}

func (b *Bus[T]) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.subs[name]; ok {
		delete(b.subs, name)
		close(s.ch)
	}
}

// Publish раскладывает элемент всем подписчикам. Никогда не блокируется:
// при переполнении кольца подписчика выбрасывается самый старый элемент.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		select {
		case s.ch <- v:
			continue
		default:
		}
		// кольцо полное: выбрасываем старейший, кладём новый
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- v:
		default:
		}
		lag := int(s.dropped.Add(1))
		logger.Warn("lagged consumer %q: dropped oldest, lag=%d", s.name, lag)
		if b.onLag != nil {
			b.onLag(s.name, lag)
		}
	}
}

// C — канал подписчика для чтения.
func (s *Subscription[T]) C() <-chan T { return s.ch }

func (s *Subscription[T]) Name() string { return s.name }

// Dropped — накопленное число потерянных элементов.
func (s *Subscription[T]) Dropped() int { return int(s.dropped.Load()) }
