package manychat

import (
	"errors"
	"sync"
	"time"
)

// ErrQueueFull es la señal de backpressure: la cola de despacho está llena y
// el caller tiene que reintentar más tarde en vez de apilar latencia infinita.
var ErrQueueFull = errors.New("manychat: cola de requests llena")

const (
	defaultQueueDepth = 100
	// Manychat corta a ~10 req/s; con 150ms entre despachos quedamos holgados
	defaultDispatchInterval = 150 * time.Millisecond
)

// dispatchQueue serializa todas las llamadas a la API: un solo loop de drenado
// procesa de a un trabajo con una pausa fija entre despachos, sin importar
// cuántos callers encolen en paralelo. Eso respeta el techo de requests por
// segundo de la plataforma sin token bucket.
type dispatchQueue struct {
	jobs     chan func()
	interval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func newDispatchQueue(depth int, interval time.Duration) *dispatchQueue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	if interval <= 0 {
		interval = defaultDispatchInterval
	}

	q := &dispatchQueue{
		jobs:     make(chan func(), depth),
		interval: interval,
		done:     make(chan struct{}),
	}
	go q.drain()
	return q
}

// submit encola el trabajo; falla inmediato con ErrQueueFull si no hay lugar
func (q *dispatchQueue) submit(job func()) error {
	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return errors.New("manychat: cola de requests cerrada")
	default:
		return ErrQueueFull
	}
}

func (q *dispatchQueue) drain() {
	for {
		select {
		case <-q.done:
			return
		case job := <-q.jobs:
			job()
			time.Sleep(q.interval)
		}
	}
}

func (q *dispatchQueue) close() {
	q.closeOnce.Do(func() { close(q.done) })
}
