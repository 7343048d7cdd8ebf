package agent

import (
	"sync"

	"github.com/rs/zerolog"

	"voice-agent-service/internal/observability/metrics"
)

const notifyQueueSize = 64

// notifier delivers turn events to a TurnObserver in order on its own
// goroutine, so a slow observer never holds up the turn loop.
type notifier struct {
	events  chan func()
	done    chan struct{}
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	closed bool
}

func newNotifier(logger zerolog.Logger, m *metrics.Metrics) *notifier {
	n := &notifier{
		events:  make(chan func(), notifyQueueSize),
		done:    make(chan struct{}),
		logger:  logger,
		metrics: m,
	}
	go n.run()
	return n
}

func (n *notifier) run() {
	defer close(n.done)
	for deliver := range n.events {
		deliver()
	}
}

// send queues deliver without blocking. A full queue drops the event.
func (n *notifier) send(event string, deliver func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.events <- deliver:
	default:
		n.metrics.RecordTurnEventDropped()
		n.logger.Warn().Str("event", event).Msg("Turn event dropped, observer is behind")
	}
}

// close stops accepting events and waits until the queued ones are delivered.
func (n *notifier) close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.events)
	}
	n.mu.Unlock()
	<-n.done
}
