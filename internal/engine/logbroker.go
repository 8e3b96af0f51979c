package engine

import "sync"

// subscriberBufferSize is the channel buffer for each log subscriber.
// Lines are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// LogBroker fans task log lines out to live subscribers and numbers them.
// It is safe for concurrent use.
//
// A finished task keeps a closed marker so that a subscriber arriving after
// completion gets a closed channel instead of waiting forever.
type LogBroker struct {
	mu     sync.Mutex
	topics map[string]*logTopic
}

type logTopic struct {
	subs    map[int]chan string
	nextSub int
	seq     int
	closed  bool
}

// NewLogBroker creates an empty log broker.
func NewLogBroker() *LogBroker {
	return &LogBroker{
		topics: make(map[string]*logTopic),
	}
}

// topic returns the topic for taskID, creating it. Callers hold b.mu.
func (b *LogBroker) topic(taskID string) *logTopic {
	t, ok := b.topics[taskID]
	if !ok {
		t = &logTopic{subs: make(map[int]chan string)}
		b.topics[taskID] = t
	}
	return t
}

// Subscribe returns a channel of log lines for taskID and a function that
// cancels the subscription. The channel is closed when the task finishes, or
// immediately if it already has.
func (b *LogBroker) Subscribe(taskID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(taskID)
	ch := make(chan string, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish delivers line to every subscriber of taskID and returns the line's
// sequence number within the task, starting at 0. Subscribers whose buffer is
// full miss the line. Lines for a finished task are discarded and -1 is
// returned.
func (b *LogBroker) Publish(taskID, line string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(taskID)
	if t.closed {
		return -1
	}

	seq := t.seq
	t.seq++
	for _, ch := range t.subs {
		select {
		case ch <- line:
		default:
		}
	}
	return seq
}

// Close marks taskID as finished and closes every subscriber channel.
func (b *LogBroker) Close(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(taskID)
	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
