package devicecomm

import (
	"sync"
)

// defaultQueueCapacity bounds the offline queue. Commands beyond this
// are rejected rather than growing without limit during a long outage.
const defaultQueueCapacity = 256

// queuedMessage is one outbound publish held while the broker is
// unreachable.
type queuedMessage struct {
	topic   string
	payload []byte
	qos     byte
}

// offlineQueue holds outbound commands in FIFO order while the broker
// connection is down. Flush preserves enqueue order so controllers see
// commands in the sequence they were issued.
type offlineQueue struct {
	mu       sync.Mutex
	messages []queuedMessage
	capacity int
}

func newOfflineQueue(capacity int) *offlineQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &offlineQueue{capacity: capacity}
}

// enqueue appends a message, rejecting when the queue is full.
func (q *offlineQueue) enqueue(topic string, payload []byte, qos byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) >= q.capacity {
		return ErrQueueFull
	}

	q.messages = append(q.messages, queuedMessage{topic: topic, payload: payload, qos: qos})
	return nil
}

// drain removes and returns all queued messages in FIFO order.
func (q *offlineQueue) drain() []queuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	messages := q.messages
	q.messages = nil
	return messages
}

// requeueFront puts unsent messages back at the head of the queue,
// ahead of anything enqueued during a failed flush.
func (q *offlineQueue) requeueFront(messages []queuedMessage) {
	if len(messages) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.messages = append(messages, q.messages...)
}

// size returns the number of queued messages.
func (q *offlineQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
