// Package pipeline implements the producer and consumer tasks of a run and
// the termination protocol that connects them.
//
// Producers route every line of their source to the shard queue chosen by
// the key's hash. Each producer decrements the shared Counter when its
// source is exhausted; the one producer that observes the count reach zero
// puts a Sentinel on every queue. Consumers drain their queue until it is
// empty and no producer remains, discarding sentinels and merging data into
// the shared index.
package pipeline

import "github.com/Adithya-Monish-Kumar-K/wordindex/internal/indexer/index"

// Kind tags a Message. The zero Kind is invalid so that a zero Message is
// never mistaken for either variant.
type Kind uint8

const (
	KindData Kind = iota + 1
	KindSentinel
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindSentinel:
		return "sentinel"
	default:
		return "invalid"
	}
}

// Message is the unit carried by shard queues: either a data record or a
// sentinel that wakes a consumer blocked on an empty queue.
type Message struct {
	kind   Kind
	record index.Record
}

// Data wraps r. Any record, including one with an empty key, is data.
func Data(r index.Record) Message {
	return Message{kind: KindData, record: r}
}

// Sentinel returns the end-of-input marker.
func Sentinel() Message {
	return Message{kind: KindSentinel}
}

func (m Message) Kind() Kind { return m.kind }

func (m Message) IsSentinel() bool { return m.kind == KindSentinel }

// Record returns the wrapped record and whether m is a data message.
func (m Message) Record() (index.Record, bool) {
	return m.record, m.kind == KindData
}
