package usecase

import (
	"sync"

	"bookingsync-service/internal/domain/entity"
	"bookingsync-service/pkg/logger"
)

// ChangeFeed is the ordered, at-least-once sequence of committed store
// writes. Stores call Append under their commit lock, so sequence numbers
// follow commit order. Subscribers tail the feed from "now": there is no
// replay, and a subscriber that cannot drain its buffer is dropped so that
// Append never blocks a commit.
type ChangeFeed struct {
	mu     sync.Mutex
	seq    int64
	nextID int
	subs   map[int]chan entity.ChangeEvent
	log    logger.Logger
}

// NewChangeFeed creates an empty feed.
func NewChangeFeed(log logger.Logger) *ChangeFeed {
	return &ChangeFeed{
		subs: make(map[int]chan entity.ChangeEvent),
		log:  log,
	}
}

// Append stamps the next sequence number onto ev and delivers it to every
// subscriber whose buffer has room. A full subscriber is closed and removed;
// the event is never withheld from the others.
func (f *ChangeFeed) Append(ev entity.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	ev.Seq = f.seq

	for id, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.log.Warn("dropping feed subscriber, buffer full", "subscriber", id, "seq", ev.Seq)
			delete(f.subs, id)
			close(ch)
		}
	}
}

// Subscribe registers a new tail subscriber with the given buffer size and
// returns its channel plus a cancel func. The channel is closed when the
// subscription ends, whether by cancel or by falling behind.
func (f *ChangeFeed) Subscribe(buffer int) (<-chan entity.ChangeEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan entity.ChangeEvent, buffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Seq returns the sequence number of the most recently appended event.
func (f *ChangeFeed) Seq() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}
