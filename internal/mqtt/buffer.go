package mqtt

import "sync"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// replayBuffer holds messages published while disconnected. A retained
// message replaces any earlier retained message on the same topic, since the
// broker would only keep the last one anyway. When full, the oldest retained
// message is evicted before any outcome or action.
// Not safe for concurrent use; the caller must synchronize.
type replayBuffer struct {
	msgs     []bufferedMsg
	capacity int
	overflow bool // a message was dropped since the last drain
}

func newReplayBuffer(capacity int) *replayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &replayBuffer{
		msgs:     make([]bufferedMsg, 0, capacity),
		capacity: capacity,
	}
}

// push appends msg. It returns true the first time a message is dropped
// since the last drain so the caller can log the overflow once.
func (r *replayBuffer) push(msg bufferedMsg) bool {
	if msg.retained {
		if i := r.find(func(m bufferedMsg) bool { return m.retained && m.topic == msg.topic }); i >= 0 {
			r.remove(i)
		}
	}

	dropped := false
	if len(r.msgs) == r.capacity {
		victim := r.find(func(m bufferedMsg) bool { return m.retained })
		if victim < 0 {
			victim = 0
		}
		r.remove(victim)
		dropped = true
	}
	r.msgs = append(r.msgs, msg)

	if !dropped {
		return false
	}
	first := !r.overflow
	r.overflow = true
	return first
}

func (r *replayBuffer) find(match func(bufferedMsg) bool) int {
	for i, m := range r.msgs {
		if match(m) {
			return i
		}
	}
	return -1
}

func (r *replayBuffer) remove(i int) {
	r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
}

// drainAll returns the buffered messages oldest first and empties the buffer.
func (r *replayBuffer) drainAll() []bufferedMsg {
	if len(r.msgs) == 0 {
		return nil
	}
	out := r.msgs
	r.msgs = make([]bufferedMsg, 0, r.capacity)
	r.overflow = false
	return out
}

func (r *replayBuffer) len() int {
	return len(r.msgs)
}

// outbox decides under one lock whether a message goes to the broker or is
// held for replay, so nothing can be held after the replay has been taken.
type outbox struct {
	mu            sync.Mutex
	buf           *replayBuffer
	online        bool
	everConnected bool
}

func newOutbox(capacity int) *outbox {
	return &outbox{buf: newReplayBuffer(capacity)}
}

// hold buffers msg when offline. held reports that it must not go to the
// broker now; QoS 0 messages are dropped rather than buffered. overflow
// is set the first time a buffered message is dropped.
func (o *outbox) hold(msg bufferedMsg) (held, overflow bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.online {
		return false, false
	}
	if msg.qos == 0 && !msg.retained {
		return true, false
	}
	return true, o.buf.push(msg)
}

// connected marks the outbox online and returns what was held.
func (o *outbox) connected() (pending []bufferedMsg, reconnect bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	reconnect = o.everConnected
	o.everConnected = true
	o.online = true
	return o.buf.drainAll(), reconnect
}

func (o *outbox) disconnected() {
	o.mu.Lock()
	o.online = false
	o.mu.Unlock()
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.len()
}
