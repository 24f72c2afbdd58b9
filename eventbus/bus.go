// Package eventbus is the pool's event bus adapter: a type-safe publish
// interface surfacing decoded packets and lifecycle events to external
// subscribers. Internally it is one named protoactor-go actor, fanning
// out to Go channels registered with Subscribe.
package eventbus

import (
	"sync"

	"github.com/AsynkronIT/protoactor-go/actor"
)

// Topic names every event the pool publishes, including node.ban and
// node.unban.
type Topic string

const (
	TopicOrder               Topic = "packet.order"
	TopicOrderInvalidation   Topic = "packet.orderInvalidation"
	TopicGetOrders           Topic = "packet.getOrders"
	TopicSanitySwapInit      Topic = "packet.sanitySwapInit"
	TopicSwapRequest         Topic = "packet.swapRequest"
	TopicSwapAccepted        Topic = "packet.swapAccepted"
	TopicSwapFailed          Topic = "packet.swapFailed"
	TopicPeerActive          Topic = "peer.active"
	TopicPeerClose           Topic = "peer.close"
	TopicPeerVerifyPairs     Topic = "peer.verifyPairs"
	TopicPeerPairDropped     Topic = "peer.pairDropped"
	TopicPeerNodeStateUpdate Topic = "peer.nodeStateUpdate"
	TopicNodeBan             Topic = "node.ban"
	TopicNodeUnban           Topic = "node.unban"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Topic   Topic
	Payload interface{}
}

// publish is the internal actor mailbox message; it carries the Event
// plus nothing else.
type publish struct {
	evt Event
}

// Bus is the external publish/subscribe surface. Publish is fire-and-
// forget (actor.PID.Tell, never blocking the caller); Subscribe registers
// a buffered channel that receives every Event for the given topic.
type Bus struct {
	pid *actor.PID

	mu   sync.RWMutex
	subs map[Topic][]chan Event
}

// busActor is the protoactor-go Actor backing the Bus; its Receive
// dispatches each publish message to the subscriber channels registered
// for that topic.
type busActor struct {
	bus *Bus
}

func (a *busActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *publish:
		a.bus.dispatch(msg.evt)
	}
}

// New spawns the bus actor under the given name.
func New(name string) (*Bus, error) {
	b := &Bus{subs: make(map[Topic][]chan Event)}
	props := actor.FromProducer(func() actor.Actor {
		return &busActor{bus: b}
	})
	pid, err := actor.SpawnNamed(props, name)
	if err != nil {
		return nil, err
	}
	b.pid = pid
	return b, nil
}

// Publish enqueues evt on the bus actor's mailbox. It never blocks the
// caller on slow subscribers; dispatch itself is non-blocking per
// subscriber (see dispatch).
func (b *Bus) Publish(topic Topic, payload interface{}) {
	b.pid.Tell(&publish{evt: Event{Topic: topic, Payload: payload}})
}

// Subscribe registers a channel to receive every Event published on
// topic. The returned function unsubscribes and closes that channel.
func (b *Bus) Subscribe(topic Topic, buffer int) (ch <-chan Event, unsubscribe func()) {
	c := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], c)
	b.mu.Unlock()
	return c, func() { b.unsubscribe(topic, c) }
}

func (b *Bus) unsubscribe(topic Topic, target chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[topic]
	for i, c := range list {
		if c == target {
			b.subs[topic] = append(list[:i], list[i+1:]...)
			close(target)
			return
		}
	}
}

// dispatch fans evt out to every subscriber of its topic. A subscriber
// whose buffer is full is skipped rather than blocking the bus actor —
// broadcasts must never stall on a slow listener.
func (b *Bus) dispatch(evt Event) {
	b.mu.RLock()
	targets := append([]chan Event(nil), b.subs[evt.Topic]...)
	b.mu.RUnlock()
	for _, c := range targets {
		select {
		case c <- evt:
		default:
		}
	}
}

// Stop terminates the backing actor. Pending mailbox messages are
// dropped.
func (b *Bus) Stop() {
	b.pid.Stop()
}
