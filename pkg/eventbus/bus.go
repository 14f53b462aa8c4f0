// Package eventbus provides the in-process pub/sub bus that decouples the
// chart runner from interested listeners such as the webhook notifier.  The
// runner publishes as rows are evaluated; subscribers drain their channel at
// their own pace and acknowledge shutdown through a done channel.
package eventbus

import (
	"context"
	"sync"
)

// Topic creates a group of subscribers that only receive events published to that channel
type Topic string

const (
	defaultTopic Topic = "__default__"

	// TopicRows receives one event per evaluated measurement row.
	TopicRows Topic = "rows"
	// TopicTriggers receives an event whenever a rule re-baselines the chart.
	TopicTriggers Topic = "triggers"
	// TopicSignals receives an event whenever a row is flagged as an outlier.
	TopicSignals Topic = "signals"
	// TopicRun receives run lifecycle events: started, completed, failed.
	TopicRun Topic = "run"
)

// EventBus dispatches events to all subscribers on one or more topics.  If no topic is set, a default
// channel is created that dispatches events to every subscriber.  Subscribers can use the EventType to
// filter which events they respond to rather than configuring multiple topics.  Events reach every
// subscriber in the order they were dispatched.
type EventBus struct {
	subscribers map[Topic][]chan Event
	done        []chan struct{}
	prev        chan struct{}
	dispatch    sync.WaitGroup
	mutex       sync.RWMutex
}

// New returns a new event bus.  A default topic is created, but subscribers may create other topics
// when they register.
func New() *EventBus {
	return &EventBus{
		subscribers: make(map[Topic][]chan Event),
	}
}

// Subscribe will register a subscriber to 0 or more topics.  If no topic is defined, the subscriber
// is added to the default channel and receives all events published on any topic.
//
// The subscriber receives two channels: the first receives events and is closed when the event bus
// shuts down.  Subscribers should treat a closed event channel as the shutdown signal, wait for any
// of their own goroutines to exit, then close the second channel (done channel) to indicate that the
// subscriber has finished all work.
func (e *EventBus) Subscribe(topics ...Topic) (chan Event, chan struct{}) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	c := make(chan Event, 1)
	done := make(chan struct{})
	e.done = append(e.done, done)

	// subscribe to the default topic if no topics defined
	if len(topics) == 0 {
		topics = []Topic{defaultTopic}
	}

	for _, topic := range topics {
		ch, ok := e.subscribers[topic]
		switch {
		case ok:
			e.subscribers[topic] = append(ch, c)
		default:
			e.subscribers[topic] = append([]chan Event{}, c)
		}
	}
	return c, done
}

// Unsubscribe removes the subscriber from every topic and closes both its channels.  Shutdown will
// no longer wait on an unsubscribed done channel.
func (e *EventBus) Unsubscribe(c chan Event, done chan struct{}) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	removed := false
	for topic, chs := range e.subscribers {
		for i, ch := range chs {
			if ch == c {
				e.subscribers[topic] = append(e.subscribers[topic][0:i], e.subscribers[topic][i+1:]...)
				removed = true
				break
			}
		}
	}
	// a channel subscribed to several topics appears in each list but must only close once
	if removed {
		close(c)
	}

	for i, d := range e.done {
		if d == done {
			close(d)
			e.done = append(e.done[0:i], e.done[i+1:]...)
			break
		}
	}
}

// Dispatch will send the event to 0 or more topics.  All events are broadcast to default topic
// subscribers, even when other topics are specified.  Dispatch does not block on slow subscribers;
// delivery happens on a separate goroutine, but strictly in dispatch order.
func (e *EventBus) Dispatch(event Event, topics ...Topic) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	// always send to the defaultTopic even if other topics specified
	topics = append(topics, defaultTopic)

	seen := map[chan Event]struct{}{}
	targets := []chan Event{}
	for _, topic := range topics {
		// no subscribers on the topic means the event is silently dropped there; it should be
		// fine to emit on specialized topics that have no listeners in some configurations
		for _, ch := range e.subscribers[topic] {
			if _, ok := seen[ch]; ok {
				continue
			}
			seen[ch] = struct{}{}
			targets = append(targets, ch)
		}
	}

	if len(targets) == 0 {
		return
	}

	// each delivery waits for the previous one so events cannot overtake
	// each other between dispatch goroutines
	prev := e.prev
	cur := make(chan struct{})
	e.prev = cur

	e.dispatch.Add(1)
	go func(event Event, chs []chan Event, prev, cur chan struct{}) {
		defer e.dispatch.Done()
		defer close(cur)
		if prev != nil {
			<-prev
		}
		for _, ch := range chs {
			ch <- event
		}
	}(event, targets, prev, cur)
}

// Shutdown will send the shutdown signal to all subscribers and block until they exit.  Use a
// context timeout to prevent shutdown from hanging if a subscriber cannot finish processing its
// events in a reasonable time; Shutdown returns ErrShutdownTimeout in that case.  No events may
// be dispatched once Shutdown has been called.
func (e *EventBus) Shutdown(ctx context.Context) error {
	// let in-flight dispatches land before closing subscriber channels
	inflight := make(chan struct{})
	go func() {
		e.dispatch.Wait()
		close(inflight)
	}()
	select {
	case <-inflight:
	case <-ctx.Done():
		return ErrShutdownTimeout
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	done := make(chan struct{})
	go shutdownNotify(done, append([]chan struct{}{}, e.done...))

	closed := map[chan Event]struct{}{}
	for _, chs := range e.subscribers {
		for _, ch := range chs {
			// a channel subscribed to several topics appears in each list but must only close once
			if _, ok := closed[ch]; ok {
				continue
			}
			closed[ch] = struct{}{}
			close(ch)
		}
	}

	select {
	case <-ctx.Done():
		return ErrShutdownTimeout
	case <-done:
		return nil
	}
}

// shutdownNotify watches each subscriber done channel for the subscriber to close it, then closes
// the notification channel once all have.  Subscribers should detect a closed event channel, do
// their cleanup, then close their done channel when all their goroutines have exited.
func shutdownNotify(done chan struct{}, all []chan struct{}) {
	var wg sync.WaitGroup

	for _, ch := range all {
		wg.Add(1)
		go func(c chan struct{}) {
			<-c
			wg.Done()
		}(ch)
	}
	wg.Wait()
	close(done)
}
