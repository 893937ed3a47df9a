package cdp

import (
	"sync"

	"github.com/chromedp/cdproto"

	"github.com/browserbench/browserbench/log"
)

const eventBufferSize = 16

// Event is a CDP event received from the browser.
type Event struct {
	Name      cdproto.MethodType
	Data      any
	SessionID string
}

type subscriber struct {
	sessionID string
	ch        chan *Event
}

type eventWatcher struct {
	logger *log.Logger
	subsMu sync.RWMutex
	subs   map[cdproto.MethodType][]*subscriber
}

func newEventWatcher(logger *log.Logger) *eventWatcher {
	return &eventWatcher{
		logger: logger,
		subs:   make(map[cdproto.MethodType][]*subscriber),
	}
}

// subscribe returns a channel receiving the events of the session and a
// function that unsubscribes and closes the channel.
func (w *eventWatcher) subscribe(sessionID string, events ...cdproto.MethodType) (<-chan *Event, func()) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	sub := &subscriber{sessionID: sessionID, ch: make(chan *Event, eventBufferSize)}
	for _, evt := range events {
		w.subs[evt] = append(w.subs[evt], sub)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			w.subsMu.Lock()
			defer w.subsMu.Unlock()
			for _, evt := range events {
				w.subs[evt] = removeSubscriber(w.subs[evt], sub)
				if len(w.subs[evt]) == 0 {
					delete(w.subs, evt)
				}
			}
			close(sub.ch)
		})
	}

	return sub.ch, unsubscribe
}

func (w *eventWatcher) notify(evt *Event) {
	w.subsMu.RLock()
	defer w.subsMu.RUnlock()

	for _, sub := range w.subs[evt.Name] {
		if sub.sessionID != evt.SessionID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			w.logger.Warnf("cdp:event", "dropped %s event for session %q: subscriber is full", evt.Name, evt.SessionID)
		}
	}
}

func removeSubscriber(subs []*subscriber, sub *subscriber) []*subscriber {
	out := subs[:0]
	for _, s := range subs {
		if s != sub {
			out = append(out, s)
		}
	}
	return out
}
