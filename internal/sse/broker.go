// Package sse streams record change notifications to browser clients over
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"time"
)

// Event types sent on the stream.
const (
	TypeRecordCreated = "record.created"
	TypeRecordUpdated = "record.updated"
	TypeRecordDeleted = "record.deleted"
	TypeTreeUpdated   = "tree.updated"
)

const keepAliveInterval = 15 * time.Second

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// RecordChange is the payload of record.* events.
type RecordChange struct {
	Path   string `json:"path"`
	Folder string `json:"folder"`
}

type recordEventReq struct {
	kind string
	path string
}

type subscription struct {
	ch     chan []byte
	folder string
}

// inScope reports whether a record in folder is visible to a client
// watching scope. An empty scope sees everything.
func inScope(scope, folder string) bool {
	return scope == "" || folder == scope || strings.HasPrefix(folder, scope+"/")
}

// Broker fans events out to subscribed clients.
//
// A single goroutine owns the client set, each client's folder scope and
// the tree throttle timestamp. Public methods talk to it over channels.
// Record events reach only clients whose scope covers the record's
// folder; tree.updated reaches everyone.
type Broker struct {
	treeMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	recordEventCh chan recordEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. treeThrottle is the minimum gap between two
// tree.updated events.
func NewBroker(treeThrottle time.Duration) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = 2 * time.Second
	}

	b := &Broker{
		treeMin:       treeThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		recordEventCh: make(chan recordEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// encode renders an event in text/event-stream framing.
func encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)), nil
}

func eventType(kind string) string {
	switch kind {
	case "created":
		return TypeRecordCreated
	case "updated":
		return TypeRecordUpdated
	case "deleted":
		return TypeRecordDeleted
	}
	return ""
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	var lastTree time.Time

	send := func(event Event, match func(scope string) bool) {
		raw, err := encode(event)
		if err != nil {
			return
		}
		for ch, scope := range clients {
			if !match(scope) {
				continue
			}
			select {
			case ch <- raw:
			default:
				// slow client, drop
			}
		}
	}
	everyone := func(string) bool { return true }

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.folder

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			send(event, everyone)

		case req := <-b.recordEventCh:
			typ := eventType(req.kind)
			if typ == "" {
				continue
			}
			folder := path.Dir(req.path)
			send(Event{Type: typ, Data: RecordChange{Path: req.path, Folder: folder}}, func(scope string) bool {
				return inScope(scope, folder)
			})

			now := time.Now()
			if now.Sub(lastTree) >= b.treeMin {
				lastTree = now
				send(Event{Type: TypeTreeUpdated, Data: map[string]string{}}, everyone)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client that receives every event.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeFolder("")
}

// SubscribeFolder adds a client that receives record events for folder and
// its subfolders only.
func (b *Broker) SubscribeFolder(folder string) chan []byte {
	folder = strings.Trim(folder, "/")
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, folder: folder}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishRecordEvent publishes a record change ("created", "updated" or
// "deleted") followed by a throttled tree.updated. Its signature matches
// index.EventCallback.
func (b *Broker) PublishRecordEvent(kind, p string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.recordEventCh <- recordEventReq{kind: kind, path: p}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). The optional
// folder query parameter narrows record events to that subtree.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeFolder(r.URL.Query().Get("folder"))
	defer b.Unsubscribe(ch)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
