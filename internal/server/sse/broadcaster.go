// Package sse streams reconcile events to HTTP clients as Server-Sent Events.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// WriteTimeout bounds a single write so a stale client cannot stall a broadcast.
	WriteTimeout = 2 * time.Second
	// KeepAlive is the interval between comment frames on idle streams.
	KeepAlive = 30 * time.Second
)

// Client is one connected event stream.
type Client struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
	closed  atomic.Bool
	mu      sync.Mutex // serializes writes to writer
	ID      string
}

// close marks the client finished. Safe to call more than once.
func (c *Client) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
}

// Done is closed when the client is removed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.writer.Write(frame); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

// Broadcaster fans events out to every connected client.
type Broadcaster struct {
	clients map[string]*Client
	mu      sync.RWMutex
	nextID  int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[string]*Client)}
}

// AddClient registers a stream. w must support flushing.
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	client := &Client{
		ID:      fmt.Sprintf("client-%d", b.nextID),
		writer:  w,
		flusher: flusher,
		done:    make(chan struct{}),
	}
	b.clients[client.ID] = client
	count := len(b.clients)
	b.mu.Unlock()

	log.Debug().Str("clientId", client.ID).Int("totalClients", count).Msg("SSE client connected")
	return client, nil
}

// RemoveClient unregisters a stream.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	delete(b.clients, client.ID)
	count := len(b.clients)
	b.mu.Unlock()

	client.close()
	log.Debug().Str("clientId", client.ID).Int("totalClients", count).Msg("SSE client disconnected")
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Frame encodes one SSE message. An empty event name sends an unnamed message.
func Frame(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if event == "" {
		return []byte(fmt.Sprintf("data: %s\n\n", payload)), nil
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload)), nil
}

// Publish sends data as a named event to every client. Clients whose write
// fails or times out are dropped.
func (b *Broadcaster) Publish(event string, data any) {
	frame, err := Frame(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal SSE data")
		return
	}

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	dead := make(chan *Client, len(clients))
	var wg sync.WaitGroup
	for _, c := range clients {
		if c.closed.Load() {
			continue
		}
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			b.writeToClient(c, frame, dead)
		}(c)
	}
	wg.Wait()
	close(dead)

	for c := range dead {
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) writeToClient(c *Client, frame []byte, dead chan<- *Client) {
	result := make(chan error, 1)
	go func() { result <- c.write(frame) }()

	select {
	case err := <-result:
		if err != nil {
			log.Debug().Str("clientId", c.ID).Err(err).Msg("Failed to write to SSE client")
			dead <- c
		}
	case <-time.After(WriteTimeout):
		log.Warn().Str("clientId", c.ID).Dur("timeout", WriteTimeout).Msg("SSE write timed out")
		dead <- c
	case <-c.done:
	}
}

// ServeHTTP streams events until the request context ends.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client, err := b.AddClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.RemoveClient(client)

	hello, _ := Frame("connected", map[string]string{"clientId": client.ID})
	if err := client.write(hello); err != nil {
		return
	}

	ticker := time.NewTicker(KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case <-ticker.C:
			if err := client.write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
		}
	}
}
