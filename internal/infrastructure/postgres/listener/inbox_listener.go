// Package listener turns PostgreSQL notifications into in-process signals.
package listener

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/lib/pq"
)

const (
	channelName       = "inbox_pending"
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
)

// InboxNotification is the payload of the inbox insert trigger.
type InboxNotification struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
}

// InboxListener wakes the inbox consumer when items are enqueued, possibly
// by another process. It implements inbox.Notifier.
type InboxListener struct {
	connStr    string
	wake       chan struct{}
	shutdownCh chan struct{}
	done       chan struct{}
}

func NewInboxListener(connStr string) *InboxListener {
	return &InboxListener{
		connStr:    connStr,
		wake:       make(chan struct{}, 1),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Notifications is signalled at most once per burst of inserts.
func (l *InboxListener) Notifications() <-chan struct{} {
	return l.wake
}

// Start begins listening in a background goroutine.
func (l *InboxListener) Start(ctx context.Context) {
	go l.listen(ctx)
	log.Println("Inbox notification listener started")
}

// Stop shuts the listener down and waits for it.
func (l *InboxListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	log.Println("Inbox notification listener stopped")
}

func (l *InboxListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			log.Println("Reconnecting to PostgreSQL for inbox notifications...")
		}
	}
}

func (l *InboxListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			log.Println("Connected to PostgreSQL notification channel")
		case pq.ListenerEventDisconnected:
			log.Printf("Disconnected from PostgreSQL notification channel: %v", err)
		case pq.ListenerEventReconnected:
			log.Println("Reconnected to PostgreSQL notification channel")
			// Inserts made while disconnected were not announced.
			l.signal()
		case pq.ListenerEventConnectionAttemptFailed:
			log.Printf("Connection attempt failed: %v", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(channelName); err != nil {
		log.Printf("Failed to listen on channel %s: %v", channelName, err)
		return
	}
	log.Printf("Listening on channel: %s", channelName)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				return
			}
			l.handleNotification(n)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					log.Printf("Listener ping failed: %v", err)
				}
			}()
		}
	}
}

func (l *InboxListener) handleNotification(n *pq.Notification) {
	var payload InboxNotification
	if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
		log.Printf("Failed to parse inbox notification payload: %v", err)
	} else {
		log.Printf("User %s: inbox item enqueued for %s", payload.UserID, payload.Provider)
	}
	l.signal()
}

func (l *InboxListener) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
