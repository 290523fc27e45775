package database

import (
	"fmt"
	"time"

	"github.com/lib/pq"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Listener turns PostgreSQL NOTIFY messages on one channel into wake-up signals.
// Signals coalesce: many notifications before a read produce a single wake-up.
type Listener struct {
	pl   *pq.Listener
	wake chan struct{}
}

// NewListener connects with its own dedicated connection and starts listening.
func NewListener(dsn, channel string, log waLog.Logger) (*Listener, error) {
	if log == nil {
		log = waLog.Noop
	}
	report := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			log.Warnf("listener on %s: event %d: %v", channel, ev, err)
		case pq.ListenerEventReconnected:
			log.Infof("listener on %s reconnected", channel)
		}
	}
	pl := pq.NewListener(dsn, time.Second, time.Minute, report)
	if err := pl.Listen(channel); err != nil {
		pl.Close()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}
	l := &Listener{pl: pl, wake: make(chan struct{}, 1)}
	go l.loop()
	return l, nil
}

func (l *Listener) loop() {
	// a nil notification follows a reconnect; wake anyway since messages may have been lost
	for range l.pl.Notify {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	close(l.wake)
}

// Wake is signalled after each burst of notifications and closed with the listener.
func (l *Listener) Wake() <-chan struct{} {
	return l.wake
}

func (l *Listener) Close() error {
	return l.pl.Close()
}
