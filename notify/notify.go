/*
Package notify delivers advisory "collection changed" hints to other open
sessions.

PURPOSE:
  When an engine commits a write it announces which collection changed so
  that other sessions (a second desktop client, a reporting process) can
  drop their read caches. The hints are strictly advisory: the engines
  never rely on them for correctness, delivery is best-effort, and a lost
  hint only means a stale cache until the next explicit reload.

IMPLEMENTATIONS:
  - Local: in-process fan-out for a single binary
  - Broker: MQTT publisher for multi-session deployments
  - Fanout: composes several notifiers
*/
package notify

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// LOCAL - In-process fan-out
// =============================================================================

// Local dispatches collection-change hints to registered handlers within
// the same process. Handlers run synchronously on the committing
// goroutine and must be fast.
type Local struct {
	mu       sync.RWMutex
	handlers []func(collection string)
}

func NewLocal() *Local {
	return &Local{}
}

// Subscribe registers a handler for every subsequent hint.
func (l *Local) Subscribe(fn func(collection string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, fn)
}

func (l *Local) CollectionChanged(collection string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, fn := range l.handlers {
		fn(collection)
	}
}

// =============================================================================
// BROKER - MQTT publisher
// =============================================================================

const (
	topicPrefix    = "fleet-ledger/changed/"
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Broker publishes collection-change hints to an MQTT broker so that
// sessions on other machines can invalidate their caches. Publishes are
// QoS 0 fire-and-forget.
type Broker struct {
	client mqtt.Client
	log    *logrus.Logger
}

// NewBroker connects to the broker at the given URL (e.g.
// "tcp://localhost:1883").
func NewBroker(brokerURL, clientID string, log *logrus.Logger) (*Broker, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("change notification broker connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errConnectTimeout
	}
	if err := token.Error(); err != nil {
		return nil, err
	}

	return &Broker{client: client, log: log}, nil
}

func (b *Broker) CollectionChanged(collection string) {
	token := b.client.Publish(topicPrefix+collection, 0, false, collection)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		// Best-effort only; the stale session reloads on next access.
		b.log.WithFields(logrus.Fields{
			"collection": collection,
			"error":      token.Error(),
		}).Warn("failed to publish change notification")
	}
}

// SubscribeChanges invokes fn for every hint published by other sessions.
func (b *Broker) SubscribeChanges(fn func(collection string)) error {
	token := b.client.Subscribe(topicPrefix+"#", 0, func(_ mqtt.Client, msg mqtt.Message) {
		fn(string(msg.Payload()))
	})
	if !token.WaitTimeout(connectTimeout) {
		return errConnectTimeout
	}
	return token.Error()
}

// Close disconnects from the broker.
func (b *Broker) Close() {
	b.client.Disconnect(250)
}

// =============================================================================
// FANOUT
// =============================================================================

// Fanout forwards each hint to every wrapped notifier.
type Fanout []interface{ CollectionChanged(string) }

func (f Fanout) CollectionChanged(collection string) {
	for _, n := range f {
		n.CollectionChanged(collection)
	}
}

var errConnectTimeout = errors.New("mqtt broker connect timed out")
