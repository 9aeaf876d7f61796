package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

const liveSubjectPrefix = "live."

// LocalBroadcaster is the in-process fan-out the relay feeds, i.e. *ws.Hub.
type LocalBroadcaster interface {
	Broadcast(channel string, data []byte) error
}

// Relay shares live payloads between API replicas over core NATS. Every
// replica, including the publisher, receives the payload through its
// subscription, so local viewers are served exactly once. Core NATS keeps
// fire-and-forget semantics: nothing is stored or replayed.
type Relay struct {
	nc    *nats.Conn
	local LocalBroadcaster
	sub   *nats.Subscription
}

func NewRelay(nc *nats.Conn, local LocalBroadcaster) *Relay {
	return &Relay{nc: nc, local: local}
}

// Start subscribes to every live channel.
func (r *Relay) Start() error {
	sub, err := r.nc.Subscribe(liveSubjectPrefix+">", r.deliver)
	if err != nil {
		return fmt.Errorf("subscribe live relay: %w", err)
	}
	r.sub = sub
	slog.Info("live relay started", "subject", sub.Subject)
	return nil
}

func (r *Relay) deliver(m *nats.Msg) {
	channel, ok := ChannelFromSubject(m.Subject)
	if !ok {
		return
	}
	if err := r.local.Broadcast(channel, m.Data); err != nil {
		slog.Warn("relay live payload", "channel", channel, "error", err)
	}
}

func (r *Relay) Publish(_ context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal live payload: %w", err)
	}
	if err := r.nc.Publish(LiveSubject(channel), data); err != nil {
		return fmt.Errorf("publish live payload: %w", err)
	}
	return nil
}

func (r *Relay) Close() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
}

func LiveSubject(channel string) string {
	return liveSubjectPrefix + channel
}

func ChannelFromSubject(subject string) (string, bool) {
	channel, ok := strings.CutPrefix(subject, liveSubjectPrefix)
	return channel, ok && channel != ""
}
