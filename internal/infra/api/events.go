package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/infra/logging"
	"video-subscription-storefront/internal/usecase"
)

const sseKeepalive = 30 * time.Second

// Event is one server-sent event.
type Event struct {
	Event string
	Data  any
}

// SubscriptionStatus is the payload of a "subscription" event.
type SubscriptionStatus struct {
	Active       bool                `json:"active"`
	StatusText   string              `json:"status_text"`
	Subscription *model.Subscription `json:"subscription,omitempty"`
}

// SubscriptionHub fans subscription changes out to every open stream of a
// user. One profile watch is held per user while at least one stream is open.
type SubscriptionHub struct {
	users usecase.UserUseCase
	now   func() time.Time
	log   *zerolog.Logger

	lifecycle sync.Mutex // serializes watch start/stop

	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	last        map[string]Event
	watches     map[string]func()
}

func NewSubscriptionHub(users usecase.UserUseCase, now func() time.Time, logger *zerolog.Logger) *SubscriptionHub {
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "SubscriptionHub").Logger()
	return &SubscriptionHub{
		users:       users,
		now:         now,
		log:         &l,
		subscribers: make(map[string]map[chan Event]struct{}),
		last:        make(map[string]Event),
		watches:     make(map[string]func()),
	}
}

// Subscribe opens a stream for userID. The current status is delivered first.
func (h *SubscriptionHub) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	ch := make(chan Event, 8)

	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	h.mu.Lock()
	first := len(h.subscribers[userID]) == 0
	if first {
		h.subscribers[userID] = make(map[chan Event]struct{})
	}
	h.subscribers[userID][ch] = struct{}{}
	last, hasLast := h.last[userID]
	h.mu.Unlock()

	if first {
		stop, err := h.users.Watch(context.WithoutCancel(ctx), userID, func(u *model.User) {
			h.Publish(userID, h.statusEvent(u))
		})
		if err != nil {
			h.remove(userID, ch)
			return nil, nil, err
		}
		h.watches[userID] = stop
	} else if hasLast {
		ch <- last
	}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.lifecycle.Lock()
			defer h.lifecycle.Unlock()
			if h.remove(userID, ch) {
				if stop := h.watches[userID]; stop != nil {
					stop()
				}
				delete(h.watches, userID)
			}
		})
	}
	return ch, cleanup, nil
}

// Publish delivers ev to every stream of userID without blocking. Slow
// streams miss the event.
func (h *SubscriptionHub) Publish(userID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[userID]
	if len(subs) == 0 {
		return
	}
	h.last[userID] = ev
	for ch := range subs {
		select {
		case ch <- ev:
		default:
			h.log.Warn().Str("user_id", userID).Msg("subscription stream full; event dropped")
		}
	}
}

// remove drops ch and reports whether it was the user's last stream.
func (h *SubscriptionHub) remove(userID string, ch chan Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers[userID], ch)
	close(ch)
	if len(h.subscribers[userID]) > 0 {
		return false
	}
	delete(h.subscribers, userID)
	delete(h.last, userID)
	return true
}

func (h *SubscriptionHub) statusEvent(u *model.User) Event {
	var sub *model.Subscription
	if u != nil {
		sub = u.Subscription
	}
	now := h.now()
	return Event{Event: "subscription", Data: SubscriptionStatus{
		Active:       sub.GrantsAccess(now),
		StatusText:   model.StatusText(sub, now),
		Subscription: sub,
	}}
}

func (s *Server) handleSubscriptionEvents(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "Please log in.")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	events, cleanup, err := s.hub.Subscribe(r.Context(), id.ID)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("subscription stream failed")
		writeError(w, http.StatusInternalServerError, "Could not open the status stream.")
		return
	}
	defer cleanup()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
