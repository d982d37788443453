// Package subscribe implements the /subscribe HTTP callback: GET serves
// the hub's verification handshake, POST serves the hub's notification
// ping. Both are handled by the same path because PubSubHubbub hubs
// expect a single callback URL for both.
package subscribe

import (
	"net/http"

	"catchup-feed/internal/handler/http/respond"
	"catchup-feed/internal/usecase/hub"
)

// Handler serves GET|POST /subscribe.
type Handler struct {
	Subscriber *hub.Subscriber
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.notify(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	status, body := h.Subscriber.Verify(r.Context(), r.URL.Query())
	w.WriteHeader(status)
	if body != "" {
		_, _ = w.Write([]byte(body))
	}
}

func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	feedURL := r.URL.Query().Get("url")
	status, err := h.Subscriber.Notify(r.Context(), feedURL)
	if err != nil {
		respond.Error(w, status, err)
		return
	}
	w.WriteHeader(status)
}
