// Package admin implements operational introspection endpoints gated by
// the bearer-auth middleware, currently just the subscription listing.
package admin

import (
	"context"
	"net/http"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/handler/http/respond"
)

// SubscriptionLister is the read side of hub.Repository.
type SubscriptionLister interface {
	List(ctx context.Context) ([]entity.Subscription, error)
}

// SubscriptionsHandler serves GET /admin/subscriptions: every known
// PubSubHubbub subscription with its verification/lease status.
type SubscriptionsHandler struct {
	Repo SubscriptionLister
}

func (h *SubscriptionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	subs, err := h.Repo.List(r.Context())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, subs)
}
