package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"orderpay/internal/model"
	"orderpay/internal/mw"
	"orderpay/internal/service"
)

type subscriptionRequest struct {
	ParentOrderID string `json:"parent_order_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PeriodDays    int    `json:"period_days"`
}

// CreateSubscriptionHandler registers a recurring charge. The first renewal
// is due one period out; the renewal worker pays it with a vaulted token.
func CreateSubscriptionHandler(subSvc *service.SubscriptionService, orderSvc *service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(mw.UserCtxKey).(string)

		var req subscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Currency == "" || req.PeriodDays <= 0 {
			http.Error(w, "currency and positive period_days required", http.StatusUnprocessableEntity)
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			http.Error(w, "amount is not a decimal", http.StatusUnprocessableEntity)
			return
		}

		// The parent order anchors the subscription; it must be the caller's.
		if _, err := orderSvc.GetByID(r.Context(), req.ParentOrderID, userID); err != nil {
			if errors.Is(err, service.ErrOrderNotFound) {
				http.Error(w, "parent order not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		sub, err := subSvc.Create(r.Context(), model.Subscription{
			UserID:        userID,
			ParentOrderID: req.ParentOrderID,
			Amount:        amount,
			Currency:      req.Currency,
			PeriodDays:    req.PeriodDays,
			NextRenewalAt: time.Now().Add(time.Duration(req.PeriodDays) * 24 * time.Hour),
		})
		if err != nil {
			slog.Error("subscription create failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(sub)
	}
}

func ListSubscriptionsHandler(subSvc *service.SubscriptionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(mw.UserCtxKey).(string)

		subs, err := subSvc.ListByUser(r.Context(), userID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if len(subs) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(subs); err != nil {
			http.Error(w, "encode error", http.StatusInternalServerError)
		}
	}
}

func CancelSubscriptionHandler(subSvc *service.SubscriptionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(mw.UserCtxKey).(string)
		subscriptionID := chi.URLParam(r, "subscriptionID")

		if err := subSvc.CancelForUser(r.Context(), subscriptionID, userID); err != nil {
			if errors.Is(err, service.ErrSubscriptionNotFound) {
				http.Error(w, "subscription not found", http.StatusNotFound)
				return
			}
			slog.Error("subscription cancel failed", "subscription_id", subscriptionID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
