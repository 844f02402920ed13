package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"orderpay/internal/mw"
	"orderpay/internal/service"
)

func ListTokensHandler(tokenSvc *service.TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(mw.UserCtxKey).(string)

		tokens, err := tokenSvc.ListByUser(r.Context(), userID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if len(tokens) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(tokens); err != nil {
			http.Error(w, "encode error", http.StatusInternalServerError)
		}
	}
}

func DeleteTokenHandler(tokenSvc *service.TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(mw.UserCtxKey).(string)
		tokenID := chi.URLParam(r, "tokenID")

		if err := tokenSvc.Delete(r.Context(), userID, tokenID); err != nil {
			if errors.Is(err, service.ErrTokenNotFound) {
				http.Error(w, "token not found", http.StatusNotFound)
				return
			}
			slog.Error("token delete failed", "token_id", tokenID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
