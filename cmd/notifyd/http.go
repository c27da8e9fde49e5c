package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/event"
	"github.com/dmitrymomot/notifykit/pkg/health"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
)

const maxBodySize = 1 << 20

func newRouter(
	dispatcher *dispatch.Dispatcher,
	consumer *event.Consumer,
	checker *health.Aggregator,
	store notification.Store,
	log *slog.Logger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		report := checker.CheckAll(req.Context())
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	})

	r.Post("/events", func(w http.ResponseWriter, req *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := consumer.ConsumeRaw(req.Context(), raw); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var sendReq dispatch.SendRequest
			if err := json.NewDecoder(io.LimitReader(req.Body, maxBodySize)).Decode(&sendReq); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			n, err := dispatcher.Send(req.Context(), sendReq)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusAccepted, n)
		})

		r.Post("/bulk", func(w http.ResponseWriter, req *http.Request) {
			var reqs []dispatch.SendRequest
			if err := json.NewDecoder(io.LimitReader(req.Body, maxBodySize)).Decode(&reqs); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			result, err := dispatcher.SendBulk(req.Context(), reqs)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusAccepted, result)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			id, err := uuid.Parse(chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			n, err := dispatcher.GetByID(req.Context(), id)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, n)
		})

		r.Get("/{id}/logs", func(w http.ResponseWriter, req *http.Request) {
			id, err := uuid.Parse(chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			logs, err := dispatcher.Logs(req.Context(), id)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, logs)
		})

		r.Post("/{id}/cancel", func(w http.ResponseWriter, req *http.Request) {
			id, err := uuid.Parse(chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if err := dispatcher.Cancel(req.Context(), id); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Post("/push-tokens", func(w http.ResponseWriter, req *http.Request) {
		var token notification.PushToken
		if err := json.NewDecoder(io.LimitReader(req.Body, maxBodySize)).Decode(&token); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := dispatcher.RegisterPushToken(req.Context(), &token); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	r.Delete("/push-tokens", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(io.LimitReader(req.Body, maxBodySize)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if body.Token == "" {
			writeError(w, http.StatusBadRequest, errors.New("token is required"))
			return
		}
		if err := dispatcher.DeactivatePushToken(req.Context(), body.Token); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Put("/providers/{channel}", func(w http.ResponseWriter, req *http.Request) {
		channel := notification.Channel(chi.URLParam(req, "channel"))
		if !channel.Valid() {
			writeError(w, http.StatusBadRequest, errors.New("unknown channel"))
			return
		}
		var body struct {
			Provider string `json:"provider"`
		}
		if err := json.NewDecoder(io.LimitReader(req.Body, maxBodySize)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := store.SetProviderOverride(req.Context(), channel, body.Provider); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, notification.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, notification.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, notification.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, provider.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
