package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Relay is the HTTP end of the bridge: a tracker page posts codes here and
// they are dropped into the mailbox for the redeemer.
type Relay struct {
	mailbox *Mailbox
	log     *StatusLog
}

func NewRelay(mailbox *Mailbox, log *StatusLog) *Relay {
	return &Relay{mailbox: mailbox, log: log}
}

type relayRequest struct {
	Code  string   `json:"code"`
	Codes []string `json:"codes"`
}

type relayResponse struct {
	Accepted []string `json:"accepted"`
	Queued   int      `json:"queued"`
	Error    string   `json:"error,omitempty"`
}

func (r *Relay) Routes(allowedOrigins []string) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Post("/codes", r.handleCodes)
	return router
}

func (r *Relay) handleCodes(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		writeRelay(w, http.StatusBadRequest, relayResponse{Error: "could not read body"})
		return
	}

	text := string(body)
	if strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
		var payload relayRequest
		if err := json.Unmarshal(body, &payload); err != nil {
			writeRelay(w, http.StatusBadRequest, relayResponse{Error: "invalid JSON body"})
			return
		}
		text = strings.Join(append(payload.Codes, payload.Code), "\n")
	}

	codes := ParseCodes(text)
	if len(codes) == 0 {
		writeRelay(w, http.StatusUnprocessableEntity, relayResponse{Accepted: []string{}, Error: "no codes found"})
		return
	}

	resp := relayResponse{Accepted: codes}
	for _, code := range codes {
		added, err := r.mailbox.Push(req.Context(), code)
		if err != nil {
			r.log.Error(T("relay_push_failed", code, err))
			resp.Error = err.Error()
			writeRelay(w, http.StatusBadGateway, resp)
			return
		}
		if added {
			resp.Queued++
		}
	}
	r.log.OK(T("relay_received", len(codes), resp.Queued))
	writeRelay(w, http.StatusAccepted, resp)
}

func writeRelay(w http.ResponseWriter, status int, resp relayResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Serve runs the relay until ctx is cancelled.
func (r *Relay) Serve(ctx context.Context, addr string, allowedOrigins []string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Routes(allowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	r.log.Info(T("relay_listening", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
