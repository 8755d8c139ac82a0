package gotrue

import (
	"chat-room/domain/chat"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const CallbackPath = "/auth/callback"

type exchanger interface {
	Exchange(ctx context.Context, flowID, code string) (*chat.Session, error)
}

// CallbackServer receives the provider redirect and completes the code exchange.
type CallbackServer struct {
	log       *slog.Logger
	addr      string
	exchanger exchanger
	server    *http.Server
}

func NewCallbackServer(log *slog.Logger, addr string, exchanger exchanger) *CallbackServer {
	s := &CallbackServer{log: log, addr: addr, exchanger: exchanger}
	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, s.handleCallback)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// RedirectURL is the redirect_to value matching this server.
func RedirectURL(addr string) string {
	return "http://" + addr + CallbackPath
}

func (s *CallbackServer) Handler() http.Handler {
	return s.server.Handler
}

// Run serves until ctx is done.
func (s *CallbackServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening for auth callback on %s: %w", s.addr, err)
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Debug("Auth callback listener started", "addr", s.addr)
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if desc := q.Get("error_description"); desc != "" || q.Get("error") != "" {
		s.log.Warn("Provider refused sign-in", "error", q.Get("error"), "description", desc)
		http.Error(w, "Sign-in failed: "+desc, http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	session, err := s.exchanger.Exchange(r.Context(), q.Get(flowParam), code)
	if err != nil {
		s.log.Warn("Code exchange failed", "error", err)
		http.Error(w, "Sign-in failed", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "Signed in as %s. You can close this window.\n", session.DisplayName())
}
