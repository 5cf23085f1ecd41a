package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/transport"
	"go.uber.org/zap"
)

// pages are the navigation routes of the execution context hosted by this process.
// Responses are plain text; only the routing matters.
type pages struct {
	engine *authstate.Engine
	logger *zap.Logger
}

func newPages(engine *authstate.Engine, logger *zap.Logger) *pages {
	return &pages{engine: engine, logger: logger.Named("pages")}
}

// root is reached only when the guard lets "/" through, which it never does.
func (p *pages) root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, p.engine.Guard().Paths().Login, http.StatusSeeOther)
}

func (p *pages) static(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, text)
	}
}

func (p *pages) loginForm(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "POST username and password as form fields to log in.")
}

func (p *pages) submitLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeText(w, http.StatusBadRequest, "malformed form")
		return
	}

	resp, err := p.engine.Client().Call(r.Context(), http.MethodPost, "/api/auth/login", loginRequest{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}, false, nil)
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) && len(se.Messages) > 0 {
			writeText(w, http.StatusUnauthorized, se.Messages[0])
			return
		}
		writeText(w, http.StatusBadGateway, "login service unavailable")
		return
	}

	var body loginResponse
	if err := resp.Decode(&body); err != nil {
		writeText(w, http.StatusBadGateway, "unexpected login response")
		return
	}
	if err := p.engine.Login(r.Context(), body.Token, &body.User); err != nil {
		writeText(w, http.StatusInternalServerError, "could not store the session")
		return
	}

	http.Redirect(w, r, p.engine.Guard().Paths().Landing, http.StatusSeeOther)
}

func (p *pages) feed(w http.ResponseWriter, r *http.Request) {
	resp, err := p.engine.Client().Call(r.Context(), http.MethodGet, "/api/events/trending", nil, true, nil)
	switch {
	case errors.Is(err, transport.ErrUnauthorized):
		// The client already cleared the credential.
		http.Redirect(w, r, p.engine.Guard().Paths().Login, http.StatusSeeOther)
		return
	case err != nil:
		p.logger.Warn("trending request failed", zap.Error(err))
		writeText(w, http.StatusBadGateway, "events unavailable")
		return
	}

	var events []trendingEvent
	if err := resp.Decode(&events); err != nil {
		writeText(w, http.StatusBadGateway, "unexpected events response")
		return
	}

	snap := p.engine.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "Hello, %s (%s)\n", snap.DisplayName(), strings.Join(snap.Roles(), ", "))
	for _, e := range events {
		fmt.Fprintf(&b, "- %s at %s\n", e.Title, e.StartsAt.Format("2006-01-02 15:04"))
	}
	writeText(w, http.StatusOK, b.String())
}

func (p *pages) logout(w http.ResponseWriter, r *http.Request) {
	if err := p.engine.Logout(r.Context()); err != nil {
		writeText(w, http.StatusInternalServerError, "logout failed")
		return
	}
	http.Redirect(w, r, p.engine.Guard().Paths().Login, http.StatusSeeOther)
}

func debugSession(engine *authstate.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"session": engine.Session().Debug(r.Context()),
			"report":  engine.Report(),
		})
	}
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintln(w, text)
}
