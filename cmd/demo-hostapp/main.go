// Demo host app: mounts the auth handler over in-memory stores on a local
// port. Everything resets on restart; real deployments wire stores/mongo or
// stores/gorm instead.
package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/panyam/webauth"
	"github.com/panyam/webauth/stores/mem"
)

func main() {
	cfg := (&webauth.Config{
		Environment:        "development",
		AccessTokenSecret:  "demo-access-secret",
		RefreshTokenSecret: "demo-refresh-secret",
		EncryptionKey:      "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		BaseURL:            "http://localhost:8080",
	}).EnsureDefaults()

	auth := (&webauth.Auth{
		Config:   cfg,
		Accounts: mem.NewAccountStore(),
		States:   mem.NewStateStore(),
	}).EnsureDefaults()

	mux := http.NewServeMux()
	mux.Handle("/auth/", http.StripPrefix("/auth", auth.Handler()))
	mux.Handle("/api/profile", auth.RequireAuth(http.HandlerFunc(profileHandler)))

	addr := os.Getenv("DEMO_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	slog.Info("demo host app listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func profileHandler(w http.ResponseWriter, r *http.Request) {
	account := webauth.AccountFromContext(r.Context())
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("hello " + account.Email + "\n"))
}
