package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"lunchbox/hub"
	"lunchbox/menu"
	"lunchbox/store"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

// writeJSON commits the response with no-store caching headers; every
// API result must reflect the store at call time.
func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	return w.Write(data)
}

// writeAPIError sends the stable error shape. Internal detail never
// reaches the body; callers log it instead.
func writeAPIError(cfg *Config, w http.ResponseWriter, status int, message string) {
	_, _ = writeJSON(cfg, w, status, map[string]string{"error": message})
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("lunchbox v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// openStore constructs the configured selection store backend.
func openStore(ctx context.Context, cfg *Config) (store.Store, error) {
	switch cfg.store {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.NewSQLite(cfg.selectionsPath())
	case "postgres":
		return store.NewPostgres(ctx, cfg.databaseURL)
	default:
		return store.NewFile(cfg.selectionsPath())
	}
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: lunchbox v%s", releaseVersion)

	selections, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer selections.Close()

	registry := hub.New()

	library := menu.NewLibrary(cfg.dataDir)
	library.OnChange(func(dataPath string) {
		logf(cfg, "MENU: Data changed (%q), notifying %d channels", dataPath, registry.Len())
		registry.Broadcast(eventMenuUpdate, timestampPayload())
	})
	if err := library.Watch(); err != nil {
		logf(cfg, "MENU: Watching %s disabled: %v", cfg.dataDir, err)
	}
	defer library.Close()

	// Push on every successful mutation; with --debounce, bursts
	// coalesce into a single trailing event.
	broadcast := func() {
		registry.Broadcast(eventSelectionUpdate, timestampPayload())
	}
	notify := broadcast
	if cfg.debounce > 0 {
		notifier := hub.NewNotifier(cfg.debounce, broadcast)
		defer notifier.Stop()
		notify = notifier.Notify
	}

	mux := httprouter.New()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	errs := make(chan error, 64)

	go func() {
		for err := range errs {
			logf(cfg, "ERROR: %v", err)
		}
	}()

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, library, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	mux.GET(cfg.prefix+"/qr", serveQR(cfg))

	mux.GET(cfg.prefix+"/api/menu", serveMenu(cfg, library))

	mux.GET(cfg.prefix+"/api/selections", serveSelections(cfg, selections))

	mux.POST(cfg.prefix+"/api/selections", addSelection(cfg, selections, library, notify))

	mux.DELETE(cfg.prefix+"/api/selections", deleteSelection(cfg, selections, notify))

	mux.PATCH(cfg.prefix+"/api/selections", renameClient(cfg, selections, notify))

	mux.GET(cfg.prefix+"/api/selections/events", serveEvents(cfg, registry))

	mux.GET(cfg.prefix+"/api/selections/ws", serveWS(cfg, registry))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	go func() {
		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("%s | ERROR: %v\n", time.Now().Format(logDate), err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
