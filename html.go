/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"lunchbox/menu"
)

// serveHomePage renders a minimal landing page listing the known
// eateries. The real UI is expected to live in front of the API; this
// page mostly exists so a bare deployment is browsable.
func serveHomePage(cfg *Config, library *menu.Library, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		eateries, err := library.Eateries()
		if err != nil {
			logf(cfg, "MENU: Failed to load eatery index: %v", err)
		}

		var htmlBody strings.Builder

		htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
		htmlBody.WriteString(`<meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">`)
		htmlBody.WriteString(`<title>lunchbox</title></head><body><h1>lunchbox</h1>`)

		if len(eateries) == 0 {
			htmlBody.WriteString(`<p>No eateries configured. Add menu files to the data directory.</p>`)
		} else {
			htmlBody.WriteString(`<ul>`)
			for _, eatery := range eateries {
				htmlBody.WriteString(fmt.Sprintf(`<li><a href="%s/api/menu?data_path=%s">%s</a></li>`,
					cfg.prefix,
					html.EscapeString(eatery.DataPath),
					html.EscapeString(eatery.Name),
				))
			}
			htmlBody.WriteString(`</ul>`)
		}

		htmlBody.WriteString(fmt.Sprintf(`<p><a href="%s/api/selections">Current selections</a></p></body></html>`, cfg.prefix))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		written, err := w.Write([]byte(htmlBody.String()))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
