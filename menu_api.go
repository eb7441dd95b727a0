package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"lunchbox/menu"
)

// serveMenu returns the eatery index, or one eatery's mapped menu when
// data_path is given. Menu data is read from flat files in the data
// directory; results must never be served stale, so caching is left to
// the library's own invalidation.
func serveMenu(cfg *Config, library *menu.Library) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		dataPath := r.URL.Query().Get("data_path")

		if dataPath == "" {
			eateries, err := library.Eateries()
			if err != nil {
				logf(cfg, "MENU: Loading eatery index failed: %v", err)
				writeAPIError(cfg, w, http.StatusInternalServerError, "Failed to load menu data")

				return
			}

			written, err := writeJSON(cfg, w, http.StatusOK, eateries)
			if err != nil {
				return
			}

			logf(cfg, "SERVE: Eatery index (%s) to %s in %s",
				humanReadableSize(int64(written)),
				realIP(r),
				time.Since(startTime).Round(time.Microsecond),
			)

			return
		}

		eateryMenu, err := library.Menu(dataPath)
		switch {
		case errors.Is(err, menu.ErrInvalidPath):
			writeAPIError(cfg, w, http.StatusBadRequest, "Invalid path")

			return
		case errors.Is(err, menu.ErrInvalidFormat):
			writeAPIError(cfg, w, http.StatusBadRequest, "Invalid menu data format")

			return
		case errors.Is(err, menu.ErrNotFound):
			writeAPIError(cfg, w, http.StatusNotFound, "Menu not found")

			return
		case err != nil:
			logf(cfg, "MENU: Loading %q failed: %v", dataPath, err)
			writeAPIError(cfg, w, http.StatusInternalServerError, "Failed to load menu data")

			return
		}

		written, err := writeJSON(cfg, w, http.StatusOK, eateryMenu)
		if err != nil {
			return
		}

		logf(cfg, "SERVE: Menu %q (%s) to %s in %s",
			dataPath,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}
