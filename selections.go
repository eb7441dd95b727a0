package main

// The shared-cart API. A selection belongs to whichever display name
// created it; only that exact name may delete it. The admin password
// gates delete-all and nothing else. Validation and authorization are
// checked before any mutation, and every successful mutation notifies
// the push registry after the store has committed, so a broadcast
// failure can never fail the request.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"lunchbox/menu"
	"lunchbox/store"
)

type addRequest struct {
	DataPath        string                 `json:"dataPath"`
	DishID          int                    `json:"dishId"`
	ClientName      string                 `json:"clientName"`
	SelectedOptions []store.SelectedOption `json:"selectedOptions"`
	Quantity        *int                   `json:"quantity"`
	Note            string                 `json:"note"`
}

type renameRequest struct {
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
}

func serveSelections(cfg *Config, selections store.Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		list, err := selections.List()
		if err != nil {
			logf(cfg, "STORE: List failed: %v", err)
			writeAPIError(cfg, w, http.StatusInternalServerError, "Failed to load selections")

			return
		}

		written, err := writeJSON(cfg, w, http.StatusOK, list)
		if err != nil {
			return
		}

		logf(cfg, "SERVE: %d selections (%s) to %s in %s",
			len(list),
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func addSelection(cfg *Config, selections store.Store, library *menu.Library, notify func()) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req addRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIError(cfg, w, http.StatusBadRequest, "Invalid request body")

			return
		}

		if req.DataPath == "" || req.DishID == 0 || req.ClientName == "" {
			writeAPIError(cfg, w, http.StatusBadRequest, "Missing required fields: dataPath, dishId, and clientName")

			return
		}

		quantity := 1
		if req.Quantity != nil {
			quantity = *req.Quantity
		}
		if quantity < 1 {
			writeAPIError(cfg, w, http.StatusBadRequest, "Quantity must be at least 1")

			return
		}

		eateryMenu, err := library.Menu(req.DataPath)
		switch {
		case errors.Is(err, menu.ErrInvalidPath):
			writeAPIError(cfg, w, http.StatusBadRequest, "Invalid path")

			return
		case errors.Is(err, menu.ErrNotFound), errors.Is(err, menu.ErrInvalidFormat):
			writeAPIError(cfg, w, http.StatusNotFound, "Dish not found")

			return
		case err != nil:
			logf(cfg, "MENU: Loading %q failed: %v", req.DataPath, err)
			writeAPIError(cfg, w, http.StatusInternalServerError, "Failed to add selection")

			return
		}

		dish, ok := menu.FindDish(eateryMenu, req.DishID)
		if !ok {
			writeAPIError(cfg, w, http.StatusNotFound, "Dish not found")

			return
		}

		selection, err := selections.Add(dish, req.ClientName, req.SelectedOptions, quantity, req.Note)
		if err != nil {
			logf(cfg, "STORE: Add failed: %v", err)
			writeAPIError(cfg, w, http.StatusInternalServerError, "Failed to add selection")

			return
		}

		notify()

		logf(cfg, "STORE: %q selected %q x%d for %s",
			selection.ClientName, selection.Name, selection.Quantity, realIP(r))

		_, _ = writeJSON(cfg, w, http.StatusOK, selection)
	}
}

func deleteSelection(cfg *Config, selections store.Store, notify func()) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		query := r.URL.Query()

		if query.Get("deleteAll") == "true" {
			if query.Get("password") != cfg.adminSecret() {
				writeAPIError(cfg, w, http.StatusForbidden, "Wrong password")

				return
			}

			if err := selections.RemoveAll(); err != nil {
				logf(cfg, "STORE: RemoveAll failed: %v", err)
				writeAPIError(cfg, w, http.StatusInternalServerError, "Failed to remove selections")

				return
			}

			notify()

			logf(cfg, "STORE: All selections removed by %s", realIP(r))

			_, _ = writeJSON(cfg, w, http.StatusOK, map[string]bool{"success": true})

			return
		}

		id := query.Get("id")
		if id == "" {
			writeAPIError(cfg, w, http.StatusBadRequest, "Missing selection ID")

			return
		}

		clientName := query.Get("clientName")
		if clientName == "" {
			writeAPIError(cfg, w, http.StatusBadRequest, "Missing client name")

			return
		}

		list, err := selections.List()
		if err != nil {
			logf(cfg, "STORE: List failed: %v", err)
			writeAPIError(cfg, w, http.StatusInternalServerError, "Failed to remove selection")

			return
		}

		var target *store.Selection
		for i := range list {
			if list[i].ID == id {
				target = &list[i]

				break
			}
		}

		if target == nil {
			writeAPIError(cfg, w, http.StatusNotFound, "Selection not found")

			return
		}

		if target.ClientName != clientName {
			writeAPIError(cfg, w, http.StatusForbidden, "You can only remove your own selections")

			return
		}

		removed, err := selections.Remove(id)
		if err != nil {
			logf(cfg, "STORE: Remove failed: %v", err)
			writeAPIError(cfg, w, http.StatusInternalServerError, "Failed to remove selection")

			return
		}

		if !removed {
			writeAPIError(cfg, w, http.StatusNotFound, "Selection not found")

			return
		}

		notify()

		logf(cfg, "STORE: %q removed %q for %s", clientName, target.Name, realIP(r))

		_, _ = writeJSON(cfg, w, http.StatusOK, map[string]bool{"success": true})
	}
}

func renameClient(cfg *Config, selections store.Store, notify func()) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req renameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIError(cfg, w, http.StatusBadRequest, "Invalid request body")

			return
		}

		if req.OldName == "" || req.NewName == "" {
			writeAPIError(cfg, w, http.StatusBadRequest, "Missing required fields: oldName and newName")

			return
		}

		updated, err := selections.RenameClient(req.OldName, req.NewName)
		if err != nil {
			logf(cfg, "STORE: RenameClient failed: %v", err)
			writeAPIError(cfg, w, http.StatusInternalServerError, "Failed to update client name")

			return
		}

		notify()

		logf(cfg, "STORE: Renamed %d selections from %q to %q", updated, req.OldName, req.NewName)

		_, _ = writeJSON(cfg, w, http.StatusOK, map[string]any{
			"success": true,
			"message": renameMessage(updated),
		})
	}
}

func renameMessage(updated int) string {
	return "Updated " + strconv.Itoa(updated) + " selections with new name."
}
