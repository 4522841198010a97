package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Oshkosh1922/edens-gates/internal/database"
	"github.com/Oshkosh1922/edens-gates/internal/votes"
	"github.com/Oshkosh1922/edens-gates/internal/wallet"
)

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// Wallet
// =============================================================================

type adapterView struct {
	Name       string            `json:"name"`
	Kind       wallet.Kind       `json:"kind"`
	ReadyState wallet.ReadyState `json:"readyState"`
	Selected   bool              `json:"selected"`
}

type walletView struct {
	wallet.Status
	ShortAddress string `json:"shortAddress,omitempty"`
}

func (h *handler) walletStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.statusView())
}

func (h *handler) statusView() walletView {
	return newWalletView(h.session.Status())
}

func newWalletView(st wallet.Status) walletView {
	return walletView{Status: st, ShortAddress: wallet.ShortAddress(st.Address)}
}

// walletChanged answers with the session status and publishes it.
func (h *handler) walletChanged(w http.ResponseWriter) {
	view := h.statusView()
	h.hub.Publish(Event{Type: EventWallet, Data: view})
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) walletAdapters(w http.ResponseWriter, _ *http.Request) {
	out := []adapterView{}
	if h.registry != nil {
		selected := h.session.Status().Adapter
		for _, a := range h.registry.Adapters() {
			out = append(out, adapterView{
				Name:       a.Name(),
				Kind:       a.Kind(),
				ReadyState: a.ReadyState(),
				Selected:   a.Name() == selected,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type adapterRequest struct {
	Adapter string `json:"adapter"`
}

func decodeAdapter(r *http.Request) (adapterRequest, error) {
	var req adapterRequest
	if r.Body == nil {
		return req, nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	req.Adapter = strings.TrimSpace(req.Adapter)
	return req, nil
}

func (h *handler) walletSelect(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAdapter(r)
	if err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Adapter == "" {
		badRequest(w, "adapter is required")
		return
	}
	if err := h.session.Select(r.Context(), req.Adapter); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.walletChanged(w)
}

func (h *handler) walletConnect(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAdapter(r)
	if err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Adapter != "" {
		if err := h.session.Select(r.Context(), req.Adapter); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if err := h.session.Connect(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.walletChanged(w)
}

func (h *handler) walletDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Disconnect(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.walletChanged(w)
}

// =============================================================================
// Founders, votes and winners
// =============================================================================

// founders refreshes the tally from the data store and returns the active
// founders ordered by votes. When the store is unreachable the last known
// tally is served and marked stale.
func (h *handler) founders(w http.ResponseWriter, r *http.Request) {
	if h.voter == nil || h.repo == nil {
		h.writeError(w, r, errors.New("voting is not configured"))
		return
	}
	tally := h.voter.Tally()
	if err := tally.Refresh(r.Context(), h.repo); err != nil {
		snapshot := tally.Snapshot()
		if len(snapshot) == 0 {
			h.writeError(w, r, fmt.Errorf("%w: %w", votes.ErrDataStore, err))
			return
		}
		h.log.WithError(err).Warn("serving cached founder tally")
		w.Header().Set("X-Data-Stale", "true")
		writeJSON(w, http.StatusOK, snapshot)
		return
	}
	writeJSON(w, http.StatusOK, tally.Snapshot())
}

func (h *handler) castVote(w http.ResponseWriter, r *http.Request) {
	if h.voter == nil {
		h.writeError(w, r, errors.New("voting is not configured"))
		return
	}
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		badRequest(w, "founder id is required")
		return
	}
	receipt, err := h.voter.CastVote(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.hub.Publish(Event{Type: EventVote, Data: receipt})
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *handler) winners(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.writeError(w, r, errors.New("data store is not configured"))
		return
	}
	winners, err := h.repo.ListWinners(r.Context())
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %w", votes.ErrDataStore, err))
		return
	}
	if winners == nil {
		winners = []database.Winner{}
	}
	writeJSON(w, http.StatusOK, winners)
}
