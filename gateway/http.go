// Copyright 2025 The go-satgate Authors
// This file is part of the go-satgate library.
//
// The go-satgate library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-satgate library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-satgate library. If not, see <http://www.gnu.org/licenses/>.

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/satgate/go-satgate/storage"
)

// opaqueLinkError is shown for every magic-link failure so a caller cannot
// distinguish signature, row and expiry failures.
const opaqueLinkError = "Invalid or expired link"

// Handler returns the HTTP surface mounted under the configured base path.
func (g *Gateway) Handler() http.Handler {
	r := mux.NewRouter()
	s := r.PathPrefix(g.cfg.BasePath).Subrouter()
	s.HandleFunc("/intents", g.handleCreateIntent).Methods(http.MethodPost)
	s.HandleFunc("/intents/{id}", g.handleGetIntent).Methods(http.MethodGet)
	s.HandleFunc("/intents/{id}/magic-link", g.handleMagicLink).Methods(http.MethodPost)
	s.HandleFunc("/pay/{token}", g.handlePay).Methods(http.MethodGet)
	s.HandleFunc("/status", g.handleStatus).Methods(http.MethodGet)
	s.HandleFunc("/scan/{intentId}", g.handleScan).Methods(http.MethodPost)
	s.HandleFunc("/fee", g.handleFee).Methods(http.MethodGet)
	return r
}

// intentJSON is the wire shape of an intent.
type intentJSON struct {
	ID            string     `json:"id"`
	AmountSats    int64      `json:"amountSats"`
	Status        string     `json:"status"`
	RequiredConfs int64      `json:"requiredConfs"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	ConfirmedAt   *time.Time `json:"confirmedAt,omitempty"`
	CustomerID    string     `json:"customerId,omitempty"`
	Email         string     `json:"email,omitempty"`
	Memo          string     `json:"memo,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func toIntentJSON(in *storage.Intent) intentJSON {
	return intentJSON{
		ID:            in.ID,
		AmountSats:    in.AmountSats,
		Status:        string(in.Status),
		RequiredConfs: in.RequiredConfs,
		ExpiresAt:     in.ExpiresAt,
		ConfirmedAt:   in.ConfirmedAt,
		CustomerID:    in.CustomerID,
		Email:         in.Email,
		Memo:          in.Memo,
		CreatedAt:     in.CreatedAt,
	}
}

func (g *Gateway) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AmountSats       int64  `json:"amountSats"`
		Email            string `json:"email"`
		CustomerID       string `json:"customerId"`
		Memo             string `json:"memo"`
		ExpiresInMinutes int64  `json:"expiresInMinutes"`
		RequiredConfs    int64  `json:"requiredConfs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, newError(KindValidation, "malformed request body"))
		return
	}
	intent, err := g.CreateIntent(r.Context(), CreateIntentParams{
		AmountSats:    body.AmountSats,
		RequiredConfs: body.RequiredConfs,
		ExpiresIn:     time.Duration(body.ExpiresInMinutes) * time.Minute,
		Email:         body.Email,
		CustomerID:    body.CustomerID,
		Memo:          body.Memo,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIntentJSON(intent))
}

func (g *Gateway) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	intent, err := g.GetIntent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIntentJSON(intent))
}

func (g *Gateway) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TTLHours int64 `json:"ttlHours"`
	}
	// An empty body means the default TTL.
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, newError(KindValidation, "malformed request body"))
			return
		}
	}
	link, err := g.IssueToken(r.Context(), mux.Vars(r)["id"], time.Duration(body.TTLHours)*time.Hour)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (g *Gateway) handlePay(w http.ResponseWriter, r *http.Request) {
	intentID, err := g.RedeemToken(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		switch KindOf(err) {
		case KindAuth, KindExpired, KindNotFound:
			writeJSON(w, http.StatusGone, map[string]string{"error": opaqueLinkError})
		default:
			writeError(w, err)
		}
		return
	}
	details, err := g.EnsureAssigned(r.Context(), intentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	intentID := r.URL.Query().Get("intentId")
	if intentID == "" {
		writeError(w, newError(KindValidation, "intentId is required"))
		return
	}
	info, err := g.GetStatus(r.Context(), intentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (g *Gateway) handleScan(w http.ResponseWriter, r *http.Request) {
	if err := g.ScanForPayments(r.Context(), mux.Vars(r)["intentId"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (g *Gateway) handleFee(w http.ResponseWriter, r *http.Request) {
	target := int64(1)
	if v := r.URL.Query().Get("target"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, newError(KindValidation, "bad confirmation target %q", v))
			return
		}
		target = n
	}
	rate, err := g.EstimateFee(r.Context(), target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"satPerVByte": rate})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP statuses with an
// {error: string} body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch KindOf(err) {
	case KindValidation:
		status = http.StatusBadRequest
	case KindNotFound:
		status = http.StatusNotFound
	case KindInvalidState, KindConflict:
		status = http.StatusConflict
	case KindAuth, KindExpired:
		status = http.StatusGone
	case KindTransient:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
