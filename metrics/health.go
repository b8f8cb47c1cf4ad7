// Copyright (C) 2024 Polaris Markets Ltd.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package metrics

import (
	"encoding/json"
	"net/http"
)

// Health is the payload served on /health.
type Health struct {
	Status                     string  `json:"status"`
	MonitorState               string  `json:"monitorState"`
	SettlementQueueDepth       int     `json:"settlementQueueDepth"`
	PendingSubmissions         int     `json:"pendingSubmissions"`
	LastProcessedBlock         uint64  `json:"lastProcessedBlock"`
	CheckpointStalenessSeconds float64 `json:"checkpointStalenessSeconds"`
	ActiveMarkets              int     `json:"activeMarkets"`
}

// Degraded reports whether the node should answer /health with a non-200.
func (h Health) Degraded() bool {
	return h.Status != "ok"
}

func healthHandler(health func() Health) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := health()
		w.Header().Set("Content-Type", "application/json")
		if h.Degraded() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(h)
	})
}
