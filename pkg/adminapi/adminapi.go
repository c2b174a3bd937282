// Package adminapi exposes the operator-facing HTTP surface in front of the
// Split Orchestrator and Policy Store. It is deliberately not the
// client-facing SQL surface; every route here is an administrative
// control-plane call, addressed with the same literal-HTTP-path style as
// the shard admin protocol, and built on the same net/http + encoding/json
// style used elsewhere in this codebase for HTTP handlers.
package adminapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/healthfees-org/workersql-sub002/pkg/corestate"
	"github.com/healthfees-org/workersql-sub002/pkg/policystore"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// NewMux builds the admin HTTP handler tree over cs.
func NewMux(cs *corestate.CoreState) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/admin/splits", handleSplits(cs))
	mux.HandleFunc("/admin/splits/", handleSplit(cs))
	mux.HandleFunc("/admin/policy", handlePolicy(cs))
	mux.HandleFunc("/admin/policy/rollback", handlePolicyRollback(cs))
	mux.HandleFunc("/admin/sessions", handleSessions(cs))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := workerr.KindOf(err)
	writeJSON(w, workerr.HTTPStatus(kind), map[string]string{
		"error":      err.Error(),
		"kind":       string(kind),
		"request_id": uuid.NewString(),
	})
}

// handleSplits serves:
//   GET  /admin/splits        -> list every known split plan
//   POST /admin/splits        -> plan a new split ({"source","target","tenant_ids"})
func handleSplits(cs *corestate.CoreState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, cs.Splits.ListPlans())

		case http.MethodPost:
			var req struct {
				Source    string   `json:"source"`
				Target    string   `json:"target"`
				TenantIDs []string `json:"tenant_ids"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, workerr.Wrap(workerr.InvalidInput, "decode request body", err))
				return
			}
			plan, err := cs.Splits.PlanSplit(req.Source, req.Target, req.TenantIDs)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, plan)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

// handleSplit serves the per-plan lifecycle sub-resources:
//   GET  /admin/splits/{id}                -> metrics snapshot
//   POST /admin/splits/{id}/dual-write     -> StartDualWrite
//   POST /admin/splits/{id}/backfill       -> RunBackfill
//   POST /admin/splits/{id}/replay-tail    -> ReplayTail
//   POST /admin/splits/{id}/cutover        -> Cutover
//   POST /admin/splits/{id}/rollback       -> Rollback
func handleSplit(cs *corestate.CoreState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/admin/splits/")
		parts := strings.SplitN(rest, "/", 2)
		splitID := parts[0]
		if splitID == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if len(parts) == 1 {
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			snap, err := cs.Splits.Metrics(splitID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, snap)
			return
		}

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var err error
		switch parts[1] {
		case "dual-write":
			err = cs.Splits.StartDualWrite(splitID)
		case "backfill":
			err = cs.Splits.RunBackfill(splitID)
		case "replay-tail":
			err = cs.Splits.ReplayTail(splitID)
		case "cutover":
			err = cs.Splits.Cutover(splitID)
		case "rollback":
			err = cs.Splits.Rollback(splitID)
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"split_id": splitID, "action": parts[1]})
	}
}

// handlePolicy serves:
//   GET  /admin/policy  -> current policy
//   POST /admin/policy  -> propose the next policy version (declarative
//                          apply; workersqlctl apply builds this body)
func handlePolicy(cs *corestate.CoreState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, cs.Policy.Current())

		case http.MethodPost:
			var next types.Policy
			if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
				writeError(w, workerr.Wrap(workerr.InvalidInput, "decode policy body", err))
				return
			}
			current := cs.Policy.Current()
			if current != nil && next.Version == 0 {
				next.Version = current.Version + 1
			}
			// A declarative apply omits the checksum and the server stamps
			// it; a caller that supplies one is held to it, so a stale or
			// tampered payload is rejected rather than silently re-stamped.
			if len(next.Checksum) > 0 {
				if !policystore.VerifyChecksum(&next) {
					writeError(w, workerr.New(workerr.VersionConflict, "checksum does not match policy content"))
					return
				}
			} else {
				next.Checksum = policystore.Checksum(&next)
			}
			if err := cs.Policy.Propose(&next); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, cs.Policy.Current())

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

// handlePolicyRollback serves POST /admin/policy/rollback
// ({"to_version": N}).
func handlePolicyRollback(cs *corestate.CoreState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ToVersion uint64 `json:"to_version"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, workerr.Wrap(workerr.InvalidInput, "decode rollback body", err))
			return
		}
		if err := cs.Policy.RollbackTo(req.ToVersion); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cs.Policy.Current())
	}
}

// handleSessions serves GET /admin/sessions -> live session count, for
// operator-facing inspection.
func handleSessions(cs *corestate.CoreState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"active_sessions": cs.Sessions.Count()})
	}
}
