// clusterhttp.go
//
// Read-only debug HTTP surface over a Node's cluster view: no write paths,
// since every cluster-mutating operation in this module flows through the
// broker, not HTTP. Grounded on the teacher's raft_http.go RegisterRaftHTTP
// (gorilla/mux route registration, JSON encoding of a status snapshot) and
// LeaderWriteMiddleware's CORS header set, carried here unconditionally
// since every route on this surface is a GET.
package parkcluster

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterClusterHTTP mounts /cluster/status, /cluster/nodes, and
// /cluster/health on r.
func RegisterClusterHTTP(r *mux.Router, n *Node) {
	r.Use(corsMiddleware)

	r.HandleFunc("/cluster/status", func(w http.ResponseWriter, req *http.Request) {
		snap := n.Snapshot()
		writeJSON(w, map[string]any{
			"self":              snap.Self,
			"current_leader":    snap.CurrentLeader,
			"is_leader":         snap.IsLeader,
			"active_node_count": len(snap.ActiveNodes),
			"last_heartbeat_at": snap.LastHeartbeatAt,
		})
	}).Methods(http.MethodGet, http.MethodOptions)

	r.HandleFunc("/cluster/nodes", func(w http.ResponseWriter, req *http.Request) {
		snap := n.Snapshot()
		writeJSON(w, map[string]any{
			"active_nodes": snap.ActiveNodes,
		})
	}).Methods(http.MethodGet, http.MethodOptions)

	r.HandleFunc("/cluster/health", func(w http.ResponseWriter, req *http.Request) {
		snap := n.Snapshot()
		status := http.StatusOK
		if snap.CurrentLeader == "" {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		writeJSON(w, map[string]any{
			"node_id": snap.Self,
			"healthy": snap.CurrentLeader != "",
		})
	}).Methods(http.MethodGet, http.MethodOptions)
}

func writeJSON(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
