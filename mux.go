package rpc

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Mount attaches srv under pathPrefix on router: every POST under the
// prefix is read in full and handed to Server.ProcessRequest, the
// classical-HTTP degenerate case of spec.md §1, grounded on kite.go's
// muxer *mux.Router / HandleHTTP integration.
func Mount(router *mux.Router, pathPrefix string, srv *Server) {
	router.PathPrefix(pathPrefix).Methods(http.MethodPost).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "cannot read request body", http.StatusBadRequest)
			return
		}

		resp := srv.ProcessRequest(body, r.URL.Path, r.RemoteAddr, nil)
		w.Header().Set("Content-Type", "application/json")
		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write(resp)
	})
}

// UpgradeHandler returns an http.HandlerFunc that upgrades the request to a
// WebSocket and hands the resulting connection to rt.AddConnection,
// grounded on kite.go's sockjsHandler -- the entry point for the
// bidirectional side of this module.
func UpgradeHandler(rt *Router, upgrader *websocket.Upgrader) http.HandlerFunc {
	if upgrader == nil {
		upgrader = &websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			rt.Log.Error("router: websocket upgrade failed: %s", err)
			return
		}
		rt.AddConnection(newGorillaConn(conn, r.URL.Path))
	}
}
