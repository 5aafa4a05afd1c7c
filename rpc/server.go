package rpc

import (
	"encoding/json"
	"io"
	"net/http"
)

// Server is a JSON-RPC HTTP server that dispatches requests to the EthAPI.
// It also serves a WebSocket transport at /ws supporting eth_subscribe.
type Server struct {
	api   *EthAPI
	mux   *http.ServeMux
	batch *ExtendedBatchHandler
	ws    *WSHandler
}

// NewServer creates a new JSON-RPC server.
func NewServer(backend Backend) *Server {
	api := NewEthAPI(backend)
	s := &Server{
		api:   api,
		mux:   http.NewServeMux(),
		batch: NewExtendedBatchHandler(api),
		ws:    NewWSHandler(api, 0),
	}
	s.mux.HandleFunc("/", s.handleRPC)
	s.mux.Handle("/ws", s.ws)
	return s
}

// WSConnectionCount returns the number of live WebSocket RPC connections.
func (s *Server) WSConnectionCount() int {
	return s.ws.ConnectionCount()
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// BatchStats returns a snapshot of batch-processing statistics.
func (s *Server) BatchStats() BatchStatsSnapshot {
	return s.batch.Stats()
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, nil, ErrCodeParse, "failed to read request body")
		return
	}

	if IsBatchRequest(body) {
		responses, err := s.batch.HandleBatchValidated(body)
		if err != nil {
			writeError(w, nil, ErrCodeInvalidRequest, err.Error())
			return
		}
		writeJSON(w, responses)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, ErrCodeParse, "invalid JSON")
		return
	}

	resp := s.api.HandleRequest(&req)
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	resp := &Response{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message},
		ID:      id,
	}
	writeJSON(w, resp)
}
