package server

import (
	"encoding/json"
	"net/http"
	"sort"
)

type statusReply struct {
	Devices []Device `json:"devices"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	devices := s.Devices()
	sort.Slice(devices, func(i, j int) bool { return devices[i].MAC < devices[j].MAC })

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statusReply{Devices: devices}); err != nil {
		log.Errorf("encode status: %s", err.Error())
	}
}

// serveAPI exposes the device registry as JSON on GET /.
func (s *Server) serveAPI() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleStatus)
	log.Noticef("status API listening at %s", s.config.API.BindAddress)
	return http.ListenAndServe(s.config.API.BindAddress, mux)
}
