// Package service exposes the state of a simulated swarm over HTTP.
package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/mosaicnetworks/chaos/src/node"
	"github.com/mosaicnetworks/chaos/src/telemetry"
	"github.com/sirupsen/logrus"
)

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	nodes       []*node.Node
	metrics     *telemetry.Metrics
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, nodes []*node.Node, metrics *telemetry.Metrics, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		nodes:       nodes,
		metrics:     metrics,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers on the service's own mux. Several
// swarms may live in the same process, so the DefaultServeMux is not used.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering Chaos API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/node/", s.makeHandler(s.GetNode))
	s.mux.HandleFunc("/rounds/", s.makeHandler(s.GetRounds))
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Chaos API")

	s.Lock()
	s.server = &http.Server{Addr: s.bindAddress, Handler: s.mux}
	server := s.server
	s.Unlock()

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Close stops a server started with Serve.
func (s *Service) Close() error {
	s.Lock()
	defer s.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

// GetStats returns the stats of every node, by moniker.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]map[string]string, len(s.nodes))
	for _, n := range s.nodes {
		stats[n.Moniker()] = n.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetNode returns the stats of one node, by id.
func (s *Service) GetNode(w http.ResponseWriter, r *http.Request) {
	n, ok := s.findNode(w, r.URL.Path[len("/node/"):])
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(n.GetStats())
}

// GetRounds returns the round history of a node: /rounds/{id}?since={seq}.
func (s *Service) GetRounds(w http.ResponseWriter, r *http.Request) {
	n, ok := s.findNode(w, r.URL.Path[len("/rounds/"):])
	if !ok {
		return
	}

	since := int64(-1)
	if param := r.URL.Query().Get("since"); param != "" {
		var err error
		since, err = strconv.ParseInt(param, 10, 64)
		if err != nil {
			s.logger.WithError(err).Errorf("Parsing since parameter %s", param)

			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}
	}

	rounds, err := n.Store().RoundsSince(since)
	if err != nil {
		s.logger.WithError(err).Errorf("Retrieving rounds since %d", since)

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(rounds)
}

func (s *Service) findNode(w http.ResponseWriter, param string) (*node.Node, bool) {
	param = strings.Trim(param, "/")
	id, err := strconv.Atoi(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing node id %s", param)

		http.Error(w, err.Error(), http.StatusBadRequest)

		return nil, false
	}

	for _, n := range s.nodes {
		if int(n.ID()) == id {
			return n, true
		}
	}

	http.Error(w, "node not found", http.StatusNotFound)

	return nil, false
}
