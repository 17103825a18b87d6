// Package service exposes a small HTTP window onto a fuzz run: the run's
// counters and the last observed condition of every node.
package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
)

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	tracker     *Tracker
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, tracker *Tracker, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		tracker:     tracker,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of
// the http package. If another server in the same process uses the
// DefaultServerMux, the handlers are accessible from both.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering harness API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/nodes", s.makeHandler(s.GetNodes))
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

// Serve calls ListenAndServe. This is a blocking call. Serve errors are
// logged, not fatal: the stats window is a convenience, the run does not
// depend on it.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving harness API")

	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.tracker.Stats())
}

// GetNodes ...
func (s *Service) GetNodes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.tracker.Nodes())
}
