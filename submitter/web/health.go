// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const healthProbeTimeout = 5 * time.Second

// handleHealth probes the database and every registered collaborator and
// reports aggregate liveness.
func (server *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	type report struct {
		name string
		up   bool
	}
	reports := make([]report, len(server.pingers))

	var wg sync.WaitGroup
	for i, pinger := range server.pingers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = report{name: pinger.Name(), up: pinger.Ping(ctx) == nil}
		}()
	}
	wg.Wait()

	status := "Up"
	services := make(map[string]string, len(reports))
	for _, rep := range reports {
		if rep.up {
			services[rep.name] = "Up"
			continue
		}
		services[rep.name] = "Down"
		status = "Down"
	}

	server.serveJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"services": services,
	})
}
