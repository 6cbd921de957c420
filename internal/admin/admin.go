/*
 * MIT License
 *
 * Copyright (c) 2022-2025  Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package admin exposes a read-only HTTP view of the global state
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tochemey/globalstate/authority"
	gerrors "github.com/tochemey/globalstate/errors"
	"github.com/tochemey/globalstate/log"
	"github.com/tochemey/globalstate/replica"
	"github.com/tochemey/globalstate/state"
)

const (
	requestTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Authority is the part of the Authority the admin surface reads
type Authority interface {
	IsRunning() bool
	Status(ctx context.Context) (*authority.Status, error)
	ExperimentStats(ctx context.Context, experimentID string) (*state.Experiment, *state.ExperimentStats, error)
}

// Replica is the part of a Replica the admin surface reads
type Replica interface {
	NodeID() string
	State() replica.State
}

// NewRouter creates the admin routes. auth may be nil on nodes that only run a
// replica and metrics may be nil when no exporter is configured.
func NewRouter(auth Authority, replicas []Replica, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handlers{authority: auth, replicas: replicas}
	router.GET("/healthz", h.health)
	router.GET("/status", h.status)
	router.GET("/experiments/:id", h.experiment)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return router
}

type handlers struct {
	authority Authority
	replicas  []Replica
}

type replicaHealth struct {
	NodeID string `json:"node_id"`
	State  string `json:"state"`
}

type healthResponse struct {
	Status    string          `json:"status"`
	Authority string          `json:"authority,omitempty"`
	Replicas  []replicaHealth `json:"replicas,omitempty"`
}

func (h *handlers) health(c *gin.Context) {
	response := healthResponse{Status: "ok"}
	code := http.StatusOK

	if h.authority != nil {
		response.Authority = "running"
		if !h.authority.IsRunning() {
			response.Authority = "not_running"
			code = http.StatusServiceUnavailable
		}
	}

	for _, r := range h.replicas {
		current := r.State()
		response.Replicas = append(response.Replicas, replicaHealth{NodeID: r.NodeID(), State: current.String()})
		if current != replica.Synced {
			code = http.StatusServiceUnavailable
		}
	}

	if code != http.StatusOK {
		response.Status = "degraded"
	}
	c.JSON(code, response)
}

func (h *handlers) status(c *gin.Context) {
	if h.authority == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no authority on this node"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	status, err := h.authority.Status(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatusView(status))
}

func (h *handlers) experiment(c *gin.Context) {
	if h.authority == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no authority on this node"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	experiment, stats, err := h.authority.ExperimentStats(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newExperimentView(experiment, stats))
}

func writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, gerrors.ErrExperimentNotFound):
		code = http.StatusNotFound
	case errors.Is(err, gerrors.ErrAuthorityNotRunning):
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// Server serves the admin routes until its context is done
type Server struct {
	server *http.Server
	logger log.Logger
}

// NewServer creates a Server listening on addr
func NewServer(addr string, handler http.Handler, logger log.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: requestTimeout,
		},
		logger: logger,
	}
}

// Run serves requests and shuts the listener down when ctx is done
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Infof("admin server listening on %s", s.server.Addr)
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return nil
	}
}
