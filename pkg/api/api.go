// Package api serves a node's hybrid logical clock over HTTP.
//
// Processes that cannot open the shared database (other hosts, sandboxes,
// scripts in other languages) tick and merge against a running node with
// plain HTTP calls:
//
//	GET  /v1/clock          current stamp
//	POST /v1/clock/tick     record a local event
//	POST /v1/clock/observe  merge a remote stamp (JSON) or envelope (protobuf)
//	POST /v1/compare        order two stamps
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/wire"
)

const maxBody = 1 << 20

// Error messages returned in Response.Error.
const (
	FailedToParse   = "failed to parse request body"
	MissingStamp    = "stamp is required"
	FailedToPersist = "failed to persist clock"
	FailedToLoad    = "failed to load clock"
)

// Response is the body of every reply.
type Response struct {
	// Status is the HTTP status code, 200 unless a handler sets it.
	Status int `json:"-"`

	Node     string     `json:"node,omitempty"`
	Stamp    *hlc.Stamp `json:"stamp,omitempty"`
	MsgID    string     `json:"msg_id,omitempty"`
	Ordering string     `json:"ordering,omitempty"`
	Code     *uint8     `json:"code,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// ObserveRequest is the JSON body of POST /v1/clock/observe.
type ObserveRequest struct {
	From  string     `json:"from,omitempty"`
	Stamp *hlc.Stamp `json:"stamp"`
}

// CompareRequest is the body of POST /v1/compare.
type CompareRequest struct {
	A hlc.Stamp `json:"a"`
	B hlc.Stamp `json:"b"`
}

// PersistFunc is called with the new stamp after every transition.
type PersistFunc func(ctx context.Context, stamp hlc.Stamp) error

// TransitionFunc applies next to the node's clock of record and returns the
// result. It may call next more than once.
type TransitionFunc func(ctx context.Context, next func(hlc.Clock) hlc.Clock) (hlc.Clock, error)

// LoadFunc returns the node's stamp of record.
type LoadFunc func(ctx context.Context) (hlc.Stamp, error)

// Server exposes one node's clock.
type Server struct {
	node       string
	clock      *hlc.Holder
	persist    PersistFunc
	transition TransitionFunc
	load       LoadFunc
	log        *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithPersist stores every new stamp, typically in the node's store row.
func WithPersist(fn PersistFunc) Option {
	return func(s *Server) { s.persist = fn }
}

// WithTransition routes every tick and observe through fn instead of the
// in-memory holder, for a clock that other processes advance too. The holder
// is then only a cache of the last stamp seen. WithPersist is ignored.
func WithTransition(fn TransitionFunc) Option {
	return func(s *Server) { s.transition = fn }
}

// WithLoad refreshes the holder from fn before answering GET /v1/clock.
func WithLoad(fn LoadFunc) Option {
	return func(s *Server) { s.load = fn }
}

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New returns a server for node's clock.
func New(node string, clock *hlc.Holder, opts ...Option) *Server {
	s := &Server{node: node, clock: clock, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Route registers the handlers on r.
func (s *Server) Route(r *mux.Router) {
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/clock", s.wrap(s.getClock)).Methods(http.MethodGet)
	v1.HandleFunc("/clock/tick", s.wrap(s.tick)).Methods(http.MethodPost)
	v1.HandleFunc("/clock/observe", s.wrap(s.observe)).Methods(http.MethodPost)
	v1.HandleFunc("/compare", s.wrap(s.compare)).Methods(http.MethodPost)
}

// Handler returns a router with every route and request logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.withLog)
	s.Route(r)
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		Addr:         addr,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("serving clock", "node", s.node, "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.log.Info("shutting down", "node", s.node)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) withLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

func (s *Server) wrap(next func(*http.Request, *Response)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := &Response{Status: http.StatusOK, Node: s.node}
		next(r, res)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(res.Status)
		if err := json.NewEncoder(w).Encode(res); err != nil {
			s.log.Warn("write response", "err", err)
		}
	}
}

// advance applies one transition and fills in the response.
func (s *Server) advance(r *http.Request, res *Response, next func(hlc.Clock) hlc.Clock) (hlc.Clock, bool) {
	if s.transition != nil {
		c, err := s.transition(r.Context(), next)
		if err != nil {
			s.log.Error("advance clock", "node", s.node, "err", err)
			res.Status = http.StatusInternalServerError
			res.Error = FailedToPersist
			return hlc.Clock{}, false
		}
		s.clock.Join(c.Stamp())
		stamp := c.Stamp()
		res.Stamp = &stamp
		return c, true
	}

	c := s.clock.Update(next)
	stamp := c.Stamp()
	res.Stamp = &stamp
	if s.persist == nil {
		return c, true
	}
	if err := s.persist(r.Context(), stamp); err != nil {
		s.log.Error("persist clock", "node", s.node, "stamp", stamp, "err", err)
		res.Status = http.StatusInternalServerError
		res.Error = FailedToPersist
		return c, false
	}
	return c, true
}

func (s *Server) getClock(r *http.Request, res *Response) {
	if s.load != nil {
		stored, err := s.load(r.Context())
		if err != nil {
			s.log.Error("load clock", "node", s.node, "err", err)
			res.Status = http.StatusInternalServerError
			res.Error = FailedToLoad
			return
		}
		s.clock.Join(stored)
	}
	stamp := s.clock.Load().Stamp()
	res.Stamp = &stamp
}

func (s *Server) tick(r *http.Request, res *Response) {
	if c, ok := s.advance(r, res, hlc.Clock.Tick); ok {
		s.log.Debug("tick", "node", s.node, "stamp", c.Stamp())
	}
}

func (s *Server) observe(r *http.Request, res *Response) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		badRequest(res, FailedToParse)
		return
	}

	var remote hlc.Stamp
	var from string
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == wire.ContentType {
		var env wire.Envelope
		if err := env.Unmarshal(body); err != nil {
			badRequest(res, err.Error())
			return
		}
		remote, from = env.Stamp, env.From
		if env.ID != uuid.Nil {
			res.MsgID = env.ID.String()
		}
	} else {
		var in ObserveRequest
		if err := json.Unmarshal(body, &in); err != nil {
			badRequest(res, FailedToParse)
			return
		}
		if in.Stamp == nil {
			badRequest(res, MissingStamp)
			return
		}
		remote, from = *in.Stamp, in.From
	}

	next := func(c hlc.Clock) hlc.Clock { return c.Observe(remote) }
	if c, ok := s.advance(r, res, next); ok {
		s.log.Debug("observe", "node", s.node, "from", from, "remote", remote, "stamp", c.Stamp())
	}
}

func (s *Server) compare(r *http.Request, res *Response) {
	var in CompareRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&in); err != nil {
		badRequest(res, FailedToParse)
		return
	}
	o := in.A.Compare(in.B)
	code := o.Code()
	res.Ordering = o.String()
	res.Code = &code
}

func badRequest(res *Response, msg string) {
	res.Status = http.StatusBadRequest
	res.Error = msg
}
