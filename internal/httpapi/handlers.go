package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/DoyleJ11/queue-draft-backend/internal/dispatch"
	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/hub"
	"github.com/DoyleJ11/queue-draft-backend/internal/lobby"
	"github.com/DoyleJ11/queue-draft-backend/internal/stats"
	"github.com/DoyleJ11/queue-draft-backend/internal/store"
	"github.com/DoyleJ11/queue-draft-backend/pkg/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	HeaderParticipantID   = "X-Participant-ID"
	HeaderParticipantName = "X-Participant-Name"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type API struct {
	hub      *hub.Hub
	dispatch *dispatch.Dispatcher
	stats    *stats.Query
	ready    []Pinger
	log      *zap.Logger
}

func New(h *hub.Hub, d *dispatch.Dispatcher, q *stats.Query, log *zap.Logger, ready ...Pinger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{hub: h, dispatch: d, stats: q, ready: ready, log: log}
}

type errorResponse struct {
	Error *types.ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusOf maps an error to the HTTP status a client should see.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrInvalidMessage), errors.Is(err, engine.ErrInvalidQueue), errors.Is(err, engine.ErrUnknownSession):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lobby.ErrClosed), errors.Is(err, hub.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch engine.KindOf(err) {
	case engine.KindValidation, engine.KindCapacity:
		return http.StatusConflict
	case engine.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: dispatch.ErrorBody(err)})
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, dispatch.ErrInvalidMessage
	}
	return v, nil
}

func queryLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

// eventBody is the optional JSON body of queue operations.
type eventBody struct {
	Session   string `json:"session"`
	Candidate string `json:"candidate"`
	PoolIndex *int   `json:"pool_index"`
	Accept    bool   `json:"accept"`
	Team      string `json:"team"`
}

// Event applies one queue operation of type msgType for the caller named in
// the participant headers.
func (a *API) Event(msgType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "id")
		if err != nil {
			a.fail(w, r, err)
			return
		}
		var body eventBody
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				a.fail(w, r, errors.Join(dispatch.ErrInvalidMessage, err))
				return
			}
		}
		res, err := a.dispatch.Handle(r.Context(), dispatch.SourceHTTP, types.ClientMessage{
			Type:            msgType,
			Queue:           int(id),
			ParticipantID:   r.Header.Get(HeaderParticipantID),
			ParticipantName: r.Header.Get(HeaderParticipantName),
			Session:         body.Session,
			Candidate:       body.Candidate,
			PoolIndex:       body.PoolIndex,
			Accept:          body.Accept,
			Team:            body.Team,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res.Snapshot)
	}
}

func (a *API) ListQueues(w http.ResponseWriter, r *http.Request) {
	out := []types.QueueSummary{}
	for _, snap := range a.hub.List(r.Context()) {
		out = append(out, snap.Summary())
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) GetQueue(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q, ok, err := a.hub.Get(r.Context(), int(id))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !ok {
		a.fail(w, r, store.ErrNotFound)
		return
	}
	snap, err := q.Snapshot(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) QueueHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	h, err := a.stats.QueueHistory(r.Context(), int(id), queryLimit(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (a *API) Leaderboard(w http.ResponseWriter, r *http.Request) {
	recs, err := a.stats.Leaderboard(r.Context(), queryLimit(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *API) Player(w http.ResponseWriter, r *http.Request) {
	p, err := a.stats.Profile(r.Context(), chi.URLParam(r, "id"), 5)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) PlayerMatches(w http.ResponseWriter, r *http.Request) {
	ms, err := a.stats.PlayerHistory(r.Context(), chi.URLParam(r, "id"), queryLimit(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (a *API) Match(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	d, err := a.stats.MatchDetails(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) Readyz(w http.ResponseWriter, r *http.Request) {
	for _, p := range a.ready {
		if err := p.Ping(r.Context()); err != nil {
			a.log.Warn("readiness check failed", zap.Error(err))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
