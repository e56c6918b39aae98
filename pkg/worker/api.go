package worker

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/offline-shell/pkg/cache"
	"github.com/Sternrassler/offline-shell/pkg/clients"
	"github.com/Sternrassler/offline-shell/pkg/drain"
	"github.com/Sternrassler/offline-shell/pkg/notify"
)

// maxEventBody bounds control request bodies. Larger bodies are rejected
// with 413.
const maxEventBody = 1 << 20

// errBadRequest marks malformed control requests.
var errBadRequest = errors.New("bad request")

type clickRequest struct {
	Action string           `json:"action"`
	Data   notify.ClickData `json:"data"`
}

type syncRequest struct {
	Tag string `json:"tag"`
}

// ControlRouter returns the control API delivering lifecycle and platform
// events:
//
//	POST   /install
//	POST   /activate
//	POST   /push                 raw push payload
//	POST   /notificationclick    {"action": "...", "data": {"url": "...", "type": "..."}}
//	POST   /sync                 {"tag": "sync-reports"}
//	POST   /message              {"type": "SKIP_WAITING"} or {"type": "CACHE_URLS", "urls": [...]}
//	POST   /queue/{kind}         JSON submission to replay later
//	POST   /clients              client descriptor
//	DELETE /clients/{id}
//	GET    /state
func (w *Worker) ControlRouter() chi.Router {
	r := chi.NewRouter()

	r.Post("/install", w.handleEvent(func(r *http.Request, _ []byte) (Event, error) {
		return Event{Kind: EventInstall}, nil
	}))
	r.Post("/activate", w.handleEvent(func(r *http.Request, _ []byte) (Event, error) {
		return Event{Kind: EventActivate}, nil
	}))
	r.Post("/push", w.handleEvent(func(r *http.Request, body []byte) (Event, error) {
		return Event{Kind: EventPush, Data: body}, nil
	}))
	r.Post("/notificationclick", w.handleEvent(func(r *http.Request, body []byte) (Event, error) {
		var req clickRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return Event{}, errors.Join(errBadRequest, err)
		}
		return Event{Kind: EventNotificationClick, Action: req.Action, Click: req.Data}, nil
	}))
	r.Post("/sync", w.handleEvent(func(r *http.Request, body []byte) (Event, error) {
		var req syncRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return Event{}, errors.Join(errBadRequest, err)
		}
		return Event{Kind: EventSync, Tag: req.Tag}, nil
	}))
	r.Post("/message", w.handleEvent(func(r *http.Request, body []byte) (Event, error) {
		if !json.Valid(body) {
			return Event{}, errors.Join(errBadRequest, errors.New("message is not JSON"))
		}
		return Event{Kind: EventMessage, Data: body}, nil
	}))

	r.Post("/queue/{kind}", w.handleEnqueue)
	r.Post("/clients", w.handleRegister)
	r.Delete("/clients/{id}", w.handleUnregister)
	r.Get("/state", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, w.Status())
	})

	return r
}

func (w *Worker) handleEvent(build func(r *http.Request, body []byte) (Event, error)) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxEventBody))
		if err != nil {
			writeError(rw, r, errors.Join(errBadRequest, err))
			return
		}
		ev, err := build(r, body)
		if err != nil {
			writeError(rw, r, err)
			return
		}

		res, err := w.Dispatch(r.Context(), ev)
		if err != nil {
			writeError(rw, r, err)
			return
		}
		writeJSON(rw, http.StatusOK, res)
	}
}

func (w *Worker) handleEnqueue(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxEventBody))
	if err != nil {
		writeError(rw, r, errors.Join(errBadRequest, err))
		return
	}
	key, err := w.drainer.Enqueue(r.Context(), chi.URLParam(r, "kind"), body)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusAccepted, map[string]string{"key": key.String()})
}

func (w *Worker) handleRegister(rw http.ResponseWriter, r *http.Request) {
	var d clients.Descriptor
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxEventBody)).Decode(&d); err != nil {
		writeError(rw, r, errors.Join(errBadRequest, err))
		return
	}
	if d.ID == "" {
		writeError(rw, r, errors.Join(errBadRequest, errors.New("client id is required")))
		return
	}
	if err := w.clients.Register(r.Context(), d); err != nil {
		writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (w *Worker) handleUnregister(rw http.ResponseWriter, r *http.Request) {
	if err := w.clients.Unregister(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// statusFor maps handler errors to HTTP statuses.
func statusFor(err error) int {
	var (
		installErr *cache.InstallError
		replayErr  *drain.ReplayError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, drain.ErrInvalidKind),
		errors.Is(err, drain.ErrInvalidBody),
		errors.Is(err, cache.ErrNotKeyable):
		return http.StatusBadRequest
	case errors.Is(err, clients.ErrUnknownClient):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &installErr), errors.As(err, &replayErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(rw http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	hlog.FromRequest(r).Warn().Err(err).Int("status", status).Msg("Control request failed")
	writeJSON(rw, status, map[string]string{"error": err.Error()})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
