package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/genoroute/internal/errors"
	"github.com/3leaps/genoroute/pkg/recovery"
	"github.com/3leaps/genoroute/pkg/router"
	"github.com/3leaps/genoroute/pkg/stage"
	"github.com/3leaps/genoroute/pkg/tagging"
)

// MaxBodyBytes caps event bodies accepted by the API.
const MaxBodyBytes = 1 << 20

// Router routes one SNS envelope.
type Router interface {
	Route(ctx context.Context, raw []byte) (*router.Result, error)
}

// Recoverer classifies one Batch state-change event.
type Recoverer interface {
	OnJobStateChange(ctx context.Context, raw []byte) (*recovery.Outcome, error)
}

// Tagger applies lifecycle tags for one SNS envelope.
type Tagger interface {
	Apply(ctx context.Context, raw []byte) (*tagging.Result, error)
}

// API serves the event endpoints. Nil collaborators disable their endpoint.
type API struct {
	routers   map[string]Router
	recoverer Recoverer
	tagger    Tagger
	logger    *zap.Logger
}

// NewAPI creates the event API. routers is keyed by pipeline name.
func NewAPI(routers map[string]Router, recoverer Recoverer, tagger Tagger) *API {
	return &API{routers: routers, recoverer: recoverer, tagger: tagger, logger: zap.NewNop()}
}

// WithLogger sets the request logger. A nil logger is ignored.
func (a *API) WithLogger(l *zap.Logger) *API {
	if l != nil {
		a.logger = l
	}
	return a
}

// Mount registers the API routes on r.
func (a *API) Mount(r chi.Router) {
	r.Post("/v1/route/{pipeline}", a.Route)
	r.Post("/v1/recover", a.Recover)
	r.Post("/v1/tag", a.Tag)
}

// Route handles POST /v1/route/{pipeline}.
func (a *API) Route(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "pipeline")
	rt, ok := a.routers[name]
	if !ok {
		respondWithError(w, r, fmt.Errorf("pipeline %q: %w", name, stage.ErrUnknownPipeline))
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := rt.Route(r.Context(), body)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Record())
}

// Recover handles POST /v1/recover.
func (a *API) Recover(w http.ResponseWriter, r *http.Request) {
	if a.recoverer == nil {
		respondWithError(w, r, apperrors.NewNotFoundError("recovery is not enabled"))
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	out, err := a.recoverer.OnJobStateChange(r.Context(), body)
	if err != nil {
		if out != nil {
			a.logger.Warn("recovery resubmission failed",
				zap.String("job_name", out.Record.JobName),
				zap.Error(err))
		}
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out.Output())
}

// Tag handles POST /v1/tag.
func (a *API) Tag(w http.ResponseWriter, r *http.Request) {
	if a.tagger == nil {
		respondWithError(w, r, apperrors.NewNotFoundError("tagging is not enabled"))
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := a.tagger.Apply(r.Context(), body)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Record())
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("read request body", err))
		return nil, false
	}
	return body, true
}

var (
	_ Router    = (*router.Router)(nil)
	_ Recoverer = (*recovery.Classifier)(nil)
	_ Tagger    = (*tagging.Tagger)(nil)
)
