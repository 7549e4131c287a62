package httpapi

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/omnisign/sessionguard/internal/platform/errors"
	platformotel "github.com/omnisign/sessionguard/internal/platform/otel"
	"github.com/omnisign/sessionguard/internal/services/guard/biometric"
	"github.com/omnisign/sessionguard/internal/services/guard/session"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "github.com/omnisign/sessionguard/internal/services/guard/httpapi"

// Session is the state machine surface the handlers drive.
type Session interface {
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Evaluate(ctx context.Context) (session.Snapshot, error)
	Onboard(ctx context.Context, sub session.Submission) (session.Snapshot, error)
	UnlockWithPIN(ctx context.Context, entered string) (session.Snapshot, error)
	UnlockWithBiometric(ctx context.Context) (session.Snapshot, error)
	RecordActivity(ctx context.Context) (session.Snapshot, error)
	ForgotPIN(ctx context.Context, confirmed bool) (session.Snapshot, error)
	Settings(ctx context.Context) (session.Settings, error)
	EditProfile(ctx context.Context, edit session.Edit) (session.Snapshot, error)
}

// Ceremonies is the page-facing side of the biometric relay.
type Ceremonies interface {
	SetAvailable(available bool)
	Pending() (biometric.Ceremony, bool)
	Complete(id string, response []byte) error
	Cancel(id string) error
}

// Options wires a handler.
type Options struct {
	Session        Session
	Ceremonies     Ceremonies
	Directives     *Directives
	AllowedOrigins []string
}

type handler struct {
	session    Session
	ceremonies Ceremonies
	directives *Directives
}

// NewHandler builds the guard's HTTP routes.
func NewHandler(opts Options) http.Handler {
	h := &handler{
		session:    opts.Session,
		ceremonies: opts.Ceremonies,
		directives: opts.Directives,
	}
	if h.directives == nil {
		h.directives = NewDirectives()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(traceRequests)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(rejectCrossOrigin(opts.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.handleSnapshot)
			r.Post("/foreground", h.handleForeground)
			r.Post("/onboard", h.handleOnboard)
			r.Post("/unlock/pin", h.handleUnlockPIN)
			r.Post("/unlock/biometric", h.handleUnlockBiometric)
			r.Post("/activity", h.handleActivity)
			r.Post("/forgot-pin", h.handleForgotPIN)
		})
		r.Get("/profile", h.handleGetProfile)
		r.Put("/profile", h.handleEditProfile)
		r.Get("/directives", h.handleDirectives)

		r.Route("/biometric", func(r chi.Router) {
			r.Post("/capability", h.handleCapability)
			r.Get("/ceremony", h.handlePendingCeremony)
			r.Post("/ceremony/{id}", h.handleCompleteCeremony)
			r.Delete("/ceremony/{id}", h.handleCancelCeremony)
		})
	})
	return r
}

// rejectCrossOrigin refuses state-changing requests sent by pages other than
// the guard's own origin or an allowed one.
func rejectCrossOrigin(allowed []string) func(http.Handler) http.Handler {
	protection := http.NewCrossOriginProtection()
	for _, origin := range allowed {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			log.Printf("ignoring allowed origin %q: %v", origin, err)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := protection.Check(r); err != nil {
				writeError(w, r, errors.WithMetadata(errors.CodeOriginNotAllowed,
					"cross-origin request rejected: "+err.Error(),
					map[string]string{"Origin": r.Header.Get("Origin")}), session.Snapshot{})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func traceRequests(next http.Handler) http.Handler {
	tracer := platformotel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		span.SetAttributes(attribute.String("http.request.method", r.Method))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
