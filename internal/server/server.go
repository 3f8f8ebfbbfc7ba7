// Package server exposes the HTTP API. Handlers are thin: they decode,
// resolve the acting principal and delegate to the engine, which owns
// every rule.
package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"ouvidor/internal/capability"
	"ouvidor/internal/domain"
	"ouvidor/internal/engine"
	"ouvidor/internal/lifecycle"
	"ouvidor/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid transition: action close from status new"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the ombudsman API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema-level request validation is a 400, not a lifecycle 422.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Ouvidor API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerPublic(group, cfg.Engine)
	registerManifestations(group, cfg.Engine)
	registerPlans(group, cfg.Engine)
	registerDirectory(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerAudit(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps the engine's typed errors onto the HTTP taxonomy.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ferr capability.ForbiddenError
	if errors.As(err, &ferr) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"capability": ferr.Capability})
	}
	var terr lifecycle.InvalidTransitionError
	if errors.As(err, &terr) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), map[string]any{
			"from": terr.From, "action": terr.Action,
		})
	}
	var perr lifecycle.InvalidPlanTransitionError
	if errors.As(err, &perr) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), map[string]any{
			"from": perr.From, "to": perr.To,
		})
	}
	var verr engine.ValidationError
	if errors.As(err, &verr) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "invalid_transition"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func composeCursor(createdAt, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(createdAt + "|" + id))
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed cursor")
	}
	return parts[0], parts[1], nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Ouvidor API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

// registerPublic covers the citizen surface: intake (registered under
// /manifestations but exempt from auth) and protocol lookup.
func registerPublic(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "public-lookup-manifestation",
		Method:      http.MethodGet,
		Path:        "/public/manifestations/{protocol}",
		Summary:     "Citizen protocol lookup",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Protocol string `path:"protocol"`
	}) (*struct {
		Body PublicManifestationResponse `json:"body"`
	}, error) {
		m, err := e.Repo.GetManifestationByProtocol(ctx, input.Protocol)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PublicManifestationResponse `json:"body"`
		}{Body: publicManifestationResponse(e, m)}, nil
	})
}

func registerManifestations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-manifestation",
		Method:        http.MethodPost,
		Path:          "/manifestations",
		Summary:       "Register manifestation",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateManifestationRequest `json:"body"`
	}) (*struct {
		Body ManifestationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		// Anonymous citizen intake is allowed; an authenticated principal
		// is used when present.
		actor := domain.Actor{}
		if p, ok := principalFromContext(ctx); ok {
			actor = domain.Actor{ID: p.UserID, Role: p.Role}
		}
		opts := engine.CreateOptions{
			Type:             domain.Type(input.Body.Type),
			Priority:         domain.Priority(input.Body.Priority),
			Description:      input.Body.Description,
			Anonymous:        input.Body.Anonymous,
			Confidential:     input.Body.Confidential,
			Channel:          domain.Channel(input.Body.Channel),
			ResponseDeadline: input.Body.ResponseDeadline,
		}
		if input.Body.Complainant != nil {
			opts.Complainant = &engine.ComplainantInput{
				Name:    input.Body.Complainant.Name,
				Email:   input.Body.Complainant.Email,
				Phone:   input.Body.Complainant.Phone,
				Consent: input.Body.Complainant.Consent,
			}
		}
		m, err := e.CreateManifestation(ctx, actor, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ManifestationResponse `json:"body"`
		}{Body: manifestationResponse(e, m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-manifestations",
		Method:      http.MethodGet,
		Path:        "/manifestations",
		Summary:     "List manifestations",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Type     string `query:"type"`
		SectorID string `query:"sector_id"`
		UserID   string `query:"user_id"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedManifestations `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListManifestations(ctx, actor, repo.ManifestationFilters{
			Status:          input.Status,
			Type:            input.Type,
			SectorID:        input.SectorID,
			UserID:          input.UserID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedManifestations{Items: []ManifestationResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		resp.Items = mapManifestations(e, items)
		return &struct {
			Body paginatedManifestations `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-manifestation",
		Method:      http.MethodGet,
		Path:        "/manifestations/{id}",
		Summary:     "Get manifestation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ManifestationResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		m, err := e.Repo.GetManifestation(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ManifestationResponse `json:"body"`
		}{Body: manifestationResponse(e, m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-manifestation",
		Method:      http.MethodPatch,
		Path:        "/manifestations/{id}",
		Summary:     "Edit manifestation content",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body EditManifestationRequest `json:"body"`
	}) (*struct {
		Body ManifestationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.EditOptions{
			Description:  input.Body.Description,
			Confidential: input.Body.Confidential,
		}
		if input.Body.Priority != nil {
			p := domain.Priority(*input.Body.Priority)
			opts.Priority = &p
		}
		m, err := e.EditContent(ctx, actor, input.ID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ManifestationResponse `json:"body"`
		}{Body: manifestationResponse(e, m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-manifestation",
		Method:      http.MethodDelete,
		Path:        "/manifestations/{id}",
		Summary:     "Delete manifestation permanently",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeletePermanently(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "forward-manifestation",
		Method:      http.MethodPost,
		Path:        "/manifestations/{id}/forward",
		Summary:     "Forward to sector",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body ForwardRequest `json:"body"`
	}) (*struct {
		Body ForwardResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, fwd, err := e.Forward(ctx, actor, input.ID, engine.ForwardOptions{
			DestinationSectorID: input.Body.DestinationSectorID,
			DestinationUserID:   input.Body.DestinationUserID,
			Instructions:        input.Body.Instructions,
			Deadline:            input.Body.Deadline,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ForwardResponse `json:"body"`
		}{Body: ForwardResponse{Manifestation: manifestationResponse(e, m), Forwarding: fwd}}, nil
	})

	type actionHandler func(ctx context.Context, actor domain.Actor, id string) (domain.Manifestation, error)
	registerAction := func(opID, urlPath, summary string, fn actionHandler) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        urlPath,
			Summary:     summary,
			Errors: []int{
				http.StatusForbidden,
				http.StatusNotFound,
				http.StatusConflict,
				http.StatusUnprocessableEntity,
			},
		}, func(ctx context.Context, input *struct {
			ID string `path:"id"`
		}) (*struct {
			Body ManifestationResponse `json:"body"`
		}, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			m, err := fn(ctx, actor, input.ID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body ManifestationResponse `json:"body"`
			}{Body: manifestationResponse(e, m)}, nil
		})
	}
	registerAction("analyze-manifestation", "/manifestations/{id}/analyze", "Start analysis", e.Analyze)
	registerAction("start-service", "/manifestations/{id}/start-service", "Start service", e.StartService)
	registerAction("await-return", "/manifestations/{id}/await-return", "Await sector return", e.AwaitReturn)
	registerAction("close-manifestation", "/manifestations/{id}/close", "Close manifestation", e.Close)

	huma.Register(api, huma.Operation{
		OperationID: "respond-manifestation",
		Method:      http.MethodPost,
		Path:        "/manifestations/{id}/respond",
		Summary:     "Record final response",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body RespondRequest `json:"body"`
	}) (*struct {
		Body ManifestationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Respond(ctx, actor, input.ID, input.Body.Response)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ManifestationResponse `json:"body"`
		}{Body: manifestationResponse(e, m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-manifestation",
		Method:      http.MethodPost,
		Path:        "/manifestations/{id}/cancel",
		Summary:     "Cancel manifestation",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body CancelRequest `json:"body"`
	}) (*struct {
		Body ManifestationResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Cancel(ctx, actor, input.ID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ManifestationResponse `json:"body"`
		}{Body: manifestationResponse(e, m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-forwardings",
		Method:      http.MethodGet,
		Path:        "/manifestations/{id}/forwardings",
		Summary:     "Routing history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.ForwardingRecord `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetManifestation(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListForwardings(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ForwardingRecord{}
		}
		return &struct {
			Body []domain.ForwardingRecord `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-return",
		Method:      http.MethodPost,
		Path:        "/manifestations/{id}/return",
		Summary:     "Record forwarding return",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body ReturnRequest `json:"body"`
	}) (*struct {
		Body ForwardResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, fwd, err := e.RecordReturn(ctx, actor, input.ID, engine.ReturnOptions{
			Status: domain.ForwardingStatus(input.Body.Status),
			Note:   input.Body.Note,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ForwardResponse `json:"body"`
		}{Body: ForwardResponse{Manifestation: manifestationResponse(e, m), Forwarding: fwd}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-response-email",
		Method:      http.MethodPost,
		Path:        "/manifestations/{id}/email",
		Summary:     "Email response to citizen",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SendEmailRequest `json:"body"`
	}) (*struct {
		Body domain.Communication `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		comm, err := e.SendResponseEmail(ctx, actor, input.ID, input.Body.Recipient)
		if err != nil {
			if comm.Status == domain.CommunicationFailed {
				// Delivery failed but the attempt was recorded.
				return nil, newAPIError(http.StatusBadGateway, "mail_failed", err.Error(), map[string]any{"communication_id": comm.ID})
			}
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Communication `json:"body"`
		}{Body: comm}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-communications",
		Method:      http.MethodGet,
		Path:        "/manifestations/{id}/communications",
		Summary:     "Outbound email history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Communication `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListCommunications(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Communication{}
		}
		return &struct {
			Body []domain.Communication `json:"body"`
		}{Body: items}, nil
	})
}

func registerPlans(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-plan",
		Method:        http.MethodPost,
		Path:          "/manifestations/{id}/plans",
		Summary:       "Create action plan",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body CreatePlanRequest `json:"body"`
	}) (*struct {
		Body domain.ActionPlan `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plan, err := e.CreatePlan(ctx, actor, input.ID, engine.PlanOptions{
			Title:             input.Body.Title,
			Description:       input.Body.Description,
			SectorID:          input.Body.SectorID,
			ResponsibleUserID: input.Body.ResponsibleUserID,
			Deadline:          input.Body.Deadline,
			Notes:             input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActionPlan `json:"body"`
		}{Body: plan}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-plans",
		Method:      http.MethodGet,
		Path:        "/manifestations/{id}/plans",
		Summary:     "List action plans",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.ActionPlan `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetManifestation(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListPlans(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ActionPlan{}
		}
		return &struct {
			Body []domain.ActionPlan `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-plan",
		Method:      http.MethodPost,
		Path:        "/plans/{id}/advance",
		Summary:     "Advance plan status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body AdvancePlanRequest `json:"body"`
	}) (*struct {
		Body domain.ActionPlan `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plan, err := e.AdvancePlan(ctx, actor, input.ID, domain.PlanStatus(input.Body.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActionPlan `json:"body"`
		}{Body: plan}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-plan-notes",
		Method:      http.MethodPatch,
		Path:        "/plans/{id}/notes",
		Summary:     "Update plan notes",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body PlanNotesRequest `json:"body"`
	}) (*struct {
		Body domain.ActionPlan `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plan, err := e.UpdatePlanNotes(ctx, actor, input.ID, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActionPlan `json:"body"`
		}{Body: plan}, nil
	})
}

func registerDirectory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upsert-sector",
		Method:      http.MethodPut,
		Path:        "/sectors/{id}",
		Summary:     "Create or update sector",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpsertSectorRequest `json:"body"`
	}) (*struct {
		Body domain.Sector `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := capability.For(actor.Role).Require(capability.ManageSectors); err != nil {
			return nil, handleError(err)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		s := domain.Sector{
			ID:          input.ID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			CreatedAt:   nowRFC3339(e),
		}
		if err := e.Repo.UpsertSector(ctx, s); err != nil {
			return nil, handleError(err)
		}
		s, err := e.Repo.GetSector(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sector `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sectors",
		Method:      http.MethodGet,
		Path:        "/sectors",
		Summary:     "List sectors",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Sector `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListSectors(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Sector{}
		}
		return &struct {
			Body []domain.Sector `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-user",
		Method:      http.MethodPut,
		Path:        "/users/{id}",
		Summary:     "Create or update user",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpsertUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := capability.For(actor.Role).Require(capability.ManageUsers); err != nil {
			return nil, handleError(err)
		}
		role := domain.Role(input.Body.Role)
		if !role.Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown role "+input.Body.Role, nil)
		}
		u := domain.User{
			ID:        input.ID,
			Name:      input.Body.Name,
			Role:      role,
			SectorID:  input.Body.SectorID,
			CreatedAt: nowRFC3339(e),
		}
		if err := e.Repo.UpsertUser(ctx, u); err != nil {
			return nil, handleError(err)
		}
		u, err := e.Repo.GetUser(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, input *struct {
		SectorID string `query:"sector_id"`
	}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListUsers(ctx, input.SectorID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.User{}
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: items}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List my notifications",
	}, func(ctx context.Context, input *struct {
		UnreadOnly bool `query:"unread"`
	}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListNotifications(ctx, actor.ID, input.UnreadOnly)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Notification{}
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-notification",
		Method:      http.MethodPost,
		Path:        "/notifications/{id}/read",
		Summary:     "Mark notification read",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Notification `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.MarkNotificationRead(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Notification `json:"body"`
		}{Body: n}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "report-summary",
		Method:      http.MethodGet,
		Path:        "/reports/summary",
		Summary:     "Office-wide summary",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Days int `query:"days" default:"30"`
	}) (*struct {
		Body engine.ReportSummary `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		summary, err := e.Report(ctx, actor, input.Days)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ReportSummary `json:"body"`
		}{Body: summary}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "audit-tail",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Latest audit entries",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"50"`
		Action     string `query:"action"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.AuditEntry `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := capability.For(actor.Role).Require(capability.ViewReports); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.LatestAuditEntries(ctx, normalizeLimit(input.Limit), input.Action, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.AuditEntry{}
		}
		return &struct {
			Body []domain.AuditEntry `json:"body"`
		}{Body: items}, nil
	})
}

func nowRFC3339(e engine.Engine) string {
	return e.Now().UTC().Format(time.RFC3339)
}
