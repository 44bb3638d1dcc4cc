package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scavenger/internal/domain"
	"scavenger/internal/engine"
	"scavenger/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_owner"`
	Message string         `json:"message" example:"sender does not own this material"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"waste_id\":7}"`
}

// apiError models the error envelope every endpoint returns on failure.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Scavenger API. The context bounds
// the lifetime of background work such as the webhook dispatcher; cancel it
// when shutting the server down.
func New(ctx context.Context, cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	hcfg := huma.DefaultConfig("Scavenger API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerParticipants(group, cfg.Engine)
	registerMaterials(group, cfg.Engine)
	registerTransfers(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(ctx, cfg.Engine)

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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, engine.ErrAlreadyRegistered):
		return newAPIError(http.StatusConflict, "already_registered", err.Error(), nil)
	case errors.Is(err, engine.ErrNotRegistered):
		return newAPIError(http.StatusNotFound, "not_registered", err.Error(), nil)
	case errors.Is(err, engine.ErrUnauthorized):
		return newAPIError(http.StatusForbidden, "unauthorized", err.Error(), nil)
	case errors.Is(err, engine.ErrSenderNotRegistered):
		return newAPIError(http.StatusUnprocessableEntity, "sender_not_registered", err.Error(), nil)
	case errors.Is(err, engine.ErrReceiverNotRegistered):
		return newAPIError(http.StatusUnprocessableEntity, "receiver_not_registered", err.Error(), nil)
	case errors.Is(err, engine.ErrMaterialNotFound):
		return newAPIError(http.StatusNotFound, "material_not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrNotOwner):
		return newAPIError(http.StatusConflict, "not_owner", err.Error(), nil)
	case errors.Is(err, engine.ErrCannotCollect):
		return newAPIError(http.StatusForbidden, "cannot_collect", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidRole):
		return newAPIError(http.StatusBadRequest, "invalid_role", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Scavenger API Docs</title>
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

func registerParticipants(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-participant",
		Method:        http.MethodPost,
		Path:          "/participants",
		Summary:       "Register participant",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body RegisterParticipantRequest `json:"body"`
	}) (*struct {
		Body ParticipantResponse `json:"body"`
	}, error) {
		if input.Body.Address == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "address is required", nil)
		}
		if input.Body.Role == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "role is required", nil)
		}
		actor, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RegisterParticipant(ctx, engine.RegisterOptions{
			Actor:     actor,
			Address:   input.Body.Address,
			Role:      input.Body.Role,
			Name:      input.Body.Name,
			Latitude:  input.Body.Latitude,
			Longitude: input.Body.Longitude,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ParticipantResponse `json:"body"`
		}{Body: participantResponse(e, p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-participants",
		Method:      http.MethodGet,
		Path:        "/participants",
		Summary:     "List participants",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ParticipantResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListParticipants(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		resp := []ParticipantResponse{}
		for _, p := range items {
			resp = append(resp, participantResponse(e, p))
		}
		return &struct {
			Body []ParticipantResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-participant",
		Method:      http.MethodGet,
		Path:        "/participants/{address}",
		Summary:     "Get participant",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Address string `path:"address"`
	}) (*struct {
		Body ParticipantResponse `json:"body"`
	}, error) {
		p, err := e.GetParticipant(ctx, input.Address)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ParticipantResponse `json:"body"`
		}{Body: participantResponse(e, p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "participant-registered",
		Method:      http.MethodGet,
		Path:        "/participants/{address}/registered",
		Summary:     "Registration check",
	}, func(ctx context.Context, input *struct {
		Address string `path:"address"`
	}) (*struct {
		Body RegisteredResponse `json:"body"`
	}, error) {
		ok, err := e.IsRegistered(ctx, input.Address)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RegisteredResponse `json:"body"`
		}{Body: RegisteredResponse{Address: input.Address, Registered: ok}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-participant-role",
		Method:      http.MethodPatch,
		Path:        "/participants/{address}/role",
		Summary:     "Update participant role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Address string            `path:"address"`
		Body    UpdateRoleRequest `json:"body"`
	}) (*struct {
		Body ParticipantResponse `json:"body"`
	}, error) {
		if input.Body.Role == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "role is required", nil)
		}
		actor, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateRole(ctx, actor, input.Address, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ParticipantResponse `json:"body"`
		}{Body: participantResponse(e, p)}, nil
	})
}

func registerMaterials(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-material",
		Method:        http.MethodPost,
		Path:          "/materials",
		Summary:       "Submit material",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SubmitMaterialRequest `json:"body"`
	}) (*struct {
		Body MaterialResponse `json:"body"`
	}, error) {
		if input.Body.Kind == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "kind is required", nil)
		}
		if input.Body.Quantity <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "quantity must be positive", nil)
		}
		actor, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.SubmitMaterial(ctx, engine.SubmitOptions{
			Actor:       actor,
			Kind:        input.Body.Kind,
			Quantity:    input.Body.Quantity,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MaterialResponse `json:"body"`
		}{Body: materialResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-materials",
		Method:      http.MethodGet,
		Path:        "/materials",
		Summary:     "List materials",
	}, func(ctx context.Context, input *struct {
		Owner string `query:"owner"`
	}) (*struct {
		Body []MaterialResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListMaterials(ctx, input.Owner)
		if err != nil {
			return nil, handleError(err)
		}
		resp := []MaterialResponse{}
		for _, m := range items {
			resp = append(resp, materialResponse(m))
		}
		return &struct {
			Body []MaterialResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-material",
		Method:      http.MethodGet,
		Path:        "/materials/{id}",
		Summary:     "Get material",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body MaterialResponse `json:"body"`
	}, error) {
		m, err := e.GetMaterial(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MaterialResponse `json:"body"`
		}{Body: materialResponse(m)}, nil
	})
}

func registerTransfers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "transfer-waste",
		Method:        http.MethodPost,
		Path:          "/materials/{id}/transfers",
		Summary:       "Transfer material ownership",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64           `path:"id"`
		Body TransferRequest `json:"body"`
	}) (*struct {
		Body MaterialResponse `json:"body"`
	}, error) {
		if input.Body.From == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "from is required", nil)
		}
		if input.Body.To == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "to is required", nil)
		}
		actor, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.TransferWaste(ctx, actor, input.ID, input.Body.From, input.Body.To, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MaterialResponse `json:"body"`
		}{Body: materialResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "material-transfer-history",
		Method:      http.MethodGet,
		Path:        "/materials/{id}/transfers",
		Summary:     "Transfer history",
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body []TransferResponse `json:"body"`
	}, error) {
		transfers, err := e.History(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TransferResponse `json:"body"`
		}{Body: transferResponses(transfers)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "participant-outgoing-transfers",
		Method:      http.MethodGet,
		Path:        "/participants/{address}/transfers/outgoing",
		Summary:     "Transfers sent by participant",
	}, func(ctx context.Context, input *struct {
		Address string `path:"address"`
	}) (*struct {
		Body []TransferResponse `json:"body"`
	}, error) {
		transfers, err := e.TransfersFrom(ctx, input.Address)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TransferResponse `json:"body"`
		}{Body: transferResponses(transfers)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "participant-incoming-transfers",
		Method:      http.MethodGet,
		Path:        "/participants/{address}/transfers/incoming",
		Summary:     "Transfers received by participant",
	}, func(ctx context.Context, input *struct {
		Address string `path:"address"`
	}) (*struct {
		Body []TransferResponse `json:"body"`
	}, error) {
		transfers, err := e.TransfersTo(ctx, input.Address)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TransferResponse `json:"body"`
		}{Body: transferResponses(transfers)}, nil
	})
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"participant,material,waste"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		var items []domain.Event
		var err error
		if input.Cursor != "" {
			cursorID, perr := strconv.ParseInt(input.Cursor, 10, 64)
			if perr != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			items, err = e.Repo.EventsAfter(ctx, limit+1, cursorID)
		} else {
			items, err = e.Repo.LatestEvents(ctx, limit+1, input.Type, input.EntityKind, input.EntityID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if input.Body.Address == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "address is required", nil)
		}
		actor, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// A participant may only mint keys for its own address.
		if actor != input.Body.Address {
			return nil, newAPIError(http.StatusForbidden, "unauthorized", "cannot create api key for another address", nil)
		}
		secret := uuid.New().String()
		key := domain.APIKey{
			ID:      uuid.New().String(),
			Address: input.Body.Address,
			Name:    input.Body.Name,
			KeyHash: repo.HashAPIKey(secret),
		}
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		defer tx.Rollback()
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return nil, handleError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, handleError(err)
		}
		stored, err := e.Repo.GetAPIKeyByHash(ctx, key.KeyHash)
		if err != nil {
			return nil, handleError(err)
		}
		resp := apiKeyResponse(stored)
		resp.Key = secret
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		Address string `query:"address"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListAPIKeys(ctx, input.Address)
		if err != nil {
			return nil, handleError(err)
		}
		resp := []APIKeyResponse{}
		for _, k := range items {
			resp = append(resp, apiKeyResponse(k))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{id}",
		Summary:     "Revoke API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
