// Package server exposes the assistant pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"aide/internal/approval"
	"aide/internal/classifier"
	"aide/internal/engine"
	"aide/internal/logging"
	"aide/internal/models"
	"aide/internal/router"
)

// Config for the HTTP API handler.
type Config struct {
	Classifier *classifier.Classifier
	Router     *router.Router
	Gateway    *approval.Gateway
	Engine     *engine.Engine

	// DefaultUser is used when a request carries no authenticated subject.
	DefaultUser string

	// JWTSecret enables bearer auth when non-empty.
	JWTSecret string

	BasePath string
}

type apiErrorBody struct {
	Code    string `json:"code" example:"not_found"`
	Message string `json:"message" example:"approval not found"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string) huma.StatusError {
	if code == "" {
		code = codeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message}}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	default:
		return "internal"
	}
}

type serverState struct {
	cfg    Config
	logger zerolog.Logger
}

// New returns an HTTP handler exposing the assistant API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Router == nil || cfg.Gateway == nil || cfg.Engine == nil || cfg.Classifier == nil {
		return nil, errors.New("server requires classifier, router, gateway and engine")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	huma.NewError = func(status int, msg string, _ ...error) huma.StatusError {
		return newAPIError(status, "", msg)
	}

	mux := chi.NewRouter()
	mux.Use(newAuthMiddleware(basePath, cfg.JWTSecret))

	hcfg := huma.DefaultConfig("Aide API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(mux, hcfg)
	group := huma.NewGroup(api, basePath)

	s := &serverState{cfg: cfg, logger: logging.Component("server")}

	registerHealth(group)
	s.registerMessages(group)
	s.registerApprovals(group)
	s.registerTasks(group)

	return mux, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Health check",
	}, func(_ context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

// userID resolves the acting user: authenticated subject first, then the
// configured default.
func (s *serverState) userID(ctx context.Context) (string, huma.StatusError) {
	if subject, ok := subjectFromContext(ctx); ok && subject != "" {
		return subject, nil
	}
	if s.cfg.DefaultUser != "" {
		return s.cfg.DefaultUser, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required")
}

func (s *serverState) registerMessages(api huma.API) {
	type messageInput struct {
		Body struct {
			Text    string            `json:"text" minLength:"1" doc:"User utterance"`
			History []classifier.Turn `json:"history,omitempty" doc:"Prior conversation turns"`
		}
	}
	type messageOutput struct {
		Body router.RouteResult `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "post-message",
		Method:      http.MethodPost,
		Path:        "/messages",
		Summary:     "Classify and route an utterance",
	}, func(ctx context.Context, input *messageInput) (*messageOutput, error) {
		userID, authErr := s.userID(ctx)
		if authErr != nil {
			return nil, authErr
		}

		classification := s.cfg.Classifier.Classify(ctx, input.Body.Text, input.Body.History)
		result, err := s.cfg.Router.Route(ctx, userID, classification)
		if err != nil {
			return nil, mapDomainError(err)
		}
		return &messageOutput{Body: *result}, nil
	})
}

func (s *serverState) registerApprovals(api huma.API) {
	type listOutput struct {
		Body struct {
			Approvals []*models.Approval `json:"approvals"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-approvals",
		Method:      http.MethodGet,
		Path:        "/approvals",
		Summary:     "List pending approvals",
	}, func(ctx context.Context, _ *struct{}) (*listOutput, error) {
		userID, authErr := s.userID(ctx)
		if authErr != nil {
			return nil, authErr
		}

		pending, err := s.cfg.Gateway.ListPending(ctx, userID)
		if err != nil {
			return nil, mapDomainError(err)
		}
		out := &listOutput{}
		out.Body.Approvals = pending
		return out, nil
	})

	type approvalPath struct {
		ID string `path:"id"`
	}
	type approvalOutput struct {
		Body models.Approval `json:"body"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-approval",
		Method:      http.MethodGet,
		Path:        "/approvals/{id}",
		Summary:     "Approval with decision and execution state",
	}, func(ctx context.Context, input *approvalPath) (*approvalOutput, error) {
		if _, authErr := s.userID(ctx); authErr != nil {
			return nil, authErr
		}
		found, err := s.cfg.Gateway.Get(ctx, input.ID)
		if err != nil {
			return nil, mapDomainError(err)
		}
		return &approvalOutput{Body: *found}, nil
	})

	type decisionInput struct {
		ID   string `path:"id"`
		Body struct {
			Approve bool   `json:"approve"`
			Reason  string `json:"reason,omitempty"`
		}
	}
	type decisionOutput struct {
		Body models.Approval `json:"body"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "decide-approval",
		Method:      http.MethodPost,
		Path:        "/approvals/{id}/decision",
		Summary:     "Approve or reject a pending approval",
	}, func(ctx context.Context, input *decisionInput) (*decisionOutput, error) {
		userID, authErr := s.userID(ctx)
		if authErr != nil {
			return nil, authErr
		}

		decided, err := s.cfg.Gateway.Decide(ctx, input.ID, input.Body.Approve, input.Body.Reason, userID)
		if err != nil {
			return nil, mapDomainError(err)
		}

		if input.Body.Approve {
			// Execution can outlive the request; the approval record is
			// polled for the outcome.
			go func(id string) {
				if _, err := s.cfg.Gateway.Execute(context.Background(), id); err != nil {
					s.logger.Warn().Err(err).Str("approval_id", id).Msg("execution failed")
				}
			}(decided.ID)
		}
		return &decisionOutput{Body: *decided}, nil
	})
}

func (s *serverState) registerTasks(api huma.API) {
	type startInput struct {
		Body struct {
			Prompt string `json:"prompt" minLength:"1" doc:"Multi-step task description"`
		}
	}
	type taskOutput struct {
		Body models.Task `json:"body"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "start-task",
		Method:      http.MethodPost,
		Path:        "/tasks",
		Summary:     "Start a multi-step task",
	}, func(ctx context.Context, input *startInput) (*taskOutput, error) {
		userID, authErr := s.userID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !engine.IsMultiStep(input.Body.Prompt) {
			return nil, newAPIError(http.StatusUnprocessableEntity, "not_multi_step", engine.MultiStepHint)
		}

		task, err := s.cfg.Engine.Start(ctx, userID, input.Body.Prompt)
		if err != nil {
			return nil, mapDomainError(err)
		}
		go func(id string) {
			if _, err := s.cfg.Engine.Resume(context.Background(), id); err != nil {
				s.logger.Warn().Err(err).Str("task_id", id).Msg("task run failed")
			}
		}(task.ID)
		return &taskOutput{Body: *task}, nil
	})

	type taskPath struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Task status with iteration history",
	}, func(ctx context.Context, input *taskPath) (*taskOutput, error) {
		if _, authErr := s.userID(ctx); authErr != nil {
			return nil, authErr
		}
		task, err := s.cfg.Engine.Status(ctx, input.ID)
		if err != nil {
			return nil, mapDomainError(err)
		}
		return &taskOutput{Body: *task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/cancel",
		Summary:     "Request a running task to stop",
	}, func(ctx context.Context, input *taskPath) (*taskOutput, error) {
		if _, authErr := s.userID(ctx); authErr != nil {
			return nil, authErr
		}
		if err := s.cfg.Engine.Cancel(ctx, input.ID); err != nil {
			return nil, mapDomainError(err)
		}
		task, err := s.cfg.Engine.Status(ctx, input.ID)
		if err != nil {
			return nil, mapDomainError(err)
		}
		return &taskOutput{Body: *task}, nil
	})
}

// mapDomainError translates typed domain errors into the API envelope.
func mapDomainError(err error) huma.StatusError {
	switch {
	case errors.Is(err, approval.ErrNotFound), errors.Is(err, engine.ErrTaskNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, approval.ErrInvalidTransition),
		errors.Is(err, approval.ErrNotApproved),
		errors.Is(err, approval.ErrAlreadyExecuting),
		errors.Is(err, approval.ErrAlreadyTerminal),
		errors.Is(err, engine.ErrTaskNotRunning):
		return newAPIError(http.StatusConflict, "conflict", err.Error())
	default:
		return newAPIError(http.StatusInternalServerError, "internal", err.Error())
	}
}
