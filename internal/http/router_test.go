package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/auth"
	"github.com/freelance-marketplace/contract-workflow/internal/config"
	"github.com/freelance-marketplace/contract-workflow/internal/events"
	"github.com/freelance-marketplace/contract-workflow/internal/http/handlers"
	"github.com/freelance-marketplace/contract-workflow/internal/middleware"
	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/freelance-marketplace/contract-workflow/internal/repositories/memstore"
	"github.com/freelance-marketplace/contract-workflow/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	testSecret        = "test-secret"
	testInternalToken = "internal"
)

type apiResponse struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
	Kind  string          `json:"kind"`
}

type testAPI struct {
	t   *testing.T
	app *fiber.App
	bus *events.MemoryBus
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := zap.NewNop()
	store := memstore.New()
	bus := events.NewMemoryBus()

	cfg := &config.Config{
		JWTSecret:     testSecret,
		InternalToken: testInternalToken,
		CORSOrigins:   "*",
	}

	workflow := services.NewWorkflowService(store, bus, log)
	query := services.NewQueryService(store, log)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	SetupRouter(app, cfg, log, nil, Handlers{
		Contract:       handlers.NewContractHandler(workflow, query, log),
		Milestone:      handlers.NewMilestoneHandler(workflow, query, log),
		PaymentRequest: handlers.NewPaymentRequestHandler(workflow, query, log),
		User:           handlers.NewUserHandler(services.NewUserService(store.Users(), log), log),
		Meta:           handlers.NewMetaHandler(),
		WS:             handlers.NewWSHub(testSecret, bus, log),
	})
	return &testAPI{t: t, app: app, bus: bus}
}

func (a *testAPI) token(userID uuid.UUID, role string) string {
	a.t.Helper()
	tok, err := auth.GenerateJWT(testSecret, userID, role, time.Hour)
	if err != nil {
		a.t.Fatalf("GenerateJWT: %v", err)
	}
	return tok
}

func (a *testAPI) do(method, path, token string, body any, headers map[string]string) (int, apiResponse) {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.app.Test(req, -1)
	if err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, out
}

func (a *testAPI) syncUser(id uuid.UUID, role string) {
	a.t.Helper()
	status, resp := a.do(fiber.MethodPost, "/api/v1/internal/users", "",
		map[string]any{"id": id.String(), "role": role},
		map[string]string{middleware.HeaderInternalToken: testInternalToken})
	if status != fiber.StatusOK {
		a.t.Fatalf("sync user: %d %s", status, resp.Error)
	}
}

func decodeID(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var v struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return v.ID
}

func TestContractLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	clientID, freelancerID := uuid.New(), uuid.New()
	api.syncUser(clientID, models.UserRoleClient)
	api.syncUser(freelancerID, models.UserRoleFreelancer)
	client := api.token(clientID, models.UserRoleClient)
	freelancer := api.token(freelancerID, models.UserRoleFreelancer)

	status, resp := api.do(fiber.MethodPost, "/api/v1/contracts", client, map[string]any{
		"project_id":    "p-1",
		"proposal_id":   "prop-1",
		"freelancer_id": freelancerID.String(),
		"total_amount":  "1000.00",
		"currency":      "USD",
	}, nil)
	if status != fiber.StatusCreated {
		t.Fatalf("create contract: %d %s", status, resp.Error)
	}
	contractID := decodeID(t, resp.Data)
	base := "/api/v1/contracts/" + contractID

	steps := []struct {
		name       string
		method     string
		path       string
		token      string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"client cannot accept", fiber.MethodPost, base + "/accept", client, nil, fiber.StatusForbidden, "wrong_side"},
		{"milestone before accept", fiber.MethodPost, base + "/milestones", client,
			map[string]any{"title": "Design", "amount": "400"}, fiber.StatusConflict, "contract_not_active"},
		{"freelancer accepts", fiber.MethodPost, base + "/accept", freelancer, nil, fiber.StatusOK, ""},
		{"accept twice", fiber.MethodPost, base + "/accept", freelancer, nil, fiber.StatusConflict, "illegal_transition"},
		{"over allocation", fiber.MethodPost, base + "/milestones", client,
			map[string]any{"title": "Huge", "amount": "5000"}, fiber.StatusBadRequest, "amount_exceeds_total"},
		{"bad contract id", fiber.MethodGet, "/api/v1/contracts/nope", client, nil, fiber.StatusBadRequest, "invalid_id"},
		{"unknown contract", fiber.MethodGet, "/api/v1/contracts/" + uuid.NewString(), client, nil, fiber.StatusNotFound, "contract_not_found"},
		{"missing token", fiber.MethodGet, base, "", nil, fiber.StatusUnauthorized, "unauthorized"},
	}
	for _, s := range steps {
		t.Run(s.name, func(t *testing.T) {
			status, resp := api.do(s.method, s.path, s.token, s.body, nil)
			if status != s.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", status, s.wantStatus, resp.Error)
			}
			if s.wantCode != "" && resp.Code != s.wantCode {
				t.Errorf("code = %s, want %s", resp.Code, s.wantCode)
			}
		})
	}

	status, resp = api.do(fiber.MethodPost, base+"/milestones", client, map[string]any{"title": "Design", "amount": "400"}, nil)
	if status != fiber.StatusCreated {
		t.Fatalf("create milestone: %d %s", status, resp.Error)
	}
	mBase := base + "/milestones/" + decodeID(t, resp.Data)

	for _, target := range []string{models.MilestoneStatusInProgress, models.MilestoneStatusCompleted} {
		status, resp = api.do(fiber.MethodPut, mBase+"/status", freelancer, map[string]any{"status": target}, nil)
		if status != fiber.StatusOK {
			t.Fatalf("transition to %s: %d %s", target, status, resp.Error)
		}
	}

	status, resp = api.do(fiber.MethodPut, mBase+"/status", client, map[string]any{"status": models.MilestoneStatusPaid}, nil)
	if status != fiber.StatusConflict || resp.Code != "paid_requires_approval" {
		t.Fatalf("direct PAID: %d %s", status, resp.Code)
	}

	status, resp = api.do(fiber.MethodPost, mBase+"/payment-requests", freelancer, map[string]any{"amount": "400"}, nil)
	if status != fiber.StatusCreated {
		t.Fatalf("request payment: %d %s", status, resp.Error)
	}
	prPath := "/api/v1/payment-requests/" + decodeID(t, resp.Data)

	status, resp = api.do(fiber.MethodPost, prPath+"/approve", freelancer, nil, nil)
	if status != fiber.StatusForbidden {
		t.Fatalf("freelancer approve: %d", status)
	}
	status, resp = api.do(fiber.MethodPost, prPath+"/approve", client, nil, nil)
	if status != fiber.StatusOK {
		t.Fatalf("approve: %d %s", status, resp.Error)
	}
	status, resp = api.do(fiber.MethodPost, prPath+"/approve", client, nil, nil)
	if status != fiber.StatusConflict || resp.Kind != services.KindAlreadyResolved {
		t.Fatalf("second approve: %d %s", status, resp.Kind)
	}

	status, resp = api.do(fiber.MethodPost, base+"/complete", client, nil, nil)
	if status != fiber.StatusOK {
		t.Fatalf("complete: %d %s", status, resp.Error)
	}

	status, resp = api.do(fiber.MethodGet, base+"/history", freelancer, nil, nil)
	if status != fiber.StatusOK {
		t.Fatalf("history: %d %s", status, resp.Error)
	}

	last := api.bus.Types()
	if len(last) == 0 || last[len(last)-1] != events.EventContractCompleted {
		t.Errorf("last event = %v, want %s", last, events.EventContractCompleted)
	}
}

func TestInternalUserSyncRequiresToken(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"missing token", "", fiber.StatusForbidden},
		{"wrong token", "nope", fiber.StatusForbidden},
		{"valid token", testInternalToken, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := api.do(fiber.MethodPost, "/api/v1/internal/users", "",
				map[string]any{"id": uuid.NewString(), "role": models.UserRoleClient},
				map[string]string{middleware.HeaderInternalToken: tt.token})
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
		})
	}
}

func TestMetaStatusesIsPublic(t *testing.T) {
	api := newTestAPI(t)
	status, resp := api.do(fiber.MethodGet, "/api/v1/meta/statuses", "", nil, nil)
	if status != fiber.StatusOK || !resp.OK {
		t.Fatalf("meta: %d %s", status, resp.Error)
	}
}
