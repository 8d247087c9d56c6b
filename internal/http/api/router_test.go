package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"modelcore/internal/chat"
	"modelcore/internal/credentials"
	"modelcore/internal/modelconfig"
	"modelcore/internal/models"
	"modelcore/internal/provider"
	"modelcore/internal/registry"
	"modelcore/internal/secrets"
	"modelcore/internal/syncer"
	"modelcore/internal/thread"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAdapter answers every call and probe successfully without leaving
// the process.
type stubAdapter struct {
	name string
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Call(context.Context, string, string, []provider.Message, provider.GenerationConfig, provider.Credential) provider.CallResult {
	return provider.CallResult{
		Success:   true,
		Text:      "stub answer",
		Usage:     provider.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
		LatencyMS: 5,
	}
}

func (a *stubAdapter) FetchModels(context.Context, provider.Credential) map[string]provider.ModelInfo {
	return map[string]provider.ModelInfo{
		"gpt-4o": {Provider: provider.OpenAI, ModelID: "gpt-4o", ProviderModel: "gpt-4o", InputCap: 128000, OutputCap: 4096, Category: "chat"},
	}
}

func (a *stubAdapter) Probe(context.Context, provider.Credential) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(
		&models.ProviderCredential{},
		&models.ModelCapability{},
		&models.WorkspaceModelSetting{},
		&models.ProviderSyncStatus{},
		&models.Thread{},
		&models.ThreadMessage{},
	); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	cipher, errCipher := secrets.NewCipher(hex.EncodeToString(key))
	if errCipher != nil {
		t.Fatalf("cipher: %v", errCipher)
	}

	set := provider.NewSet(nil)
	for _, name := range provider.All {
		set.Register(&stubAdapter{name: name})
	}

	credStore := credentials.NewStore(conn, cipher, set, time.Second)
	reg := registry.New(conn, set, credStore)
	resolver := modelconfig.NewResolver(conn, reg)
	threads := thread.NewStore(conn)
	sync := syncer.New(conn, reg, set, credStore, time.Hour)
	sync.Start()
	t.Cleanup(sync.Stop)
	service := chat.NewService(resolver, reg, credStore, set, threads, nil)

	engine := gin.New()
	RegisterRoutes(engine, Deps{
		DB:          conn,
		Credentials: credStore,
		Registry:    reg,
		Resolver:    resolver,
		Syncer:      sync,
		Threads:     threads,
		Chat:        service,
	})
	return engine, conn
}

func do(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	engine, _ := newTestRouter(t)
	rec := do(t, engine, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCredentialLifecycle(t *testing.T) {
	engine, _ := newTestRouter(t)
	base := "/v0/workspaces/ws1/credentials"

	rec := do(t, engine, http.MethodPut, base+"/openai", `{"api_key":"sk-live-secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rec.Code, rec.Body.String())
	}
	saved := decode(t, rec)
	if saved["has_api_key"] != true || saved["last_test_status"] != models.TestStatusUnknown {
		t.Fatalf("unexpected save response: %v", saved)
	}
	if strings.Contains(rec.Body.String(), "sk-live-secret") {
		t.Fatal("secret leaked into the response")
	}

	rec = do(t, engine, http.MethodPost, base+"/openai/test", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("test: %d %s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["status"] != models.TestStatusConnected {
		t.Fatalf("probe should connect: %s", rec.Body.String())
	}

	rec = do(t, engine, http.MethodGet, base, "")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "sk-live-secret") {
		t.Fatalf("listing: %d leaked=%v", rec.Code, strings.Contains(rec.Body.String(), "sk-live-secret"))
	}

	rec = do(t, engine, http.MethodDelete, base+"/openai", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = do(t, engine, http.MethodDelete, base+"/openai", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rec.Code)
	}
}

func TestCredentialSave_UnknownProvider(t *testing.T) {
	engine, _ := newTestRouter(t)
	rec := do(t, engine, http.MethodPut, "/v0/workspaces/ws1/credentials/mistral", `{"api_key":"k"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatEndpoint(t *testing.T) {
	engine, _ := newTestRouter(t)

	do(t, engine, http.MethodPut, "/v0/workspaces/ws1/credentials/openai", `{"api_key":"sk-1"}`)
	do(t, engine, http.MethodPost, "/v0/workspaces/ws1/credentials/openai/test", "")

	rec := do(t, engine, http.MethodPost, "/v0/workspaces/ws1/chat", `{"model":"gpt-4o","prompt":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat: %d %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp["success"] != true || resp["text"] != "stub answer" {
		t.Fatalf("unexpected chat response: %v", resp)
	}
	threadID, ok := resp["thread_id"].(float64)
	if !ok || threadID == 0 {
		t.Fatalf("missing thread id: %v", resp)
	}

	rec = do(t, engine, http.MethodGet, "/v0/workspaces/ws1/threads", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "hello") {
		t.Fatalf("threads: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, engine, http.MethodGet, fmt.Sprintf("/v0/workspaces/ws1/threads/%d/messages", int(threadID)), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("messages: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "stub answer") {
		t.Fatalf("assistant turn missing: %s", rec.Body.String())
	}

	// Foreign workspaces cannot read the thread.
	rec = do(t, engine, http.MethodGet, fmt.Sprintf("/v0/workspaces/ws2/threads/%d/messages", int(threadID)), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-workspace read: %d", rec.Code)
	}
}

func TestChatEndpoint_ConfigurationErrors(t *testing.T) {
	engine, _ := newTestRouter(t)

	rec := do(t, engine, http.MethodPost, "/v0/workspaces/ws1/chat", `{"model":"gpt-4o"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing prompt: %d", rec.Code)
	}

	rec = do(t, engine, http.MethodPost, "/v0/workspaces/ws1/chat", `{"model":"gpt-4o","prompt":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing credentials must map to 400, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, engine, http.MethodPost, "/v0/workspaces/ws1/chat", `{"prompt":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing model and default must map to 400, got %d", rec.Code)
	}

	rec = do(t, engine, http.MethodPost, "/v0/workspaces/ws1/chat/validate", `{"model":"gpt-4o","prompt":"hi","override":{"temperature":5}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid override must map to 400, got %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "temperature") {
		t.Fatalf("rejection must name the field: %s", rec.Body.String())
	}
}

func TestModelSettingsEndpoints(t *testing.T) {
	engine, _ := newTestRouter(t)
	base := "/v0/workspaces/ws1/model-settings"

	rec := do(t, engine, http.MethodPut, base+"/gpt-4o", `{"temperature":2.5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid temperature: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, engine, http.MethodPut, base+"/gpt-4o", `{"temperature":0.2,"system_prompt":"be terse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, engine, http.MethodPost, base+"/gpt-4o/default", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("set default: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, engine, http.MethodGet, base+"/default", "")
	if decode(t, rec)["default_model"] != "gpt-4o" {
		t.Fatalf("default lookup: %s", rec.Body.String())
	}

	rec = do(t, engine, http.MethodGet, base+"/gpt-4o/effective", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("effective: %d", rec.Code)
	}
	effective := decode(t, rec)
	if effective["provider"] != provider.OpenAI || effective["temperature"] != 0.2 || effective["max_tokens"] != float64(4096) {
		t.Fatalf("unexpected effective config: %v", effective)
	}
}

func TestModelDisableEndpoint(t *testing.T) {
	engine, conn := newTestRouter(t)

	rec := do(t, engine, http.MethodPut, "/v0/workspaces/ws1/models/openai/ghost-model/disabled", `{"disabled":true}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown model: %d %s", rec.Code, rec.Body.String())
	}

	row := models.ModelCapability{
		Provider: provider.OpenAI, ModelID: "old-model", ProviderModel: "old-model",
		Category: "chat", SyncSource: models.SyncSourceAPI, LastSeenAt: time.Now().UTC(),
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec = do(t, engine, http.MethodPut, "/v0/workspaces/ws1/models/openai/old-model/disabled", `{"disabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, engine, http.MethodGet, "/v0/workspaces/ws1/models", "")
	if strings.Contains(rec.Body.String(), "old-model") {
		t.Fatalf("disabled model still listed: %s", rec.Body.String())
	}
}

func TestModelCatalogAndSync(t *testing.T) {
	engine, _ := newTestRouter(t)

	rec := do(t, engine, http.MethodGet, "/v0/workspaces/ws1/models", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "gpt-4o") {
		t.Fatalf("models: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, engine, http.MethodPost, "/v0/workspaces/ws1/models/sync", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("sync trigger: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, engine, http.MethodGet, "/v0/workspaces/ws1/models/sync/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status: %d %s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["stale"] != true {
		t.Fatalf("workspace without credentials never syncs, so it stays stale: %s", rec.Body.String())
	}
}
