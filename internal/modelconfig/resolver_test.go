package modelconfig

import (
	"context"
	"fmt"
	"testing"

	"modelcore/internal/models"
	"modelcore/internal/provider"
	"modelcore/internal/registry"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type noCredentials struct{}

func (noCredentials) GetUsable(context.Context, string, string) (provider.Credential, bool) {
	return provider.Credential{}, false
}

func testResolver(t *testing.T) (*Resolver, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.ModelCapability{}, &models.WorkspaceModelSetting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	reg := registry.New(conn, provider.NewSet(nil), noCredentials{})
	return NewResolver(conn, reg), conn
}

func TestComputeEffectiveConfig_Defaults(t *testing.T) {
	resolver, _ := testResolver(t)

	effective := resolver.ComputeEffectiveConfig(context.Background(), "ws1", "gpt-4o")
	if effective.Provider != provider.OpenAI {
		t.Fatalf("unexpected provider %q", effective.Provider)
	}
	if effective.Temperature != 0.7 {
		t.Fatalf("default temperature expected, got %v", effective.Temperature)
	}
	if effective.MaxTokens != 4096 {
		t.Fatalf("provider default max tokens expected, got %d", effective.MaxTokens)
	}
	if effective.ToolChoice != "auto" {
		t.Fatalf("default tool choice expected, got %q", effective.ToolChoice)
	}
	if effective.SystemPrompt != "" {
		t.Fatalf("empty system prompt expected, got %q", effective.SystemPrompt)
	}
}

func TestComputeEffectiveConfig_OverridesAndClamp(t *testing.T) {
	resolver, conn := testResolver(t)

	temp := 1.3
	tokens := 999999
	prompt := "you are terse"
	row := models.WorkspaceModelSetting{
		WorkspaceID: "ws1", ModelID: "gpt-4o",
		Temperature: &temp, MaxTokens: &tokens, SystemPrompt: &prompt,
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	effective := resolver.ComputeEffectiveConfig(context.Background(), "ws1", "gpt-4o")
	if effective.Temperature != 1.3 || effective.SystemPrompt != "you are terse" {
		t.Fatalf("overrides not applied: %+v", effective)
	}
	// gpt-4o's output cap is 4096; the stored value must be clamped.
	if effective.MaxTokens != 4096 {
		t.Fatalf("max tokens must clamp to output cap, got %d", effective.MaxTokens)
	}
}

func TestComputeEffectiveConfig_RegistryMissNeverFails(t *testing.T) {
	resolver, _ := testResolver(t)

	effective := resolver.ComputeEffectiveConfig(context.Background(), "ws1", "mystery-model")
	if effective.Provider != "" {
		t.Fatalf("unknown model must have empty provider, got %q", effective.Provider)
	}
	if effective.MaxTokens != 1000 {
		t.Fatalf("conservative fallback expected, got %d", effective.MaxTokens)
	}
	if effective.Temperature != 0.7 {
		t.Fatalf("defaults still apply on registry miss, got %v", effective.Temperature)
	}
}

func TestUpdateModelConfig_Validation(t *testing.T) {
	resolver, _ := testResolver(t)
	ctx := context.Background()

	badTemp := 2.5
	if _, err := resolver.UpdateModelConfig(ctx, "ws1", "gpt-4o", UpdateInput{Temperature: &badTemp}); err == nil {
		t.Fatal("temperature above 2 must be rejected")
	}
	negTokens := -5
	if _, err := resolver.UpdateModelConfig(ctx, "ws1", "gpt-4o", UpdateInput{MaxTokens: &negTokens}); err == nil {
		t.Fatal("non-positive max_tokens must be rejected")
	}
	badChoice := "always"
	if _, err := resolver.UpdateModelConfig(ctx, "ws1", "gpt-4o", UpdateInput{ToolChoice: &badChoice}); err == nil {
		t.Fatal("unknown tool_choice must be rejected")
	}
}

func TestUpdateModelConfig_PartialUpdatePreservesFields(t *testing.T) {
	resolver, _ := testResolver(t)
	ctx := context.Background()

	temp := 0.2
	prompt := "stay formal"
	if _, err := resolver.UpdateModelConfig(ctx, "ws1", "gpt-4o", UpdateInput{Temperature: &temp, SystemPrompt: &prompt}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	tokens := 512
	row, err := resolver.UpdateModelConfig(ctx, "ws1", "gpt-4o", UpdateInput{MaxTokens: &tokens})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if row.Temperature == nil || *row.Temperature != 0.2 {
		t.Fatalf("temperature lost on partial update: %+v", row)
	}
	if row.SystemPrompt == nil || *row.SystemPrompt != "stay formal" {
		t.Fatalf("system prompt lost on partial update: %+v", row)
	}
	if row.MaxTokens == nil || *row.MaxTokens != 512 {
		t.Fatalf("max tokens not applied: %+v", row)
	}
}

func TestUpdateModelConfig_ClampsBeforePersist(t *testing.T) {
	resolver, _ := testResolver(t)

	tokens := 999999
	row, err := resolver.UpdateModelConfig(context.Background(), "ws1", "gpt-4o", UpdateInput{MaxTokens: &tokens})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if row.MaxTokens == nil || *row.MaxTokens != 4096 {
		t.Fatalf("stored max tokens must be clamped, got %+v", row.MaxTokens)
	}
}

func TestSetDefaultModel_SingleDefault(t *testing.T) {
	resolver, conn := testResolver(t)
	ctx := context.Background()

	if err := resolver.SetDefaultModel(ctx, "ws1", "gpt-4o"); err != nil {
		t.Fatalf("set first default: %v", err)
	}
	if err := resolver.SetDefaultModel(ctx, "ws1", "gpt-4o-mini"); err != nil {
		t.Fatalf("set second default: %v", err)
	}
	// Repeating the same default must stay stable.
	if err := resolver.SetDefaultModel(ctx, "ws1", "gpt-4o-mini"); err != nil {
		t.Fatalf("repeat default: %v", err)
	}

	var count int64
	conn.Model(&models.WorkspaceModelSetting{}).
		Where("workspace_id = ? AND is_default = ?", "ws1", true).
		Count(&count)
	if count != 1 {
		t.Fatalf("exactly one default expected, got %d", count)
	}

	modelID, err := resolver.DefaultModel(ctx, "ws1")
	if err != nil {
		t.Fatalf("default lookup: %v", err)
	}
	if modelID != "gpt-4o-mini" {
		t.Fatalf("unexpected default %q", modelID)
	}
}

func TestSetDefaultModel_ScopedPerWorkspace(t *testing.T) {
	resolver, _ := testResolver(t)
	ctx := context.Background()

	if err := resolver.SetDefaultModel(ctx, "ws1", "gpt-4o"); err != nil {
		t.Fatalf("ws1 default: %v", err)
	}
	if err := resolver.SetDefaultModel(ctx, "ws2", "claude-sonnet-4-20250514"); err != nil {
		t.Fatalf("ws2 default: %v", err)
	}

	first, _ := resolver.DefaultModel(ctx, "ws1")
	second, _ := resolver.DefaultModel(ctx, "ws2")
	if first != "gpt-4o" || second != "claude-sonnet-4-20250514" {
		t.Fatalf("defaults crossed workspaces: %q %q", first, second)
	}
}
