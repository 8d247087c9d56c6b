package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"modelcore/internal/models"
	"modelcore/internal/provider"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const cacheKeyPrefix = "modelcore:capability:"

// credentialSource releases verified credentials for live provider calls.
type credentialSource interface {
	GetUsable(ctx context.Context, workspaceID, providerName string) (provider.Credential, bool)
}

// Registry resolves model identifiers to their provider and token caps.
// Resolution order: the built-in table, then persisted rows (synced or
// manually curated), then a live model-listing fetch against each provider
// the workspace has a verified credential for. Dynamic results flow through
// a TTL cache so repeated lookups do not hammer provider APIs.
type Registry struct {
	db          *gorm.DB
	adapters    *provider.Set
	credentials credentialSource
	cache       capabilityCache
}

// Option configures a Registry.
type Option func(*Registry)

// WithRedisCache shares dynamic lookups across instances via Redis.
func WithRedisCache(addr string, ttl time.Duration) Option {
	return func(r *Registry) {
		if addr != "" {
			r.cache = newRedisCache(addr, ttl)
		}
	}
}

// WithCacheTTL adjusts the in-memory cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.cache = newMemoryCache(ttl) }
}

// New constructs a Registry backed by the given database and adapter set.
func New(db *gorm.DB, adapters *provider.Set, credentials credentialSource, opts ...Option) *Registry {
	r := &Registry{
		db:          db,
		adapters:    adapters,
		credentials: credentials,
		cache:       newMemoryCache(defaultCacheTTL),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetModelInfo resolves a model id. With an empty workspace id only the
// built-in table and persisted rows are consulted; supplying a workspace id
// additionally allows last-resort live fetches using that workspace's
// verified credentials. Returns false when the model is unknown everywhere.
func (r *Registry) GetModelInfo(ctx context.Context, modelID, workspaceID string) (provider.ModelInfo, bool) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return provider.ModelInfo{}, false
	}

	if info, ok := staticLookup[modelID]; ok {
		return info, true
	}

	if info, ok := r.lookupStored(ctx, modelID); ok {
		return info, true
	}

	if workspaceID == "" {
		return provider.ModelInfo{}, false
	}

	if info, ok := r.cache.Get(ctx, cacheKeyPrefix+modelID); ok {
		return info, true
	}

	return r.lookupLive(ctx, modelID, workspaceID)
}

func (r *Registry) lookupStored(ctx context.Context, modelID string) (provider.ModelInfo, bool) {
	var row models.ModelCapability
	err := r.db.WithContext(ctx).
		Where("model_id = ? AND disabled = ?", modelID, false).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return provider.ModelInfo{}, false
	}
	if err != nil {
		log.WithError(err).WithField("model", modelID).Warn("capability lookup failed")
		return provider.ModelInfo{}, false
	}
	return capabilityToInfo(&row), true
}

// lookupLive queries each configured provider's model-listing endpoint,
// short-circuiting at the first provider whose catalog contains the model.
// Fetched catalogs are persisted so the next lookup hits the database.
func (r *Registry) lookupLive(ctx context.Context, modelID, workspaceID string) (provider.ModelInfo, bool) {
	for _, name := range provider.All {
		cred, ok := r.credentials.GetUsable(ctx, workspaceID, name)
		if !ok {
			continue
		}
		adapter, ok := r.adapters.Adapter(name)
		if !ok {
			continue
		}
		catalog := adapter.FetchModels(ctx, cred)
		if len(catalog) == 0 {
			continue
		}
		if err := r.UpsertCapabilities(ctx, catalog, models.SyncSourceAPI); err != nil {
			log.WithError(err).WithField("provider", name).Warn("capability persist failed")
		}
		if info, found := catalog[modelID]; found {
			r.cache.Set(ctx, cacheKeyPrefix+modelID, info)
			return info, true
		}
	}
	return provider.ModelInfo{}, false
}

// ListModels returns all enabled capability rows, merged with built-in
// entries that have no persisted counterpart.
func (r *Registry) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	var rows []models.ModelCapability
	if err := r.db.WithContext(ctx).
		Where("disabled = ?", false).
		Order("provider ASC, model_id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}

	seen := make(map[string]struct{}, len(rows))
	infos := make([]provider.ModelInfo, 0, len(rows)+len(builtinCapabilities))
	for i := range rows {
		infos = append(infos, capabilityToInfo(&rows[i]))
		seen[rows[i].ModelID] = struct{}{}
	}
	for _, info := range builtinCapabilities {
		if _, dup := seen[info.ModelID]; !dup {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// UpsertCapabilities writes fetched catalog entries. Rows curated by hand
// (sync_source = manual) are never overwritten by synced data; disabling is
// likewise preserved, so a model removed from rotation stays removed.
func (r *Registry) UpsertCapabilities(ctx context.Context, catalog map[string]provider.ModelInfo, syncSource string) error {
	if len(catalog) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]models.ModelCapability, 0, len(catalog))
	for _, info := range catalog {
		rows = append(rows, models.ModelCapability{
			Provider:      info.Provider,
			ModelID:       info.ModelID,
			ProviderModel: info.ProviderModel,
			DisplayName:   info.DisplayName,
			Category:      info.Category,
			InputCap:      info.InputCap,
			OutputCap:     info.OutputCap,
			SyncSource:    syncSource,
			LastSeenAt:    now,
		})
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "model_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"provider_model": clause.Column{Table: "excluded", Name: "provider_model"},
			"display_name":   clause.Column{Table: "excluded", Name: "display_name"},
			"category":       clause.Column{Table: "excluded", Name: "category"},
			"input_cap":      clause.Column{Table: "excluded", Name: "input_cap"},
			"output_cap":     clause.Column{Table: "excluded", Name: "output_cap"},
			"sync_source":    clause.Column{Table: "excluded", Name: "sync_source"},
			"last_seen_at":   clause.Column{Table: "excluded", Name: "last_seen_at"},
			"updated_at":     now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "model_capabilities.sync_source <> ?", Vars: []any{models.SyncSourceManual}},
		}},
	}).Create(&rows).Error
}

// SetDisabled marks a model as removed from rotation without deleting the
// row, so a later sync cannot silently resurrect it.
func (r *Registry) SetDisabled(ctx context.Context, providerName, modelID string, disabled bool) error {
	result := r.db.WithContext(ctx).Model(&models.ModelCapability{}).
		Where("provider = ? AND model_id = ?", provider.Normalize(providerName), modelID).
		Updates(map[string]any{"disabled": disabled, "sync_source": models.SyncSourceManual})
	if result.Error != nil {
		return fmt.Errorf("registry: disable: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func capabilityToInfo(row *models.ModelCapability) provider.ModelInfo {
	return provider.ModelInfo{
		Provider:      row.Provider,
		ModelID:       row.ModelID,
		ProviderModel: row.ProviderModel,
		DisplayName:   row.DisplayName,
		Category:      row.Category,
		InputCap:      row.InputCap,
		OutputCap:     row.OutputCap,
	}
}
