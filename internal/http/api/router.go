// Package api exposes the workspace-scoped HTTP surface: credential
// management, model settings, catalog listing and sync, and chat.
package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"modelcore/internal/chat"
	"modelcore/internal/credentials"
	"modelcore/internal/modelconfig"
	"modelcore/internal/registry"
	"modelcore/internal/syncer"
	"modelcore/internal/thread"
)

// Deps bundles the services the handlers delegate to.
type Deps struct {
	DB          *gorm.DB
	Credentials *credentials.Store
	Registry    *registry.Registry
	Resolver    *modelconfig.Resolver
	Syncer      *syncer.Syncer
	Threads     *thread.Store
	Chat        *chat.Service
}

// RegisterRoutes mounts all routes on the engine.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil {
		return
	}

	healthHandler := NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	workspaces := r.Group("/v0/workspaces/:workspace_id")

	credentialHandler := NewCredentialHandler(deps.Credentials)
	workspaces.GET("/credentials", credentialHandler.List)
	workspaces.PUT("/credentials/:provider", credentialHandler.Save)
	workspaces.POST("/credentials/:provider/test", credentialHandler.Test)
	workspaces.DELETE("/credentials/:provider", credentialHandler.Delete)

	modelHandler := NewModelHandler(deps.Registry, deps.Syncer)
	workspaces.GET("/models", modelHandler.List)
	workspaces.POST("/models/sync", modelHandler.TriggerSync)
	workspaces.GET("/models/sync/status", modelHandler.SyncStatus)
	workspaces.PUT("/models/:provider/:model_id/disabled", modelHandler.SetDisabled)

	settingHandler := NewModelSettingHandler(deps.Resolver)
	workspaces.GET("/model-settings", settingHandler.List)
	workspaces.GET("/model-settings/default", settingHandler.GetDefault)
	workspaces.PUT("/model-settings/:model_id", settingHandler.Update)
	workspaces.POST("/model-settings/:model_id/default", settingHandler.SetDefault)
	workspaces.GET("/model-settings/:model_id/effective", settingHandler.Effective)

	chatHandler := NewChatHandler(deps.Chat, deps.Threads)
	workspaces.POST("/chat", chatHandler.Chat)
	workspaces.POST("/chat/validate", chatHandler.Validate)
	workspaces.GET("/threads", chatHandler.ListThreads)
	workspaces.GET("/threads/:thread_id/messages", chatHandler.ThreadMessages)
}
