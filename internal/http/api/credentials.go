package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"modelcore/internal/credentials"
	"modelcore/internal/models"
)

// CredentialHandler manages workspace provider credentials.
type CredentialHandler struct {
	store *credentials.Store
}

// NewCredentialHandler constructs a credential handler.
func NewCredentialHandler(store *credentials.Store) *CredentialHandler {
	return &CredentialHandler{store: store}
}

// credentialView is the listing shape. The secret never leaves the server;
// listings only reveal whether a key is stored.
type credentialView struct {
	Provider        string            `json:"provider"`
	HasAPIKey       bool              `json:"has_api_key"`
	EndpointURL     string            `json:"endpoint_url,omitempty"`
	APIVersion      string            `json:"api_version,omitempty"`
	OrganizationID  string            `json:"organization_id,omitempty"`
	DeploymentNames []string          `json:"deployment_names,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	LastTestStatus  string            `json:"last_test_status"`
	LastTestedAt    *time.Time        `json:"last_tested_at,omitempty"`
	LastTestError   string            `json:"last_test_error,omitempty"`
}

func toCredentialView(row *models.ProviderCredential) credentialView {
	view := credentialView{
		Provider:       row.Provider,
		HasAPIKey:      row.EncryptedAPIKey != "",
		EndpointURL:    row.EndpointURL,
		APIVersion:     row.APIVersion,
		OrganizationID: row.OrganizationID,
		LastTestStatus: row.LastTestStatus,
		LastTestedAt:   row.LastTestedAt,
		LastTestError:  row.LastTestError,
	}
	if len(row.DeploymentNames) > 0 {
		_ = json.Unmarshal(row.DeploymentNames, &view.DeploymentNames)
	}
	if len(row.Metadata) > 0 {
		_ = json.Unmarshal(row.Metadata, &view.Metadata)
	}
	return view
}

// List returns all credentials for the workspace with secrets masked.
func (h *CredentialHandler) List(c *gin.Context) {
	rows, err := h.store.List(c.Request.Context(), c.Param("workspace_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list credentials failed"})
		return
	}
	views := make([]credentialView, 0, len(rows))
	for i := range rows {
		views = append(views, toCredentialView(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"credentials": views})
}

// Save upserts the credential for one provider. Partial payloads update
// only the supplied fields; a new API key resets the test status.
func (h *CredentialHandler) Save(c *gin.Context) {
	var body credentials.SaveInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	row, err := h.store.Save(c.Request.Context(), c.Param("workspace_id"), c.Param("provider"), body)
	if err != nil {
		if errors.Is(err, credentials.ErrUnknownProvider) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save credential failed"})
		return
	}
	c.JSON(http.StatusOK, toCredentialView(row))
}

// Test probes the provider with the stored credential and reports the
// resulting status.
func (h *CredentialHandler) Test(c *gin.Context) {
	status, err := h.store.Probe(c.Request.Context(), c.Param("workspace_id"), c.Param("provider"))
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
			return
		}
		if errors.Is(err, credentials.ErrUnknownProvider) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credential test failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// Delete removes the credential for one provider.
func (h *CredentialHandler) Delete(c *gin.Context) {
	err := h.store.Delete(c.Request.Context(), c.Param("workspace_id"), c.Param("provider"))
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete credential failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
