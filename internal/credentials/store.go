package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modelcore/internal/models"
	"modelcore/internal/provider"
	"modelcore/internal/secrets"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultProbeTimeout = 10 * time.Second

// ErrUnknownProvider indicates the provider name has no registered adapter.
var ErrUnknownProvider = errors.New("credentials: unknown provider")

// ErrNotFound indicates no credential row exists for the pair.
var ErrNotFound = errors.New("credentials: not found")

// Store reads and writes workspace-scoped provider credentials. Secrets are
// encrypted at rest; GetUsable only releases credentials whose last
// connectivity probe succeeded.
type Store struct {
	db           *gorm.DB
	cipher       *secrets.Cipher
	adapters     *provider.Set
	probeTimeout time.Duration
}

// NewStore constructs a credential store.
func NewStore(db *gorm.DB, cipher *secrets.Cipher, adapters *provider.Set, probeTimeout time.Duration) *Store {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &Store{db: db, cipher: cipher, adapters: adapters, probeTimeout: probeTimeout}
}

// SaveInput carries a partial credential update. Only non-nil fields are
// applied; absent fields keep their stored values.
type SaveInput struct {
	APIKey          *string            `json:"api_key"`
	EndpointURL     *string            `json:"endpoint_url"`
	APIVersion      *string            `json:"api_version"`
	OrganizationID  *string            `json:"organization_id"`
	DeploymentNames *[]string          `json:"deployment_names"`
	Metadata        *map[string]string `json:"metadata"`
	UpdatedBy       string             `json:"-"`
}

// Save upserts the credential for (workspace, provider). Supplying a new API
// key re-encrypts it and resets the test status to unknown, forcing
// re-verification before the credential becomes usable.
func (s *Store) Save(ctx context.Context, workspaceID, providerName string, in SaveInput) (*models.ProviderCredential, error) {
	canonical := provider.Normalize(providerName)
	if !provider.Known(canonical) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, fmt.Errorf("credentials: workspace id is required")
	}

	var row models.ProviderCredential
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		errFind := tx.Where("workspace_id = ? AND provider = ?", workspaceID, canonical).First(&row).Error
		switch {
		case errors.Is(errFind, gorm.ErrRecordNotFound):
			row = models.ProviderCredential{
				WorkspaceID:    workspaceID,
				Provider:       canonical,
				LastTestStatus: models.TestStatusUnknown,
			}
		case errFind != nil:
			return fmt.Errorf("credentials: load: %w", errFind)
		}

		if in.APIKey != nil {
			encrypted, errEncrypt := s.cipher.EncryptString(strings.TrimSpace(*in.APIKey))
			if errEncrypt != nil {
				return fmt.Errorf("credentials: encrypt key: %w", errEncrypt)
			}
			row.EncryptedAPIKey = encrypted
			row.LastTestStatus = models.TestStatusUnknown
			row.LastTestError = ""
			row.LastTestedAt = nil
		}
		if in.EndpointURL != nil {
			row.EndpointURL = strings.TrimSpace(*in.EndpointURL)
		}
		if in.APIVersion != nil {
			row.APIVersion = strings.TrimSpace(*in.APIVersion)
		}
		if in.OrganizationID != nil {
			row.OrganizationID = strings.TrimSpace(*in.OrganizationID)
		}
		if in.DeploymentNames != nil {
			encoded, errEncode := json.Marshal(*in.DeploymentNames)
			if errEncode != nil {
				return fmt.Errorf("credentials: encode deployments: %w", errEncode)
			}
			row.DeploymentNames = datatypes.JSON(encoded)
		}
		if in.Metadata != nil {
			encoded, errEncode := json.Marshal(*in.Metadata)
			if errEncode != nil {
				return fmt.Errorf("credentials: encode metadata: %w", errEncode)
			}
			row.Metadata = datatypes.JSON(encoded)
		}

		if errSave := tx.Save(&row).Error; errSave != nil {
			return fmt.Errorf("credentials: save: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &row, nil
}

// Get returns the raw credential row, ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, workspaceID, providerName string) (*models.ProviderCredential, error) {
	var row models.ProviderCredential
	errFind := s.db.WithContext(ctx).
		Where("workspace_id = ? AND provider = ?", strings.TrimSpace(workspaceID), provider.Normalize(providerName)).
		First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("credentials: load: %w", errFind)
	}
	return &row, nil
}

// List returns all credential rows for a workspace.
func (s *Store) List(ctx context.Context, workspaceID string) ([]models.ProviderCredential, error) {
	var rows []models.ProviderCredential
	errFind := s.db.WithContext(ctx).
		Where("workspace_id = ?", strings.TrimSpace(workspaceID)).
		Order("provider ASC").
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("credentials: list: %w", errFind)
	}
	return rows, nil
}

// Delete removes the credential for (workspace, provider).
func (s *Store) Delete(ctx context.Context, workspaceID, providerName string) error {
	result := s.db.WithContext(ctx).
		Where("workspace_id = ? AND provider = ?", strings.TrimSpace(workspaceID), provider.Normalize(providerName)).
		Delete(&models.ProviderCredential{})
	if result.Error != nil {
		return fmt.Errorf("credentials: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUsable returns the decrypted credential for live provider calls, or
// false when none is usable. Missing rows, unverified credentials and
// decryption failures all collapse to "not configured" for callers; the log
// keeps them distinguishable.
func (s *Store) GetUsable(ctx context.Context, workspaceID, providerName string) (provider.Credential, bool) {
	row, err := s.Get(ctx, workspaceID, providerName)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.WithError(err).WithFields(log.Fields{"workspace": workspaceID, "provider": providerName}).Warn("credential load failed")
		}
		return provider.Credential{}, false
	}
	if row.LastTestStatus != models.TestStatusConnected {
		// Verify-before-use: an untested or failed credential never backs
		// a live call, even if the underlying key happens to be valid.
		log.WithFields(log.Fields{"workspace": workspaceID, "provider": row.Provider, "status": row.LastTestStatus}).Debug("credential not verified")
		return provider.Credential{}, false
	}

	cred, errDecode := s.decode(row)
	if errDecode != nil {
		log.WithError(errDecode).WithFields(log.Fields{"workspace": workspaceID, "provider": row.Provider}).Warn("credential decode failed")
		return provider.Credential{}, false
	}
	return cred, true
}

// decode decrypts the secret and unpacks the JSON columns.
func (s *Store) decode(row *models.ProviderCredential) (provider.Credential, error) {
	apiKey := ""
	if row.EncryptedAPIKey != "" {
		decrypted, errDecrypt := s.cipher.DecryptString(row.EncryptedAPIKey)
		if errDecrypt != nil {
			return provider.Credential{}, errDecrypt
		}
		apiKey = decrypted
	}

	var deployments []string
	if len(row.DeploymentNames) > 0 {
		if errDecode := json.Unmarshal(row.DeploymentNames, &deployments); errDecode != nil {
			return provider.Credential{}, fmt.Errorf("decode deployments: %w", errDecode)
		}
	}
	metadata := map[string]string{}
	if len(row.Metadata) > 0 {
		if errDecode := json.Unmarshal(row.Metadata, &metadata); errDecode != nil {
			return provider.Credential{}, fmt.Errorf("decode metadata: %w", errDecode)
		}
	}

	return provider.Credential{
		APIKey:          apiKey,
		EndpointURL:     row.EndpointURL,
		APIVersion:      row.APIVersion,
		OrganizationID:  row.OrganizationID,
		DeploymentNames: deployments,
		Metadata:        metadata,
	}, nil
}

// Probe runs the provider's connectivity check and persists the outcome.
// The final status transition is written unconditionally so a "testing"
// state never lingers after an error.
func (s *Store) Probe(ctx context.Context, workspaceID, providerName string) (string, error) {
	canonical := provider.Normalize(providerName)
	row, err := s.Get(ctx, workspaceID, canonical)
	if err != nil {
		return "", err
	}

	adapter, ok := s.adapters.Adapter(canonical)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	if errMark := s.setStatus(ctx, row, models.TestStatusTesting, ""); errMark != nil {
		return "", errMark
	}

	status := models.TestStatusFailed
	message := ""
	defer func() {
		// Best effort with a fresh context: the request context may
		// already be gone when the probe timed out.
		persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errPersist := s.setStatus(persistCtx, row, status, message); errPersist != nil {
			log.WithError(errPersist).Warn("credential probe status persist failed")
		}
	}()

	cred, errDecode := s.decode(row)
	if errDecode != nil {
		message = "credential could not be decrypted"
		return status, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	if errProbe := adapter.Probe(probeCtx, cred); errProbe != nil {
		message = errProbe.Error()
		return status, nil
	}

	status = models.TestStatusConnected
	return status, nil
}

func (s *Store) setStatus(ctx context.Context, row *models.ProviderCredential, status, message string) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"last_test_status": status,
		"last_test_error":  message,
		"last_tested_at":   &now,
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.ProviderCredential{}).Where("id = ?", row.ID).Updates(updates).Error; errUpdate != nil {
		return fmt.Errorf("credentials: update status: %w", errUpdate)
	}
	row.LastTestStatus = status
	row.LastTestError = message
	row.LastTestedAt = &now
	return nil
}
