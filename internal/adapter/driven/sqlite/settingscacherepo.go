package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nharlow/leadpanel/internal/domain/model"
	"github.com/nharlow/leadpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SettingsCache = (*SettingsCacheRepo)(nil)

// SettingsCacheRepo is the SQLite implementation of the SettingsCache
// port. Credential values are encrypted with AES-256-GCM before write
// and decrypted after read; agent configurations are stored as JSON.
type SettingsCacheRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil disables credential caching.
}

// NewSettingsCacheRepo creates a repo. key must be 32 bytes for
// AES-256-GCM, or nil to disable credential caching (credential
// operations then return driven.ErrEncryptionKeyNotSet).
func NewSettingsCacheRepo(db *DB, key []byte) *SettingsCacheRepo {
	return &SettingsCacheRepo{db: db, key: key}
}

// PutCredentials replaces the cached credential map for the
// organization inside one transaction.
func (r *SettingsCacheRepo) PutCredentials(ctx context.Context, orgID string, credentials map[model.ProviderID]string) error {
	if r.key == nil {
		return driven.ErrEncryptionKeyNotSet
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credentials tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM org_credentials WHERE org_id = ?`, orgID); err != nil {
		return fmt.Errorf("clear cached credentials for org %s: %w", orgID, err)
	}

	const insert = `INSERT INTO org_credentials (org_id, provider, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`
	for provider, value := range credentials {
		encrypted, err := r.encrypt(value)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insert, orgID, string(provider), encrypted); err != nil {
			return fmt.Errorf("cache credential %q: %w", provider, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credentials tx: %w", err)
	}
	return nil
}

// GetCredentials returns the cached credential map. Unknown provider
// rows are skipped. An organization with no rows yields an empty map.
func (r *SettingsCacheRepo) GetCredentials(ctx context.Context, orgID string) (map[model.ProviderID]string, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT provider, value FROM org_credentials WHERE org_id = ?`
	rows, err := r.db.Reader.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("read cached credentials for org %s: %w", orgID, err)
	}
	defer func() { _ = rows.Close() }()

	creds := make(map[model.ProviderID]string)
	for rows.Next() {
		var provider, encrypted string
		if err := rows.Scan(&provider, &encrypted); err != nil {
			return nil, fmt.Errorf("scan cached credential: %w", err)
		}

		id := model.ProviderID(provider)
		if !id.Valid() {
			continue
		}

		plaintext, err := r.decrypt(encrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypt cached credential %q: %w", provider, err)
		}
		creds[id] = plaintext
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached credentials: %w", err)
	}

	return creds, nil
}

// PutAgentConfigs replaces the cached snapshot: the default row plus
// one row per agent type with overrides.
func (r *SettingsCacheRepo) PutAgentConfigs(ctx context.Context, orgID string, snapshot model.RegistrySnapshot) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin agent configs tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM org_agent_configs WHERE org_id = ?`, orgID); err != nil {
		return fmt.Errorf("clear cached agent configs for org %s: %w", orgID, err)
	}

	const insert = `INSERT INTO org_agent_configs (org_id, agent_type, config, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`

	defRow, err := json.Marshal(defaultRow(snapshot.Default))
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, orgID, string(model.AgentTypeDefault), string(defRow)); err != nil {
		return fmt.Errorf("cache default config: %w", err)
	}

	for agent, cfg := range snapshot.PerAgent {
		if !cfg.HasOverrides() {
			continue
		}
		row, err := json.Marshal(overrideRow(cfg))
		if err != nil {
			return fmt.Errorf("marshal agent config %s: %w", agent, err)
		}
		if _, err := tx.ExecContext(ctx, insert, orgID, string(agent), string(row)); err != nil {
			return fmt.Errorf("cache agent config %s: %w", agent, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit agent configs tx: %w", err)
	}
	return nil
}

// GetAgentConfigs returns the cached snapshot, or nil when the
// organization has never been cached.
func (r *SettingsCacheRepo) GetAgentConfigs(ctx context.Context, orgID string) (*model.RegistrySnapshot, error) {
	const query = `SELECT agent_type, config FROM org_agent_configs WHERE org_id = ?`
	rows, err := r.db.Reader.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("read cached agent configs for org %s: %w", orgID, err)
	}
	defer func() { _ = rows.Close() }()

	snap := model.RegistrySnapshot{
		Default:  model.NewOrganizationDefaultConfig(),
		PerAgent: make(map[model.AgentType]model.AgentTypeConfig),
	}
	found := false

	for rows.Next() {
		var agentType, raw string
		if err := rows.Scan(&agentType, &raw); err != nil {
			return nil, fmt.Errorf("scan cached agent config: %w", err)
		}
		found = true

		var row configRow
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, fmt.Errorf("unmarshal cached agent config %q: %w", agentType, err)
		}

		agent := model.AgentType(agentType)
		if agent == model.AgentTypeDefault {
			row.applyToDefault(&snap.Default)
			continue
		}
		if !agent.Valid() {
			continue
		}
		snap.PerAgent[agent] = row.toOverride(agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached agent configs: %w", err)
	}

	if !found {
		return nil, nil
	}
	return &snap, nil
}

// configRow is the JSON shape of one cached agent configuration row.
// Pointers keep "unset" distinguishable for override rows; the default
// row always has every field present.
type configRow struct {
	Model                *string  `json:"model,omitempty"`
	Temperature          *float64 `json:"temperature,omitempty"`
	Provider             *string  `json:"provider,omitempty"`
	VoiceID              *string  `json:"voice_id,omitempty"`
	VoiceStability       *float64 `json:"voice_stability,omitempty"`
	VoiceSpeed           *float64 `json:"voice_speed,omitempty"`
	MaxFollowUps         *int     `json:"max_follow_ups,omitempty"`
	ResponseDelaySeconds *int     `json:"response_delay_seconds,omitempty"`
	Tone                 *string  `json:"tone,omitempty"`
}

func defaultRow(def model.OrganizationDefaultConfig) configRow {
	provider := string(def.Provider)
	return configRow{
		Model:                &def.Model,
		Temperature:          &def.Temperature,
		Provider:             &provider,
		VoiceID:              &def.Voice.VoiceID,
		VoiceStability:       &def.Voice.Stability,
		VoiceSpeed:           &def.Voice.Speed,
		MaxFollowUps:         &def.Behavior.MaxFollowUps,
		ResponseDelaySeconds: &def.Behavior.ResponseDelaySeconds,
		Tone:                 &def.Behavior.Tone,
	}
}

func overrideRow(cfg model.AgentTypeConfig) configRow {
	row := configRow{
		Model:                cfg.Model,
		Temperature:          cfg.Temperature,
		VoiceID:              cfg.Voice.VoiceID,
		VoiceStability:       cfg.Voice.Stability,
		VoiceSpeed:           cfg.Voice.Speed,
		MaxFollowUps:         cfg.Behavior.MaxFollowUps,
		ResponseDelaySeconds: cfg.Behavior.ResponseDelaySeconds,
		Tone:                 cfg.Behavior.Tone,
	}
	if cfg.Provider != nil {
		s := string(*cfg.Provider)
		row.Provider = &s
	}
	return row
}

func (row configRow) toOverride(agent model.AgentType) model.AgentTypeConfig {
	cfg := model.AgentTypeConfig{
		AgentType:   agent,
		Model:       row.Model,
		Temperature: row.Temperature,
		Voice: model.VoiceConfig{
			VoiceID:   row.VoiceID,
			Stability: row.VoiceStability,
			Speed:     row.VoiceSpeed,
		},
		Behavior: model.BehaviorConfig{
			MaxFollowUps:         row.MaxFollowUps,
			ResponseDelaySeconds: row.ResponseDelaySeconds,
			Tone:                 row.Tone,
		},
	}
	if row.Provider != nil {
		choice := model.ProviderChoice(*row.Provider)
		if choice.Valid() {
			cfg.Provider = &choice
		}
	}
	return cfg
}

func (row configRow) applyToDefault(def *model.OrganizationDefaultConfig) {
	if row.Model != nil {
		def.Model = *row.Model
	}
	if row.Temperature != nil {
		def.Temperature = *row.Temperature
	}
	if row.Provider != nil {
		choice := model.ProviderChoice(*row.Provider)
		if choice.Valid() {
			def.Provider = choice
		}
	}
	if row.VoiceID != nil {
		def.Voice.VoiceID = *row.VoiceID
	}
	if row.VoiceStability != nil {
		def.Voice.Stability = *row.VoiceStability
	}
	if row.VoiceSpeed != nil {
		def.Voice.Speed = *row.VoiceSpeed
	}
	if row.MaxFollowUps != nil {
		def.Behavior.MaxFollowUps = *row.MaxFollowUps
	}
	if row.ResponseDelaySeconds != nil {
		def.Behavior.ResponseDelaySeconds = *row.ResponseDelaySeconds
	}
	if row.Tone != nil {
		def.Behavior.Tone = *row.Tone
	}
}

// encrypt encrypts plaintext using AES-256-GCM and returns a
// base64-encoded string of nonce || ciphertext || tag.
func (r *SettingsCacheRepo) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *SettingsCacheRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}
