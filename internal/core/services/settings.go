package services

import (
	"fmt"
	"os"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider  = "embedding.provider"
	keyEmbedModel     = "embedding.model"
	keyEmbedBaseURL   = "embedding.base_url"
	keyEmbedAPIKey    = "embedding.api_key"
	keyEmbedDims      = "embedding.dimensions"
	keyLLMProvider    = "llm.provider"
	keyLLMModel       = "llm.model"
	keyLLMBaseURL     = "llm.base_url"
	keyLLMAPIKey      = "llm.api_key"
	keyLLMRPS         = "llm.requests_per_second"
	keyStorageDriver  = "storage.driver"
	keyStorageDataDir = "storage.data_dir"
	keyStorageDSN     = "storage.dsn"
	keyReviewKind     = "review.kind"
	keyReviewDir      = "review.dir"
	keyReviewEndpoint = "review.endpoint"
	keyReviewBucket   = "review.bucket"
	keyReviewPrefix   = "review.prefix"
	keyReviewAccess   = "review.access_key"
	keyReviewSecret   = "review.secret_key"
	keyReviewRegion   = "review.region"
	keyReviewSSL      = "review.use_ssl"
	keyWorkers        = "pipeline.workers"
)

// Environment variables that override stored settings.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvGeminiKey    = "GEMINI_API_KEY"
	EnvDatabaseURL  = "DATABASE_URL"
	EnvMinioAccess  = "RULEFORGE_MINIO_ACCESS_KEY"
	EnvMinioSecret  = "RULEFORGE_MINIO_SECRET_KEY"
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	getenv      func(string) string
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings. Secrets missing from the
// config file are taken from the environment.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider:   s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			Model:      s.getString(keyEmbedModel, defaults.Embedding.Model),
			BaseURL:    s.configStore.GetString(keyEmbedBaseURL), // No default - empty is valid for cloud providers
			APIKey:     s.configStore.GetString(keyEmbedAPIKey),
			Dimensions: s.getInt(keyEmbedDims, defaults.Embedding.Dimensions),
		},
		LLM: domain.LLMSettings{
			Provider:          s.getProvider(keyLLMProvider, defaults.LLM.Provider),
			Model:             s.getString(keyLLMModel, defaults.LLM.Model),
			BaseURL:           s.configStore.GetString(keyLLMBaseURL),
			APIKey:            s.configStore.GetString(keyLLMAPIKey),
			RequestsPerSecond: s.getFloat(keyLLMRPS, defaults.LLM.RequestsPerSecond),
		},
		Storage: domain.StorageSettings{
			Driver:  s.getStorageDriver(defaults.Storage.Driver),
			DataDir: s.getString(keyStorageDataDir, defaults.Storage.DataDir),
			DSN:     s.configStore.GetString(keyStorageDSN),
		},
		ReviewQueue: domain.ReviewQueueSettings{
			Kind:      s.getReviewKind(defaults.ReviewQueue.Kind),
			Dir:       s.getString(keyReviewDir, defaults.ReviewQueue.Dir),
			Endpoint:  s.configStore.GetString(keyReviewEndpoint),
			Bucket:    s.getString(keyReviewBucket, defaults.ReviewQueue.Bucket),
			Prefix:    s.getString(keyReviewPrefix, defaults.ReviewQueue.Prefix),
			AccessKey: s.configStore.GetString(keyReviewAccess),
			SecretKey: s.configStore.GetString(keyReviewSecret),
			Region:    s.configStore.GetString(keyReviewRegion),
			UseSSL:    s.getBool(keyReviewSSL, defaults.ReviewQueue.UseSSL),
		},
		Workers: s.getInt(keyWorkers, defaults.Workers),
	}

	s.applyEnv(settings)
	return settings, nil
}

// applyEnv fills secrets and the database DSN from the environment when unset.
func (s *SettingsService) applyEnv(settings *domain.AppSettings) {
	if settings.Embedding.APIKey == "" {
		settings.Embedding.APIKey = s.envKey(settings.Embedding.Provider)
	}
	if settings.LLM.APIKey == "" {
		settings.LLM.APIKey = s.envKey(settings.LLM.Provider)
	}
	if settings.Storage.DSN == "" {
		settings.Storage.DSN = s.getenv(EnvDatabaseURL)
	}
	if settings.ReviewQueue.AccessKey == "" {
		settings.ReviewQueue.AccessKey = s.getenv(EnvMinioAccess)
	}
	if settings.ReviewQueue.SecretKey == "" {
		settings.ReviewQueue.SecretKey = s.getenv(EnvMinioSecret)
	}
}

// envKey returns the provider API key from the environment.
func (s *SettingsService) envKey(p domain.AIProvider) string {
	switch p {
	case domain.AIProviderOpenAI:
		return s.getenv(EnvOpenAIKey)
	case domain.AIProviderAnthropic:
		return s.getenv(EnvAnthropicKey)
	case domain.AIProviderGemini:
		return s.getenv(EnvGeminiKey)
	default:
		return ""
	}
}

// fromEnv reports whether a secret is empty or equal to its environment value.
func fromEnv(value, env string) bool {
	return value == "" || value == env
}

// Save persists application settings. Secrets that are empty or came from
// the environment are not written, so they never end up on disk.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key   string
		value any
		skip  bool
	}{
		{keyEmbedProvider, settings.Embedding.Provider.String(), false},
		{keyEmbedModel, settings.Embedding.Model, false},
		{keyEmbedBaseURL, settings.Embedding.BaseURL, false},
		{keyEmbedAPIKey, settings.Embedding.APIKey, fromEnv(settings.Embedding.APIKey, s.envKey(settings.Embedding.Provider))},
		{keyEmbedDims, settings.Embedding.Dimensions, false},
		{keyLLMProvider, settings.LLM.Provider.String(), false},
		{keyLLMModel, settings.LLM.Model, false},
		{keyLLMBaseURL, settings.LLM.BaseURL, false},
		{keyLLMAPIKey, settings.LLM.APIKey, fromEnv(settings.LLM.APIKey, s.envKey(settings.LLM.Provider))},
		{keyLLMRPS, settings.LLM.RequestsPerSecond, false},
		{keyStorageDriver, string(settings.Storage.Driver), false},
		{keyStorageDataDir, settings.Storage.DataDir, false},
		{keyStorageDSN, settings.Storage.DSN, fromEnv(settings.Storage.DSN, s.getenv(EnvDatabaseURL))},
		{keyReviewKind, string(settings.ReviewQueue.Kind), false},
		{keyReviewDir, settings.ReviewQueue.Dir, false},
		{keyReviewEndpoint, settings.ReviewQueue.Endpoint, false},
		{keyReviewBucket, settings.ReviewQueue.Bucket, false},
		{keyReviewPrefix, settings.ReviewQueue.Prefix, false},
		{keyReviewAccess, settings.ReviewQueue.AccessKey, fromEnv(settings.ReviewQueue.AccessKey, s.getenv(EnvMinioAccess))},
		{keyReviewSecret, settings.ReviewQueue.SecretKey, fromEnv(settings.ReviewQueue.SecretKey, s.getenv(EnvMinioSecret))},
		{keyReviewRegion, settings.ReviewQueue.Region, false},
		{keyReviewSSL, settings.ReviewQueue.UseSSL, false},
		{keyWorkers, settings.Workers, false},
	}
	for _, v := range values {
		if v.skip {
			continue
		}
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid embedding provider: %s", provider)
	}

	// Validate provider supports embeddings
	valid := false
	for _, p := range domain.AllEmbeddingProviders() {
		if p == provider {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}

	// Validate API key if required
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider

	// Set model - use provided or default
	if model != "" {
		settings.Embedding.Model = model
	} else if defaultModel, ok := domain.DefaultEmbeddingModels()[provider]; ok {
		settings.Embedding.Model = defaultModel
	}

	// Set base URL based on provider type
	if provider == domain.AIProviderOllama {
		if settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = "http://localhost:11434"
		}
	} else {
		settings.Embedding.BaseURL = ""
	}

	settings.Embedding.APIKey = apiKey

	// Update dimensions based on model
	if d, ok := domain.EmbeddingDimensions()[settings.Embedding.Model]; ok {
		settings.Embedding.Dimensions = d
	}

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid LLM provider: %s", provider)
	}

	valid := false
	for _, p := range domain.AllLLMProviders() {
		if p == provider {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("provider %s does not support chat completion", provider)
	}

	// Validate API key if required
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.LLM.Provider = provider

	// Set model - use provided or default
	if model != "" {
		settings.LLM.Model = model
	} else if defaultModel, ok := domain.DefaultLLMModels()[provider]; ok {
		settings.LLM.Model = defaultModel
	}

	// Set base URL based on provider type
	if provider.IsLocal() {
		if settings.LLM.BaseURL == "" {
			settings.LLM.BaseURL = "http://localhost:11434"
		}
	} else {
		settings.LLM.BaseURL = ""
	}

	settings.LLM.APIKey = apiKey

	return s.Save(settings)
}

// Validate checks that the settings can run the pipeline.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if !settings.LLM.IsConfigured() {
		return fmt.Errorf("an LLM provider must be configured to run the pipeline")
	}
	if settings.Embedding.Provider != "" && !settings.Embedding.IsConfigured() {
		return fmt.Errorf("embedding provider %s is not fully configured", settings.Embedding.Provider)
	}
	if !settings.Storage.Driver.IsValid() {
		return fmt.Errorf("invalid storage driver: %s", settings.Storage.Driver)
	}
	if settings.Storage.Driver == domain.StoragePostgres && settings.Storage.DSN == "" {
		return fmt.Errorf("storage driver postgres requires %s or storage.dsn", EnvDatabaseURL)
	}
	if settings.ReviewQueue.Kind == domain.ReviewQueueMinio && settings.ReviewQueue.Endpoint == "" {
		return fmt.Errorf("review queue minio requires review.endpoint")
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val, exists := s.configStore.Get(key)
	if !exists {
		return defaultVal
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return defaultVal
	}
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getStorageDriver(defaultVal domain.StorageDriver) domain.StorageDriver {
	driver := domain.StorageDriver(s.configStore.GetString(keyStorageDriver))
	if !driver.IsValid() {
		return defaultVal
	}
	return driver
}

func (s *SettingsService) getReviewKind(defaultVal domain.ReviewQueueKind) domain.ReviewQueueKind {
	kind := domain.ReviewQueueKind(s.configStore.GetString(keyReviewKind))
	if !kind.IsValid() {
		return defaultVal
	}
	return kind
}
