package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure model providers, storage and the review queue.

Pipeline parameters are not settings: they live in configuration versions
(see 'ruleforge config'). Use subcommands to configure specific settings or
run the interactive wizard.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive setup wizard",
	Long:  `Run an interactive wizard to configure all settings step by step.`,
	RunE:  runSettingsWizard,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long:  `Configure the embedding provider used for similarity de-duplication.`,
	RunE:  runSettingsEmbedding,
}

var settingsLLMCmd = &cobra.Command{
	Use:   "llm",
	Short: "Configure LLM provider",
	Long:  `Configure the LLM provider that runs the analysis stages and QA reviews.`,
	RunE:  runSettingsLLM,
}

var settingsStorageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Configure run and configuration storage",
	RunE:  runSettingsStorage,
}

var settingsReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Configure the review queue",
	RunE:  runSettingsReview,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsWizardCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsLLMCmd)
	settingsCmd.AddCommand(settingsStorageCmd)
	settingsCmd.AddCommand(settingsReviewCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	if settings.Embedding.Provider == domain.AIProviderOllama {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	printAPIKey(cmd, settings.Embedding.Provider, settings.Embedding.APIKey)
	cmd.Printf("  Status: %s\n", configuredStatus(settings.Embedding.IsConfigured()))
	cmd.Println()

	cmd.Println("[LLM]")
	if settings.LLM.Provider == "" {
		cmd.Println("  Provider: (not set)")
	} else {
		cmd.Printf("  Provider: %s\n", settings.LLM.Provider.Description())
		cmd.Printf("  Model: %s\n", settings.LLM.Model)
		if settings.LLM.Provider.IsLocal() {
			cmd.Printf("  Base URL: %s\n", settings.LLM.BaseURL)
		}
		printAPIKey(cmd, settings.LLM.Provider, settings.LLM.APIKey)
		if settings.LLM.RequestsPerSecond > 0 {
			cmd.Printf("  Rate limit: %.1f req/s\n", settings.LLM.RequestsPerSecond)
		}
	}
	cmd.Printf("  Status: %s\n", configuredStatus(settings.LLM.IsConfigured()))
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Driver: %s\n", settings.Storage.Driver)
	switch settings.Storage.Driver {
	case domain.StorageSQLite:
		cmd.Printf("  Data dir: %s\n", orDefault(settings.Storage.DataDir))
	case domain.StoragePostgres:
		cmd.Printf("  DSN: %s\n", maskDSN(settings.Storage.DSN))
	}
	cmd.Println()

	cmd.Println("[Review Queue]")
	cmd.Printf("  Kind: %s\n", settings.ReviewQueue.Kind)
	switch settings.ReviewQueue.Kind {
	case domain.ReviewQueueFile:
		cmd.Printf("  Dir: %s\n", orDefault(settings.ReviewQueue.Dir))
	case domain.ReviewQueueMinio:
		cmd.Printf("  Endpoint: %s\n", settings.ReviewQueue.Endpoint)
		cmd.Printf("  Bucket: %s/%s\n", settings.ReviewQueue.Bucket, settings.ReviewQueue.Prefix)
		if settings.ReviewQueue.AccessKey != "" {
			cmd.Printf("  Access key: %s\n", maskAPIKey(settings.ReviewQueue.AccessKey))
		}
	}
	cmd.Println()

	cmd.Println("[Pipeline]")
	cmd.Printf("  Workers: %d\n", settings.Workers)
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'ruleforge settings wizard' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsWizard(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	cmd.Println("Ruleforge Settings Wizard")
	cmd.Println("=========================")
	cmd.Println()

	reader := bufio.NewReader(cmd.InOrStdin())

	cmd.Println("Step 1: Configure LLM Provider")
	cmd.Println("------------------------------")
	cmd.Println("Every analysis stage and QA review calls this provider.")
	cmd.Println()
	if err := configureLLMProvider(cmd, reader); err != nil {
		return err
	}

	cmd.Println("Step 2: Configure Embedding Provider")
	cmd.Println("------------------------------------")
	cmd.Println("Candidate rules are embedded to find duplicates in the reference corpus.")
	cmd.Println()
	if err := configureEmbeddingProvider(cmd, reader); err != nil {
		return err
	}

	cmd.Println("Step 3: Storage")
	cmd.Println("---------------")
	if err := configureStorage(cmd, reader); err != nil {
		return err
	}

	cmd.Println("Step 4: Review Queue")
	cmd.Println("--------------------")
	if err := configureReviewQueue(cmd, reader); err != nil {
		return err
	}

	cmd.Println("Configuration Complete!")
	cmd.Println("=======================")
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("All settings are valid and saved.")
	}

	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return configureEmbeddingProvider(cmd, bufio.NewReader(cmd.InOrStdin()))
}

func runSettingsLLM(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return configureLLMProvider(cmd, bufio.NewReader(cmd.InOrStdin()))
}

func runSettingsStorage(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return configureStorage(cmd, bufio.NewReader(cmd.InOrStdin()))
}

func runSettingsReview(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return configureReviewQueue(cmd, bufio.NewReader(cmd.InOrStdin()))
}

//nolint:dupl // Similar to configureLLMProvider but for embeddings - intentional for CLI flow clarity
func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select Embedding Provider")
	providers := domain.AllEmbeddingProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(providers), 1)
	selectedProvider := providers[idx-1]

	defaultModel := domain.DefaultEmbeddingModels()[selectedProvider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	var apiKey string
	if selectedProvider.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		apiKey = readPassword(reader)
		cmd.Println()
		if apiKey == "" {
			return errors.New("API key is required for this provider")
		}
	}

	if err := settingsService.SetEmbeddingProvider(selectedProvider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Embedding provider configured: %s (%s)\n\n", selectedProvider.Description(), model)
	return nil
}

//nolint:dupl // Similar to configureEmbeddingProvider but for LLM - intentional for CLI flow clarity
func configureLLMProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select LLM Provider")
	providers := domain.AllLLMProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(providers), 1)
	selectedProvider := providers[idx-1]

	defaultModel := domain.DefaultLLMModels()[selectedProvider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	var apiKey string
	if selectedProvider.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		apiKey = readPassword(reader)
		cmd.Println()
		if apiKey == "" {
			return errors.New("API key is required for this provider")
		}
	}

	if err := settingsService.SetLLMProvider(selectedProvider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure LLM provider: %w", err)
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateLLMConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("LLM configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("LLM provider configured: %s (%s)\n\n", selectedProvider.Description(), model)
	return nil
}

func configureStorage(cmd *cobra.Command, reader *bufio.Reader) error {
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	drivers := []domain.StorageDriver{domain.StorageSQLite, domain.StoragePostgres, domain.StorageMemory}
	cmd.Println("Select storage")
	cmd.Println("  1. SQLite file (default)")
	cmd.Println("  2. PostgreSQL")
	cmd.Println("  3. In memory (nothing persists)")
	cmd.Print("\nEnter choice [1]: ")
	driver := drivers[parseChoice(readLine(reader), len(drivers), 1)-1]
	settings.Storage.Driver = driver

	switch driver {
	case domain.StorageSQLite:
		cmd.Printf("Data directory [%s]: ", orDefault(settings.Storage.DataDir))
		if dir := readLine(reader); dir != "" {
			settings.Storage.DataDir = dir
		}
	case domain.StoragePostgres:
		cmd.Print("Connection string (empty = $DATABASE_URL): ")
		dsn := readPassword(reader)
		cmd.Println()
		if dsn != "" {
			settings.Storage.DSN = dsn
		}
		if settings.Storage.DSN == "" {
			return errors.New("a connection string is required for PostgreSQL")
		}
	}

	cmd.Printf("Concurrent runs [%d]: ", settings.Workers)
	settings.Workers = parseChoice(readLine(reader), maxWorkers, settings.Workers)

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save storage settings: %w", err)
	}
	cmd.Printf("Storage configured: %s\n\n", driver)
	return nil
}

// maxWorkers bounds the worker prompt.
const maxWorkers = 64

func configureReviewQueue(cmd *cobra.Command, reader *bufio.Reader) error {
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	kinds := []domain.ReviewQueueKind{domain.ReviewQueueFile, domain.ReviewQueueMinio, domain.ReviewQueueMemory}
	cmd.Println("Select review queue")
	cmd.Println("  1. NDJSON files in a directory (default)")
	cmd.Println("  2. MinIO / S3 bucket")
	cmd.Println("  3. In memory (for trials)")
	cmd.Print("\nEnter choice [1]: ")
	kind := kinds[parseChoice(readLine(reader), len(kinds), 1)-1]
	q := &settings.ReviewQueue
	q.Kind = kind

	switch kind {
	case domain.ReviewQueueFile:
		cmd.Printf("Directory [%s]: ", orDefault(q.Dir))
		if dir := readLine(reader); dir != "" {
			q.Dir = dir
		}
	case domain.ReviewQueueMinio:
		cmd.Printf("Endpoint [%s]: ", orDefault(q.Endpoint))
		if v := readLine(reader); v != "" {
			q.Endpoint = v
		}
		cmd.Printf("Bucket [%s]: ", q.Bucket)
		if v := readLine(reader); v != "" {
			q.Bucket = v
		}
		cmd.Printf("Use TLS? [%s]: ", yesNo(q.UseSSL))
		q.UseSSL = parseYes(readLine(reader), q.UseSSL)
		cmd.Print("Access key (empty = $RULEFORGE_MINIO_ACCESS_KEY): ")
		if v := readLine(reader); v != "" {
			q.AccessKey = v
		}
		cmd.Print("Secret key (empty = $RULEFORGE_MINIO_SECRET_KEY): ")
		if v := readPassword(reader); v != "" {
			q.SecretKey = v
		}
		cmd.Println()
		if q.Endpoint == "" {
			return errors.New("an endpoint is required for the object store queue")
		}
	}

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save review queue settings: %w", err)
	}
	cmd.Printf("Review queue configured: %s\n\n", kind)
	return nil
}

// Helper functions.

func printAPIKey(cmd *cobra.Command, provider domain.AIProvider, key string) {
	if !provider.RequiresAPIKey() {
		return
	}
	if key != "" {
		cmd.Printf("  API Key: %s\n", maskAPIKey(key))
	} else {
		cmd.Printf("  API Key: (not set)\n")
	}
}

func configuredStatus(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

func parseYes(input string, defaultVal bool) bool {
	switch strings.ToLower(input) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return defaultVal
	}
}

func yesNo(b bool) string {
	if b {
		return "Y/n"
	}
	return "y/N"
}

// readPassword reads a secret without echo when stdin is a terminal, and
// falls back to a plain line otherwise.
func readPassword(reader *bufio.Reader) string {
	if isTerminal(os.Stdin) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password of a connection URL.
func maskDSN(dsn string) string {
	if dsn == "" {
		return "(not set)"
	}
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return maskAPIKey(dsn)
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPassword := strings.Cut(creds, ":")
	if !hasPassword {
		return dsn
	}
	return scheme + "://" + user + ":****@" + host
}
