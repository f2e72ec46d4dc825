package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voicelocal/voicelocal/internal/identity"
	"github.com/voicelocal/voicelocal/internal/models"
	"github.com/voicelocal/voicelocal/internal/output"
	"github.com/voicelocal/voicelocal/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
	actAs   string
)

var rootCmd = &cobra.Command{
	Use:   "voicelocal",
	Short: "VoiceLocal - report, discuss and vote on local civic issues",
	Long: `voicelocal keeps a shared list of civic issues (potholes, broken
streetlights, park repairs) that residents can report, comment on and vote on.

Running bare 'voicelocal' shows the most recent open issues.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/voicelocal/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&actAs, "as", "", "Act as this user id instead of the logged-in user")
}

func initConfig() {
	// .env in the working directory is optional.
	_ = godotenv.Load()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VOICELOCAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	defaultConfigDir, _ := configDirFunc()
	setDefaults(defaultConfigDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "voicelocal.db"))
	viper.SetDefault("storage", "sqlite")
	viper.SetDefault("seed_demo", false)
	viper.SetDefault("port", 8080)
	viper.SetDefault("user.id", "")
	viper.SetDefault("user.name", "")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "auto")
	viper.SetDefault("feed.page_size", 10)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily so config and login work without a database.
}

// rootRun handles `voicelocal` with no subcommand: show the first page of open issues.
func rootRun(cmd *cobra.Command) error {
	if _, err := getStore(); err != nil {
		return cmd.Help()
	}
	issueListStatus = string(models.IssueStatusOpen)
	defer func() { issueListStatus = "" }()
	return issueListRun()
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	var s store.Store
	switch kind := viper.GetString("storage"); kind {
	case "memory":
		s = store.NewMemoryStore()
	case "sqlite", "":
		sq, err := store.NewSQLiteStore(viper.GetString("db_path"))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := sq.Migrate(context.Background()); err != nil {
			_ = sq.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		s = sq
	default:
		return nil, fmt.Errorf("unknown storage %q (use: sqlite, memory)", kind)
	}

	if viper.GetBool("seed_demo") {
		n, err := store.Seed(context.Background(), s)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
		if n > 0 {
			ui.VerboseLog("Seeded %d demo issues", n)
		}
	}

	dataStore = s
	return dataStore, nil
}

// identityFile returns the identity file in the configured state directory.
func identityFile() *identity.File {
	return identity.NewFile(viper.GetString("state_dir"))
}

// currentActor resolves the acting user: --as, then the saved login, then the
// user.* config keys.
func currentActor() (*models.User, error) {
	saved, err := identityFile().Load()
	if err != nil && !errors.Is(err, identity.ErrNoIdentity) {
		return nil, err
	}

	if actAs != "" {
		if saved != nil && saved.ID == actAs {
			return saved, nil
		}
		return &models.User{ID: actAs, DisplayName: actAs, Role: models.UserRoleUser}, nil
	}
	if saved != nil {
		return saved, nil
	}
	if id := viper.GetString("user.id"); id != "" {
		name := viper.GetString("user.name")
		if name == "" {
			name = id
		}
		return &models.User{ID: id, DisplayName: name, Role: models.UserRoleUser}, nil
	}
	return nil, fmt.Errorf("not logged in: run 'voicelocal login <email>' or pass --as <user-id>")
}

// optionalActor is currentActor for commands that work anonymously.
func optionalActor() *models.User {
	u, err := currentActor()
	if err != nil {
		return nil
	}
	return u
}
