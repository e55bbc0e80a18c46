package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ifuryst/quillflow/internal/config"
	"github.com/ifuryst/quillflow/internal/models"
	"github.com/ifuryst/quillflow/internal/server"
	"github.com/ifuryst/quillflow/internal/service"
	"github.com/ifuryst/quillflow/pkg/logger"
)

var (
	configPath string
	version    = "0.1.0"
	gitCommit  = "unknown"
	buildTime  = "unknown"

	ideaCount    int
	ideaSignal   string
	ideaSimilar  string
	licenseKey   string
	publishDraft bool

	settingsMode        string
	settingsLimit       int
	settingsAutoPublish bool
	settingsImages      string
	settingsLinks       int
	settingsPlagiarism  bool
	settingsDataSection bool

	styleTone         string
	styleSentences    string
	styleParagraphs   string
	styleFormatting   string
	styleInstructions string
)

var rootCmd = &cobra.Command{
	Use:           "quillflow",
	Short:         "Quillflow - Automated content pipeline",
	Long:          `Quillflow proposes article ideas, drafts them in the site's own style, enriches the drafts and publishes them on a schedule.`,
	RunE:          runServer,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Quillflow %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one full automation cycle now",
	RunE: withServer(func(ctx context.Context, srv *server.Server, args []string) error {
		report, err := srv.Scheduler.RunFullCycle(ctx)
		if err != nil {
			return err
		}
		return printJSON(report)
	}),
}

var ideasCmd = &cobra.Command{
	Use:   "ideas",
	Short: "Generate ideas into the backlog",
	RunE: withServer(func(ctx context.Context, srv *server.Server, args []string) error {
		var (
			ideas []models.Idea
			err   error
		)
		switch {
		case ideaSimilar != "":
			ideas, err = srv.Ideas.GenerateSimilar(ctx, ideaSimilar)
		case ideaSignal != "":
			ideas, err = srv.Ideas.GenerateFromSearchSignal(ctx, ideaSignal)
		default:
			count := ideaCount
			if count == 0 {
				settings, loadErr := srv.Settings.Load(ctx)
				if loadErr != nil {
					return loadErr
				}
				count = settings.GenerationLimit
			}
			ideas, err = srv.Ideas.Generate(ctx, count, "")
		}
		if err != nil {
			return err
		}
		for _, idea := range ideas {
			fmt.Printf("%d\t%s\n", idea.ID, idea.Title)
		}
		return nil
	}),
}

var draftCmd = &cobra.Command{
	Use:   "draft <idea-id>",
	Short: "Write a draft from a backlog idea",
	Args:  cobra.ExactArgs(1),
	RunE: withServer(func(ctx context.Context, srv *server.Server, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid idea id %q", args[0])
		}
		post, err := srv.Drafts.Write(ctx, uint(id))
		if err != nil {
			return err
		}
		if publishDraft {
			if post, err = srv.Publisher.Publish(ctx, post.ID); err != nil {
				return err
			}
		}
		fmt.Printf("%d\t%s\t%s\n", post.ID, post.Status, post.Title)
		return nil
	}),
}

var licenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Inspect or activate the pro license",
}

var licenseVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the license against the authority now",
	RunE: withServer(func(ctx context.Context, srv *server.Server, args []string) error {
		var (
			state *models.LicenseState
			err   error
		)
		if licenseKey != "" {
			state, err = srv.License.Activate(ctx, licenseKey)
		} else {
			state, err = srv.License.Verify(ctx)
		}
		if state != nil {
			fmt.Printf("status: %s\n", state.CachedStatus)
			if state.Expiry != nil {
				fmt.Printf("expires: %s\n", state.Expiry.Format("2006-01-02"))
			}
		}
		return err
	}),
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the automation settings",
	RunE: withServer(func(ctx context.Context, srv *server.Server, args []string) error {
		cfg, err := srv.Settings.Load(ctx)
		if err != nil {
			return err
		}
		return printJSON(cfg)
	}),
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change automation settings",
	Long:  `Change automation settings. A running server picks them up on restart; use PUT /api/v1/settings to apply them live.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := settingsPatch(cmd.Flags())
		return withServer(func(ctx context.Context, srv *server.Server, args []string) error {
			cfg, err := srv.Settings.Apply(ctx, patch)
			if err != nil {
				return err
			}
			return printJSON(cfg)
		})(cmd, args)
	},
}

var styleCmd = &cobra.Command{
	Use:   "style",
	Short: "Show or edit the style guide",
	RunE: withServer(func(ctx context.Context, srv *server.Server, args []string) error {
		guide, err := srv.Style.Require(ctx)
		if err != nil {
			return err
		}
		return printJSON(guide)
	}),
}

var styleSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Edit the style guide by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := stylePatch(cmd.Flags())
		return withServer(func(ctx context.Context, srv *server.Server, args []string) error {
			guide, err := srv.Style.Apply(ctx, patch)
			if err != nil {
				return err
			}
			return printJSON(guide)
		})(cmd, args)
	},
}

// settingsPatch keeps only the flags given on the command line.
func settingsPatch(flags *pflag.FlagSet) service.SettingsPatch {
	var patch service.SettingsPatch
	if flags.Changed("mode") {
		mode := models.WorkingMode(settingsMode)
		patch.WorkingMode = &mode
	}
	if flags.Changed("generation-limit") {
		patch.GenerationLimit = &settingsLimit
	}
	if flags.Changed("auto-publish") {
		patch.AutoPublish = &settingsAutoPublish
	}
	if flags.Changed("image-provider") {
		provider := models.ImageProvider(settingsImages)
		patch.ImageProvider = &provider
	}
	if flags.Changed("links") {
		patch.InternalLinksMax = &settingsLinks
	}
	if flags.Changed("plagiarism-check") {
		patch.PlagiarismCheck = &settingsPlagiarism
	}
	if flags.Changed("data-section") {
		patch.DataSection = &settingsDataSection
	}
	return patch
}

func stylePatch(flags *pflag.FlagSet) service.StylePatch {
	var patch service.StylePatch
	if flags.Changed("tone") {
		patch.Tone = &styleTone
	}
	if flags.Changed("sentence-structure") {
		patch.SentenceStructure = &styleSentences
	}
	if flags.Changed("paragraph-length") {
		patch.ParagraphLength = &styleParagraphs
	}
	if flags.Changed("formatting") {
		patch.FormattingStyle = &styleFormatting
	}
	if flags.Changed("instructions") {
		patch.CustomInstructions = &styleInstructions
	}
	return patch
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")

	ideasCmd.Flags().IntVarP(&ideaCount, "count", "n", 0, "number of ideas, defaults to the generation limit")
	ideasCmd.Flags().StringVar(&ideaSignal, "signal", "", "search query to base ideas on")
	ideasCmd.Flags().StringVar(&ideaSimilar, "similar", "", "existing title to find variations of")
	draftCmd.Flags().BoolVar(&publishDraft, "publish", false, "publish the draft right away")
	licenseVerifyCmd.Flags().StringVar(&licenseKey, "key", "", "store and verify a new license key")

	settingsSetCmd.Flags().StringVar(&settingsMode, "mode", "", "working mode: manual, semi-automatic or full-automatic")
	settingsSetCmd.Flags().IntVar(&settingsLimit, "generation-limit", 0, "ideas requested per generation run")
	settingsSetCmd.Flags().BoolVar(&settingsAutoPublish, "auto-publish", false, "publish the oldest draft at the end of each cycle")
	settingsSetCmd.Flags().StringVar(&settingsImages, "image-provider", "", "featured image source: none, openai, unsplash or pexels")
	settingsSetCmd.Flags().IntVar(&settingsLinks, "links", 0, "maximum internal links per draft")
	settingsSetCmd.Flags().BoolVar(&settingsPlagiarism, "plagiarism-check", false, "run the plagiarism scan (pro)")
	settingsSetCmd.Flags().BoolVar(&settingsDataSection, "data-section", false, "add a data section (pro)")

	styleSetCmd.Flags().StringVar(&styleTone, "tone", "", "tone of voice")
	styleSetCmd.Flags().StringVar(&styleSentences, "sentence-structure", "", "sentence structure")
	styleSetCmd.Flags().StringVar(&styleParagraphs, "paragraph-length", "", "paragraph length")
	styleSetCmd.Flags().StringVar(&styleFormatting, "formatting", "", "formatting style")
	styleSetCmd.Flags().StringVar(&styleInstructions, "instructions", "", "custom instructions, kept across style refreshes")

	licenseCmd.AddCommand(licenseVerifyCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	styleCmd.AddCommand(styleSetCmd)
	rootCmd.AddCommand(versionCmd, cycleCmd, ideasCmd, draftCmd, licenseCmd, settingsCmd, styleCmd)
}

func setup() (*config.Config, *zap.Logger, error) {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, appLogger, nil
}

// withServer wires the services for a one-shot command without starting the
// scheduler or the HTTP listener.
func withServer(fn func(ctx context.Context, srv *server.Server, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, appLogger, err := setup()
		if err != nil {
			return err
		}
		defer appLogger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, err := server.NewServer(ctx, cfg, appLogger)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		defer srv.Close()

		return fn(ctx, srv, args)
	}
}

func runServer(*cobra.Command, []string) error {
	cfg, appLogger, err := setup()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Quillflow server", zap.String("version", version))

	// Start server
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create server
	srv, err := server.NewServer(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	go func() {
		if err := srv.Start(ctx); err != nil {
			appLogger.Error("Server failed to start", zap.Error(err))
			cancel()
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down server...")
	case <-ctx.Done():
		appLogger.Info("Server context cancelled")
	}

	// Graceful shutdown
	if err := srv.Shutdown(context.Background()); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if service.IsUserFacing(err) || errors.Is(err, service.ErrCycleInProgress) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
