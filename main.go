package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sjsage522/feedscanner/config"
	"sjsage522/feedscanner/helpers"
	"sjsage522/feedscanner/internal/browser"
	"sjsage522/feedscanner/internal/scanner"
	"sjsage522/feedscanner/internal/selectors"
	"sjsage522/feedscanner/internal/throttle"
	"sjsage522/feedscanner/logger"
	"sjsage522/feedscanner/services/cache"
	"sjsage522/feedscanner/services/proxy"
	"sjsage522/feedscanner/services/publisher"
	"sjsage522/feedscanner/services/store"
	"sjsage522/feedscanner/services/worker"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagBackend  string
	flagSection  string
	flagFresh    bool
	flagCount    int
	flagCatalog  string
	flagHeadless bool
	flagUsername string
	flagPassword string
	flagInterval int
	flagPrint    bool
	flagNight    bool
	flagDown     bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "feedscanner",
		Short:        "Scan 9GAG section feeds post by post and publish the records",
		SilenceUsage: true,
		RunE:         runScan,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagBackend, "backend", "", "browsing backend: static or live")
	flags.StringVar(&flagCatalog, "catalog", "", "selector catalog file (default: embedded)")
	flags.BoolVar(&flagHeadless, "headless", true, "run the live browser headless")
	flags.StringVar(&flagUsername, "username", "", "account used for login-gated actions")
	flags.StringVar(&flagPassword, "password", "", "password for --username")

	rootCmd.Flags().StringVar(&flagSection, "section", "", "section to scan (hot, trending, fresh or a menu section)")
	rootCmd.Flags().BoolVar(&flagFresh, "fresh", false, "scan the fresh feed of the section")
	rootCmd.Flags().IntVar(&flagCount, "count", 0, "posts per round, negative for no limit")
	rootCmd.Flags().IntVar(&flagInterval, "interval", 0, "seconds between rounds, 0 runs once")
	rootCmd.Flags().BoolVar(&flagPrint, "print", false, "print scanned posts to stdout")
	rootCmd.Flags().BoolVar(&flagNight, "night", false, "toggle night mode before scanning (live backend)")

	postCmd := &cobra.Command{
		Use:   "post <url>",
		Short: "Extract a single post page and print it",
		Args:  cobra.ExactArgs(1),
		RunE:  runPost,
	}

	voteCmd := &cobra.Command{
		Use:   "vote <url>",
		Short: "Upvote a post, or downvote it with --down",
		Args:  cobra.ExactArgs(1),
		RunE:  runVote,
	}
	voteCmd.Flags().BoolVar(&flagDown, "down", false, "downvote instead of upvote")

	rootCmd.AddCommand(postCmd, voteCmd)
	return rootCmd
}

// setup loads .env, the logger and the configuration with flag overrides
func setup(cmd *cobra.Command) (*config.Config, error) {
	_ = godotenv.Load()
	logger.Init()

	cfg := config.LoadConfig()
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("backend") {
		cfg.Backend = flagBackend
	}
	if changed("catalog") {
		cfg.SelectorCatalog = flagCatalog
	}
	if changed("headless") {
		cfg.BrowserHeadless = flagHeadless
	}
	if changed("username") {
		cfg.Username = flagUsername
	}
	if changed("password") {
		cfg.Password = flagPassword
	}
	if cmd.Flags().Lookup("section") == nil {
		return
	}
	if changed("section") {
		cfg.Section = flagSection
	}
	if changed("fresh") {
		cfg.Fresh = flagFresh
	}
	if changed("count") {
		cfg.MaxPosts = flagCount
	}
	if changed("interval") {
		cfg.ScanInterval = time.Duration(flagInterval) * time.Second
	}
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	log := logger.Default

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := initializeServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Cleanup()

	nav, err := newNavigator(ctx, cfg, services)
	if err != nil {
		return err
	}
	defer nav.Backend().Close()

	if err := prepareSession(ctx, cfg, nav); err != nil {
		return err
	}

	var out io.Writer
	if flagPrint {
		out = cmd.OutOrStdout()
	}
	var sink worker.PostStore
	if services.Store != nil {
		sink = services.Store
	}

	w := worker.NewWorker(
		scanner.NewSession(nav),
		services.Publisher,
		sink,
		out,
		helpers.NewLogger(cfg.ScanErrorLog),
		worker.Options{
			Section:  cfg.Section,
			Fresh:    cfg.Fresh,
			MaxPosts: cfg.MaxPosts,
			Interval: cfg.ScanInterval,
		},
	)

	log.Info().
		Str("environment", cfg.Environment).
		Str("backend", cfg.Backend).
		Str("section", cfg.Section).
		Int("max_posts", cfg.MaxPosts).
		Dur("scan_interval", cfg.ScanInterval).
		Msg("Starting feed scanner")

	if err := w.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Scanner exited with error")
		return err
	}
	log.Info().Msg("Shutting down gracefully...")
	return nil
}

// prepareSession runs the optional login and night mode toggle
func prepareSession(ctx context.Context, cfg *config.Config, nav *scanner.Navigator) error {
	needsHome := flagNight || (cfg.HasCredentials() && browser.Renders(nav.Backend()))
	if !needsHome {
		return nil
	}
	if err := nav.Home(ctx); err != nil {
		return err
	}
	if cfg.HasCredentials() && browser.Renders(nav.Backend()) {
		if err := nav.Login(ctx, credentials(cfg)); err != nil {
			logger.Default.Warn().Err(err).Msg("Login failed, scanning anonymously")
		}
	}
	if flagNight {
		if err := nav.ToggleNightMode(ctx); err != nil {
			logger.Default.Warn().Err(err).Msg("Failed to toggle night mode")
		}
	}
	return nil
}

func runPost(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	services := initializeTransport(ctx, cfg)
	nav, err := newNavigator(ctx, cfg, services)
	if err != nil {
		return err
	}
	defer nav.Backend().Close()

	if err := nav.OpenPost(ctx, args[0]); err != nil {
		return err
	}
	p, err := nav.ExtractCurrent(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), p)
	return nil
}

func runVote(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	services := initializeTransport(ctx, cfg)
	nav, err := newNavigator(ctx, cfg, services)
	if err != nil {
		return err
	}
	defer nav.Backend().Close()

	if err := nav.OpenPost(ctx, args[0]); err != nil {
		return err
	}
	if flagDown {
		return nav.Downvote(ctx, credentials(cfg))
	}
	return nav.Upvote(ctx, credentials(cfg))
}

func credentials(cfg *config.Config) *scanner.Credentials {
	if !cfg.HasCredentials() {
		return nil
	}
	return &scanner.Credentials{Username: cfg.Username, Password: cfg.Password}
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Store     *store.PostStore
	Proxy     string
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}

// initializeTransport resolves what every page load goes through: the
// rate-limit cache and the proxy. An unreachable memcached degrades to an
// in-process cache.
func initializeTransport(ctx context.Context, cfg *config.Config) *Services {
	services := &Services{Cache: cache.NewMemoryService()}

	if cfg.MemcacheAddr != "" {
		mc := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := mc.Ping(); err != nil {
			logger.Warn("Memcache at %s unavailable, using in-process cache: %v", cfg.MemcacheAddr, err)
		} else {
			services.Cache = mc
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	}

	services.Proxy = cfg.ProxyURL
	if services.Proxy == "" && cfg.ProxyListURL != "" {
		pm := proxy.NewProxyManager(cfg.ProxyListURL, nil, proxy.DefaultOptions())
		p, err := pm.GetFastestProxy(ctx)
		if err != nil {
			logger.Warn("No usable proxy from %s, connecting directly: %v", cfg.ProxyListURL, err)
		} else {
			services.Proxy = p.URL()
			logger.Info("Using proxy %s (latency %s)", services.Proxy, p.Latency)
		}
	}

	return services
}

// initializeServices adds the publisher and the archive to the transport
// services. An unreachable Redis server disables publishing.
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := initializeTransport(ctx, cfg)

	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		if err := redisPublisher.Ping(ctx); err != nil {
			logger.Warn("Redis at %s unavailable, posts will not be published: %v", cfg.RedisAddr, err)
			redisPublisher.Close()
		} else {
			services.Publisher = redisPublisher
			logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
				cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
		}
	}

	if cfg.SQLitePath != "" {
		s, err := store.Open(cfg.SQLitePath)
		if err != nil {
			services.Cleanup()
			return nil, err
		}
		services.Store = s
		logger.Info("Archiving posts to %s", cfg.SQLitePath)
	}

	return services, nil
}

// newNavigator builds the configured backend and a navigator over it
func newNavigator(ctx context.Context, cfg *config.Config, services *Services) (*scanner.Navigator, error) {
	catalog, err := selectors.Load(cfg.SelectorCatalog)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(ctx, cfg, services)
	if err != nil {
		return nil, err
	}

	return scanner.NewNavigator(backend, catalog, scanner.Options{
		BaseURL:           cfg.BaseURL,
		WaitTimeout:       cfg.WaitTimeout,
		LocateAttempts:    cfg.LocateAttempts,
		SettleDelay:       cfg.SettleDelay,
		LoginOverlayDelay: cfg.LoginOverlayDelay,
	}), nil
}

func newBackend(ctx context.Context, cfg *config.Config, services *Services) (browser.Backend, error) {
	pace := throttle.New(cfg.ThrottleMean)

	if cfg.Backend == config.BackendLive {
		return browser.NewLiveBackend(ctx, browser.LiveOptions{
			ControlURL:        cfg.BrowserControlURL,
			Bin:               cfg.BrowserBin,
			Headless:          cfg.BrowserHeadless,
			Proxy:             services.Proxy,
			Origin:            cfg.BaseURL,
			Throttle:          pace,
			NavigationTimeout: 3 * cfg.WaitTimeout,
			ActionTimeout:     cfg.WaitTimeout,
		})
	}

	client, err := helpers.NewClient(helpers.ClientOptions{
		Timeout:          cfg.HTTPTimeout,
		ProxyURL:         services.Proxy,
		CloudflareBypass: cfg.CloudflareBypass,
	})
	if err != nil {
		return nil, err
	}
	return browser.NewStaticBackend(browser.StaticOptions{
		Client:    client,
		Throttle:  pace,
		Origin:    cfg.BaseURL,
		Cache:     services.Cache,
		BlockTime: cfg.BlockTime,
	}), nil
}
