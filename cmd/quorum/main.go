package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/quorum/pkg/backend"
	"github.com/zen-systems/quorum/pkg/config"
	"github.com/zen-systems/quorum/pkg/consensus"
	"github.com/zen-systems/quorum/pkg/dispatch"
	"github.com/zen-systems/quorum/pkg/metrics"
	"github.com/zen-systems/quorum/pkg/registry"
	"github.com/zen-systems/quorum/pkg/router"
	"github.com/zen-systems/quorum/pkg/schema"
	"github.com/zen-systems/quorum/pkg/store"
)

var (
	configFile  string
	verboseFlag bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "quorum",
		Short: "Multi-provider AI routing with consensus",
		Long: `Quorum fans one prompt out to several AI model backends in parallel
	and reduces their answers to a single response with an agreement score.

	Candidates are ranked by weight, success rate, latency, and cost;
	responses are merged by a configurable consensus strategy.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ~/.quorum/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(strategiesCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func askCmd() *cobra.Command {
	var (
		strategyFlag string
		modelsFlag   string
		excludeFlag  string
		systemFlag   string
		minFlag      int
		maxFlag      int
		timeoutFlag  time.Duration
		retriesFlag  int
		offlineFlag  bool
		jsonFlag     bool
	)

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Route a prompt across providers and print the consensus answer",
		Long: `Sends the prompt to the best-ranked candidates concurrently and
	reduces their responses with the configured consensus strategy.

	Use --models to bypass ranking with an explicit candidate list
	(provider/model keys or aliases, comma separated). Use --offline to
	answer from the deterministic mock backend without credentials.

	When too few backends respond, failed candidates are excluded and the
	request is retried with exponential backoff (see --retries).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := args[0]

			logger, err := buildLogger()
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			core, err := buildCore(cfg, logger, offlineFlag)
			if err != nil {
				return err
			}
			defer core.shutdown()

			req := schema.RoutingRequest{
				Prompt:       prompt,
				SystemPrompt: systemFlag,
				MinResponses: minFlag,
				MaxResponses: maxFlag,
				Timeout:      timeoutFlag,
			}
			if strategyFlag != "" {
				strategy, err := schema.ParseStrategy(strategyFlag)
				if err != nil {
					return err
				}
				req.Strategy = strategy
			}
			if req.ExplicitModels, err = parseKeys(cfg, modelsFlag); err != nil {
				return err
			}
			if req.Exclude, err = parseKeys(cfg, excludeFlag); err != nil {
				return err
			}

			retries := retriesFlag
			if retries < 0 {
				retries = cfg.Retry.MaxRetries
			}

			result, err := routeWithRetry(cmd.Context(), core.router, req, cfg.Retry, retries, logger)
			if err != nil {
				return err
			}

			if jsonFlag {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Fprintf(os.Stderr, "strategy=%s agreement=%.2f confidence=%.2f responses=%d/%d\n",
				result.StrategyUsed, result.AgreementRatio, result.Confidence,
				len(result.IndividualResponses), len(result.ParticipatingModels))
			fmt.Println(result.FinalText)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategyFlag, "strategy", "", "consensus strategy (majority, weighted, unanimous, best_of_n, hybrid)")
	cmd.Flags().StringVar(&modelsFlag, "models", "", "explicit candidate keys or aliases, comma separated")
	cmd.Flags().StringVar(&excludeFlag, "exclude", "", "candidate keys or aliases to skip, comma separated")
	cmd.Flags().StringVar(&systemFlag, "system", "", "system prompt sent to every backend")
	cmd.Flags().IntVar(&minFlag, "min", 0, "minimum successful responses (0 uses config)")
	cmd.Flags().IntVar(&maxFlag, "max", 0, "maximum responses to collect (0 uses config)")
	cmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "per-request timeout (0 uses config)")
	cmd.Flags().IntVar(&retriesFlag, "retries", -1, "retry attempts with failed candidates excluded (-1 uses config)")
	cmd.Flags().BoolVar(&offlineFlag, "offline", false, "answer from the deterministic mock backend")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full consensus result as JSON")

	return cmd
}

// routeWithRetry re-invokes Route after an insufficient-responses
// failure, excluding the candidates that failed on the previous attempt.
// Retry policy lives here, never inside the router.
func routeWithRetry(
	ctx context.Context,
	rt *router.Router,
	req schema.RoutingRequest,
	retry config.RetryConfig,
	maxRetries int,
	logger *zap.Logger,
) (*schema.ConsensusResult, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := rt.Route(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var rerr *router.RouteError
		if !errors.As(err, &rerr) || rerr.Kind != router.ErrInsufficientResponses {
			return nil, err
		}
		if attempt == maxRetries || len(rerr.Failures) == 0 {
			return nil, err
		}

		for _, f := range rerr.Failures {
			req.Exclude = append(req.Exclude, f.Key)
		}
		backoff := computeBackoff(retry.BaseBackoffMs, retry.MaxBackoffMs, attempt)
		logger.Info("retrying with failed candidates excluded",
			zap.Int("attempt", attempt+1),
			zap.Int("excluded", len(req.Exclude)),
			zap.Duration("backoff", backoff))
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func computeBackoff(baseMs, maxMs, attempt int) time.Duration {
	backoff := time.Duration(baseMs) * time.Millisecond
	limit := time.Duration(maxMs) * time.Millisecond
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= limit {
			backoff = limit
			break
		}
	}
	if backoff > limit {
		backoff = limit
	}
	// Up to 25% jitter keeps concurrent retries from synchronizing.
	return backoff + time.Duration(rand.Int63n(int64(backoff)/4+1))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func modelsCmd() *cobra.Command {
	var resolveFlag bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List configured candidates with live statistics",
		Long: `Lists every configured candidate with its weight, credential
	status, and the recorded performance feeding the selection score.

	Use --resolve to show aliases and the keys they resolve to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger()
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if resolveFlag {
				return printAliases(cfg)
			}

			reg, err := buildRegistry(cfg, nil, logger)
			if err != nil {
				return err
			}
			if st := restoreStats(reg, cfg, logger); st != nil {
				defer st.Close()
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tWEIGHT\tSTATUS\tSUCCESS\tLATENCY\tCOST/TOK\tSCORE")
			for _, cand := range reg.List() {
				status := "ready"
				switch {
				case !cfg.HasProvider(cand.Provider):
					status = "no key"
				case !cand.Available:
					status = "cooling"
				}
				latency := "-"
				if cand.AvgLatencyMs > 0 {
					latency = fmt.Sprintf("%.0fms", cand.AvgLatencyMs)
				}
				cost := "-"
				if cand.CostPerToken > 0 {
					cost = fmt.Sprintf("$%.6f", cand.CostPerToken)
				}
				fmt.Fprintf(w, "%s\t%.1f\t%s\t%.0f%%\t%s\t%s\t%.3f\n",
					cand.Key(), cand.Weight, status, cand.SuccessRate*100, latency, cost, registry.Score(cand))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&resolveFlag, "resolve", false, "show aliases and what they resolve to")

	return cmd
}

func printAliases(cfg *config.Config) error {
	names := cfg.ListAliases()
	if len(names) == 0 {
		fmt.Println("No model aliases configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tKEY")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, cfg.ResolveModel(name))
	}
	return w.Flush()
}

func strategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List consensus strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			descriptions := map[schema.ConsensusStrategy]string{
				schema.StrategyMajority:  "groups similar responses; the largest group's best answer wins",
				schema.StrategyWeighted:  "ranks responses by confidence, latency, and cost",
				schema.StrategyUnanimous: "requires every response to agree; falls back to majority",
				schema.StrategyBestOfN:   "weighted ranking with a preference for mid-length answers",
				schema.StrategyHybrid:    "majority when agreement is high, weighted otherwise",
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STRATEGY\tDESCRIPTION")
			for _, strategy := range schema.Strategies() {
				name := string(strategy)
				if name == cfg.Routing.Strategy {
					name += " (default)"
				}
				fmt.Fprintf(w, "%s\t%s\n", name, descriptions[strategy])
			}
			return w.Flush()
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show persisted candidate performance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			st, err := store.Open(cfg.StorePath)
			if err != nil {
				return fmt.Errorf("failed to open stats store: %w", err)
			}
			defer st.Close()

			rows, err := st.Load()
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No recorded stats yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSAMPLES\tSUCCESS\tAVG LATENCY\tAVAILABLE\tUPDATED")
			for _, row := range rows {
				success := "-"
				if len(row.Window) > 0 {
					wins := 0
					for _, ok := range row.Window {
						if ok {
							wins++
						}
					}
					success = fmt.Sprintf("%.0f%%", float64(wins)/float64(len(row.Window))*100)
				}
				latency := "-"
				if row.HasLatency {
					latency = fmt.Sprintf("%.0fms", row.AvgLatencyMs)
				}
				available := "no"
				if row.Available {
					available = "yes"
				}
				updated := "-"
				if !row.UpdatedAt.IsZero() {
					updated = row.UpdatedAt.Local().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
					row.Key, len(row.Window), success, latency, available, updated)
			}
			return w.Flush()
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("Configuration is valid: %d candidates, strategy %s.\n",
				len(cfg.Candidates), cfg.Routing.Strategy)
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFrom(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildLogger() (*zap.Logger, error) {
	if verboseFlag {
		return zap.NewDevelopment()
	}
	// Quiet by default so stdout stays clean for the answer.
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// core bundles the composed routing stack for one CLI invocation.
type core struct {
	cfg    *config.Config
	reg    *registry.Registry
	router *router.Router
	store  *store.Store
	logger *zap.Logger
}

func buildCore(cfg *config.Config, logger *zap.Logger, offline bool) (*core, error) {
	clients, err := createBackends(cfg, offline)
	if err != nil {
		return nil, err
	}

	reg, err := buildRegistry(cfg, clients, logger)
	if err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		return nil, fmt.Errorf("no dispatchable candidates: set provider API keys or pass --offline")
	}
	st := restoreStats(reg, cfg, logger)

	m := metrics.New(nil)
	dispatcher := dispatch.New(clients, reg,
		dispatch.WithLogger(logger),
		dispatch.WithObserver(m))
	engine := consensus.New(
		consensus.WithLogger(logger),
		consensus.WithMajorityThreshold(cfg.Consensus.MajorityThreshold),
		consensus.WithUnanimousThreshold(cfg.Consensus.UnanimousThreshold),
		consensus.WithHybridCutoff(cfg.Consensus.HybridCutoff))
	rt := router.New(reg, dispatcher, engine,
		router.WithLogger(logger),
		router.WithObserver(m),
		router.WithDefaults(router.Defaults{
			Strategy:     schema.ConsensusStrategy(cfg.Routing.Strategy),
			MinResponses: cfg.Routing.MinResponses,
			MaxResponses: cfg.Routing.MaxResponses,
			Timeout:      cfg.Timeout(),
		}))

	return &core{cfg: cfg, reg: reg, router: rt, store: st, logger: logger}, nil
}

// shutdown persists the statistics gathered during this invocation so
// the next run's scoring reflects them.
func (c *core) shutdown() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.reg.ExportStats()); err != nil {
		c.logger.Warn("stats save failed", zap.Error(err))
	}
	if err := c.store.Close(); err != nil {
		c.logger.Warn("stats store close failed", zap.Error(err))
	}
}

// createBackends builds one client per credentialed provider. Offline
// mode answers every provider from the deterministic mock backend.
func createBackends(cfg *config.Config, offline bool) (map[schema.Provider]backend.Client, error) {
	clients := make(map[schema.Provider]backend.Client)

	if offline {
		mock := backend.NewMockClient()
		for _, p := range schema.KnownProviders() {
			clients[p] = mock
		}
		return clients, nil
	}

	if cfg.HasProvider(schema.ProviderAnthropic) {
		c, err := backend.NewAnthropicClient(cfg.APIKey(schema.ProviderAnthropic))
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic client: %w", err)
		}
		clients[schema.ProviderAnthropic] = c
	}

	if cfg.HasProvider(schema.ProviderOpenAI) {
		c, err := backend.NewOpenAIClient(cfg.APIKey(schema.ProviderOpenAI))
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		clients[schema.ProviderOpenAI] = c
	}

	if cfg.HasProvider(schema.ProviderGoogle) {
		c, err := backend.NewGoogleClient(cfg.APIKey(schema.ProviderGoogle))
		if err != nil {
			return nil, fmt.Errorf("failed to create google client: %w", err)
		}
		clients[schema.ProviderGoogle] = c
	}

	if cfg.HasProvider(schema.ProviderDeepSeek) {
		c, err := backend.NewDeepSeekClient(cfg.APIKey(schema.ProviderDeepSeek))
		if err != nil {
			return nil, fmt.Errorf("failed to create deepseek client: %w", err)
		}
		clients[schema.ProviderDeepSeek] = c
	}

	clients[schema.ProviderMock] = backend.NewMockClient()

	return clients, nil
}

// buildRegistry registers the configured candidates. With a non-nil
// client map only dispatchable candidates are registered; listings pass
// nil to include candidates whose provider has no credential yet.
func buildRegistry(cfg *config.Config, clients map[schema.Provider]backend.Client, logger *zap.Logger) (*registry.Registry, error) {
	opts := []registry.Option{registry.WithLogger(logger)}
	if cfg.Breaker.Enabled {
		opts = append(opts, registry.WithBreaker(registry.BreakerConfig{
			DisableAfter: cfg.Breaker.DisableAfter,
			ReviveAfter:  time.Duration(cfg.Breaker.ReviveAfterMs) * time.Millisecond,
		}))
	}

	reg := registry.New(opts...)
	for _, cc := range cfg.Candidates {
		if cc.Disabled {
			continue
		}
		provider, err := schema.ParseProvider(cc.Provider)
		if err != nil {
			return nil, fmt.Errorf("candidate %s/%s: %w", cc.Provider, cc.Model, err)
		}
		if clients != nil {
			if _, ok := clients[provider]; !ok {
				continue
			}
		}
		reg.Register(registry.Candidate{
			Provider:     provider,
			Model:        cc.Model,
			Weight:       cc.Weight,
			MaxTokens:    cc.MaxTokens,
			Temperature:  cc.Temperature,
			CostPerToken: cfg.Pricing.CostPerToken(cc.Provider, cc.Model),
			Available:    true,
		})
	}
	return reg, nil
}

// restoreStats seeds the registry from the stats store. Store problems
// degrade to fresh statistics rather than failing the command.
func restoreStats(reg *registry.Registry, cfg *config.Config, logger *zap.Logger) *store.Store {
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		logger.Warn("stats store unavailable",
			zap.String("path", cfg.StorePath),
			zap.Error(err))
		return nil
	}
	saved, err := st.Load()
	if err != nil {
		logger.Warn("stats load failed", zap.Error(err))
		return st
	}
	if len(saved) > 0 {
		reg.RestoreStats(saved)
	}
	return st
}

// parseKeys resolves a comma-separated list of aliases or candidate
// keys into schema keys.
func parseKeys(cfg *config.Config, csv string) ([]schema.Key, error) {
	if csv == "" {
		return nil, nil
	}
	var keys []schema.Key
	for _, part := range strings.Split(csv, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		resolved := cfg.ResolveModel(name)
		if !strings.Contains(resolved, "/") {
			return nil, fmt.Errorf("unknown model %q: use provider/model or an alias (see 'quorum models --resolve')", name)
		}
		keys = append(keys, schema.Key(resolved))
	}
	return keys, nil
}
