package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/likewise/internal/profile"
	"github.com/hrygo/likewise/plugin/ai"
	"github.com/hrygo/likewise/server"
	"github.com/hrygo/likewise/server/runner/embedding"
	"github.com/hrygo/likewise/server/service/recommend"
	"github.com/hrygo/likewise/store"
	"github.com/hrygo/likewise/store/db"
)

const (
	embeddingCacheSize = 2048
	embeddingCacheTTL  = 6 * time.Hour
	rerankHTTPTimeout  = 10 * time.Second
)

var version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "likewise",
		Short: `Hybrid "more like this" recommendations for movies, series, anime and books.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	recommendCmd = &cobra.Command{
		Use:   "recommend [query]",
		Short: "Print recommendations for a query as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &recommend.RecommendationRequest{
				Mode:   recommend.Mode(viper.GetString("request-mode")),
				Limit:  viper.GetInt("limit"),
				Locale: viper.GetString("locale"),
			}
			if len(args) == 1 {
				req.Query = args[0]
			}
			itemType, err := store.ParseItemType(viper.GetString("type"))
			if err != nil {
				return err
			}
			req.Type = itemType
			if cmd.Flags().Changed("year-min") {
				v := viper.GetInt("year-min")
				req.YearMin = &v
			}
			if cmd.Flags().Changed("year-max") {
				v := viper.GetInt("year-max")
				req.YearMax = &v
			}
			if cmd.Flags().Changed("pop-min") {
				v := viper.GetFloat64("pop-min")
				req.PopMin = &v
			}
			return runRecommend(cmd.Context(), req)
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "postgres")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("driver", "postgres", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	serveCmd.Flags().String("addr", "", "address of server")
	serveCmd.Flags().Int("port", 8081, "port of server")
	serveCmd.Flags().Bool("backfill", true, "embed catalog items that have no stored vector")

	recommendCmd.Flags().String("type", "", "restrict to movie, tv, anime or book")
	recommendCmd.Flags().String("query-mode", "", `"search" (default) or "random"`)
	recommendCmd.Flags().Int("year-min", 0, "earliest release year")
	recommendCmd.Flags().Int("year-max", 0, "latest release year")
	recommendCmd.Flags().Float64("pop-min", 0, "minimum popularity (0-100)")
	recommendCmd.Flags().Int("limit", recommend.DefaultLimit, "number of results (1-100)")
	recommendCmd.Flags().String("locale", "", "locale hint for reranking")

	for _, key := range []string{"mode", "driver", "dsn", "debug"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}
	for _, key := range []string{"addr", "port", "backfill"} {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(key)); err != nil {
			panic(err)
		}
	}
	// "mode" is taken by the server mode; the request mode gets its own flag.
	if err := viper.BindPFlag("request-mode", recommendCmd.Flags().Lookup("query-mode")); err != nil {
		panic(err)
	}
	for _, key := range []string{"type", "year-min", "year-max", "pop-min", "limit", "locale"} {
		if err := viper.BindPFlag(key, recommendCmd.Flags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("likewise")
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, recommendCmd)
}

func newProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		DSN:     viper.GetString("dsn"),
		Driver:  viper.GetString("driver"),
		Version: version,
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if viper.GetBool("debug") {
		level = slog.LevelDebug
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if p.IsDev() {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
	return p, nil
}

// components is the process-wide wiring shared by both sub-commands.
type components struct {
	store    *store.Store
	embedder ai.EmbeddingService
	service  *recommend.Service
}

// newComponents wires the store, embeddings and reranker chain into the
// orchestrator.
func newComponents(p *profile.Profile) (*components, error) {
	cfg := ai.NewConfigFromProfile(p)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	storeInstance := store.New(dbDriver, p)

	embedder := ai.NewCachedEmbeddingService(
		ai.NewLazyEmbeddingService(&cfg.Embedding),
		cfg.Embedding.Model,
		embeddingCacheSize,
		embeddingCacheTTL,
	)
	chain := ai.NewRerankerChain(&cfg.Reranker, &http.Client{Timeout: rerankHTTPTimeout})

	svc := recommend.NewService(storeInstance, embedder,
		recommend.WithRerankers(chain...),
		recommend.WithLogger(slog.Default()),
	)
	return &components{
		store:    storeInstance,
		embedder: embedder,
		service:  svc,
	}, nil
}

func runServe(ctx context.Context) error {
	p, err := newProfile()
	if err != nil {
		return err
	}
	app, err := newComponents(p)
	if err != nil {
		return err
	}
	defer app.store.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := app.store.Migrate(ctx); err != nil {
		slog.Error("failed to migrate", "error", err)
		return err
	}
	if viper.GetBool("backfill") {
		go embedding.NewRunner(app.store, app.embedder).Run(ctx)
	}

	s, err := server.NewServer(ctx, p, app.service)
	if err != nil {
		return err
	}

	c := make(chan os.Signal, 1)
	// Trigger graceful shutdown on SIGINT or SIGTERM.
	// The default signal sent by the `kill` command is SIGTERM,
	// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	if err := s.Start(ctx); err != nil {
		return err
	}
	slog.Info("likewise is up", "mode", p.Mode, "addr", p.Addr, "port", p.Port, "driver", p.Driver)

	<-c
	s.Shutdown(ctx)
	return nil
}

func runRecommend(ctx context.Context, req *recommend.RecommendationRequest) error {
	p, err := newProfile()
	if err != nil {
		return err
	}
	app, err := newComponents(p)
	if err != nil {
		return err
	}
	defer app.store.Close()

	result := app.service.BuildRecommendations(ctx, req)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
