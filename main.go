package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/discoursa/discoursa/internal/api"
	"github.com/discoursa/discoursa/internal/auth"
	"github.com/discoursa/discoursa/internal/bot"
	"github.com/discoursa/discoursa/internal/config"
	"github.com/discoursa/discoursa/internal/db"
	"github.com/discoursa/discoursa/internal/llm"
	"github.com/discoursa/discoursa/internal/mcp"
	"github.com/discoursa/discoursa/internal/platform"
	"github.com/discoursa/discoursa/internal/secrets"
	"github.com/discoursa/discoursa/pkg/audit"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "poll":
		cmdPoll(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "genkey":
		cmdGenkey()
	case "version":
		fmt.Printf("discoursa %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`discoursa — social-media debate bot

Usage:
  discoursa serve [--config config.toml] [--addr :8080]
  discoursa poll  [--config config.toml]
  discoursa mcp   [--config config.toml]
  discoursa genkey
  discoursa version
  discoursa help

Commands:
  serve     Start the HTTP server and the mention polling loop
  poll      Run a single polling cycle and exit
  mcp       Serve debate inspection tools over MCP (stdio)
  genkey    Print a fresh credential encryption key
  version   Print version
  help      Show this help`)
}

func loadConfig(args []string) (*config.Config, string) {
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	addr := fs.String("addr", "", "listen address (overrides config)")
	fs.Parse(args[1:])

	if err := godotenv.Load(); err == nil {
		log.Printf("loaded environment from .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	return cfg, *configPath
}

func cmdServe(args []string) {
	cfg, _ := loadConfig(append([]string{"serve"}, args...))

	b := buildBot(cfg)
	defer b.database.Close()
	defer b.auditLog.Close()

	a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin)
	apiHandler := api.New(b.database, a, b.keeper, cfg.Auth.AdminToken, cfg.Platform.BotHandle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		interval := time.Duration(cfg.Bot.PollIntervalSec) * time.Second
		errc <- b.poller.Run(ctx, interval)
	}()
	go func() {
		log.Printf("discoursa %s listening on %s", version, cfg.Server.Addr)
		log.Printf("database: %s", cfg.Database.Path)
		errc <- http.ListenAndServe(cfg.Server.Addr, apiHandler.Router())
	}()

	if err := <-errc; err != nil && err != context.Canceled {
		log.Fatalf("fatal: %v", err)
	}
}

func cmdPoll(args []string) {
	cfg, _ := loadConfig(append([]string{"poll"}, args...))

	b := buildBot(cfg)
	defer b.database.Close()
	defer b.auditLog.Close()

	if err := b.poller.Poll(context.Background()); err != nil {
		log.Fatalf("poll: %v", err)
	}
}

func cmdMCP(args []string) {
	cfg, _ := loadConfig(append([]string{"mcp"}, args...))

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	srv := mcp.NewServer(database, cfg.Platform.BotHandle)
	if err := mcp.Serve(srv); err != nil {
		log.Fatalf("mcp: %v", err)
	}
}

func cmdGenkey() {
	key, err := secrets.GenerateKey()
	if err != nil {
		log.Fatalf("generating key: %v", err)
	}
	fmt.Println(key)
}

type botDeps struct {
	database *db.DB
	auditLog *audit.SQLiteLogger
	keeper   *secrets.Keeper
	poller   *bot.Poller
}

func buildBot(cfg *config.Config) *botDeps {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}

	auditLog := audit.NewSQLiteLogger(database.DB)
	if err := auditLog.Init(); err != nil {
		log.Fatalf("initializing audit log: %v", err)
	}

	keeper := mustKeeper(cfg)
	client := platform.NewXClient(cfg.Platform.BaseURL, cfg.Platform.BearerToken, cfg.Platform.BotUserID)
	debater := llm.NewDebater(llm.NewFromConfig(cfg.LLM))
	limiter := bot.NewLimiter(database, cfg.Bot.RateLimit, time.Duration(cfg.Bot.RateWindowMin)*time.Minute)

	orch := bot.NewOrchestrator(bot.OrchestratorConfig{
		Store:         database,
		Platform:      client,
		Generator:     debater,
		Keeper:        keeper,
		Limiter:       limiter,
		Audit:         auditLog,
		SelfID:        cfg.Platform.BotUserID,
		TriggerPhrase: cfg.Bot.TriggerPhrase,
		LinkURL:       cfg.Bot.LinkURL,
	})
	poller := bot.NewPoller(database, client, orch, auditLog, cfg.Platform.PageSize, cfg.Platform.BotUserID)

	return &botDeps{database: database, auditLog: auditLog, keeper: keeper, poller: poller}
}

func mustKeeper(cfg *config.Config) *secrets.Keeper {
	if cfg.Encryption.Key == "" {
		log.Fatalf("no encryption key configured — run: discoursa genkey, then set DISCOURSA_ENCRYPTION_KEY")
	}
	keeper, err := secrets.NewKeeper(cfg.Encryption.Key)
	if err != nil {
		log.Fatalf("loading encryption key: %v", err)
	}
	return keeper
}
