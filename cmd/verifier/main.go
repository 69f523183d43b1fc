package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"verifier/internal/config"
	"verifier/internal/logsink"
)

func main() {
	var addr string
	var help bool

	flag.StringVar(&addr, "addr", defaultAddr(), "Address to bind the HTTP server")
	flag.BoolVar(&help, "help", false, "Show help message")
	flag.BoolVar(&help, "h", false, "Show help message")
	flag.Parse()

	if help {
		showHelp()
		return
	}

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	ctx := context.Background()
	shutdownTelemetry := setupTelemetry(ctx)
	defer shutdownTelemetry()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logsinkCfg := logsink.ConfigFromEnv()

	if err := runServer(ctx, cfg, logsinkCfg, addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func defaultAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":10000"
}

func showHelp() {
	fmt.Println("Verifier - Discord verification portal")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  verifier [-addr :10000]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -addr    Address to bind the HTTP server (default $PORT or :10000)")
	fmt.Println("  -h       Show this help message")
	fmt.Println()
	fmt.Println("Configuration comes from the environment (or a local .env file):")
	fmt.Println("  DISCORD_CLIENT_ID, DISCORD_CLIENT_SECRET, DISCORD_BOT_TOKEN,")
	fmt.Println("  DISCORD_GUILD_ID, DISCORD_ROLE_ID, OWNER_ID, BASE_URL, ...")
}
