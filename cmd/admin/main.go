package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"voicechat/backend/internal/config"
	"voicechat/backend/internal/logging"
	"voicechat/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  migrate                          create the sessions table (development databases)
  verify <session_id> [country]    mark a session as phone-verified
  revoke <session_id>              clear a session's verification
  stats                            print the last hub snapshot mirrored to Redis`

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	var db *gorm.DB
	if cfg.DatabaseDSN != "" {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect database")
		}
	}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
	}
	storageSvc := storage.NewStorageService(db, rdb)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch command := os.Args[1]; command {
	case "migrate":
		if err := storageSvc.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		fmt.Println("sessions table is up to date.")
	case "verify":
		if len(os.Args) < 3 || len(os.Args) > 4 {
			fmt.Println("Usage: admin verify <session_id> [country]")
			os.Exit(1)
		}
		country := ""
		if len(os.Args) == 4 {
			country = os.Args[3]
		}
		if err := storageSvc.VerifySession(ctx, os.Args[2], country); err != nil {
			log.Fatal().Err(err).Msg("error verifying session")
		}
		fmt.Printf("Session %s is verified.\n", os.Args[2])
	case "revoke":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin revoke <session_id>")
			os.Exit(1)
		}
		if err := storageSvc.RevokeSession(ctx, os.Args[2]); err != nil {
			log.Fatal().Err(err).Msg("error revoking session")
		}
		fmt.Printf("Session %s has been revoked.\n", os.Args[2])
	case "stats":
		stats, err := storageSvc.ReadStats(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("error reading stats")
		}
		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(out))
	default:
		fmt.Printf("Unknown command %q\n\n%s\n", command, usage)
		os.Exit(1)
	}
}
