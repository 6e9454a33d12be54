package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"goalbreaker/internal/config"
	"goalbreaker/internal/repository/postgres"
	"goalbreaker/internal/seed"
	serviceGoals "goalbreaker/internal/service/goals"
)

func main() {
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed goals")
	clearData := flag.Bool("clear-data", false, "Clear the user's goals (keep schema)")
	userID := flag.String("user", os.Getenv("SEED_USER_ID"), "user the sample goal belongs to")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && (*dropTables || *clearData) {
		log.Fatalf("BLOCKED: Cannot run destructive operations (--drop-tables or --clear-data) in production environment")
	}
	if *userID == "" && !*schemaOnly {
		log.Fatal("--user (or SEED_USER_ID) is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("Dropping all tables...")
		for _, table := range tables.All() {
			if _, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
				log.Fatalf("Failed to drop %s: %v", table, err)
			}
		}
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	goalRepo := postgres.NewGoalRepository(repoConfig)

	log.Println("Ensuring database schema is up to date...")
	if err := goalRepo.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	if *schemaOnly {
		log.Println("Schema setup complete (schema-only mode)")
		return
	}

	goalService := serviceGoals.NewService(goalRepo, postgres.NewTransactionManager(pool, logger), logger)

	if *clearData {
		if err := goalService.ClearHistory(ctx, *userID); err != nil {
			log.Fatalf("Failed to clear data: %v", err)
		}
		log.Printf("Cleared goals of %s", *userID)
		return
	}

	id, err := seed.NewGoalSeeder(goalService, logger).SeedSampleGoal(ctx, *userID)
	if err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}
	log.Printf("Seeding complete: goal %s (prefix: %q)", id, cfg.TablePrefix)
}
