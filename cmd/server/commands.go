package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"templeops/internal/auth"
	"templeops/internal/clock"
	"templeops/internal/config"
	"templeops/internal/model"
	"templeops/internal/repository"
	"templeops/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "templeops",
	Short: "Temple task and event lifecycle service",
	Long: `templeops turns signals from the freelancer, inventory, volunteer and
event modules into tasks, expands recurring templates and moves events
through their lifecycle on the clock.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := server.Init(config.Load())
		if err != nil {
			return fmt.Errorf("server initialization failed: %w", err)
		}
		s.Run()
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		db, err := repository.Open(cfg)
		if err != nil {
			return err
		}
		defer server.CloseDB(db)
		if cfg.StoreDriver == config.DriverPostgres {
			return repository.Migrate(db)
		}
		// sqlite is migrated by Open
		return nil
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduler pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		stores, db, err := server.OpenStores(cfg)
		if err != nil {
			return err
		}
		core, err := server.NewCore(cfg, stores, clock.Real{})
		if err != nil {
			return err
		}
		defer server.CloseDB(db)
		return core.Scheduler.Tick(cmd.Context())
	},
}

var actorCmd = &cobra.Command{
	Use:   "actor",
	Short: "Manage the actor directory",
}

var actorAddCmd = &cobra.Command{
	Use:   "add [id] [role] [name]",
	Short: "Register an actor",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		role := model.Role(args[1])
		if !role.Valid() {
			return fmt.Errorf("unknown role %q", args[1])
		}
		cfg := config.Load()
		stores, db, err := server.OpenStores(cfg)
		if err != nil {
			return err
		}
		defer server.CloseDB(db)

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.StoreTimeout)
		defer cancel()
		actor := &model.Actor{ID: args[0], Role: role, Name: args[2], CreatedAt: time.Now().UTC()}
		if err := stores.Actors.Create(ctx, actor); err != nil {
			return fmt.Errorf("create actor: %w", err)
		}
		log.Printf("✅ Actor %s (%s) registered\n", actor.ID, actor.Role)
		return nil
	},
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token [actor-id]",
	Short: "Issue a bearer token for an actor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		ttl := cfg.JWTExpiry
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		token, err := auth.GenerateToken(args[0], cfg.JWTSecret, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime, defaults to JWT_EXPIRY_HOURS")

	actorCmd.AddCommand(actorAddCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(actorCmd)
	rootCmd.AddCommand(tokenCmd)
}
