package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/chedeval/progeval/internal/catalog"
	"github.com/chedeval/progeval/internal/catalog/repository"
	catalogservice "github.com/chedeval/progeval/internal/catalog/service"
	"github.com/chedeval/progeval/internal/checklist"
	"github.com/chedeval/progeval/internal/config"
	"github.com/chedeval/progeval/internal/database"
	"github.com/chedeval/progeval/internal/dbguard"
	"github.com/chedeval/progeval/internal/evaluation"
	evalrepo "github.com/chedeval/progeval/internal/evaluation/repository"
	"github.com/chedeval/progeval/internal/reviewers"
)

const commandTimeout = 2 * time.Minute

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "evalctl",
		Short:         "Administer the program evaluation service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newCompileCmd(),
		newRefNoCmd(),
		newReviewerCmd(),
	)
	return root
}

// openDB opens the configured relational store and migrates its schema.
func openDB(ctx context.Context) (*gorm.DB, *repository.GormRepo, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.OpenRelational(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	catalogRepo := repository.NewGormRepo(db)
	if err := migrateDB(ctx, db, catalogRepo, evalrepo.NewGormRepo(db)); err != nil {
		return nil, nil, err
	}
	return db, catalogRepo, nil
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// migrateDB runs each migration in turn and closes db when one fails.
func migrateDB(ctx context.Context, db *gorm.DB, ms ...migrator) error {
	for _, m := range ms {
		if err := m.Migrate(ctx); err != nil {
			closeDB(db)
			return err
		}
	}
	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the catalog and evaluation tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			db, _, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB(db)
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var (
		file    string
		ifEmpty bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert CMOs, sections, requirements and programs from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			db, repo, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB(db)

			svc := catalogservice.New(repo, dbguard.New(&database.Pool{DB: db}, 0), catalogservice.Options{})
			if ifEmpty {
				seeded, err := svc.SeedIfEmpty(ctx, file)
				if err != nil {
					return err
				}
				if !seeded {
					fmt.Fprintln(cmd.OutOrStdout(), "catalog already populated, nothing to do")
				}
				return nil
			}
			rejected, err := svc.ImportFile(ctx, file)
			if err != nil {
				return err
			}
			for _, r := range rejected {
				fmt.Fprintf(cmd.ErrOrStderr(), "rejected: %v\n", r)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d rows rejected)\n", file, len(rejected))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (YAML)")
	cmd.Flags().BoolVar(&ifEmpty, "if-empty", false, "only seed when the catalog has no rows")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newCompileCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "compile CMO_ID...",
		Short: "Print the merged checklist for the given CMOs as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(cmd.Context(), file)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(checklist.Compile(cat, args))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the catalog from this seed file instead of the database")
	return cmd
}

func loadCatalog(ctx context.Context, file string) (*catalog.Catalog, error) {
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		rows, err := catalog.ParseSeed(f)
		if err != nil {
			return nil, err
		}
		c, _ := catalog.Build(rows)
		return c, nil
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	db, repo, err := openDB(ctx)
	if err != nil {
		return nil, err
	}
	defer closeDB(db)
	return catalogservice.New(repo, dbguard.New(&database.Pool{DB: db}, 0), catalogservice.Options{}).Snapshot(ctx)
}

func newRefNoCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "refno",
		Short: "Generate evaluation reference numbers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return errors.New("--count must be at least 1")
			}
			for i := 0; i < count; i++ {
				ref, err := evaluation.NewRefNo()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ref)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "how many to generate")
	return cmd
}

func newReviewerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviewer",
		Short: "Manage CHED reviewer accounts",
	}
	var email, name, password string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a reviewer with a password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.MongoDB.URI == "" {
				return errors.New("MONGODB_URI is required to store reviewers")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if err != nil {
				return err
			}
			defer func() { _ = client.Disconnect(context.Background()) }()
			repo, err := reviewers.NewMongoRepository(ctx, client.Database(cfg.MongoDB.Database).Collection("reviewers"))
			if err != nil {
				return err
			}
			rev, err := reviewers.NewService(repo).Add(ctx, email, name, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reviewer %s (%s) saved\n", rev.Email, rev.ID)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "reviewer email")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&password, "password", "", "initial password")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("password")
	cmd.AddCommand(add)
	return cmd
}
