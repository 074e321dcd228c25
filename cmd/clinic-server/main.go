package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ayurveda/clinic/internal/config"
	"github.com/ayurveda/clinic/internal/domain/sandbox"
	"github.com/ayurveda/clinic/internal/platform/db"
	"github.com/ayurveda/clinic/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Ayurvedic clinic API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(remindersCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run Postgres migrations",
	}

	withMigrator := func(fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.StoreBackend != "postgres" {
			return fmt.Errorf("migrations only apply to the postgres backend (STORE_BACKEND=%s)", cfg.StoreBackend)
		}
		ctx := context.Background()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, migrations.FS))
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				fmt.Printf("Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("Migration status for schema: %s\n", schema)
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			ctx := context.Background()
			st, err := openStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			u, err := newIdentityService(st, nil).EnsureAdmin(ctx, name, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Created admin %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	createAdmin.Flags().String("name", "Administrator", "Display name")
	createAdmin.Flags().String("email", "", "Login email")
	createAdmin.Flags().String("password", "", "Initial password")
	cmd.AddCommand(createAdmin)

	return cmd
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Appointment and therapy reminders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run-once",
		Short: "Send the reminders that are due now and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.reminders.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Sent %d appointment and %d session reminder(s), %d failed.\n",
				res.Appointments, res.Sessions, res.Failed)
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the store with reproducible demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.Doctors, _ = cmd.Flags().GetInt("doctors")
			seedCfg.Therapists, _ = cmd.Flags().GetInt("therapists")
			seedCfg.Patients, _ = cmd.Flags().GetInt("patients")
			seedCfg.Seed, _ = cmd.Flags().GetInt64("seed")
			seedCfg.Password, _ = cmd.Flags().GetString("password")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.IsDev() && !force {
				return fmt.Errorf("refusing to seed demo data outside development (ENV=%s); pass --force to override", cfg.Env)
			}
			logger := newLogger(cfg.Env)
			ctx := context.Background()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := sandbox.NewSeeder(a.identity, a.scheduling).Seed(ctx, seedCfg)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d doctor(s), %d therapist(s), %d patient(s), %d appointment(s), %d session(s).\n",
				res.Doctors, res.Therapists, res.Patients, res.Appointments, res.Sessions)
			fmt.Printf("Demo accounts use the password %q.\n", seedCfg.Password)
			return nil
		},
	}
	def := sandbox.DefaultSeedConfig()
	cmd.Flags().Int("doctors", def.Doctors, "Doctors to create")
	cmd.Flags().Int("therapists", def.Therapists, "Therapists to create")
	cmd.Flags().Int("patients", def.Patients, "Patients to create, each with one booking")
	cmd.Flags().Int64("seed", def.Seed, "Random seed; also part of every demo email")
	cmd.Flags().String("password", def.Password, "Password for every demo account")
	cmd.Flags().Bool("force", false, "Allow seeding outside development")
	return cmd
}
