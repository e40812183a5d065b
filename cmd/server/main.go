// Motoshop - work orders, payments and stock for motorcycle repair shops
package main

import (
	"context"
	"os"
	"runtime"

	"motoshop/internal/config"
	"motoshop/internal/domain"
	"motoshop/internal/maintenance"
	"motoshop/internal/repository/sqlite"
	"motoshop/internal/server"
	"motoshop/internal/settlement"
	"motoshop/internal/templates"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "motoshop",
		Usage: "work orders, payments and stock for motorcycle repair shops",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.json",
				Usage:   "path to the JSON config file",
				EnvVars: []string{"MOTOSHOP_CONFIG"},
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or upgrade the database schema and exit",
				Action: migrate,
			},
			{
				Name:  "create-user",
				Usage: "add a staff account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"MOTOSHOP_USER_PASSWORD"}},
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "role", Value: domain.RoleCashier, Usage: "admin, cashier or technician"},
					&cli.StringFlag{Name: "branch", Value: defaultBranch},
				},
				Action: createUser,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("motoshop stopped")
	}
}

const defaultBranch = "CN1"

// setup loads the config and configures the global logger
func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, errors.Wrap(err, "load configuration")
	}

	if cfg.Debug {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	log.SetLevel(cfg.LogLevel())
	return cfg, nil
}

func openDB(cfg *config.Config) (*sqlite.DB, error) {
	db, err := sqlite.New(cfg.GetDatabasePath())
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return db, nil
}

func serve(c *cli.Context) error {
	// Shared hosting: one CPU is plenty for a single shop
	runtime.GOMAXPROCS(1)

	cfg, err := setup(c)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"business": cfg.Business.Name, "debug": cfg.Debug}).Info("starting")

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repos := sqlite.NewRepositories(db)
	if err := createDefaultAdmin(c.Context, repos.Users); err != nil {
		log.WithError(err).Warn("could not create default admin")
	}

	engine := maintenance.NewEngine(cfg.MaintenanceRules())
	logger := log.StandardLogger()
	svc := settlement.NewService(repos, engine, logger)

	tmpl, err := templates.NewManager(cfg.Templates.Dir, cfg.Debug, cfg.Location())
	if err != nil {
		return errors.Wrap(err, "load templates")
	}

	return server.New(cfg, repos, svc, tmpl, logger).Run()
}

func migrate(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log.WithField("path", cfg.GetDatabasePath()).Info("database is up to date")
	return nil
}

func createUser(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	role := c.String("role")
	if !domain.IsRole(role) {
		return errors.Errorf("unknown role %q", role)
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	hash, err := sqlite.HashPassword(c.String("password"))
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	user := &domain.User{
		Email:        c.String("email"),
		PasswordHash: hash,
		Name:         c.String("name"),
		Role:         role,
		BranchID:     c.String("branch"),
	}
	if err := sqlite.NewUserRepo(db).Create(c.Context, user); err != nil {
		return errors.Wrap(err, "create user")
	}
	log.WithFields(log.Fields{"email": user.Email, "role": user.Role, "branch": user.BranchID}).Info("user created")
	return nil
}

type userStore interface {
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, user *domain.User) error
}

// createDefaultAdmin creates an admin account when the database has no users
func createDefaultAdmin(ctx context.Context, users userStore) error {
	count, err := users.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	// Password: admin123 (change in production)
	hash, err := sqlite.HashPassword("admin123")
	if err != nil {
		return err
	}
	admin := &domain.User{
		Email:        "admin@motoshop.local",
		PasswordHash: hash,
		Name:         "Quản trị",
		Role:         domain.RoleAdmin,
		BranchID:     defaultBranch,
	}
	if err := users.Create(ctx, admin); err != nil {
		return err
	}

	log.WithField("email", admin.Email).Warn("default admin created with password admin123, change it")
	return nil
}
