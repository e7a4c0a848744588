package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/chils-store/internal/domain/product"
	"github.com/xenking/chils-store/internal/domain/user"
	"github.com/xenking/chils-store/internal/repository"
)

type options struct {
	databaseURL   string
	menuFile      string
	adminEmail    string
	adminPassword string
	demoEmail     string
	demoPassword  string
	bcryptCost    int
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.menuFile, "menu-file", "", "path to a products JSON file, optionally gzipped (.gz); built-in menu when empty")
	flag.StringVar(&opts.adminEmail, "admin-email", "admin@chils.com", "admin account email")
	flag.StringVar(&opts.adminPassword, "admin-password", "", "admin account password (or CHILS_SEED_ADMIN_PASSWORD env)")
	flag.StringVar(&opts.demoEmail, "demo-email", "customer@chils.com", "demo customer email")
	flag.StringVar(&opts.demoPassword, "demo-password", "", "demo customer password (or CHILS_SEED_DEMO_PASSWORD env); skipped when empty")
	flag.IntVar(&opts.bcryptCost, "bcrypt-cost", 12, "bcrypt work factor")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	opts.fromEnv()
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.adminPassword == "" {
		lg.Fatal("Admin password is required: set --admin-password or CHILS_SEED_ADMIN_PASSWORD")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func (o *options) fromEnv() {
	if o.databaseURL == "" {
		o.databaseURL = os.Getenv("DATABASE_URL")
	}
	if o.adminPassword == "" {
		o.adminPassword = os.Getenv("CHILS_SEED_ADMIN_PASSWORD")
	}
	if o.demoPassword == "" {
		o.demoPassword = os.Getenv("CHILS_SEED_DEMO_PASSWORD")
	}
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	menu := defaultMenu
	if opts.menuFile != "" {
		lg.Info("Reading menu file", zap.String("path", opts.menuFile))
		var err error
		if menu, err = loadMenu(opts.menuFile); err != nil {
			return errors.Wrap(err, "load menu")
		}
	}

	lg.Info("Connecting to database")
	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := repository.NewStore(pool)
	users := user.NewService(store.Users(), user.NewBcryptHasher(max(opts.bcryptCost, bcrypt.MinCost)))
	products := product.NewService(store.Products())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := seedUser(ctx, lg, users, "Admin User", opts.adminEmail, opts.adminPassword, user.RoleAdmin); err != nil {
			return errors.Wrap(err, "seed admin")
		}
		if opts.demoPassword == "" {
			return nil
		}
		return errors.Wrap(
			seedUser(ctx, lg, users, "Demo Customer", opts.demoEmail, opts.demoPassword, user.RoleCustomer),
			"seed demo customer",
		)
	})
	g.Go(func() error {
		return errors.Wrap(seedProducts(ctx, lg, products, menu), "seed products")
	})
	return g.Wait()
}

type userCreator interface {
	Create(ctx context.Context, req user.RegisterRequest, role user.Role) (*user.User, error)
}

// seedUser creates the account unless the email is already registered.
func seedUser(ctx context.Context, lg *zap.Logger, users userCreator, name, email, password string, role user.Role) error {
	u, err := users.Create(ctx, user.RegisterRequest{Name: name, Email: email, Password: password}, role)
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		lg.Info("User exists, skipping", zap.String("email", email))
		return nil
	case err != nil:
		return err
	}
	lg.Info("Created user", zap.String("email", u.Email), zap.String("role", string(role)))
	return nil
}

type catalog interface {
	List(ctx context.Context) ([]product.Product, error)
	Create(ctx context.Context, in product.Input) (*product.Product, error)
}

// seedProducts adds menu items whose name is not in the catalog yet.
func seedProducts(ctx context.Context, lg *zap.Logger, products catalog, menu []product.Input) error {
	existing, err := products.List(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		have[p.Name] = struct{}{}
	}

	var created int
	for _, in := range menu {
		if _, ok := have[in.Name]; ok {
			lg.Debug("Product exists, skipping", zap.String("name", in.Name))
			continue
		}
		p, err := products.Create(ctx, in)
		if err != nil {
			return errors.Wrapf(err, "create product %q", in.Name)
		}
		have[p.Name] = struct{}{}
		created++
		lg.Info("Created product", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	lg.Info("Products seeded", zap.Int("created", created), zap.Int("total", len(have)))
	return nil
}
