package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/auth"
	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("PORTAL_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "migrations", "Path to SQL migrations")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or PORTAL_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|seed]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "seed":
		err = seedAdmin(ctx, db)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// seedAdmin creates the initial admin account. The temporary password is
// printed once and must be changed at first login.
func seedAdmin(ctx context.Context, db *sql.DB) error {
	email := os.Getenv("PORTAL_SEED_ADMIN_EMAIL")
	if email == "" {
		email = "admin@portal.local"
	}

	password := os.Getenv("PORTAL_SEED_ADMIN_PASSWORD")
	generated := password == ""
	if generated {
		var err error
		password, err = auth.GenerateCompliant()
		if err != nil {
			return err
		}
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	store := auth.NewPGStore(db)
	user := &auth.User{
		Email:              email,
		Role:               auth.RoleAdmin,
		Status:             auth.StatusActive,
		PasswordHash:       hash,
		IsDefaultPassword:  true,
		MustChangePassword: true,
		PasswordChangedAt:  time.Now().UTC(),
	}
	if err := store.Users(ctx).Create(ctx, user); err != nil {
		return err
	}
	if generated {
		fmt.Printf("created admin %s with temporary password: %s\n", email, password)
	} else {
		fmt.Printf("created admin %s\n", email)
	}
	return nil
}
