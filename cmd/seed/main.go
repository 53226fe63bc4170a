// Command seed registers identities from a YAML roster.
//
//	seed -f roster.yaml
//
// Existing uids are reported and left untouched.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/password"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/utilities"
)

func main() {
	file := flag.String("f", "roster.yaml", "roster file")
	flag.Parse()

	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	f, err := os.Open(*file)
	if err != nil {
		sugar.Fatalf("open roster: %v", err)
	}
	roster, err := user.ParseRoster(f)
	f.Close()
	if err != nil {
		sugar.Fatal(err)
	}

	hasher, err := password.NewArgon2(password.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("password hasher: %v", err)
	}
	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := userrepo.NewUserRepo(db)
	if err := repo.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure users table: %v", err)
	}

	res, err := user.NewService(repo, hasher, nil, nil, sugar).ImportRoster(ctx, roster)
	for _, uid := range res.Duplicates {
		sugar.Warnw("uid already exists, skipped", "uid", uid)
	}
	if err != nil {
		sugar.Fatalf("import stopped after %d created: %v", len(res.Created), err)
	}
	sugar.Infow("roster imported", "created", len(res.Created), "skipped", len(res.Duplicates))
}
