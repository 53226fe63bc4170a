package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/authz"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/ec"
	ecrepo "github.com/ovaphlow/pitchfork/service-ilearn-go/internal/ec/repo"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/grade"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/homework"
	hwrepo "github.com/ovaphlow/pitchfork/service-ilearn-go/internal/homework/repo"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/password"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-ilearn-go")

	tokenCfg, err := token.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("token config: %v", err)
	}
	codec, err := token.NewCodecFromConfig(tokenCfg)
	if err != nil {
		sugar.Fatalf("token codec: %v", err)
	}
	issuer, err := token.NewIssuer(codec, tokenCfg.AccessTTL, tokenCfg.RefreshTTL)
	if err != nil {
		sugar.Fatalf("token issuer: %v", err)
	}
	hasher, err := password.NewArgon2(password.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("password hasher: %v", err)
	}

	dbCfg := database.ConfigFromEnv()
	db, err := database.Connect(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	users := userrepo.NewUserRepo(db)
	hw := hwrepo.NewRepo(db)
	grades := grade.NewRepo(db)
	ecs := ecrepo.NewRepo(db)

	// users first: ec joins against it
	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	for _, t := range []struct {
		name   string
		ensure func(context.Context) error
	}{
		{"users", users.EnsureTable},
		{"homework", hw.EnsureTable},
		{"grade", grades.EnsureTable},
		{"ec", ecs.EnsureTable},
	} {
		if err := t.ensure(initCtx); err != nil {
			sugar.Fatalf("ensure %s table: %v", t.name, err)
		}
	}
	cancelInit()

	httpCfg := router.ConfigFromEnv()
	userSvc := user.NewService(users, hasher, codec, issuer, sugar)
	handler := router.RegisterRoutes(sugar, router.Handlers{
		Gate:     authz.NewGate(codec, sugar),
		User:     user.NewHandler(userSvc, user.HandlerConfig{CookieSecure: httpCfg.CookieSecure, PFPDir: httpCfg.PFPDir}, sugar),
		Homework: homework.NewHandler(homework.NewService(hw, users), sugar),
		Grade:    grade.NewHandler(grades, sugar),
		EC:       ec.NewHandler(ec.NewService(ecs), sugar),
	})

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("listening", "addr", httpCfg.Addr, "db_driver", dbCfg.Driver,
		"access_ttl", tokenCfg.AccessTTL, "refresh_ttl", tokenCfg.RefreshTTL)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
