package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"

	_ "github.com/lib/pq"

	"github.com/quantedge-go/ruletree/internal/httpapi"
	"github.com/quantedge-go/ruletree/internal/store"
	"github.com/quantedge-go/ruletree/pkg/config"
	"github.com/quantedge-go/ruletree/pkg/logging"
	"github.com/quantedge-go/ruletree/pkg/prices"
)

func main() {
	logging.Initialize(logging.DefaultConfig())
	logger := logging.GetLogger("main")

	cfg := config.Load()

	logger.Info().Str("addr", cfg.HTTPAddr).Msg("starting backtester")

	repo, err := prices.NewPostgres(cfg.ConnectionString())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to price store")
	}
	defer repo.Close()

	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open strategy store connection")
	}
	defer db.Close()

	if _, err := db.Exec(store.Schema); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply schema")
	}

	strategyStore := store.New(db)
	cached := prices.NewCached(repo)

	server := httpapi.New(cached, strategyStore)

	if err := http.ListenAndServe(cfg.HTTPAddr, server); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}

	fmt.Fprintln(os.Stdout, "backtester stopped")
}
