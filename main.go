package main

import (
	"context"

	"github.com/betareaderbr/betareader/config"
	"github.com/betareaderbr/betareader/models"
	"github.com/betareaderbr/betareader/routes"
	"github.com/betareaderbr/betareader/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	models.DefaultMonthlyGoal = cfg.DefaultMonthlyGoal

	db := config.InitDatabase()
	r := routes.SetupRouter(db)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(context.Background(), ":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
