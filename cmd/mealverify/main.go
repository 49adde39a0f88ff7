package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/vbonduro/mealverify/internal/config"
	"github.com/vbonduro/mealverify/internal/db"
	"github.com/vbonduro/mealverify/internal/logging"
	"github.com/vbonduro/mealverify/internal/photostore/local"
	"github.com/vbonduro/mealverify/internal/service"
	"github.com/vbonduro/mealverify/internal/store"
	"github.com/vbonduro/mealverify/internal/vision"
	claudevision "github.com/vbonduro/mealverify/internal/vision/claude"
	ollamavision "github.com/vbonduro/mealverify/internal/vision/ollama"
	openaivision "github.com/vbonduro/mealverify/internal/vision/openai"
	"github.com/vbonduro/mealverify/internal/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	photoStg, err := local.NewLocalPhotoStore(cfg.PhotoPath)
	if err != nil {
		logger.Error("failed to initialize photo store", "error", err)
		return
	}

	plateStore := store.NewPlateStore(database)
	productStore := store.NewProductStore(database)
	pictureStore := store.NewPictureStore(database)
	mealStore := store.NewMealRequestStore(database)

	catalogService := service.NewCatalogService(plateStore, productStore, pictureStore, photoStg, logger)
	analysisService := service.NewAnalysisService(
		mealStore,
		productStore,
		newVisionAnalyzer(cfg, logger),
		photoStg,
		service.AnalysisOptions{
			MaxTokens:  cfg.VisionMaxTokens,
			Timeout:    cfg.VisionTimeout,
			MaxRetries: cfg.VisionMaxRetries,
		},
		logger,
	)

	server := web.NewServer(catalogService, analysisService, logger)
	if err := server.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

// newVisionAnalyzer picks the backend named by VISION_BACKEND. cfg must
// already be validated.
func newVisionAnalyzer(cfg *config.Config, logger *slog.Logger) vision.VisionAnalyzer {
	switch cfg.VisionBackend {
	case "openai":
		logger.Info("using OpenAI-compatible vision backend", "model", cfg.OpenAIModel, "base_url", cfg.OpenAIBaseURL)
		return openaivision.NewOpenAIAnalyzer(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case "ollama":
		logger.Info("using Ollama vision backend", "model", cfg.OllamaModel)
		return ollamavision.NewOllamaAnalyzer(cfg.OllamaHost, cfg.OllamaModel)
	default:
		logger.Info("using Claude vision backend", "model", cfg.ClaudeModel)
		return claudevision.NewClaudeAnalyzer(cfg.ClaudeAPIKey, cfg.ClaudeModel)
	}
}
