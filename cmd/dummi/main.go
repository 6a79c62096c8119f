// Package main is the Dummi CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dummi-ai/dummi/internal/cf"
	"github.com/dummi-ai/dummi/internal/config"
	"github.com/dummi-ai/dummi/internal/embedding"
	"github.com/dummi-ai/dummi/internal/models"
	"github.com/dummi-ai/dummi/internal/recommend"
	"github.com/dummi-ai/dummi/internal/server"
	"github.com/dummi-ai/dummi/internal/storage"
	"github.com/dummi-ai/dummi/internal/vector"
	"github.com/dummi-ai/dummi/internal/watcher"
	"github.com/dummi-ai/dummi/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/dummi/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "dummi server" from the project dir uses the project's
// config (including debug). Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "recommend":
		runRecommend()
	case "train":
		runTrain()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("dummi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (scoring, training, artifact reloads)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Storage.WatchArtifacts && cfg.Storage.VectorIndexPath != "" {
		registry := components.Registry
		dim := components.Embedder.Dimensions()
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		artifactWatch := watcher.New(
			[]string{cfg.Storage.VectorIndexPath},
			func(path string) {
				index, err := vector.NewIVFIndex(dim, cfg.Recommend.NList, cfg.Recommend.NProbe)
				if err != nil {
					logger.Warn("artifact reload failed", zap.String("path", path), zap.Error(err))
					return
				}
				if err := index.Load(path); err != nil {
					logger.Warn("artifact reload failed", zap.String("path", path), zap.Error(err))
					return
				}
				registry.SwapIndex(index)
				logger.Info("vector index reloaded from disk", zap.String("path", path), zap.Int("vectors", index.Size()))
			},
			watchOpts...,
		)
		if err := artifactWatch.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start artifact watcher", zap.Error(err))
		}
		defer artifactWatch.Stop()
	}

	srv := server.NewServer(
		components.Engine,
		components.Trainer,
		components.Storage,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" && components.Registry != nil {
		if index := components.Registry.Index(); index != nil && index.Size() > 0 {
			if err := index.Save(cfg.Storage.VectorIndexPath); err != nil {
				logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
			}
		}
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runRecommend() {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	userID := fs.String("user", "", "user id to recommend for")
	limit := fs.Int("limit", 10, "number of recommendations")
	cfWeight := fs.Float64("cf-weight", -1, "collaborative filtering blend weight in [0,1] (negative = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if *userID == "" {
		fmt.Println("Usage: dummi recommend --user <user-id> [flags]")
		os.Exit(1)
	}
	req := &models.RecommendationRequest{UserID: *userID, N: *limit}
	if *cfWeight >= 0 {
		req.CFWeight = cfWeight
	}

	var resp *models.RecommendationResponse
	if *serverURL != "" {
		var err error
		resp, err = recommendViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Recommendation failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		resp, err = components.Engine.Recommend(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Recommendation failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if len(resp.Recommendations) == 0 {
			fmt.Printf("No recommendations for %s\n", resp.UserID)
			return
		}
		for i, rec := range resp.Recommendations {
			fmt.Printf("%2d. %-40s %-16s score=%.4f (%s)\n", i+1, rec.Title, rec.Category, rec.Score, rec.Method)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func recommendViaHTTP(serverURL string, req *models.RecommendationRequest) (*models.RecommendationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/recommendations", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.RecommendationResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runTrain() {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = train against direct storage)")
	embeddings := fs.Bool("embeddings", true, "regenerate content embeddings and rebuild the vector index")
	retrainCF := fs.Bool("cf", true, "retrain the collaborative filtering model")
	_ = fs.Parse(os.Args[2:])

	if !*embeddings && !*retrainCF {
		fmt.Println("Nothing to train: pass --embeddings and/or --cf")
		os.Exit(1)
	}

	var resp *models.TrainingResponse
	if *serverURL != "" {
		body, _ := json.Marshal(models.TrainingRequest{RegenerateEmbeddings: *embeddings, RetrainCF: *retrainCF})
		httpResp, err := http.Post(*serverURL+"/api/v1/training/train", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Training request failed: %v\n", err)
			os.Exit(1)
		}
		defer httpResp.Body.Close()
		if httpResp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(httpResp.Body)
			fmt.Fprintf(os.Stderr, "Training failed (%d): %s\n", httpResp.StatusCode, string(b))
			os.Exit(1)
		}
		resp = &models.TrainingResponse{}
		if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		resp, err = components.Trainer.Train(context.Background(), *embeddings, *retrainCF)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Training failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("status:               %s\n", resp.Status)
	fmt.Printf("embeddings_generated: %d\n", resp.EmbeddingsGenerated)
	fmt.Printf("cf_model_trained:     %t\n", resp.CFModelTrained)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var vstats vector.Stats
	var cfStatus models.CFStatus
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/training/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			VectorIndex vector.Stats    `json:"vector_index"`
			CFModel     models.CFStatus `json:"cf_model"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
		vstats, cfStatus = out.VectorIndex, out.CFModel
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		vstats, cfStatus = components.Trainer.Status()
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		out := map[string]interface{}{"vector_index": vstats, "cf_model": cfStatus}
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("vector_index_size:  %d\n", vstats.TotalVectors)
		fmt.Printf("vector_dimensions:  %d\n", vstats.Dimension)
		fmt.Printf("vector_trained:     %t\n", vstats.Trained)
		fmt.Printf("cf_trained:         %t\n", cfStatus.Trained)
		if cfStatus.Trained {
			fmt.Printf("cf_users:           %d\n", cfStatus.NUsers)
			fmt.Printf("cf_items:           %d\n", cfStatus.NItems)
			if cfStatus.RMSE != nil {
				fmt.Printf("cf_rmse:            %.4f\n", *cfStatus.RMSE)
			}
			if cfStatus.TrainedAt != nil {
				fmt.Printf("cf_trained_at:      %s\n", cfStatus.TrainedAt.Format(time.RFC3339))
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Embedder embedding.Embedder
	Registry *recommend.Registry
	Engine   *recommend.Engine
	Trainer  *recommend.Trainer
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	if cfg.Embedding.APIKey != "" {
		openaiEmbedder, err := embedding.NewOpenAIEmbedder(
			cfg.Embedding.APIKey,
			cfg.Embedding.BaseURL,
			cfg.Embedding.Model,
			cfg.Embedding.Dimensions,
			cfg.Embedding.CacheSize,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		embedder = openaiEmbedder
	} else {
		logger.Info("no embedding API key, using deterministic mock embedder")
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}

	index, err := vector.NewIVFIndex(embedder.Dimensions(), cfg.Recommend.NList, cfg.Recommend.NProbe)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := index.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped (retrain to rebuild)",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}
	logger.Info("vector index initialized",
		zap.Int("vectors", index.Size()),
		zap.Int("dimensions", embedder.Dimensions()))

	var snapshot *cf.Snapshot
	rec, err := store.LatestSnapshot(context.Background())
	if err == nil {
		snapshot, err = cf.DecodeSnapshot(rec.Data)
		if err != nil {
			logger.Warn("cf snapshot decode failed (retrain to rebuild)", zap.Error(err))
			snapshot = nil
		} else {
			logger.Info("cf model loaded",
				zap.Int("users", snapshot.NUsers()),
				zap.Int("items", snapshot.NItems()))
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load cf snapshot: %w", err)
	}

	registry := recommend.NewRegistry(index, snapshot)
	engine := recommend.NewEngine(store, embedder, registry, recommend.Options{
		TopK:                cfg.Recommend.TopK,
		SimilarityThreshold: cfg.Recommend.SimilarityThreshold,
		ColdStartThreshold:  cfg.Recommend.ColdStartThreshold,
		DefaultCFWeight:     cfg.Recommend.CFWeight,
	}, utils.NamedLogger(logger, "engine"))
	trainer := recommend.NewTrainer(store, embedder, registry, recommend.TrainerOptions{
		IndexPath: cfg.Storage.VectorIndexPath,
		NList:     cfg.Recommend.NList,
		NProbe:    cfg.Recommend.NProbe,
		CF: cf.Config{
			Factors: cfg.Recommend.NFactors,
			Epochs:  cfg.Recommend.NEpochs,
			Seed:    42,
		},
	}, utils.NamedLogger(logger, "trainer"))

	return &Components{
		Storage:  store,
		Embedder: embedder,
		Registry: registry,
		Engine:   engine,
		Trainer:  trainer,
	}, nil
}

func printUsage() {
	fmt.Println(`dummi - Hybrid recommendation engine

Usage:
  dummi server [flags]            Start the HTTP server
  dummi recommend [flags]         Get recommendations for a user
  dummi train [flags]             Rebuild embeddings and/or the CF model
  dummi status [flags]            Show model/index status
  dummi version                   Show version
  dummi help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/dummi/config.yaml)
  --debug            Enable debug logging (scoring, training, artifact reloads)

Recommend Flags:
  --user string       User id to recommend for (required)
  --limit int         Number of recommendations (default: 10)
  --cf-weight float   CF blend weight in [0,1] (negative = server default)
  --server string     Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string     Output format: text or json (default: text)

Train Flags:
  --embeddings        Regenerate embeddings and rebuild the vector index (default: true)
  --cf                Retrain the collaborative filtering model (default: true)
  --server string     Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.

Status Flags:
  --server string     Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string     Output format: text or json (default: text)

Examples:
  dummi server
  dummi recommend --user alice --limit 5
  dummi recommend --user alice --cf-weight 0.8 --output json
  dummi train --cf=false            # embeddings only
  dummi status --output json`)
}
