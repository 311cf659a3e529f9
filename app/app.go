// Package app assembles the service from environment configuration. Both the
// HTTP server and the Lambda handler build the same router through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	"github.com/joeshaw/envdecode"

	"potluck"
	"potluck/api"
	"potluck/directory"
	"potluck/generator/bedrock"
	"potluck/generator/mock"
	"potluck/generator/ollama"
	"potluck/session"
	"potluck/slack"
	"potluck/store"
)

type Config struct {
	Model      potluck.ModelConfig
	Store      potluck.StoreConfig
	Generation potluck.GenerationConfig
	Directory  potluck.DirectoryConfig
	Server     potluck.ServerConfig
	Notify     potluck.NotifyConfig
}

// LoadConfig reads every section from the environment. Unset variables fall
// back to their defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	for _, target := range []any{&cfg.Model, &cfg.Store, &cfg.Generation, &cfg.Directory, &cfg.Server, &cfg.Notify} {
		if err := envdecode.Decode(target); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return Config{}, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return cfg, nil
}

// App holds the wired service and the resources that need closing.
type App struct {
	Config    Config
	Service   *session.Service
	Directory *directory.Directory
	Router    *chi.Mux

	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error

	closers []func() error
}

func New(ctx context.Context, cfg Config) (*App, error) {
	a := &App{Config: cfg}

	st, err := a.newStore(ctx)
	if err != nil {
		return nil, err
	}

	dir, err := a.newDirectory(ctx)
	if err != nil {
		return nil, err
	}
	a.Directory = dir

	gen, err := a.newGenerator(ctx)
	if err != nil {
		return nil, err
	}

	genLogger, err := a.newGenerationLogger()
	if err != nil {
		return nil, err
	}

	opts := session.Options{
		GenerationTimeout:   cfg.Generation.Timeout,
		MaxWriteAttempts:    cfg.Store.MaxWriteAttempts,
		BreakerFailureRatio: cfg.Generation.BreakerFailureRatio,
		BreakerOpenTimeout:  cfg.Generation.BreakerOpenTimeout,
		GenerationLogger:    genLogger,
	}
	if cfg.Generation.BreakerMinRequests > 0 {
		opts.BreakerMinRequests = uint32(cfg.Generation.BreakerMinRequests)
	}
	if cfg.Notify.SlackWebhookURL != "" {
		opts.Notifier = slack.NewClient(cfg.Notify.SlackWebhookURL, cfg.Notify.SlackChannel, http.DefaultClient)
		slog.Info("SETUP: Slack notifications enabled", "channel", cfg.Notify.SlackChannel)
	}

	a.Service = session.NewService(st, dir, gen, opts)
	a.Router = api.NewRouter(a.Service, dir, api.Options{
		AllowedOrigins: api.SplitOrigins(cfg.Server.AllowedOrigins),
	})
	return a, nil
}

// Close flushes the generation log and releases anything opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func (a *App) awsConfig(ctx context.Context) (aws.Config, error) {
	a.awsOnce.Do(func() {
		a.awsCfg, a.awsErr = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRetryMaxAttempts(5))
		if a.awsErr != nil {
			a.awsErr = fmt.Errorf("failed to load AWS config: %w", a.awsErr)
		}
	})
	return a.awsCfg, a.awsErr
}

func (a *App) newStore(ctx context.Context) (store.Store, error) {
	cfg := a.Config.Store
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		slog.Info("SETUP: Using in-memory session store")
		return store.NewMemory(), nil
	case "dynamodb":
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		slog.Info("SETUP: Using DynamoDB session store", "table", cfg.TableName, "host_index", cfg.HostIndexName)
		return store.NewDynamoDB(dynamodb.NewFromConfig(awsCfg), cfg.TableName, cfg.HostIndexName), nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, errors.New("SESSIONS_S3_BUCKET must be set for the s3 store")
		}
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		slog.Info("SETUP: Using S3 session store", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
		return store.NewS3(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func (a *App) newDirectory(ctx context.Context) (*directory.Directory, error) {
	cfg := a.Config.Directory

	var src directory.Source = directory.NewFileSource(cfg.UsersPath)
	if cfg.UsersS3Bucket != "" {
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		src = directory.NewS3Source(s3.NewFromConfig(awsCfg), cfg.UsersS3Bucket, cfg.UsersS3Key)
	}

	dir, err := directory.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to load user directory: %w", err)
	}
	return dir, nil
}

func (a *App) newGenerator(ctx context.Context) (potluck.RecipeGenerator, error) {
	cfg := a.Config.Model
	switch strings.ToLower(cfg.Provider) {
	case "", "mock":
		slog.Info("SETUP: Using mock recipe generator")
		return mock.NewLLMClient(), nil
	case "bedrock":
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		slog.Info("SETUP: Using Bedrock recipe generator", "model_id", cfg.ModelID)
		return bedrock.NewLLMClient(bedrockruntime.NewFromConfig(awsCfg), bedrock.LLMOptions{
			ModelID:     cfg.ModelID,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		}), nil
	case "ollama":
		slog.Info("SETUP: Using Ollama recipe generator", "model_id", cfg.ModelID, "endpoint", cfg.BaseOllamaEndpoint)
		client, err := ollama.NewClient(ollama.ClientOpts{
			BaseEndpoint: cfg.BaseOllamaEndpoint,
			ModelID:      cfg.ModelID,
			HTTPClient:   &http.Client{},
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// newGenerationLogger picks the audit sink from GENERATION_LOG_PATH: empty
// disables it, "stdout" writes JSON lines, "auto" derives a file under ./logs,
// anything else is used as a file path.
func (a *App) newGenerationLogger() (potluck.GenerationLogger, error) {
	path := a.Config.Generation.LogPath
	switch path {
	case "":
		return potluck.NewNoOpGenerationLogger(), nil
	case "stdout":
		return potluck.NewStdoutGenerationLogger(), nil
	case "auto":
		path = potluck.NewGenerationLogFilePath(a.Config.Model.Provider)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := potluck.NewFileGenerationLogger(f)
	a.closers = append(a.closers, func() error {
		return errors.Join(logger.Flush(), f.Close())
	})
	slog.Info("SETUP: Generation log enabled", "path", path)
	return logger, nil
}
