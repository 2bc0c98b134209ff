// Package app wires the job-dispatch engine's components (store, admission
// controller, queues, worker pools, event hub) into one process, the way
// vire's internal/app/app.go wires its services and clients.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/SystemGuard-official/docparse/internal/clients/gemini"
	"github.com/SystemGuard-official/docparse/internal/common"
	"github.com/SystemGuard-official/docparse/internal/events"
	"github.com/SystemGuard-official/docparse/internal/gpuadmit"
	"github.com/SystemGuard-official/docparse/internal/inference"
	"github.com/SystemGuard-official/docparse/internal/interfaces"
	"github.com/SystemGuard-official/docparse/internal/jobqueue"
	"github.com/SystemGuard-official/docparse/internal/jobstore"
	"github.com/SystemGuard-official/docparse/internal/models"
	"github.com/SystemGuard-official/docparse/internal/worker"
)

// App holds all initialized components and is the shared core used by
// cmd/docparse-server.
type App struct {
	Config    *common.Config
	Logger    *common.Logger
	Store     interfaces.JobStateStore
	Admission *gpuadmit.Controller
	Events    *events.Hub

	OCRPool  *worker.Pool
	FormPool *worker.Pool

	StartupTime time.Time
}

// NewApp loads configuration, connects the job state store, and builds the
// admission controller, event hub, and the worker pools for whichever
// engines DEPLOYED_ENGINE names — pools are constructed here but only
// started lazily on first submission (§4.D), per worker.Pool.Start.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()

	if configPath == "" {
		configPath = os.Getenv("DOCPARSE_CONFIG")
	}
	if configPath == "" {
		configPath = "config/docparse.toml"
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	ctx := context.Background()

	store, err := jobstore.Open(ctx, config.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open job state store: %w", err)
	}

	admission := gpuadmit.New(config.Engine.GPUMaxConcurrent, config.Engine.GPUMemoryThresholdGiB, nil, logger)

	hub := events.NewHub(logger)
	go hub.Run()

	var geminiClient *gemini.Client
	if config.Gemini.APIKey != "" {
		geminiClient, err = gemini.NewClient(ctx, config.Gemini.APIKey,
			gemini.WithLogger(logger),
			gemini.WithModel(config.Gemini.Model),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize Gemini client, form_parse engine will be unavailable")
			geminiClient = nil
		}
	}

	var ocrPool, formPool *worker.Pool

	if config.Engine.RunsOCR() {
		ocrAdapter := inference.NewOCRAdapter(inference.DefaultDetect, inference.DefaultRecognize, logger)
		ocrPool = worker.New(worker.Config{
			Name:           "ocr",
			Kind:           models.KindOCR,
			Workers:        config.Engine.MaxWorkersOCR,
			Queue:          jobqueue.New(),
			Admission:      admission,
			Store:          store,
			Adapter:        ocrAdapter,
			AcquireTimeout: config.Engine.GetAcquireTimeout(),
			Events:         hub,
			Logger:         logger,
		})
	}

	if config.Engine.RunsFormParse() {
		var vlClient inference.VisionLanguageClient
		if geminiClient != nil {
			vlClient = geminiClient
		} else {
			logger.Warn().Msg("form_parse engine deployed without a usable Gemini client, jobs will fail with model unavailable")
		}
		formAdapter := inference.NewFormParseAdapter(vlClient, config.Engine.DefaultFormPrompt, logger)
		formPool = worker.New(worker.Config{
			Name:           "form_parse",
			Kind:           models.KindFormParse,
			Workers:        config.Engine.MaxWorkersForm,
			Queue:          jobqueue.New(),
			Admission:      admission,
			Store:          store,
			Adapter:        formAdapter,
			AcquireTimeout: config.Engine.GetAcquireTimeout(),
			Events:         hub,
			Logger:         logger,
		})
	}

	a := &App{
		Config:      config,
		Logger:      logger,
		Store:       store,
		Admission:   admission,
		Events:      hub,
		OCRPool:     ocrPool,
		FormPool:    formPool,
		StartupTime: startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("app initialized")

	return a, nil
}

// PoolFor returns the worker pool serving kind, or nil if that engine isn't
// deployed on this process (per DEPLOYED_ENGINE).
func (a *App) PoolFor(kind models.Kind) *worker.Pool {
	switch kind {
	case models.KindOCR:
		return a.OCRPool
	case models.KindFormParse:
		return a.FormPool
	default:
		return nil
	}
}

// Close stops the worker pools (draining in-flight jobs, §4.D Cancellation),
// the event hub, and the job state store connection.
func (a *App) Close() {
	if a.OCRPool != nil {
		a.OCRPool.Stop()
	}
	if a.FormPool != nil {
		a.FormPool.Stop()
	}
	if a.Events != nil {
		a.Events.Stop()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("error closing job state store")
		}
	}
}
