package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/product-estimator/estimator/internal/coordinator"
	"github.com/product-estimator/estimator/internal/estimate"
	"github.com/product-estimator/estimator/internal/events"
	"github.com/product-estimator/estimator/internal/gateway"
	"github.com/product-estimator/estimator/internal/httpapi"
	"github.com/product-estimator/estimator/internal/metrics"
	"github.com/product-estimator/estimator/internal/mirror"
	"github.com/product-estimator/estimator/internal/view"
)

func main() {
	loadDotEnv()

	addr := flag.String("addr", envOrDefault("ESTIMATOR_ADDR", ":8080"), "listen address")
	ajaxURL := flag.String("ajax-url", envOrDefault("ESTIMATOR_AJAX_URL", ""), "WordPress admin-ajax endpoint")
	nonce := flag.String("nonce", strings.TrimSpace(os.Getenv("ESTIMATOR_NONCE")), "AJAX nonce")
	suggestions := flag.Bool("suggestions", boolEnv("ESTIMATOR_SUGGESTIONS_ENABLED", true), "fetch room suggestions after product changes")
	watch := flag.Bool("watch", boolEnv("ESTIMATOR_WATCH_STORAGE", true), "re-render when the file store changes on disk")
	flag.Parse()

	logger := log.Default()
	cfg, err := storageConfigFromEnv()
	if err != nil {
		log.Fatalf("invalid storage configuration: %v", err)
	}
	primary, err := estimate.BuildBackendFromDSN(cfg.storeDSN)
	if err != nil {
		log.Fatalf("failed to initialize store backend: %v", err)
	}
	fallback, err := estimate.BuildBackendFromDSN(cfg.fallbackDSN)
	if err != nil {
		log.Fatalf("failed to initialize fallback backend: %v", err)
	}
	queue, err := mirror.BuildQueueFromDSN(cfg.queueDSN, intEnv("ESTIMATOR_MIRROR_QUEUE_SIZE", 1024))
	if err != nil {
		log.Fatalf("failed to initialize mirror queue: %v", err)
	}

	bus := events.NewBus()
	store := estimate.NewStore(estimate.StoreOptions{
		Primary:  primary,
		Fallback: fallback,
		Logger:   logger,
		CustomerDetailsChanged: func(details estimate.CustomerDetails) {
			bus.Publish(events.TypeCustomerDetailsUpdated, details)
		},
	})
	defer store.Close()

	var dispatcher *mirror.Dispatcher
	recorder := metrics.NewRecorder(func() int {
		if dispatcher == nil {
			return 0
		}
		return dispatcher.Depth()
	})
	remote := gateway.New(
		gateway.NewHTTPTransport(*ajaxURL, *nonce, &http.Client{Timeout: durationEnv("ESTIMATOR_AJAX_TIMEOUT", 15*time.Second)}),
		gateway.Options{Logger: logger, Metrics: recorder},
	)
	dispatcher = mirror.NewDispatcher(coordinator.NewMirrorExecutor(remote), mirror.DispatcherOptions{
		Queue:       queue,
		Workers:     intEnv("ESTIMATOR_MIRROR_WORKERS", 2),
		TaskTimeout: durationEnv("ESTIMATOR_MIRROR_TIMEOUT", 30*time.Second),
		Logger:      logger,
		Metrics:     recorder,
	})
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.Printf("mirror dispatcher close: %v", err)
		}
	}()

	coord := coordinator.New(store, remote, dispatcher, coordinator.Options{
		SuggestionsEnabled: *suggestions,
		Logger:             logger,
		Metrics:            recorder,
	})

	renderer, err := view.NewTemplateRenderer()
	if err != nil {
		log.Fatalf("failed to parse view templates: %v", err)
	}
	reconciler := view.NewReconciler(store, renderer, view.ReconcilerOptions{
		Logger: logger,
		OnUpdate: func(updates []view.RegionUpdate) {
			bus.Publish(events.TypeRegionsUpdated, updates)
		},
	})
	loading := view.NewLoadingIndicator(view.LoadingOptions{
		Timeout: durationEnv("ESTIMATOR_LOADING_TIMEOUT", view.DefaultLoadingTimeout),
		Logger:  logger,
		OnChange: func(visible bool) {
			bus.Publish(events.TypeLoading, visible)
		},
	})

	server := httpapi.NewServerWithConfig(coord, reconciler, httpapi.ServerConfig{
		AdminSecret:     os.Getenv("ESTIMATOR_ADMIN_SECRET"),
		RateLimitMax:    intEnv("ESTIMATOR_RATE_LIMIT_MAX", 0),
		RateLimitWindow: durationEnv("ESTIMATOR_RATE_LIMIT_WINDOW", time.Minute),
		MaxBodyBytes:    int64Env("ESTIMATOR_MAX_BODY_BYTES", 0),
		DebounceWindow:  durationEnv("ESTIMATOR_DEBOUNCE_WINDOW", view.DefaultDebounceWindow),
		Events: events.NewHub(bus, events.HubOptions{
			OriginPatterns: splitList(os.Getenv("ESTIMATOR_WS_ORIGINS")),
			Logger:         logger,
		}),
		Metrics:     recorder.Handler(),
		Loading:     loading,
		Catalog:     remote,
		MirrorDepth: dispatcher.Depth,
		Logger:      logger,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go loading.Run(rootCtx)
	if fb, ok := primary.(*estimate.FileBackend); ok && *watch {
		bridge := &events.StorageBridge{
			Store: store,
			Bus:   bus,
			OnDataChange: func() {
				if err := reconciler.RenderAll(); err != nil {
					log.Printf("re-render after storage change failed: %v", err)
				}
			},
		}
		go func() {
			if err := bridge.Run(rootCtx, fb); err != nil {
				log.Printf("storage watch stopped: %v", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("estimator listening on %s (profile=%s)", *addr, cfg.profile)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}

// loadDotEnv loads ESTIMATOR_ENV_FILE, or .env when present. Variables
// already set in the environment win.
func loadDotEnv() {
	path := strings.TrimSpace(os.Getenv("ESTIMATOR_ENV_FILE"))
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		log.Printf("failed to load %s: %v", path, err)
	}
}
