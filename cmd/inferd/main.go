package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/httpapi"
	"inferd/internal/manager"
	"inferd/internal/registry"
	"inferd/internal/runtime"
)

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	// Flags with environment variable defaults
	addr := flag.String("addr", envDefault("INFERD_ADDR", ""), "HTTP listen address (default :8080)")
	modelsDir := flag.String("models-dir", envDefault("INFERD_MODELS_DIR", "~/models/llm"), "Directory to scan for *.gguf model files")
	defaultModel := flag.String("default-model", envDefault("INFERD_DEFAULT_MODEL", ""), "Default model id when request omits model")
	cfgPath := flag.String("config", envDefault("INFERD_CONFIG", ""), "Optional config file (yaml/json/toml); flags override")
	ctxSize := flag.Int("ctx-size", envDefaultInt("INFERD_CTX_SIZE", 0), "Context size (max KV positions) per instance")
	seqSlots := flag.Int("seq-slots", envDefaultInt("INFERD_SEQ_SLOTS", 0), "Concurrent sequence slots per instance")
	threads := flag.Int("threads", envDefaultInt("INFERD_THREADS", 0), "Runtime threads (0 = runtime default)")
	batchSize := flag.Int("batch-size", envDefaultInt("INFERD_BATCH_SIZE", 0), "Runtime batch capacity in tokens")
	gpuLayers := flag.Int("gpu-layers", envDefaultInt("INFERD_GPU_LAYERS", 0), "Layers to offload to GPU")
	memBudgetMB := flag.Int("mem-budget-mb", 0, "Memory budget in MB for all instances (0=unlimited)")
	memMarginMB := flag.Int("mem-margin-mb", 0, "Reserved memory margin in MB to keep free")
	logLevel := flag.String("log-level", envDefault("INFERD_LOG_LEVEL", ""), "Log level: debug|info|warn|error (default info)")
	flag.Parse()

	// Optional config file; explicit flags take precedence via re-apply below.
	var cfg config.Config
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			bootLog := zerolog.New(os.Stderr)
			bootLog.Fatal().Err(err).Str("path", *cfgPath).Msg("load config")
		}
		cfg = loaded
	}
	applyFlag := func(flagVal *string, cfgVal string) string {
		if *flagVal != "" {
			return *flagVal
		}
		return cfgVal
	}
	applyInt := func(flagVal *int, cfgVal int) int {
		if *flagVal != 0 {
			return *flagVal
		}
		return cfgVal
	}

	levelName := applyFlag(logLevel, cfg.LogLevel)
	if levelName == "" {
		levelName = "info"
	}
	lvl, err := zerolog.ParseLevel(levelName)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()

	dir := applyFlag(modelsDir, cfg.ModelsDir)
	reg, err := registry.LoadDir(dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("load models")
	}

	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Registry:     reg,
		BudgetMB:     applyInt(memBudgetMB, cfg.MemBudgetMB),
		MarginMB:     applyInt(memMarginMB, cfg.MemMarginMB),
		DefaultModel: applyFlag(defaultModel, cfg.DefaultModel),
		Runtime: runtime.Options{
			CtxSize:   applyInt(ctxSize, cfg.CtxSize),
			SeqSlots:  applyInt(seqSlots, cfg.SeqSlots),
			Threads:   applyInt(threads, cfg.Threads),
			BatchSize: applyInt(batchSize, cfg.BatchSize),
			GPULayers: applyInt(gpuLayers, cfg.GPULayers),
			UseMMap:   true,
		},
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       time.Duration(cfg.MaxWaitS) * time.Second,
		Logger:        &log,
	})

	if report := mgr.SanityCheck(); !report.RuntimeBuilt {
		log.Warn().Msg(report.Error)
	}

	httpapi.SetLogger(log)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins,
		[]string{http.MethodGet, http.MethodPost}, []string{"Content-Type", "X-Log-Level"})
	baseCtx, cancelBase := context.WithCancel(context.Background())
	httpapi.SetBaseContext(baseCtx)

	listen := applyFlag(addr, cfg.Addr)
	if listen == "" {
		listen = ":8080"
	}
	srv := &http.Server{Addr: listen, Handler: httpapi.NewMux(mgr)}

	go func() {
		log.Info().Str("addr", listen).Str("models_dir", dir).Int("models", len(reg)).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
	if err := mgr.Close(); err != nil {
		log.Error().Err(err).Msg("close manager")
	}
}
