package manager

import (
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/runtime"
	"inferd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultDrainTimeout  = 10 * time.Second
	defaultCtxSize       = 4096
	defaultSeqSlots      = 4
	defaultBatchSize     = 512
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry      []types.Model
	BudgetMB      int
	MarginMB      int
	DefaultModel  string
	MaxQueueDepth int
	MaxWait       time.Duration
	DrainTimeout  time.Duration
	// Runtime options applied to every context the manager opens.
	Runtime runtime.Options
	// OpenRuntime overrides how contexts are opened; defaults to
	// runtime.Open. Tests inject fakes here.
	OpenRuntime func(path string, opts runtime.Options) (runtime.Context, error)
	// Optional last-used metadata path persisted across restarts.
	LRUStatePath string
	Logger       *zerolog.Logger
	Publisher    EventPublisher
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:        StateLoading,
		registry:     cfg.Registry,
		budgetMB:     cfg.BudgetMB,
		marginMB:     cfg.MarginMB,
		defaultModel: cfg.DefaultModel,
		instances:    make(map[string]*Instance),
		runtimeOpts:  cfg.Runtime,
		openRuntime:  cfg.OpenRuntime,
		lruPath:      cfg.LRUStatePath,
		log:          zerolog.Nop(),
		publisher:    noopPublisher{},
	}
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.DrainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	} else {
		m.drainTimeout = cfg.DrainTimeout
	}
	if m.runtimeOpts.CtxSize <= 0 {
		m.runtimeOpts.CtxSize = defaultCtxSize
	}
	if m.runtimeOpts.SeqSlots <= 0 {
		m.runtimeOpts.SeqSlots = defaultSeqSlots
	}
	if m.runtimeOpts.BatchSize <= 0 {
		m.runtimeOpts.BatchSize = defaultBatchSize
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	if cfg.Publisher != nil {
		m.publisher = cfg.Publisher
	}
	if m.openRuntime == nil {
		m.openRuntime = runtime.Open
	}
	m.startTime = time.Now()
	m.loadLRUMetadata()
	return m
}
