package types

// GenerateRequest is the payload for POST /generate. Prompts are answered as
// one batch over a shared model context; results come back in prompt order.
type GenerateRequest struct {
	// Optional model identifier. If empty, the server default is used.
	// example: tinyllama-q4
	Model string `json:"model,omitempty" example:"tinyllama-q4"`
	// One or more prompts generated in a single continuous batch.
	// example: ["Write a haiku about the ocean."]
	Prompts []string `json:"prompts"`
	// Optional chat messages; rendered through the model's chat template and
	// used as a single prompt when Prompts is empty.
	Messages []ChatMessage `json:"messages,omitempty"`
	// Maximum number of new tokens to generate per prompt.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Window of recent tokens considered by the repeat penalty.
	// example: 64
	RepeatLastN int `json:"repeat_last_n,omitempty" example:"64"`
	// Repeat penalty factor.
	// example: 1.1
	RepeatPenalty float64 `json:"repeat_penalty,omitempty" example:"1.1"`
	// Random seed for reproducibility; zero or negative derives one from the clock.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
	// If true, the server draws a progress bar on its diagnostic stream.
	ShowProgress bool `json:"show_progress,omitempty"`
}

// ChatMessage is one turn of a chat conversation.
type ChatMessage struct {
	// Role of the speaker: system, user, or assistant.
	// example: user
	Role string `json:"role" example:"user"`
	// Message content.
	Content string `json:"content"`
}

// GenerateStats summarizes one batch generation call.
type GenerateStats struct {
	// Total prompt tokens decoded (shared prefix counted once per slot).
	PromptTokens int `json:"prompt_tokens"`
	// Total tokens generated across all prompts.
	GeneratedTokens int `json:"generated_tokens"`
	// Times the batch driver halved its chunk size on a soft decode failure.
	CacheMisses int `json:"cache_misses"`
	// Wall-clock duration in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// GenerateResponse is returned by POST /generate. Results align index-for-index
// with the request prompts; individual failures are "[ERROR] ..." sentinels.
type GenerateResponse struct {
	Results []string      `json:"results"`
	Stats   GenerateStats `json:"stats"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// InstanceStatus summarizes a loaded instance for /status.
type InstanceStatus struct {
	// ID of the model this instance serves.
	// example: tinyllama-q4
	ModelID string `json:"model_id" example:"tinyllama-q4"`
	// Current lifecycle state of the instance (e.g., loading, ready, draining).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last time this instance served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Estimated memory usage in MB.
	// example: 1200
	EstMemMB int `json:"est_mem_mb" example:"1200"`
	// Current queue length for incoming requests.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Number of in-flight generations currently being processed.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Context size (max KV positions) of the live runtime context.
	// example: 4096
	CtxSize int `json:"ctx_size,omitempty" example:"4096"`
	// Concurrent sequence slots of the live runtime context.
	// example: 8
	SeqSlots int `json:"seq_slots,omitempty" example:"8"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded/managed instances.
	Instances []InstanceStatus `json:"instances"`
	// Memory budget in MB across all instances.
	// example: 8192
	BudgetMB int `json:"budget_mb" example:"8192"`
	// Estimated used memory in MB.
	// example: 2048
	UsedMB int `json:"used_est_mb" example:"2048"`
	// Reserved memory margin in MB.
	// example: 512
	MarginMB int `json:"margin_mb" example:"512"`
	// Optional top-level error message.
	Error string `json:"error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total number of evictions performed to stay within budget.
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// Total number of model loads.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Overall manager state (e.g., loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Number of instances currently warming up (loading).
	// example: 1
	WarmupsInProgress int `json:"warmups_in_progress" example:"1"`
	// Number of instances currently draining (unload in progress).
	// example: 1
	DrainingCount int `json:"draining_count" example:"1"`
}
