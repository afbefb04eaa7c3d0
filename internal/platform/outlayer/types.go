package outlayer

// CodeDescriptor pins the exact program the compute service must run. The
// service builds the program from source at the pinned commit, so the caller
// never ships executable bytes and the execution is reproducible.
type CodeDescriptor struct {
	Repo        string `json:"repo"`
	Commit      string `json:"commit"`
	BuildTarget string `json:"build_target"`
}

// ResourceLimits caps one delegated execution.
type ResourceLimits struct {
	MaxInstructions uint64 `json:"max_instructions"`
	MaxMemoryMB     uint64 `json:"max_memory_mb"`
	MaxDurationSecs uint64 `json:"max_duration_secs"`
}

// DefaultLimits is the standard allowance for a scoreboard fetch: generous
// enough for a TLS fetch and JSON parse, small enough to bound cost.
var DefaultLimits = ResourceLimits{
	MaxInstructions: 1_000_000_000,
	MaxMemoryMB:     128,
	MaxDurationSecs: 60,
}

// ExecutionInput is the payload handed to the fetch program. It carries only
// the event coordinates; everything else the program needs is baked into the
// pinned source.
type ExecutionInput struct {
	EventID string `json:"event_id"`
	Sport   string `json:"sport"`
	League  string `json:"league"`
}

// ExecutionRequest submits one delegated execution. The service posts the
// program's output to CallbackURL when the run completes or fails.
type ExecutionRequest struct {
	Code           CodeDescriptor `json:"code"`
	Limits         ResourceLimits `json:"limits"`
	Input          ExecutionInput `json:"input"`
	ResponseFormat string         `json:"response_format"`
	CallbackURL    string         `json:"callback_url"`
}

// ExecutionAccepted is the service's acknowledgement of a submitted request.
type ExecutionAccepted struct {
	ExecutionID string `json:"execution_id"`
}

// CallbackPayload is what the service posts to the callback URL. Exactly one
// of Output and Error is meaningful: a non-empty Error means the run itself
// failed (build error, limit exceeded, network failure inside the program)
// and Output must be ignored.
type CallbackPayload struct {
	ExecutionID string `json:"execution_id"`
	Output      []byte `json:"output"`
	Error       string `json:"error"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
