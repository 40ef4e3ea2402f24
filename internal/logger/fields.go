package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields. Set once on the context, carried through the call
// chain by the Set* helpers.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the download job ID
	FieldJobID = "job_id"

	// FieldUserID is the job owner's user ID
	FieldUserID = "user_id"

	// FieldVideoID is the probed YouTube video ID
	FieldVideoID = "video_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Metric fields. Attached per log call through With, aggregatable
// downstream.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldKind is the artifact output kind
	FieldKind = "kind"

	// FieldProgress is the job progress percentage
	FieldProgress = "progress_pct"

	// FieldAttempt is the retry attempt number
	FieldAttempt = "attempt"
)
