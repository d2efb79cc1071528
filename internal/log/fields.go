package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldKind       = "kind"
	FieldLocalID    = "local_id"
	FieldServerID   = "server_id"
	FieldUserID     = "user_id"
	FieldAmount     = "amount_cents"
	FieldQueueID    = "queue_id"
	FieldAttempts   = "attempts"
	FieldErrorCode  = "error_code"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentState     = "state"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentRemote    = "remote"
	ComponentCache     = "cache"
	ComponentSummary   = "summary"
	ComponentProcessor = "sync_processor"
)

// Operations defines standard operation names
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpLoad    = "load"
	OpPersist = "persist"
	OpSync    = "sync"
	OpRetry   = "retry"
	OpStartup = "startup"
)
