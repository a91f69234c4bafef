package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldClientIP  = "client_ip"
	FieldPath      = "path"
	FieldDuration  = "duration"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldRecordID  = "record_id"
	FieldPeriod    = "period"
	FieldDeviceID  = "device_id"
	FieldTrigger   = "trigger"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentAPI       = "api"
	ComponentHTTP      = "http"
	ComponentSync      = "sync"
	ComponentScheduler = "scheduler"
	ComponentExport    = "export"
)

// Operations defines standard operation names
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpSync   = "sync"
)
