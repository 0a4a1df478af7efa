package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldBusinessID    = "business_id"
	FieldVehicleID     = "vehicle_id"
	FieldBoxID         = "box_id"
	FieldTransactionID = "transaction_id"
	FieldAmountCents   = "amount_cents"
	FieldMovement      = "movement"
	FieldState         = "state"
	FieldEntryID       = "entry_id"
	FieldDriftCents    = "drift_cents"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentLedger     = "ledger"
	ComponentSettlement = "settlement"
	ComponentStatement  = "statement"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
)
