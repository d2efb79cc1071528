package httpapi

import "net/http"

// ErrorKey is the symbolic name of a client-visible error.
type ErrorKey string

// Error keys. Codes are stable 4-digit integers grouped by class:
// 1xxx auth, 2xxx validation, 3xxx not-found, 4xxx permission,
// 5xxx rate-limit, 6xxx server, 7xxx business-rule, 8xxx sync.
// The grouping is part of the wire contract; never renumber.
const (
	AuthInvalidCredentials ErrorKey = "AUTH_INVALID_CREDENTIALS"
	AuthTokenMissing       ErrorKey = "AUTH_TOKEN_MISSING"
	AuthTokenInvalid       ErrorKey = "AUTH_TOKEN_INVALID"
	AuthTokenExpired       ErrorKey = "AUTH_TOKEN_EXPIRED"
	AuthSessionRevoked     ErrorKey = "AUTH_SESSION_REVOKED"

	ValidationRequiredField ErrorKey = "VALIDATION_REQUIRED_FIELD"
	ValidationInvalidFormat ErrorKey = "VALIDATION_INVALID_FORMAT"
	ValidationInvalidAmount ErrorKey = "VALIDATION_INVALID_AMOUNT"
	ValidationInvalidDate   ErrorKey = "VALIDATION_INVALID_DATE"
	ValidationDuplicate     ErrorKey = "VALIDATION_DUPLICATE_ENTRY"
	ValidationInvalidID     ErrorKey = "VALIDATION_INVALID_ID"

	NotFoundResource ErrorKey = "NOT_FOUND_RESOURCE"
	NotFoundUser     ErrorKey = "NOT_FOUND_USER"
	NotFoundExpense  ErrorKey = "NOT_FOUND_EXPENSE"
	NotFoundIncome   ErrorKey = "NOT_FOUND_INCOME"
	NotFoundCategory ErrorKey = "NOT_FOUND_CATEGORY"

	PermissionDenied   ErrorKey = "PERMISSION_DENIED"
	PermissionNotOwner ErrorKey = "PERMISSION_NOT_OWNER"

	RateLimitExceeded ErrorKey = "RATE_LIMIT_EXCEEDED"
	RateLimitLogin    ErrorKey = "RATE_LIMIT_LOGIN_ATTEMPTS"

	ServerError       ErrorKey = "SERVER_ERROR"
	ServerDatabase    ErrorKey = "SERVER_DATABASE_ERROR"
	ServerUnavailable ErrorKey = "SERVER_UNAVAILABLE"
	ServerTimeout     ErrorKey = "SERVER_TIMEOUT"

	BusinessBudgetExceeded  ErrorKey = "BUSINESS_BUDGET_EXCEEDED"
	BusinessSplitMismatch   ErrorKey = "BUSINESS_SPLIT_MISMATCH"
	BusinessInvalidOp       ErrorKey = "BUSINESS_INVALID_OPERATION"
	BusinessRecurringExists ErrorKey = "BUSINESS_RECURRING_EXISTS"

	SyncConflict  ErrorKey = "SYNC_CONFLICT"
	SyncFailed    ErrorKey = "SYNC_FAILED"
	SyncQueueFull ErrorKey = "SYNC_QUEUE_FULL"
)

type errorEntry struct {
	Code    int
	Message string
	Status  int
}

var errorTable = map[ErrorKey]errorEntry{
	AuthInvalidCredentials: {1001, "Invalid email or password", http.StatusUnauthorized},
	AuthTokenMissing:       {1002, "Authentication token is missing", http.StatusUnauthorized},
	AuthTokenInvalid:       {1003, "Authentication token is invalid", http.StatusUnauthorized},
	AuthTokenExpired:       {1004, "Authentication token has expired", http.StatusUnauthorized},
	AuthSessionRevoked:     {1005, "Session has been revoked", http.StatusUnauthorized},

	ValidationRequiredField: {2001, "A required field is missing", http.StatusBadRequest},
	ValidationInvalidFormat: {2002, "One or more fields are invalid", http.StatusBadRequest},
	ValidationInvalidAmount: {2003, "Amount must be a positive number", http.StatusBadRequest},
	ValidationInvalidDate:   {2004, "Date is not valid", http.StatusBadRequest},
	ValidationDuplicate:     {2005, "Duplicate entry", http.StatusBadRequest},
	ValidationInvalidID:     {2006, "Identifier is malformed", http.StatusBadRequest},

	NotFoundResource: {3001, "Resource not found", http.StatusNotFound},
	NotFoundUser:     {3002, "User not found", http.StatusNotFound},
	NotFoundExpense:  {3003, "Expense not found", http.StatusNotFound},
	NotFoundIncome:   {3004, "Income record not found", http.StatusNotFound},
	NotFoundCategory: {3005, "Category not found", http.StatusNotFound},

	PermissionDenied:   {4001, "You do not have permission to perform this action", http.StatusForbidden},
	PermissionNotOwner: {4002, "You do not own this resource", http.StatusForbidden},

	RateLimitExceeded: {5001, "Too many requests, please try again later", http.StatusTooManyRequests},
	RateLimitLogin:    {5002, "Too many login attempts, please try again later", http.StatusTooManyRequests},

	ServerError:       {6001, "An unexpected error occurred", http.StatusInternalServerError},
	ServerDatabase:    {6002, "A database error occurred", http.StatusInternalServerError},
	ServerUnavailable: {6003, "Service temporarily unavailable", http.StatusServiceUnavailable},
	ServerTimeout:     {6004, "The operation timed out", http.StatusServiceUnavailable},

	BusinessBudgetExceeded:  {7001, "This expense would exceed your monthly budget", http.StatusBadRequest},
	BusinessSplitMismatch:   {7002, "Split amounts do not add up to the total", http.StatusBadRequest},
	BusinessInvalidOp:       {7003, "Operation not allowed in the current state", http.StatusConflict},
	BusinessRecurringExists: {7004, "A recurring entry already exists for this period", http.StatusConflict},

	SyncConflict:  {8001, "Record was modified remotely, sync conflict detected", http.StatusConflict},
	SyncFailed:    {8002, "Sync failed, changes retained locally", http.StatusInternalServerError},
	SyncQueueFull: {8003, "Offline sync queue is full", http.StatusInternalServerError},
}

// Lookup resolves an error key to its table entry, falling back to the
// generic server error for unrecognized keys.
func Lookup(key ErrorKey) (ErrorKey, errorEntry) {
	if entry, ok := errorTable[key]; ok {
		return key, entry
	}
	return ServerError, errorTable[ServerError]
}

// StatusFor returns the HTTP status associated with an error key.
func StatusFor(key ErrorKey) int {
	_, entry := Lookup(key)
	return entry.Status
}
