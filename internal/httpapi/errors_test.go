package httpapi

import (
	"net/http"
	"testing"
)

func TestErrorTable_CodesAreStableAndGrouped(t *testing.T) {
	tests := []struct {
		key    ErrorKey
		code   int
		status int
	}{
		{AuthInvalidCredentials, 1001, http.StatusUnauthorized},
		{AuthTokenMissing, 1002, http.StatusUnauthorized},
		{AuthTokenInvalid, 1003, http.StatusUnauthorized},
		{AuthTokenExpired, 1004, http.StatusUnauthorized},
		{AuthSessionRevoked, 1005, http.StatusUnauthorized},
		{ValidationRequiredField, 2001, http.StatusBadRequest},
		{ValidationInvalidFormat, 2002, http.StatusBadRequest},
		{ValidationInvalidAmount, 2003, http.StatusBadRequest},
		{ValidationInvalidDate, 2004, http.StatusBadRequest},
		{ValidationDuplicate, 2005, http.StatusBadRequest},
		{ValidationInvalidID, 2006, http.StatusBadRequest},
		{NotFoundResource, 3001, http.StatusNotFound},
		{NotFoundUser, 3002, http.StatusNotFound},
		{NotFoundExpense, 3003, http.StatusNotFound},
		{NotFoundIncome, 3004, http.StatusNotFound},
		{NotFoundCategory, 3005, http.StatusNotFound},
		{PermissionDenied, 4001, http.StatusForbidden},
		{PermissionNotOwner, 4002, http.StatusForbidden},
		{RateLimitExceeded, 5001, http.StatusTooManyRequests},
		{RateLimitLogin, 5002, http.StatusTooManyRequests},
		{ServerError, 6001, http.StatusInternalServerError},
		{ServerDatabase, 6002, http.StatusInternalServerError},
		{ServerUnavailable, 6003, http.StatusServiceUnavailable},
		{ServerTimeout, 6004, http.StatusServiceUnavailable},
		{BusinessBudgetExceeded, 7001, http.StatusBadRequest},
		{BusinessSplitMismatch, 7002, http.StatusBadRequest},
		{BusinessInvalidOp, 7003, http.StatusConflict},
		{BusinessRecurringExists, 7004, http.StatusConflict},
		{SyncConflict, 8001, http.StatusConflict},
		{SyncFailed, 8002, http.StatusInternalServerError},
		{SyncQueueFull, 8003, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			resolved, entry := Lookup(tt.key)
			if resolved != tt.key {
				t.Errorf("Lookup resolved %q, want %q", resolved, tt.key)
			}
			if entry.Code != tt.code {
				t.Errorf("code = %d, want %d", entry.Code, tt.code)
			}
			if entry.Status != tt.status {
				t.Errorf("status = %d, want %d", entry.Status, tt.status)
			}
			if entry.Message == "" {
				t.Error("every entry needs a default message")
			}
		})
	}

	if len(tests) != len(errorTable) {
		t.Errorf("table has %d entries, test covers %d", len(errorTable), len(tests))
	}
}

func TestErrorTable_CodesAreUnique(t *testing.T) {
	seen := make(map[int]ErrorKey, len(errorTable))
	for key, entry := range errorTable {
		if other, dup := seen[entry.Code]; dup {
			t.Errorf("code %d used by both %q and %q", entry.Code, key, other)
		}
		seen[entry.Code] = key
	}
}

func TestLookup_UnknownKeyFallsBack(t *testing.T) {
	resolved, entry := Lookup("NO_SUCH_KEY")
	if resolved != ServerError {
		t.Errorf("resolved = %q, want %q", resolved, ServerError)
	}
	if entry.Code != 6001 {
		t.Errorf("code = %d, want 6001", entry.Code)
	}
	if entry.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", entry.Status)
	}
}

func TestStatusFor(t *testing.T) {
	if got := StatusFor(SyncConflict); got != http.StatusConflict {
		t.Errorf("StatusFor(SyncConflict) = %d, want 409", got)
	}
	if got := StatusFor("NO_SUCH_KEY"); got != http.StatusInternalServerError {
		t.Errorf("StatusFor(unknown) = %d, want 500", got)
	}
}
