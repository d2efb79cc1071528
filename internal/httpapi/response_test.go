package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewErrorResponse_CustomMessageOverridesMessageOnly(t *testing.T) {
	resp := NewErrorResponse(ValidationRequiredField, "X is required", nil)

	if resp.Success {
		t.Error("error response must have success=false")
	}
	if resp.Error == nil {
		t.Fatal("error response must carry an error body")
	}
	if resp.Error.Code != 2001 {
		t.Errorf("code = %d, want 2001", resp.Error.Code)
	}
	if resp.Error.Message != "X is required" {
		t.Errorf("message = %q, want the custom message", resp.Error.Message)
	}
	if resp.Error.Type != "VALIDATION_REQUIRED_FIELD" {
		t.Errorf("type = %q, want VALIDATION_REQUIRED_FIELD", resp.Error.Type)
	}
	if resp.Error.Details != nil {
		t.Error("details should be absent when nil")
	}
}

func TestNewErrorResponse_DefaultMessage(t *testing.T) {
	resp := NewErrorResponse(SyncQueueFull, "", nil)

	if resp.Error.Message != "Offline sync queue is full" {
		t.Errorf("message = %q, want the table default", resp.Error.Message)
	}
	if resp.Error.Code != 8003 {
		t.Errorf("code = %d, want 8003", resp.Error.Code)
	}
}

func TestNewErrorResponse_UnknownKey(t *testing.T) {
	resp := NewErrorResponse("NO_SUCH_KEY", "", nil)

	if resp.Error.Code != 6001 {
		t.Errorf("code = %d, want generic 6001", resp.Error.Code)
	}
	if resp.Error.Type != string(ServerError) {
		t.Errorf("type = %q, want SERVER_ERROR", resp.Error.Type)
	}
}

func TestNewErrorResponse_Details(t *testing.T) {
	details := []string{"amount is required", "category cannot be blank"}
	resp := NewErrorResponse(ValidationInvalidFormat, "", details)

	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var decoded struct {
		Success bool `json:"success"`
		Error   struct {
			Code    int      `json:"code"`
			Details []string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(decoded.Error.Details) != 2 {
		t.Errorf("details = %v, want both messages", decoded.Error.Details)
	}
}

func TestNewSuccessResponse(t *testing.T) {
	resp := NewSuccessResponse(map[string]int{"count": 3}, "done")

	if !resp.Success {
		t.Error("success response must have success=true")
	}
	if resp.Error != nil {
		t.Error("success response must not carry an error body")
	}
	if resp.Message != "done" {
		t.Errorf("message = %q, want done", resp.Message)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, AuthTokenExpired, "", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Success || resp.Error == nil || resp.Error.Code != 1004 {
		t.Errorf("body = %+v, want error 1004", resp)
	}
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, "payload", "")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !resp.Success {
		t.Error("body should be a success envelope")
	}
}
