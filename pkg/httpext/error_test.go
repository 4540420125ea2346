package httpext

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestJsonError(t *testing.T) {
	rec := httptest.NewRecorder()

	JsonError(rec, "Unauthorized", 401)

	if rec.Code != 401 {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Error != "Unauthorized" {
		t.Errorf("error = %q", body.Error)
	}
}
