package ai

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCredential(t *testing.T) {
	t.Run("valid key passes through unchanged", func(t *testing.T) {
		key, err := validateCredential("gemini", "sk-test-123")
		if err != nil {
			t.Fatalf("validateCredential returned error: %v", err)
		}
		if key != "sk-test-123" {
			t.Errorf("key = %q, want %q", key, "sk-test-123")
		}
	})

	t.Run("empty key fails", func(t *testing.T) {
		_, err := validateCredential("gemini", "")
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("error = %v, want *ConfigError", err)
		}
		if ce.Provider != "gemini" {
			t.Errorf("Provider = %q, want %q", ce.Provider, "gemini")
		}
		if !strings.Contains(ce.Error(), "API key is required but not provided") {
			t.Errorf("message = %q, missing required phrase", ce.Error())
		}
	})

	t.Run("whitespace key fails", func(t *testing.T) {
		_, err := validateCredential("whisper", "   ")
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("error = %v, want *ConfigError", err)
		}
	})
}

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name      string
		input     map[string]any
		required  []string
		wantField string // "" means no error expected
	}{
		{
			name:     "all fields present",
			input:    map[string]any{"location": "2:5:3", "error_category": "tajweed"},
			required: []string{"location", "error_category"},
		},
		{
			name:      "missing field named",
			input:     map[string]any{"location": "2:5:3"},
			required:  []string{"location", "error_category"},
			wantField: "error_category",
		},
		{
			name:      "first missing field wins",
			input:     map[string]any{},
			required:  []string{"location", "error_category"},
			wantField: "location",
		},
		{
			name:      "nil value counts as missing",
			input:     map[string]any{"location": nil},
			required:  []string{"location"},
			wantField: "location",
		},
		{
			name:      "blank string counts as missing",
			input:     map[string]any{"location": "  "},
			required:  []string{"location"},
			wantField: "location",
		},
		{
			name:     "non-string values accepted",
			input:    map[string]any{"severity": 3},
			required: []string{"severity"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput(tt.input, tt.required...)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateInput returned error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestMistakeRecordValidate(t *testing.T) {
	ok := MistakeRecord{Location: "2:5:3", Category: "tajweed", SeverityLevel: 3}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}

	missing := MistakeRecord{Category: "tajweed"}
	var ve *ValidationError
	if err := missing.Validate(); !errors.As(err, &ve) || ve.Field != "location" {
		t.Errorf("Validate() = %v, want ValidationError for location", err)
	}
}

func TestSuccessResultClampsConfidence(t *testing.T) {
	res := successResult(map[string]any{"x": 1}, 1.7, map[string]any{"model": "m"})
	if !res.Success {
		t.Fatal("Success = false, want true")
	}
	if res.Confidence == nil || *res.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", res.Confidence)
	}

	res = successResult(nil, -0.3, nil)
	if *res.Confidence != 0.0 {
		t.Errorf("Confidence = %v, want 0.0", *res.Confidence)
	}
	if res.Data == nil {
		t.Error("Data should never be nil")
	}
}

func TestFailureResultShape(t *testing.T) {
	res := failureResult("audio transcription failed", errors.New("boom"))
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if len(res.Data) != 0 {
		t.Errorf("Data = %v, want empty", res.Data)
	}
	if res.Error != "audio transcription failed: boom" {
		t.Errorf("Error = %q", res.Error)
	}
	if res.Confidence != nil {
		t.Errorf("Confidence = %v, want nil", res.Confidence)
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := translateErr("gemini", "gemini request", cause)
	if !errors.Is(err, cause) {
		t.Error("translated error should wrap the cause")
	}

	// Already-classified errors pass through unchanged.
	again := translateErr("gemini", "outer", err)
	if again != err {
		t.Error("translateErr should not re-wrap a *ProviderError")
	}
}
