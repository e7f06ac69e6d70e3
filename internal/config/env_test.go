package config

import (
	"testing"

	"github.com/rivulet-labs/convcore/internal/tools"
)

func TestLoadRuntimeConfigDefaults(t *testing.T) {
	t.Setenv("CONVCORE_OLLAMA_BASE_URL", "")
	t.Setenv("CONVCORE_TEST_MODE", "")
	t.Setenv("CONVCORE_APPROVAL_MODE", "")

	rc := LoadRuntimeConfig()
	if rc.OllamaBaseURL != defaultOllamaBaseURL {
		t.Fatalf("OllamaBaseURL = %q, want default %q", rc.OllamaBaseURL, defaultOllamaBaseURL)
	}
	if rc.TestMode {
		t.Fatalf("TestMode = true, want false by default")
	}
	if rc.ApprovalMode != tools.ApprovalAuto {
		t.Fatalf("ApprovalMode = %q, want %q", rc.ApprovalMode, tools.ApprovalAuto)
	}
}

func TestLoadRuntimeConfigOverrides(t *testing.T) {
	t.Setenv("CONVCORE_OLLAMA_BASE_URL", "http://example.local:9999")
	t.Setenv("CONVCORE_TEST_MODE", "true")
	t.Setenv("CONVCORE_APPROVAL_MODE", "yolo")

	rc := LoadRuntimeConfig()
	if rc.OllamaBaseURL != "http://example.local:9999" {
		t.Fatalf("OllamaBaseURL = %q, want override", rc.OllamaBaseURL)
	}
	if !rc.TestMode {
		t.Fatalf("TestMode = false, want true")
	}
	if rc.ApprovalMode != tools.ApprovalYOLO {
		t.Fatalf("ApprovalMode = %q, want %q", rc.ApprovalMode, tools.ApprovalYOLO)
	}
}

func TestLoadRuntimeConfigRejectsUnknownApprovalMode(t *testing.T) {
	t.Setenv("CONVCORE_APPROVAL_MODE", "bogus")

	rc := LoadRuntimeConfig()
	if rc.ApprovalMode != tools.ApprovalAuto {
		t.Fatalf("ApprovalMode = %q, want fallback to %q", rc.ApprovalMode, tools.ApprovalAuto)
	}
}

func TestManagerSaveNoopInTestMode(t *testing.T) {
	m, err := NewManagerWithRuntime(RuntimeConfig{TestMode: true})
	if err != nil {
		t.Fatalf("NewManagerWithRuntime: %v", err)
	}
	if err := m.Save(&Config{Model: "should-not-persist"}); err != nil {
		t.Fatalf("Save in test mode returned error: %v", err)
	}
	if m.Exists() {
		t.Fatalf("Exists() = true after no-op Save in test mode")
	}
}
