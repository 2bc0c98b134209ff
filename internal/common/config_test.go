package common

import "testing"

func TestConfig_DefaultPort(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8080)
	}
}

func TestConfig_DefaultEngineDeploysBoth(t *testing.T) {
	cfg := NewDefaultConfig()
	if !cfg.Engine.RunsOCR() || !cfg.Engine.RunsFormParse() {
		t.Errorf("default deployed engines = %v, want both ocr and form_parse", cfg.Engine.Deployed)
	}
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("DOCPARSE_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_StateStoreURLEnvOverride(t *testing.T) {
	t.Setenv("DOCPARSE_STATE_STORE_URL", "ws://db.internal:8000/rpc")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Storage.Address != "ws://db.internal:8000/rpc" {
		t.Errorf("Storage.Address = %q, want override applied", cfg.Storage.Address)
	}
}

func TestConfig_DeployedEngineEnvOverride(t *testing.T) {
	t.Setenv("DOCPARSE_DEPLOYED_ENGINE", "ocr")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if !cfg.Engine.RunsOCR() || cfg.Engine.RunsFormParse() {
		t.Errorf("deployed engines = %v, want only ocr", cfg.Engine.Deployed)
	}
}

func TestConfig_GPUAcquireTimeoutEnvOverride(t *testing.T) {
	t.Setenv("DOCPARSE_GPU_ACQUIRE_TIMEOUT_S", "45")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if got := cfg.Engine.GetAcquireTimeout().Seconds(); got != 45 {
		t.Errorf("GetAcquireTimeout() = %vs, want 45s", got)
	}
}

func TestEngineConfig_GetAcquireTimeout_DefaultsWhenUnset(t *testing.T) {
	ec := &EngineConfig{}
	if got := ec.GetAcquireTimeout(); got.Seconds() != 300 {
		t.Errorf("GetAcquireTimeout() = %v, want 300s default", got)
	}
}

func TestConfig_MaxFileSizeEnvOverride(t *testing.T) {
	t.Setenv("DOCPARSE_MAX_FILE_SIZE_BYTES", "1048576")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Upload.MaxFileSizeBytes != 1048576 {
		t.Errorf("Upload.MaxFileSizeBytes = %d, want 1048576", cfg.Upload.MaxFileSizeBytes)
	}
}

func TestConfig_AllowedExtensionsEnvOverride(t *testing.T) {
	t.Setenv("DOCPARSE_ALLOWED_EXTENSIONS", ".png,.jpg")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if len(cfg.Upload.AllowedExtensions) != 2 || cfg.Upload.AllowedExtensions[0] != ".png" {
		t.Errorf("Upload.AllowedExtensions = %v, want [.png .jpg]", cfg.Upload.AllowedExtensions)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Environment = "production"
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true for environment=production")
	}

	cfg.Environment = "development"
	if cfg.IsProduction() {
		t.Error("IsProduction() = true, want false for environment=development")
	}
}

func TestLoadConfig_MissingFileSkipped(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/docparse.toml")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil for missing path", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080 when file missing", cfg.Server.Port)
	}
}
