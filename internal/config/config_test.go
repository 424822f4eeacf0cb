package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("DB_OP_TIMEOUT")
	os.Unsetenv("DB_MAX_OPEN_CONNS")
	os.Unsetenv("DB_MAX_IDLE_CONNS")
	os.Unsetenv("DB_CONN_MAX_LIFETIME")
	os.Unsetenv("DB_CONN_MAX_IDLE_TIME")
	os.Unsetenv("HTTP_SHUTDOWN_TIMEOUT")
	os.Unsetenv("TICK_INTERVAL")
	os.Unsetenv("DOWNSTREAM_TIMEOUT")
	os.Unsetenv("DEFAULT_LANGUAGE")
	os.Unsetenv("TIMEZONE")
	os.Unsetenv("ONE_TIME_PAST_POLICY")

	cfg := Load()

	if cfg.DBOpTimeout != 5*time.Second {
		t.Errorf("DBOpTimeout: expected 5s, got %v", cfg.DBOpTimeout)
	}
	if cfg.DBMaxOpenConns != 25 {
		t.Errorf("DBMaxOpenConns: expected 25, got %d", cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns != 5 {
		t.Errorf("DBMaxIdleConns: expected 5, got %d", cfg.DBMaxIdleConns)
	}
	if cfg.DBConnMaxLifetime != 30*time.Minute {
		t.Errorf("DBConnMaxLifetime: expected 30m, got %v", cfg.DBConnMaxLifetime)
	}
	if cfg.HTTPShutdownTimeout != 10*time.Second {
		t.Errorf("HTTPShutdownTimeout: expected 10s, got %v", cfg.HTTPShutdownTimeout)
	}
	if cfg.TickInterval != time.Second {
		t.Errorf("TickInterval: expected 1s, got %v", cfg.TickInterval)
	}
	if cfg.DownstreamTimeout != 10*time.Second {
		t.Errorf("DownstreamTimeout: expected 10s, got %v", cfg.DownstreamTimeout)
	}
	if cfg.DefaultLanguage != "ko" {
		t.Errorf("DefaultLanguage: expected ko, got %q", cfg.DefaultLanguage)
	}
	if cfg.Timezone != "Asia/Seoul" {
		t.Errorf("Timezone: expected Asia/Seoul, got %q", cfg.Timezone)
	}
	if cfg.OneTimePastPolicy != "reject" {
		t.Errorf("OneTimePastPolicy: expected reject, got %q", cfg.OneTimePastPolicy)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("DB_OP_TIMEOUT", "10s")
	os.Setenv("DB_MAX_OPEN_CONNS", "50")
	os.Setenv("TICK_INTERVAL", "500ms")
	os.Setenv("TTS_SERVICE_URL", "http://tts.internal:5000")
	os.Setenv("ONE_TIME_PAST_POLICY", "allow")
	defer func() {
		os.Unsetenv("DB_OP_TIMEOUT")
		os.Unsetenv("DB_MAX_OPEN_CONNS")
		os.Unsetenv("TICK_INTERVAL")
		os.Unsetenv("TTS_SERVICE_URL")
		os.Unsetenv("ONE_TIME_PAST_POLICY")
	}()

	cfg := Load()

	if cfg.DBOpTimeout != 10*time.Second {
		t.Errorf("DBOpTimeout: expected 10s, got %v", cfg.DBOpTimeout)
	}
	if cfg.DBMaxOpenConns != 50 {
		t.Errorf("DBMaxOpenConns: expected 50, got %d", cfg.DBMaxOpenConns)
	}
	if cfg.TickInterval != 500*time.Millisecond {
		t.Errorf("TickInterval: expected 500ms, got %v", cfg.TickInterval)
	}
	if cfg.TTSServiceURL != "http://tts.internal:5000" {
		t.Errorf("TTSServiceURL: got %q", cfg.TTSServiceURL)
	}
	if cfg.OneTimePastPolicy != "allow" {
		t.Errorf("OneTimePastPolicy: expected allow, got %q", cfg.OneTimePastPolicy)
	}
}

func TestLoad_WorkerAndBufferDefaults(t *testing.T) {
	os.Unsetenv("DISPATCH_WORKERS")
	os.Unsetenv("FIRING_BUS_BUFFER")

	cfg := Load()

	if cfg.DispatchWorkers != 4 {
		t.Errorf("DispatchWorkers: expected 4, got %d", cfg.DispatchWorkers)
	}
	if cfg.FiringBusBuffer != 64 {
		t.Errorf("FiringBusBuffer: expected 64, got %d", cfg.FiringBusBuffer)
	}
}

func TestLoad_BufferInvalidFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"negative", "-1"},
		{"zero", "0"},
		{"non-numeric", "abc"},
		{"float", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("FIRING_BUS_BUFFER", tt.value)
			defer os.Unsetenv("FIRING_BUS_BUFFER")

			cfg := Load()

			if cfg.FiringBusBuffer != 64 {
				t.Errorf("FiringBusBuffer: expected fallback to 64 for %q, got %d", tt.value, cfg.FiringBusBuffer)
			}
		})
	}
}

func TestLoad_PortFallback(t *testing.T) {
	os.Unsetenv("HTTP_ADDR")
	os.Setenv("PORT", "9090")
	defer os.Unsetenv("PORT")

	cfg := Load()

	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr: expected :9090, got %q", cfg.HTTPAddr)
	}
}

func TestMaskedJSON_MasksDatabaseURL(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://user:secret@db:5432/vtlr")
	defer os.Unsetenv("DATABASE_URL")

	cfg := Load()
	data, err := cfg.MaskedJSON()
	if err != nil {
		t.Fatalf("MaskedJSON failed: %v", err)
	}

	json := string(data)
	if containsString(json, "secret") {
		t.Error("MaskedJSON leaked the database password")
	}
	if !containsString(json, `"postgres://***"`) {
		t.Error("MaskedJSON did not keep the URI scheme")
	}
	if !containsString(json, `"tts_service_url"`) {
		t.Error("MaskedJSON missing tts_service_url field")
	}
	if !containsString(json, `"one_time_past_policy"`) {
		t.Error("MaskedJSON missing one_time_past_policy field")
	}
}

func containsString(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
