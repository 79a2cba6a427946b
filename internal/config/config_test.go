package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.VideoURL != "https://youtu.be/MNn9qKG2UFI" {
		t.Errorf("VideoURL = %q", cfg.VideoURL)
	}
	if cfg.TargetItem != "car" {
		t.Errorf("TargetItem = %q, want car", cfg.TargetItem)
	}
	if cfg.Confidence != 0.45 {
		t.Errorf("Confidence = %v, want 0.45", cfg.Confidence)
	}
	if cfg.NumberOfFrames != 100 {
		t.Errorf("NumberOfFrames = %d, want 100", cfg.NumberOfFrames)
	}
	if cfg.ModelFamily != "yolov5" || cfg.ModelVersion != "yolov5s" {
		t.Errorf("model = %s/%s, want yolov5/yolov5s", cfg.ModelFamily, cfg.ModelVersion)
	}
	if cfg.NarrationEnabled {
		t.Error("NarrationEnabled should default to false")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FRAMELENS_PORT", "9090")
	t.Setenv("FRAMELENS_TARGET_ITEM", "person")
	t.Setenv("FRAMELENS_CONFIDENCE", "0.7")
	t.Setenv("FRAMELENS_MODEL_FAMILY", "yolov8")
	t.Setenv("FRAMELENS_DATABASE_URL", "postgres://localhost/framelens")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.TargetItem != "person" {
		t.Errorf("TargetItem = %q, want person", cfg.TargetItem)
	}
	if cfg.Confidence != 0.7 {
		t.Errorf("Confidence = %v, want 0.7", cfg.Confidence)
	}
	if cfg.ModelFamily != "yolov8" {
		t.Errorf("ModelFamily = %q, want yolov8", cfg.ModelFamily)
	}
	if cfg.DatabaseURL != "postgres://localhost/framelens" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestLoad_BadValue(t *testing.T) {
	t.Setenv("FRAMELENS_PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted a non-numeric port")
	}
}

func TestFrameCap(t *testing.T) {
	cfg := &Config{NumberOfFrames: 100}

	tests := []struct {
		name      string
		requested int
		want      int
	}{
		{"explicit value", 50, 50},
		{"zero falls back to default", 0, 100},
		{"negative falls back to default", -1, 100},
		{"above hard cap", 10000, HardFrameCap},
		{"exactly hard cap", HardFrameCap, HardFrameCap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.FrameCap(tt.requested); got != tt.want {
				t.Errorf("FrameCap(%d) = %d, want %d", tt.requested, got, tt.want)
			}
		})
	}
}

func TestFrameCap_DefaultAboveHardCap(t *testing.T) {
	cfg := &Config{NumberOfFrames: 900}
	if got := cfg.FrameCap(0); got != HardFrameCap {
		t.Fatalf("FrameCap(0) = %d, want hard cap %d", got, HardFrameCap)
	}
}
