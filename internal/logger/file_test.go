package logger

import "testing"

func TestRotatingFile(t *testing.T) {
	tests := []struct {
		name     string
		cfg      LoggingConfig
		wantPath string
		wantSize int
		wantKeep int
	}{
		{"defaults", LoggingConfig{}, defaultLogFile, defaultLogSizeMB, defaultLogFiles},
		{"configured", LoggingConfig{FilePath: "/var/log/mailrelay/api.log", MaxSizeMB: 10, MaxFiles: 2}, "/var/log/mailrelay/api.log", 10, 2},
		{"negative size", LoggingConfig{FilePath: "x.log", MaxSizeMB: -1, MaxFiles: 3}, "x.log", defaultLogSizeMB, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := rotatingFile(tt.cfg)
			if out.Filename != tt.wantPath || out.MaxSize != tt.wantSize || out.MaxBackups != tt.wantKeep {
				t.Errorf("unexpected rotation settings: %s %dMB x%d", out.Filename, out.MaxSize, out.MaxBackups)
			}
			if !out.Compress || !out.LocalTime {
				t.Error("expected compressed rotations with local timestamps")
			}
		})
	}
}
