package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"ok", http.StatusOK, zapcore.InfoLevel},
		{"implicit ok", 0, zapcore.InfoLevel},
		{"client error", http.StatusConflict, zapcore.WarnLevel},
		{"server error", http.StatusInternalServerError, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			handler := Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				w.Write([]byte("x"))
			}))

			req := httptest.NewRequest("POST", "/api/v1/roster?x=1", nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("expected 1 log entry, got %d", len(entries))
			}
			if entries[0].Level != tt.level {
				t.Errorf("level = %s, want %s", entries[0].Level, tt.level)
			}
			fields := entries[0].ContextMap()
			if fields["path"] != "/api/v1/roster" || fields["method"] != "POST" || fields["query"] != "x=1" {
				t.Errorf("unexpected fields %v", fields)
			}
		})
	}
}
