package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env, level string
		want       zapcore.Level
		wantErr    bool
	}{
		{"prod", "", zapcore.InfoLevel, false},
		{"local", "", zapcore.DebugLevel, false},
		{"dev", "warn", zapcore.WarnLevel, false},
		{"test", "error", zapcore.ErrorLevel, false},
		{"staging", "", 0, true},
		{"local", "loud", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			l, err := NewLogger(tt.env, tt.level)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLogger err = %v", err)
			}
			if tt.wantErr {
				return
			}
			if !l.Core().Enabled(tt.want) {
				t.Errorf("level %s disabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && l.Core().Enabled(tt.want-1) {
				t.Errorf("level %s enabled", tt.want-1)
			}
		})
	}
}

func TestContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext must never return nil")
	}

	core, logs := observer.New(zap.InfoLevel)
	ctx := ContextWithLogger(context.Background(), zap.New(core))
	ctx = WithFields(ctx, zap.String("request_id", "r1"))
	FromContext(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 || entries[0].ContextMap()["request_id"] != "r1" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestFromContextOr(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	fallback := zap.New(core).With(zap.String("component", "index"))

	FromContextOr(context.Background(), fallback).Info("from fallback")
	reqCtx := ContextWithLogger(context.Background(), zap.New(core).With(zap.String("request_id", "r2")))
	FromContextOr(reqCtx, fallback).Info("from request")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].ContextMap()["component"] != "index" {
		t.Errorf("fallback fields = %v", entries[0].ContextMap())
	}
	if entries[1].ContextMap()["request_id"] != "r2" {
		t.Errorf("request fields = %v", entries[1].ContextMap())
	}
	if FromContextOr(context.Background(), nil) == nil {
		t.Error("nil fallback must become no-op")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) = nil")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Error("OrNop replaced a non-nil logger")
	}
}
