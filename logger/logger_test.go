package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		wantErr    bool
	}{
		{
			name:       "JSON output mode",
			jsonOutput: true,
			wantErr:    false,
		},
		{
			name:       "Console output mode",
			jsonOutput: false,
			wantErr:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset global logger
			Logger = nil
			JSONOutput = false

			err := Initialize(tt.jsonOutput)
			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if Logger == nil {
					t.Error("Initialize() did not set global Logger")
				}
				if JSONOutput != tt.jsonOutput {
					t.Errorf("Initialize() JSONOutput = %v, want %v", JSONOutput, tt.jsonOutput)
				}
			}

			// Cleanup
			if Logger != nil {
				Logger.Sync()
				Logger = nil
			}
		})
	}
}

func TestInitializeWithLevel(t *testing.T) {
	Logger = nil
	if err := InitializeWithLevel(false, zapcore.DebugLevel); err != nil {
		t.Fatalf("InitializeWithLevel() error = %v", err)
	}
	if Logger == nil {
		t.Fatal("InitializeWithLevel() did not set global Logger")
	}
	if !Logger.Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Error("InitializeWithLevel(DebugLevel) should enable debug logging")
	}

	Logger.Sync()
	Logger = nil
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{VerbosityUser, zapcore.WarnLevel},
		{VerbosityInfo, zapcore.InfoLevel},
		{VerbosityDebug, zapcore.DebugLevel},
		{VerbosityTrace, zapcore.DebugLevel},
		{VerbosityAll, zapcore.DebugLevel},
		{99, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		if got := VerbosityToLevel(tt.verbosity); got != tt.want {
			t.Errorf("VerbosityToLevel(%d) = %v, want %v", tt.verbosity, got, tt.want)
		}
	}
}

func TestShouldOutput(t *testing.T) {
	// Level 0 categories visible at every verbosity
	if !ShouldOutput(VerbosityUser, OutputErrors) {
		t.Error("errors must be visible at verbosity 0")
	}
	// Poll ticks only at -vvv and above
	if ShouldOutput(VerbosityDebug, OutputPollTicks) {
		t.Error("poll ticks must be hidden at -vv")
	}
	if !ShouldOutput(VerbosityTrace, OutputPollTicks) {
		t.Error("poll ticks must be visible at -vvv")
	}
	// Response bodies only at -vvvv
	if ShouldOutput(VerbosityTrace, OutputResponseBody) {
		t.Error("response bodies must be hidden at -vvv")
	}
	if !ShouldOutput(VerbosityAll, OutputResponseBody) {
		t.Error("response bodies must be visible at -vvvv")
	}
}

func TestCleanup(t *testing.T) {
	tests := []struct {
		name        string
		setupLogger bool
	}{
		{
			name:        "Cleanup with initialized logger",
			setupLogger: true,
		},
		{
			name:        "Cleanup with nil logger (should not panic)",
			setupLogger: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setupLogger {
				Logger = newTestLogger(t)
			} else {
				Logger = nil
			}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Cleanup() panicked unexpectedly: %v", r)
				}
			}()

			Cleanup()

			if tt.setupLogger && Logger == nil {
				t.Error("Cleanup() should not nil out the logger")
			}

			Logger = nil
		})
	}
}

// newTestLogger creates a logger for testing without modifying global state
func newTestLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)

	zapLogger, err := config.Build()
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}

	return zapLogger.Sugar()
}

// TestLoggingFunctions tests the package-level logging functions
func TestLoggingFunctions(t *testing.T) {
	Logger = newTestLogger(t)
	defer func() {
		if Logger != nil {
			Logger.Sync()
			Logger = nil
		}
	}()

	// Test all logging functions (should not panic)
	t.Run("Info functions", func(t *testing.T) {
		Info("test")
		Infof("test %s", "format")
		Infow("test", "key", "value")
	})

	t.Run("Error functions", func(t *testing.T) {
		Error("test")
		Errorf("test %s", "format")
		Errorw("test", "key", "value")
	})

	t.Run("Warn functions", func(t *testing.T) {
		Warn("test")
		Warnf("test %s", "format")
		Warnw("test", "key", "value")
	})

	t.Run("Debug functions", func(t *testing.T) {
		Debug("test")
		Debugf("test %s", "format")
		Debugw("test", "key", "value")
	})

	t.Run("With nil logger (should not panic)", func(t *testing.T) {
		Logger = nil

		Info("test")
		Infof("test %s", "format")
		Infow("test", "key", "value")
		Error("test")
		Errorf("test %s", "format")
		Errorw("test", "key", "value")
		Warn("test")
		Warnf("test %s", "format")
		Warnw("test", "key", "value")
		Debug("test")
		Debugf("test %s", "format")
		Debugw("test", "key", "value")
	})
}

// TestSymbolHelpers ensures the glyph wrappers never panic, with or without a
// configured logger.
func TestSymbolHelpers(t *testing.T) {
	Logger = newTestLogger(t)
	defer func() {
		Logger = nil
	}()

	RunInfow("run event", FieldRunID, "RUN_test")
	OpenInfow("startup")
	CloseInfow("shutdown")
	SyncDebugw("foreign write")
	SyncWarnw("poll failed")

	Logger = zap.NewNop().Sugar()
	RunInfow("still fine")
	SyncDebugw("still fine")
}

// BenchmarkInfow benchmarks structured Info logging
func BenchmarkInfow(b *testing.B) {
	config := zap.NewDevelopmentConfig()
	zapLogger, err := config.Build()
	if err != nil {
		b.Fatal(err)
	}
	Logger = zapLogger.Sugar()
	defer func() {
		Logger.Sync()
		Logger = nil
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Infow("test message", "iteration", i, "key", "value")
	}
}
