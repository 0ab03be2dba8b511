package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// baseConfig keeps scenarios offline: no LLM calls and no Tesseract.
const baseConfig = `classifier:
  provider: fallback
ocr:
  engine: none
`

// isolatedEnv lists variables that would leak host configuration into a scenario.
var isolatedEnv = []string{"OPENAI_API_KEY", "DATABASE_URL", "REDIS_URL"}

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastCommand string
	LastOutput  string
	LastStderr  string
	LastError   error

	// Test environment
	TempDir    string
	ConfigFile string

	// HTTP state
	API                *APIServer
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastPDFName        string

	savedEnv map[string]*string
}

// NewTestContext creates a scenario context with its own temp directory and
// config file.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "elscan-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	ctx := &TestContext{
		TempDir:    tempDir,
		ConfigFile: filepath.Join(tempDir, "elscan.yaml"),
		savedEnv:   make(map[string]*string),
	}
	if err := os.WriteFile(ctx.ConfigFile, []byte(baseConfig), 0o600); err != nil {
		_ = os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to write config: %w", err)
	}
	for _, name := range isolatedEnv {
		if err := ctx.SetEnv(name, ""); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}

// SetEnv sets a process environment variable until Cleanup.
func (testCtx *TestContext) SetEnv(name, value string) error {
	if _, saved := testCtx.savedEnv[name]; !saved {
		if old, ok := os.LookupEnv(name); ok {
			testCtx.savedEnv[name] = &old
		} else {
			testCtx.savedEnv[name] = nil
		}
	}
	return os.Setenv(name, value)
}

// Path resolves a scenario file name inside the temp directory.
func (testCtx *TestContext) Path(name string) string {
	return filepath.Join(testCtx.TempDir, name)
}

// substitute replaces {tmp} with the scenario temp directory.
func (testCtx *TestContext) substitute(s string) string {
	return strings.ReplaceAll(s, "{tmp}", testCtx.TempDir)
}

// Cleanup stops the API server, restores the environment and removes the
// temp directory.
func (testCtx *TestContext) Cleanup() error {
	var errs []error
	if testCtx.API != nil {
		testCtx.API.Close()
		testCtx.API = nil
	}
	for name, old := range testCtx.savedEnv {
		var err error
		if old == nil {
			err = os.Unsetenv(name)
		} else {
			err = os.Setenv(name, *old)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}
	return errors.Join(errs...)
}
