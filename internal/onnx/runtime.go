// Package onnx wraps ONNX Runtime setup for the optional learned candidate strategy.
package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

// ErrLibraryNotFound is returned when no ONNX Runtime shared library can be located.
var ErrLibraryNotFound = errors.New("onnx runtime library not found")

// RuntimeConfig selects the shared library and execution provider.
type RuntimeConfig struct {
	LibraryPath string `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	UseGPU      bool   `mapstructure:"use_gpu" yaml:"use_gpu" json:"use_gpu"`
	DeviceID    int    `mapstructure:"device_id" yaml:"device_id" json:"device_id"`
	NumThreads  int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// Validate checks the runtime configuration.
func (c RuntimeConfig) Validate() error {
	if c.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", c.DeviceID)
	}
	if c.NumThreads < 0 {
		return fmt.Errorf("num threads must be non-negative, got %d", c.NumThreads)
	}
	return nil
}

var initMu sync.Mutex

// Initialize resolves the shared library and initializes the ONNX Runtime
// environment once per process.
func Initialize(cfg RuntimeConfig) error {
	initMu.Lock()
	defer initMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return nil
	}
	path, err := ResolveLibraryPath(cfg)
	if err != nil {
		return err
	}
	onnxruntime_go.SetSharedLibraryPath(path)
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	slog.Debug("ONNX Runtime initialized", "library", path, "gpu", cfg.UseGPU)
	return nil
}

// ResolveLibraryPath returns the first existing library among the configured
// path, well-known system locations and the project-local onnxruntime directory.
func ResolveLibraryPath(cfg RuntimeConfig) (string, error) {
	if cfg.LibraryPath != "" {
		if fileExists(cfg.LibraryPath) {
			return cfg.LibraryPath, nil
		}
		return "", fmt.Errorf("%w: %s", ErrLibraryNotFound, cfg.LibraryPath)
	}

	libName, err := libraryName(runtime.GOOS)
	if err != nil {
		return "", err
	}
	for _, p := range systemLibraryPaths(libName, cfg.UseGPU) {
		if fileExists(p) {
			return p, nil
		}
	}
	if root, err := findProjectRoot(); err == nil {
		if cfg.UseGPU {
			if p := filepath.Join(root, "onnxruntime", "gpu", "lib", libName); fileExists(p) {
				return p, nil
			}
		}
		if p := filepath.Join(root, "onnxruntime", "lib", libName); fileExists(p) {
			return p, nil
		}
	}
	return "", ErrLibraryNotFound
}

// NewSessionOptions builds session options for cfg. The caller must Destroy them.
func NewSessionOptions(cfg RuntimeConfig) (*onnxruntime_go.SessionOptions, error) {
	opts, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			_ = opts.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}
	if cfg.UseGPU {
		if err := appendCUDA(opts, cfg.DeviceID); err != nil {
			// CPU execution still works without the CUDA provider.
			slog.Warn("CUDA provider unavailable, using CPU", "error", err)
		}
	}
	return opts, nil
}

func appendCUDA(opts *onnxruntime_go.SessionOptions, deviceID int) error {
	cudaOpts, err := onnxruntime_go.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer func() {
		if err := cudaOpts.Destroy(); err != nil {
			slog.Warn("failed to destroy CUDA provider options", "error", err)
		}
	}()
	if err := cudaOpts.Update(map[string]string{"device_id": strconv.Itoa(deviceID)}); err != nil {
		return err
	}
	return opts.AppendExecutionProviderCUDA(cudaOpts)
}

func libraryName(goos string) (string, error) {
	switch goos {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
}

func systemLibraryPaths(libName string, useGPU bool) []string {
	paths := []string{
		filepath.Join("/usr/local/lib", libName),
		filepath.Join("/usr/lib", libName),
		filepath.Join("/opt/onnxruntime/cpu/lib", libName),
	}
	if useGPU {
		paths = append([]string{filepath.Join("/opt/onnxruntime/gpu/lib", libName)}, paths...)
	}
	return paths
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	for {
		if fileExists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root")
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
