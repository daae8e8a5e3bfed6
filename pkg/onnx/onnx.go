package onnx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/joeychilson/emojicoach/internal/archive"
	"github.com/joeychilson/emojicoach/internal/download"
)

const currentVersion = "1.20.0"

// Runtime manages ONNX Runtime initialization and configuration
type Runtime struct {
	gpu         GPUMode
	threads     int
	cachePath   string
	libraryPath string
	device      Device
	logger      *zap.Logger
}

// Option is a functional option for configuring Runtime
type Option func(*Runtime)

// WithGPU sets the GPU mode
func WithGPU(mode GPUMode) Option {
	return func(r *Runtime) {
		r.gpu = mode
	}
}

// WithThreads sets the number of intra-op threads per session (0 = ONNX Runtime default)
func WithThreads(n int) Option {
	return func(r *Runtime) {
		r.threads = n
	}
}

// WithCachePath sets the cache directory
func WithCachePath(path string) Option {
	return func(r *Runtime) {
		r.cachePath = path
	}
}

// WithLibraryPath sets a direct path to the ONNX Runtime library
func WithLibraryPath(path string) Option {
	return func(r *Runtime) {
		r.libraryPath = path
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// New creates a new ONNX Runtime manager. The shared library is fetched if
// needed, the environment is initialized and the execution device is chosen
// once for every session created from this runtime.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	runtime := newRuntime(opts...)

	libPath, err := runtime.EnsureRuntime(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure runtime: %w", err)
	}

	ort.SetSharedLibraryPath(libPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize environment: %w", err)
	}

	device, err := runtime.selectDevice()
	if err != nil {
		_ = ort.DestroyEnvironment()
		return nil, err
	}
	runtime.device = device

	runtime.logger.Info("ONNX Runtime initialized",
		zap.String("version", ort.GetVersion()),
		zap.String("library", libPath),
		zap.String("device", string(device)))
	return runtime, nil
}

// Prepare makes sure the shared library is present in the cache without
// initializing the environment, and returns its path
func Prepare(ctx context.Context, opts ...Option) (string, error) {
	return newRuntime(opts...).EnsureRuntime(ctx)
}

func newRuntime(opts ...Option) *Runtime {
	runtime := &Runtime{device: DeviceCPU}

	for _, opt := range opts {
		opt(runtime)
	}
	if runtime.cachePath == "" {
		runtime.cachePath = filepath.Join(os.TempDir(), "emojicoach")
	}
	if runtime.gpu == "" {
		runtime.gpu = GPUModeAuto
	}
	if runtime.logger == nil {
		runtime.logger = zap.NewNop()
	}
	return runtime
}

// RuntimeInfo contains ONNX Runtime specific information
type RuntimeInfo struct {
	Version     string
	OS          string
	Arch        string
	GPU         bool
	LibraryName string
}

// RuntimeInfo returns information about the current runtime
func (r *Runtime) RuntimeInfo() *RuntimeInfo {
	info := &RuntimeInfo{Version: currentVersion, GPU: r.gpu != GPUModeOff}

	switch runtime.GOOS {
	case "windows":
		info.OS = "win"
		info.LibraryName = "onnxruntime.dll"
	case "darwin":
		info.OS = "osx"
		info.LibraryName = fmt.Sprintf("libonnxruntime.%s.dylib", info.Version)
	default:
		info.OS = "linux"
		info.LibraryName = fmt.Sprintf("libonnxruntime.so.%s", info.Version)
	}

	switch runtime.GOARCH {
	case "amd64":
		if info.OS == "osx" {
			info.Arch = "x86_64"
		} else {
			info.Arch = "x64"
		}
	case "arm64":
		if info.OS == "linux" {
			info.Arch = "aarch64"
		} else {
			info.Arch = "arm64"
		}
	case "386":
		if info.OS == "win" {
			info.Arch = "x86"
		}
	}
	return info
}

// RuntimeURL returns the download URL for a specific runtime
func (r *Runtime) RuntimeURL(info *RuntimeInfo) string {
	base := fmt.Sprintf("https://github.com/microsoft/onnxruntime/releases/download/v%s/", info.Version)

	name := fmt.Sprintf("onnxruntime-%s-%s", info.OS, info.Arch)

	if info.GPU && (info.OS == "linux" || info.OS == "win") && info.Arch == "x64" {
		name += "-gpu"
	}

	name += fmt.Sprintf("-%s", info.Version)
	if info.OS == "win" {
		name += ".zip"
	} else {
		name += ".tgz"
	}
	return base + name
}

// EnsureRuntime downloads and extracts the ONNX Runtime library
func (r *Runtime) EnsureRuntime(ctx context.Context) (string, error) {
	runtime := r.RuntimeInfo()

	if r.libraryPath != "" {
		if !matchesPlatform(r.libraryPath, runtime) {
			return "", fmt.Errorf("specified library invalid for current platform")
		}
		if _, err := os.Stat(r.libraryPath); err != nil {
			return "", fmt.Errorf("specified library path does not exist: %w", err)
		}
		return r.libraryPath, nil
	}

	libDir := filepath.Join(r.cachePath, "runtime")
	if err := os.MkdirAll(libDir, 0755); err != nil {
		return "", err
	}

	libPath := filepath.Join(libDir, runtime.LibraryName)
	if _, err := os.Stat(libPath); err == nil {
		return libPath, nil
	}

	url := r.RuntimeURL(runtime)
	r.logger.Info("Downloading ONNX Runtime", zap.String("url", url))

	targetPath := filepath.Join(libDir, filepath.Base(url))
	if _, err := os.Stat(targetPath); err != nil {
		targetPath, err = download.DownloadFile(ctx, url, targetPath)
		if err != nil {
			return "", fmt.Errorf("failed to download runtime: %w", err)
		}
	}

	if strings.HasSuffix(targetPath, ".zip") {
		if err := archive.ExtractFromZip(targetPath, libPath, runtime.LibraryName); err != nil {
			return "", fmt.Errorf("failed to extract runtime: %w", err)
		}
	} else {
		if err := archive.ExtractFromTarGz(targetPath, libPath, runtime.LibraryName); err != nil {
			return "", fmt.Errorf("failed to extract runtime: %w", err)
		}
	}

	if err := os.Remove(targetPath); err != nil {
		return "", fmt.Errorf("failed to remove archive: %w", err)
	}
	return libPath, nil
}

// NewSessionOptions returns session options bound to the selected device.
// The caller owns the result and must Destroy it.
func (r *Runtime) NewSessionOptions() (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}

	if r.threads > 0 {
		if err := opts.SetIntraOpNumThreads(r.threads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	if r.device == DeviceCUDA {
		if err := appendCUDA(opts); err != nil {
			opts.Destroy()
			return nil, err
		}
	}
	return opts, nil
}

// Device returns the device selected when the runtime was created
func (r *Runtime) Device() Device {
	return r.device
}

// Version returns the current ONNX Runtime version
func (r *Runtime) Version() string {
	return ort.GetVersion()
}

// Close cleans up ONNX Runtime resources
func (r *Runtime) Close() error {
	return ort.DestroyEnvironment()
}

func matchesPlatform(path string, info *RuntimeInfo) bool {
	base := filepath.Base(path)
	switch info.OS {
	case "win":
		return strings.HasSuffix(base, ".dll")
	case "osx":
		return strings.HasSuffix(base, ".dylib")
	default:
		return strings.HasSuffix(base, ".so") || strings.Contains(base, ".so.")
	}
}
