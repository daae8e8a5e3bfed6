package onnx

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// GPUMode controls whether sessions run on the GPU
type GPUMode string

const (
	// GPUModeAuto uses CUDA when it can be attached, CPU otherwise
	GPUModeAuto GPUMode = "auto"
	// GPUModeOn requires CUDA
	GPUModeOn GPUMode = "on"
	// GPUModeOff always uses the CPU
	GPUModeOff GPUMode = "off"
)

// ParseGPUMode parses a GPU mode name. An empty name selects auto.
func ParseGPUMode(name string) (GPUMode, error) {
	switch GPUMode(name) {
	case "", GPUModeAuto:
		return GPUModeAuto, nil
	case GPUModeOn, "cuda", "true":
		return GPUModeOn, nil
	case GPUModeOff, "cpu", "false":
		return GPUModeOff, nil
	}
	return "", fmt.Errorf("unknown gpu mode %q (expected auto, on or off)", name)
}

// Device is the execution device chosen for inference
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// selectDevice probes the CUDA execution provider according to the GPU mode
func (r *Runtime) selectDevice() (Device, error) {
	if r.gpu == GPUModeOff {
		return DeviceCPU, nil
	}

	err := probeCUDA()
	if err == nil {
		return DeviceCUDA, nil
	}
	if r.gpu == GPUModeOn {
		return "", fmt.Errorf("failed to enable CUDA: %w", err)
	}

	r.logger.Info("CUDA unavailable, using CPU", zap.Error(err))
	return DeviceCPU, nil
}

func probeCUDA() error {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	return appendCUDA(opts)
}

func appendCUDA(opts *ort.SessionOptions) error {
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options: %w", err)
	}
	defer cudaOpts.Destroy()

	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return fmt.Errorf("failed to append CUDA provider: %w", err)
	}
	return nil
}
