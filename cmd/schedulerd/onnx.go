//go:build onnx

package main

import (
	"github.com/kunal/infer-scheduler/pkg/config"
	"github.com/kunal/infer-scheduler/pkg/runner"
)

func newONNXRunner(cfg *config.Config) (runner.Runner, error) {
	return runner.NewONNX(cfg.ONNXModelPath, cfg.ONNXUseGPU)
}
