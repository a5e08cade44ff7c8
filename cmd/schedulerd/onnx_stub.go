//go:build !onnx

package main

import (
	"fmt"

	"github.com/kunal/infer-scheduler/pkg/config"
	"github.com/kunal/infer-scheduler/pkg/runner"
)

func newONNXRunner(cfg *config.Config) (runner.Runner, error) {
	return nil, fmt.Errorf("schedulerd built without onnx support; rebuild with -tags onnx")
}
