//go:build !onnx

package app

import (
	"fmt"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
)

func newONNXEmbedder(config.Config) (memory.Embedder, func() error, error) {
	return nil, nil, fmt.Errorf("onnx embedder unavailable: rebuild with -tags onnx")
}
