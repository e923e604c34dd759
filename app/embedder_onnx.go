//go:build onnx

package app

import (
	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/onnx"
)

func newONNXEmbedder(cfg config.Config) (memory.Embedder, func() error, error) {
	e, err := onnx.New(onnx.Config{
		ModelPath:     cfg.ONNXModelPath,
		TokenizerPath: cfg.ONNXTokenizer,
		LibraryPath:   cfg.ONNXLibrary,
		Dimensions:    cfg.EmbeddingDim,
	})
	if err != nil {
		return nil, nil, err
	}
	return e, e.Close, nil
}
