package transform

import (
	"fmt"

	"github.com/shadowfs/shadowfs/internal/config"
	shadowerrors "github.com/shadowfs/shadowfs/pkg/errors"
)

// NewStage constructs a built-in Stage from a declared TransformConfig.
// Params entries recognized per kind:
//   - gzip/zstd/brotli: "decompress" (bool); gzip also "level" (int),
//     brotli also "quality" (int)
//   - template: "context" (map of render values)
//   - everything else: no params
func NewStage(cfg config.TransformConfig) (Stage, error) {
	decompress, _ := cfg.Params["decompress"].(bool)

	switch cfg.Kind {
	case "gzip":
		level, _ := cfg.Params["level"].(int)
		return NewGzipStage(decompress, level, cfg.Fatal), nil
	case "bzip2":
		return NewBzip2Stage(cfg.Fatal), nil
	case "zstd":
		return NewZstdStage(decompress, cfg.Fatal), nil
	case "brotli":
		quality, _ := cfg.Params["quality"].(int)
		return NewBrotliStage(decompress, quality, cfg.Fatal), nil
	case "lzma":
		return NewLZMAStage(cfg.Fatal), nil
	case "markdown_html":
		return NewMarkdownStage(cfg.Fatal), nil
	case "csv_json":
		return NewCSVJSONStage(cfg.Fatal), nil
	case "json_csv":
		return NewJSONCSVStage(cfg.Fatal), nil
	case "yaml_json":
		return NewYAMLJSONStage(cfg.Fatal), nil
	case "template":
		renderCtx, _ := cfg.Params["context"].(map[string]interface{})
		return NewTemplateStage(renderCtx, cfg.Fatal), nil
	default:
		return nil, shadowerrors.New(shadowerrors.CodeTransformMissing, fmt.Sprintf("unknown transform kind %q", cfg.Kind)).
			WithComponent("transform").WithDetail("kind", cfg.Kind)
	}
}
