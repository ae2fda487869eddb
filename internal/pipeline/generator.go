// pattern: Imperative Shell

package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"floorcast/internal/config"
)

// scriptedDemoDelay paces the offline generator so progress is visible.
const scriptedDemoDelay = 400 * time.Millisecond

// NewGenerator builds the Generator selected by cfg. The Gemini API key is
// read from the environment variable cfg.APIKeyEnv.
func NewGenerator(ctx context.Context, cfg config.PipelineConfig) (Generator, error) {
	switch cfg.Generator {
	case config.GeneratorScripted:
		return NewScripted(scriptedDemoDelay), nil
	case config.GeneratorGemini, "":
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("%s not found in environment; set it or add it to a .env file", cfg.APIKeyEnv)
		}
		return NewGemini(ctx, key, cfg.TextModel, cfg.ImageModel)
	default:
		return nil, fmt.Errorf("unknown generator %q", cfg.Generator)
	}
}
