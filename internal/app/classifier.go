package app

import (
	"fmt"
	"strings"

	"github.com/khawajanaqeeb/taskchat/internal/config"
	"github.com/khawajanaqeeb/taskchat/internal/intent"
)

type classifierSetup struct {
	classifier       intent.Classifier
	resolvedProvider string
	detail           string
}

// resolveClassifier picks the intent backend. "auto" uses OpenAI when an API
// key is configured and the lexical rules otherwise.
func resolveClassifier(cfg config.Config) (classifierSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.ClassifierProvider))
	if mode == "" {
		mode = "auto"
	}

	newOpenAI := func() classifierSetup {
		c := intent.NewOpenAIClassifier(intent.OpenAIClassifierConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Floor:   cfg.ConfidenceFloor,
			Epsilon: cfg.TieBreakEpsilon,
		})
		return classifierSetup{
			classifier:       c,
			resolvedProvider: "openai",
			detail:           fmt.Sprintf("openai (%s)", cfg.OpenAIModel),
		}
	}
	newRules := func() classifierSetup {
		return classifierSetup{
			classifier:       intent.NewRuleClassifier(cfg.ConfidenceFloor, cfg.TieBreakEpsilon),
			resolvedProvider: "rules",
			detail:           "lexical rules",
		}
	}

	switch mode {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return classifierSetup{}, fmt.Errorf("classifier provider openai requires OPENAI_API_KEY")
		}
		return newOpenAI(), nil
	case "rules":
		return newRules(), nil
	case "auto":
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return newOpenAI(), nil
		}
		return newRules(), nil
	default:
		return classifierSetup{}, fmt.Errorf("unknown classifier provider %q", cfg.ClassifierProvider)
	}
}
