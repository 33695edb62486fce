package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/khawajanaqeeb/taskchat/internal/compose"
	"github.com/khawajanaqeeb/taskchat/internal/config"
	"github.com/khawajanaqeeb/taskchat/internal/conversation"
	"github.com/khawajanaqeeb/taskchat/internal/httpapi"
	"github.com/khawajanaqeeb/taskchat/internal/observability"
	"github.com/khawajanaqeeb/taskchat/internal/orchestrator"
	"github.com/khawajanaqeeb/taskchat/internal/policy"
	"github.com/khawajanaqeeb/taskchat/internal/registry"
	"github.com/khawajanaqeeb/taskchat/internal/slots"
	"github.com/khawajanaqeeb/taskchat/internal/todo"
)

type ClassifierInfo struct {
	Provider string
	Detail   string
}

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *orchestrator.Orchestrator
	Metrics      *observability.Metrics
	Classifier   ClassifierInfo

	// Cleanup should be called on shutdown to release external resources (DB pools etc).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	convStore, err := conversation.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("conversation store init failed: %w", err)
	}
	todoStore, err := todo.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = convStore.Close()
		return nil, fmt.Errorf("todo store init failed: %w", err)
	}

	reg := registry.New()
	if err := todo.NewHandlers(todoStore).Register(reg); err != nil {
		_ = todoStore.Close()
		_ = convStore.Close()
		return nil, fmt.Errorf("handler registration failed: %w", err)
	}

	classifierSetup, err := resolveClassifier(cfg)
	if err != nil {
		_ = todoStore.Close()
		_ = convStore.Close()
		return nil, err
	}

	orch := orchestrator.New(
		convStore,
		classifierSetup.classifier,
		slots.NewExtractor(),
		reg,
		compose.New(),
		metrics,
		orchestrator.Config{
			ConfidenceFloor: cfg.ConfidenceFloor,
			TieBreakEpsilon: cfg.TieBreakEpsilon,
			HistoryWindow:   cfg.HistoryWindow,
			DispatchTimeout: cfg.DispatchTimeout,
			RetryBase:       cfg.RetryBase,
			RetryCap:        cfg.RetryCap,
			Thresholds: policy.Thresholds{
				ConfirmDestructiveBelow: cfg.ConfirmDestructiveBelow,
				SlotAcceptance:          cfg.SlotAcceptance,
			},
		},
	)

	api := httpapi.New(cfg, orch, convStore, metrics)

	cleanup := func() error {
		var errs []string
		if err := todoStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := convStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orch,
		Metrics:      metrics,
		Classifier: ClassifierInfo{
			Provider: classifierSetup.resolvedProvider,
			Detail:   classifierSetup.detail,
		},
		Cleanup: cleanup,
	}, nil
}
