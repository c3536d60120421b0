// File: cmd/deps.go
package cmd

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/formfill"
	"github.com/xkilldash9x/formpilot/internal/notify"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/store"
)

// ledgerProvider creates the submission ledger. Tests inject a mock ledger
// instead of a live database.
type ledgerProvider interface {
	// Create returns the ledger and a cleanup function. A nil ledger with a nil
	// error means the ledger is disabled.
	Create(ctx context.Context, cfg config.Interface) (store.Ledger, func(), error)
}

type defaultLedgerProvider struct{}

// NewLedgerProvider returns the provider that opens the configured database.
func NewLedgerProvider() ledgerProvider {
	return &defaultLedgerProvider{}
}

func (p *defaultLedgerProvider) Create(ctx context.Context, cfg config.Interface) (store.Ledger, func(), error) {
	logger := observability.GetLogger()
	ledger, err := store.Open(ctx, cfg.Database(), logger)
	if errors.Is(err, store.ErrDisabled) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := ledger.Close(); err != nil {
			logger.Warn("Failed to close ledger.", zap.Error(err))
		}
	}
	return ledger, cleanup, nil
}

// deps are the collaborators the commands build at run time.
type deps struct {
	newFactory func(cfg config.BrowserConfig, logger *zap.Logger) (formfill.SessionFactory, error)
	newSink    func(cfg config.NotifyConfig, logger *zap.Logger) (formfill.NotificationSink, error)
	ledgers    ledgerProvider
	runnerOpts []formfill.Option
}

func defaultDeps() deps {
	return deps{
		newFactory: browser.NewFactory,
		newSink: func(cfg config.NotifyConfig, logger *zap.Logger) (formfill.NotificationSink, error) {
			return notify.FromConfig(cfg, logger)
		},
		ledgers: NewLedgerProvider(),
	}
}
