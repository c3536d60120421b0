// internal/browser/factory.go
package browser

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/formfill"
)

// NewFactory returns the SessionFactory for the configured driver.
func NewFactory(cfg config.BrowserConfig, logger *zap.Logger) (formfill.SessionFactory, error) {
	switch cfg.Driver {
	case "", config.DriverChromedp:
		return NewChromeFactory(cfg, logger), nil
	case config.DriverRod:
		return NewRodFactory(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}
