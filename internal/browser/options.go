// internal/browser/options.go
package browser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/formpilot/internal/config"
)

// chromeFlags resolves BrowserConfig into Chrome command-line switches
// (names without the leading dashes). Both drivers launch with this set.
func chromeFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		// Hides the "controlled by automated software" infobar.
		"enable-automation": false,
	}
	if cfg.Headless {
		flags["headless"] = true
		flags["hide-scrollbars"] = true
		flags["mute-audio"] = true
	} else {
		flags["headless"] = false
	}
	if cfg.Incognito {
		flags["incognito"] = true
	}
	if cfg.NoSandbox {
		flags["no-sandbox"] = true
	}
	if cfg.DisableDevShmUsage {
		flags["disable-dev-shm-usage"] = true
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight)
	}
	if cfg.UserAgent != "" {
		flags["user-agent"] = cfg.UserAgent
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		name, value, hasValue := strings.Cut(arg, "=")
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// DefaultAllocatorOptions builds chromedp allocator options from cfg on top of
// chromedp's own defaults.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := chromeFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
