// internal/browser/emulation/emulation.go
package emulation

import (
	"strings"

	cdpemulation "github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
)

// Apply builds the CDP actions that pin the page's user agent, locale and
// timezone. Date pickers render month names and "today" from these values.
// Empty fields are left at the browser default. A disabled profile yields no actions.
func Apply(cfg config.EmulationConfig, logger *zap.Logger) chromedp.Tasks {
	if !cfg.Enabled {
		return nil
	}
	logger.Debug("Applying browser emulation profile",
		zap.String("userAgent", cfg.UserAgent),
		zap.String("locale", cfg.Locale),
		zap.String("timezone", cfg.Timezone),
	)

	var tasks chromedp.Tasks
	if cfg.UserAgent != "" {
		ua := cdpemulation.SetUserAgentOverride(cfg.UserAgent)
		if lang := AcceptLanguage(cfg.Locale); lang != "" {
			ua = ua.WithAcceptLanguage(lang)
		}
		tasks = append(tasks, ua)
	}
	if cfg.Timezone != "" {
		tasks = append(tasks, cdpemulation.SetTimezoneOverride(cfg.Timezone))
	}
	if cfg.Locale != "" {
		tasks = append(tasks, cdpemulation.SetLocaleOverride().WithLocale(cfg.Locale))
	}
	return tasks
}

// Headers returns the request headers that match the profile.
func Headers(cfg config.EmulationConfig) map[string]string {
	if !cfg.Enabled {
		return nil
	}
	lang := AcceptLanguage(cfg.Locale)
	if lang == "" {
		return nil
	}
	return map[string]string{"Accept-Language": lang}
}

// AcceptLanguage derives an Accept-Language value from a BCP 47 locale:
// "en-GB" becomes "en-GB,en;q=0.9", a bare language stays as it is.
func AcceptLanguage(locale string) string {
	locale = strings.TrimSpace(strings.ReplaceAll(locale, "_", "-"))
	if locale == "" {
		return ""
	}
	base, _, found := strings.Cut(locale, "-")
	if !found || base == "" {
		return locale
	}
	return locale + "," + base + ";q=0.9"
}
