package config

import (
	"fmt"
	"strings"
	"time"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy of cfg and what is wrong
// with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	out.Browser.Mode = strings.ToLower(strings.TrimSpace(out.Browser.Mode))
	if out.Browser.Mode == "" {
		out.Browser.Mode = "http"
	}

	// drop blank and repeated searches
	seen := map[string]bool{}
	var searches []Search
	for _, s := range out.Searches {
		s.Job = strings.TrimSpace(s.Job)
		s.Location = strings.TrimSpace(s.Location)
		if s.Job == "" {
			continue
		}
		key := strings.ToLower(s.Job + "\x00" + s.Location)
		if seen[key] {
			res.addWarn("duplicate search %q in %q ignored", s.Job, s.Location)
			continue
		}
		seen[key] = true
		searches = append(searches, s)
	}
	out.Searches = searches

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}
	if strings.TrimSpace(out.App.DataDir) == "" {
		res.addErr("app.data_dir is required")
	}

	switch out.Browser.Mode {
	case "http":
	case "rod":
		if out.Browser.CookiesPath == "" && out.Credentials.Account == "" {
			res.addWarn("browser.mode=rod without cookies_path or credentials.account; pages are fetched as guest")
		}
	default:
		res.addErr("browser.mode must be http or rod, got %q", out.Browser.Mode)
	}
	if out.Browser.Timeout < 0 {
		res.addErr("browser.timeout must be >= 0")
	}

	if out.Scrape.Delay < 0 || out.Scrape.ListingDelay < 0 {
		res.addErr("scrape delays must be >= 0")
	} else if out.Scrape.Delay > 0 && out.Scrape.Delay < 200*time.Millisecond {
		res.addWarn("scrape.delay is very low (%s) and may cause rate limits.", out.Scrape.Delay)
	}
	if out.Scrape.Workers < 1 {
		res.addErr("scrape.workers must be >= 1")
	}
	if out.Scrape.MaxRate < 0 {
		res.addErr("scrape.max_rate must be >= 0")
	}
	if out.Scrape.Retries < 0 {
		res.addErr("scrape.retries must be >= 0")
	}
	if out.Scrape.MaxPages < 1 || out.Scrape.MaxPages > 40 {
		res.addErr("scrape.max_pages must be 1..40")
	}

	for i, s := range out.Searches {
		if s.Pages < 0 {
			res.addErr("searches[%d].pages must be >= 0", i)
		} else if s.Pages > out.Scrape.MaxPages && out.Scrape.MaxPages > 0 {
			res.addWarn("searches[%d].pages=%d is above scrape.max_pages and will be clamped", i, s.Pages)
		}
	}
	if len(out.Searches) == 0 {
		res.addWarn("no searches configured; scrape runs need -job on the command line")
	}

	if out.Schedule.Interval != 0 && out.Schedule.Interval < time.Minute {
		res.addErr("schedule.interval must be 0 (off) or >= 1m")
	}

	if out.Paths.SnapshotDir == "" {
		res.addErr("paths.snapshot_dir is required")
	}
	if out.Paths.Rules == "" {
		res.addErr("paths.rules is required")
	}

	if out.Normalize.Workers < 1 {
		res.addErr("normalize.workers must be >= 1")
	}
	if c := out.Normalize.MinLangConfidence; c < 0 || c > 1 {
		res.addErr("normalize.min_lang_confidence must be within 0..1")
	}

	if (out.Telegram.Token == "") != (out.Telegram.ChatID == 0) {
		res.addWarn("telegram needs both token and chat_id; reporting disabled")
	}

	return out, res
}
