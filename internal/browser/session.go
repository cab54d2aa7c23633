package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jobharvest/internal/domain"
	"jobharvest/internal/scrape/types"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

var ErrLoginFailed = errors.New("login failed")

type SessionConfig struct {
	// ControlURL attaches to a running Chrome; empty launches a local one.
	ControlURL  string
	Headless    bool
	UserAgent   string
	Timeout     time.Duration
	CookiesPath string
	LoginURL    string
	Account     string
	Password    string
	ListingURL  types.ListingURLFunc
	Logger      *slog.Logger
}

// Session owns one stealth Chrome tab. Calls are serialized; Close saves the
// cookie jar and stops the browser.
type Session struct {
	cfg     SessionConfig
	log     *slog.Logger
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
	closed  bool
}

// OpenSession starts Chrome, restores saved cookies and, when none were
// saved and an account is configured, logs in.
func OpenSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Session{cfg: cfg, log: log.With("component", "session")}

	wsURL := cfg.ControlURL
	if wsURL == "" {
		l := launcher.New().
			Headless(cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("session: launch: %w", err)
		}
		wsURL = u
		s.lnch = l
	}

	s.browser = rod.New().ControlURL(wsURL).Context(ctx)
	if err := s.browser.Connect(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("session: connect: %w", err)
	}
	// the connect context only bounds startup
	s.browser = s.browser.Context(context.Background())

	page, err := stealth.Page(s.browser)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("session: open tab: %w", err)
	}
	s.page = page
	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			s.log.Warn("set user agent failed", "err", err)
		}
	}

	restored, err := s.restoreCookies()
	if err != nil {
		s.log.Warn("cookie restore failed", "path", cfg.CookiesPath, "err", err)
	}
	if restored == 0 && cfg.Account != "" {
		if err := s.login(ctx); err != nil {
			s.cleanup()
			return nil, err
		}
		if err := s.saveCookies(); err != nil {
			s.log.Warn("cookie save failed", "path", cfg.CookiesPath, "err", err)
		}
	}

	s.log.Info("session open", "cookies", restored, "logged_in", restored > 0 || cfg.Account != "")
	return s, nil
}

func (s *Session) restoreCookies() (int, error) {
	if s.cfg.CookiesPath == "" {
		return 0, nil
	}
	cookies, err := LoadCookies(s.cfg.CookiesPath)
	if err != nil {
		return 0, err
	}
	params := toParams(cookies)
	if len(params) == 0 {
		return 0, nil
	}
	if err := s.browser.SetCookies(params); err != nil {
		return 0, err
	}
	return len(params), nil
}

func (s *Session) saveCookies() error {
	if s.cfg.CookiesPath == "" || s.browser == nil {
		return nil
	}
	got, err := s.browser.GetCookies()
	if err != nil {
		return err
	}
	cookies := make([]Cookie, 0, len(got))
	for _, c := range got {
		cookies = append(cookies, FromNetworkCookie(c))
	}
	return SaveCookies(s.cfg.CookiesPath, cookies)
}

func (s *Session) login(ctx context.Context) error {
	if s.cfg.LoginURL == "" {
		return fmt.Errorf("%w: no login url", ErrLoginFailed)
	}
	p := s.page.Context(ctx).Timeout(s.cfg.Timeout)
	if err := p.Navigate(s.cfg.LoginURL); err != nil {
		return fmt.Errorf("%w: open login page: %v", ErrLoginFailed, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	user, err := p.Element("#username")
	if err != nil {
		return fmt.Errorf("%w: username field: %v", ErrLoginFailed, err)
	}
	if err := user.Input(s.cfg.Account); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	pass, err := p.Element("#password")
	if err != nil {
		return fmt.Errorf("%w: password field: %v", ErrLoginFailed, err)
	}
	if err := pass.Input(s.cfg.Password); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	submit, err := p.Element(`button[type="submit"]`)
	if err != nil {
		return fmt.Errorf("%w: submit button: %v", ErrLoginFailed, err)
	}

	wait := p.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	wait()

	info, err := p.Info()
	if err == nil && info.URL == s.cfg.LoginURL {
		return fmt.Errorf("%w: still on login page", ErrLoginFailed)
	}
	s.log.Info("logged in", "account", s.cfg.Account)
	return nil
}

// RenderListingPage opens a search results page and scrolls it so lazily
// loaded results are in the DOM.
func (s *Session) RenderListingPage(ctx context.Context, query, location string, page int) (string, error) {
	if s.cfg.ListingURL == nil {
		return "", fmt.Errorf("session: no listing url builder")
	}
	return s.render(ctx, s.cfg.ListingURL(query, location, page), true)
}

func (s *Session) FetchPage(ctx context.Context, url string) (string, error) {
	return s.render(ctx, url, false)
}

func (s *Session) render(ctx context.Context, url string, scroll bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.New("session: closed")
	}

	p := s.page.Context(ctx).Timeout(s.cfg.Timeout)
	if err := p.Navigate(url); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", domain.Transient(fmt.Errorf("navigate %s: %w", url, err))
	}
	if err := p.WaitLoad(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", domain.Transient(fmt.Errorf("load %s: %w", url, err))
	}
	if scroll {
		if _, err := p.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
			s.log.Debug("scroll failed", "url", url, "err", err)
		}
		_ = p.WaitIdle(2 * time.Second)
	}
	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return html, nil
}

// Close saves cookies and shuts the browser down. It is safe to call more
// than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.saveCookies()
	s.cleanup()
	s.log.Info("session closed")
	return err
}

func (s *Session) cleanup() {
	if s.browser != nil {
		_ = s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
}
