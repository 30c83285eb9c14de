package monitor

import (
	"net/http"
	"net/http/cookiejar"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedwatch/feedwatch/pkg/log"
)

// DefaultRequestTimeout bounds each poll request.
const DefaultRequestTimeout = 60 * time.Second

// HTTPEntity is a TaskEntity polled over HTTP. Entities sharing a cookies
// file share an HTTP session.
type HTTPEntity struct {
	TaskEntity `yaml:",inline"`

	// CookiesFile is a path to a Netscape format cookie file; empty means
	// a cookieless session
	CookiesFile string `yaml:"cookies_file"`
}

// SessionPool hands out HTTP clients keyed by cookie-jar file path, so
// entities configured with the same cookies file share one session and its
// jar updates.
type SessionPool struct {
	mu       sync.Mutex
	sessions map[string]*http.Client
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewSessionPool creates a pool with the given per-request timeout; zero
// selects DefaultRequestTimeout.
func NewSessionPool(timeout time.Duration) *SessionPool {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &SessionPool{
		sessions: make(map[string]*http.Client),
		timeout:  timeout,
		logger:   log.WithComponent("sessions"),
	}
}

// Get returns the session for the cookies file path, creating it on first
// use. A missing cookie file yields a session with an empty jar rather than
// an error.
func (p *SessionPool) Get(cookiesFile string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.sessions[cookiesFile]; ok {
		return client
	}

	jar, _ := cookiejar.New(nil)
	if cookiesFile != "" {
		cookies, err := loadNetscapeCookies(cookiesFile)
		switch {
		case err == nil:
			installCookies(jar, cookies)
			p.logger.Info().Str("path", cookiesFile).Int("cookies", len(cookies)).
				Msg("loaded cookies")
		case os.IsNotExist(err):
			p.logger.Info().Str("path", cookiesFile).
				Msg("cookies file does not exist, starting with empty jar")
		default:
			p.logger.Error().Err(err).Str("path", cookiesFile).
				Msg("failed to load cookies")
		}
	}

	client := &http.Client{
		Jar:     jar,
		Timeout: p.timeout,
	}
	p.sessions[cookiesFile] = client
	return client
}
