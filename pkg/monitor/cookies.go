package monitor

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// loadNetscapeCookies parses a Mozilla/Netscape format cookie file:
// seven tab-separated columns per line, comment lines starting with "#"
// except the "#HttpOnly_" domain prefix.
func loadNetscapeCookies(path string) ([]*http.Cookie, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cookies []*http.Cookie
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		httpOnly := false
		if strings.HasPrefix(text, "#HttpOnly_") {
			text = strings.TrimPrefix(text, "#HttpOnly_")
			httpOnly = true
		} else if strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("%s:%d: expected 7 tab-separated fields, got %d", path, line, len(fields))
		}
		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad expiration %q: %w", path, line, fields[4], err)
		}
		cookie := &http.Cookie{
			Domain:   strings.TrimPrefix(fields[0], "."),
			Path:     fields[2],
			Secure:   fields[3] == "TRUE",
			Name:     fields[5],
			Value:    fields[6],
			HttpOnly: httpOnly,
		}
		if expires > 0 {
			cookie.Expires = time.Unix(expires, 0)
		}
		cookies = append(cookies, cookie)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cookies, nil
}

// installCookies loads cookies into the jar, grouped by cookie domain.
func installCookies(jar http.CookieJar, cookies []*http.Cookie) {
	byDomain := make(map[string][]*http.Cookie)
	for _, cookie := range cookies {
		byDomain[cookie.Domain] = append(byDomain[cookie.Domain], cookie)
	}
	for domain, group := range byDomain {
		u := &url.URL{Scheme: "https", Host: domain, Path: "/"}
		jar.SetCookies(u, group)
	}
}
