package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	ErrEmptyURL       = errors.New("URL cannot be empty")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrHostNotAllowed = errors.New("host not permitted")
	ErrNoVideoID      = errors.New("no YouTube video id found")
	ErrInvalidChannel = errors.New("invalid YouTube channel id")
)

var (
	videoIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	channelIDPattern = regexp.MustCompile(`^UC[A-Za-z0-9_-]{22}$`)
	youtubeHostnames = map[string]bool{
		"youtube.com":              true,
		"www.youtube.com":          true,
		"m.youtube.com":            true,
		"music.youtube.com":        true,
		"youtube-nocookie.com":     true,
		"www.youtube-nocookie.com": true,
	}
)

const youtubeShortDomain = "youtu.be"

// URLValidator checks subscription and video URLs before anything is
// fetched from them.
type URLValidator struct {
	// AllowLocalhost determines if localhost URLs are permitted
	AllowLocalhost bool
	// AllowPrivateIPs determines if private IP addresses are permitted
	AllowPrivateIPs bool
	MaxLength       int
}

// NewURLValidator creates a new validator with secure defaults
func NewURLValidator() *URLValidator {
	return &URLValidator{MaxLength: 2048}
}

// NewPermissiveURLValidator allows local servers, for development and tests.
func NewPermissiveURLValidator() *URLValidator {
	return &URLValidator{
		AllowLocalhost:  true,
		AllowPrivateIPs: true,
		MaxLength:       2048,
	}
}

// ValidateAndNormalize validates a URL and returns the normalized version.
// A missing scheme defaults to https.
func (v *URLValidator) ValidateAndNormalize(input string) (string, error) {
	parsed, err := v.parse(input)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

func (v *URLValidator) parse(input string) (*url.URL, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyURL
	}
	if len(input) > v.MaxLength {
		return nil, fmt.Errorf("%w: too long (max %d characters)", ErrInvalidURL, v.MaxLength)
	}
	if strings.ContainsAny(input, "<>\"'`") {
		return nil, fmt.Errorf("%w: contains invalid characters", ErrInvalidURL)
	}

	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		input = "https://" + input
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: missing hostname", ErrInvalidURL)
	}
	if err := v.validateHost(parsed.Host); err != nil {
		return nil, err
	}
	if strings.Contains(parsed.Path, "..") {
		return nil, fmt.Errorf("%w: directory traversal patterns not allowed in path", ErrInvalidURL)
	}
	if strings.Contains(parsed.RawQuery, "<script") || strings.Contains(parsed.RawQuery, "javascript:") {
		return nil, fmt.Errorf("%w: suspicious query parameters", ErrInvalidURL)
	}
	parsed.Fragment = ""
	return parsed, nil
}

func (v *URLValidator) validateHost(host string) error {
	hostname := host
	if strings.Contains(host, ":") {
		var err error
		hostname, _, err = net.SplitHostPort(host)
		if err != nil {
			return fmt.Errorf("%w: invalid host format: %v", ErrInvalidURL, err)
		}
	}

	if !v.AllowLocalhost && isLocalhost(hostname) {
		return fmt.Errorf("%w: localhost", ErrHostNotAllowed)
	}
	if !v.AllowPrivateIPs {
		if ip := net.ParseIP(hostname); ip != nil && (ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()) {
			return fmt.Errorf("%w: private address %s", ErrHostNotAllowed, hostname)
		}
	}
	if ip := net.ParseIP(hostname); ip != nil && (ip.IsUnspecified() || ip.Equal(net.IPv4bcast)) {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, hostname)
	}
	return nil
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasSuffix(hostname, ".localhost")
}

// IsYouTubeHost reports whether host (with or without port) belongs to YouTube.
func IsYouTubeHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	return youtubeHostnames[host] || host == youtubeShortDomain
}

// ExtractVideoID returns the 11 character video id from a bare id or any of
// the common URL shapes: watch?v=, youtu.be/, /shorts/, /embed/, /live/.
func ExtractVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if videoIDPattern.MatchString(input) {
		return input, nil
	}
	if !strings.Contains(input, "://") {
		input = "https://" + input
	}
	parsed, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoVideoID, err)
	}

	var candidate string
	host := strings.ToLower(parsed.Hostname())
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	switch {
	case host == youtubeShortDomain:
		candidate = segments[0]
	case youtubeHostnames[host]:
		if v := parsed.Query().Get("v"); v != "" {
			candidate = v
		} else if len(segments) >= 2 {
			switch segments[0] {
			case "shorts", "embed", "live", "v":
				candidate = segments[1]
			}
		}
	}

	if !videoIDPattern.MatchString(candidate) {
		return "", fmt.Errorf("%w in %q", ErrNoVideoID, input)
	}
	return candidate, nil
}

// IsShortsURL reports whether the URL points at the shorts player.
func IsShortsURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(parsed.Path, "/shorts/")
}

// ValidateChannelID checks the UC-prefixed channel id format.
func ValidateChannelID(id string) error {
	if !channelIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, id)
	}
	return nil
}
