package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ServiceURLValidator validates the story-service base URL before any
// request is issued against it.
type ServiceURLValidator struct {
	// AllowLocalhost permits localhost targets (needed for tests and the
	// local gateway).
	AllowLocalhost bool
	// AllowPrivateIPs permits private-range IP targets.
	AllowPrivateIPs bool
	// MaxLength is the maximum allowed URL length.
	MaxLength int
}

// NewServiceURLValidator returns a validator suitable for everyday use:
// localhost is allowed because the local gateway proxies through it.
func NewServiceURLValidator() *ServiceURLValidator {
	return &ServiceURLValidator{
		AllowLocalhost:  true,
		AllowPrivateIPs: true,
		MaxLength:       2048,
	}
}

// NewStrictServiceURLValidator blocks localhost and private ranges.
func NewStrictServiceURLValidator() *ServiceURLValidator {
	return &ServiceURLValidator{
		AllowLocalhost:  false,
		AllowPrivateIPs: false,
		MaxLength:       2048,
	}
}

// ValidateAndNormalize validates a service URL and returns the normalized
// version, defaulting the scheme to https when absent.
func (v *ServiceURLValidator) ValidateAndNormalize(input string) (string, error) {
	input = strings.TrimSpace(input)

	if input == "" {
		return "", fmt.Errorf("URL cannot be empty")
	}
	if len(input) > v.MaxLength {
		return "", fmt.Errorf("URL too long (max %d characters)", v.MaxLength)
	}
	if strings.ContainsAny(input, "<>\"'`") {
		return "", fmt.Errorf("URL contains invalid characters")
	}

	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		input = "https://" + input
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL must use http or https protocol")
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL must have a valid hostname")
	}

	if err := v.validateHost(parsed.Host); err != nil {
		return "", err
	}
	if strings.Contains(parsed.Path, "..") {
		return "", fmt.Errorf("directory traversal patterns not allowed in URL path")
	}

	return parsed.String(), nil
}

func (v *ServiceURLValidator) validateHost(host string) error {
	hostname := host
	if strings.Contains(host, ":") {
		var err error
		hostname, _, err = net.SplitHostPort(host)
		if err != nil {
			return fmt.Errorf("invalid host format: %w", err)
		}
	}

	if !v.AllowLocalhost && isLocalhost(hostname) {
		return fmt.Errorf("localhost URLs are not permitted")
	}
	if !v.AllowPrivateIPs {
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("private IP addresses are not permitted")
		}
	}
	return nil
}

func isLocalhost(hostname string) bool {
	return hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasSuffix(hostname, ".localhost")
}

func isPrivateIP(ip net.IP) bool {
	private := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"127.0.0.0/8",
	}
	for _, cidr := range private {
		_, block, _ := net.ParseCIDR(cidr)
		if block != nil && block.Contains(ip) {
			return true
		}
	}
	if ip.To4() == nil {
		s := ip.String()
		return strings.HasPrefix(s, "fc") || strings.HasPrefix(s, "fd") ||
			strings.HasPrefix(s, "fe8") || strings.HasPrefix(s, "fe9") ||
			strings.HasPrefix(s, "fea") || strings.HasPrefix(s, "feb")
	}
	return false
}
