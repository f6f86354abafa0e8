package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrEmptyURL          = errors.New("endpoint url is empty")
	ErrInvalidURL        = errors.New("endpoint url must be an absolute http(s) url")
	ErrDuplicateEndpoint = errors.New("endpoint already exists")
	ErrUnknownEndpoint   = errors.New("endpoint is not monitored")
	ErrInvalidInterval   = fmt.Errorf("interval must be a whole number of seconds, minimum %d", MinIntervalSeconds)
)

// ValidateURL trims raw and checks that it is an absolute http or https URL.
func ValidateURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyURL
	}
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	return s, nil
}

// ValidateInterval rejects intervals below MinIntervalSeconds.
func ValidateInterval(seconds int) error {
	if seconds < MinIntervalSeconds {
		return ErrInvalidInterval
	}
	return nil
}

// ParseInterval accepts user input such as "30" and rejects "4", "7.5" or "abc".
func ParseInterval(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, ErrInvalidInterval
	}
	if err := ValidateInterval(n); err != nil {
		return 0, err
	}
	return n, nil
}

// AddEndpoint returns a copy of list with url appended.
func AddEndpoint(list []string, raw string) ([]string, string, error) {
	u, err := ValidateURL(raw)
	if err != nil {
		return nil, "", err
	}
	for _, e := range list {
		if e == u {
			return nil, "", ErrDuplicateEndpoint
		}
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, list...)
	return append(out, u), u, nil
}

// RemoveEndpoint returns a copy of list without url.
func RemoveEndpoint(list []string, url string) ([]string, error) {
	out := make([]string, 0, len(list))
	found := false
	for _, e := range list {
		if e == url {
			found = true
			continue
		}
		out = append(out, e)
	}
	if !found {
		return nil, ErrUnknownEndpoint
	}
	return out, nil
}
