package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	log "github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

var ErrDisallowed = errors.New("disallowed by robots.txt")

// CheckRobots fetches robots.txt for the host of productURL and fails with
// ErrDisallowed when the path is off limits for our user agent. An
// unreachable or unparsable robots.txt is treated as allowing everything.
func (f *Fetcher) CheckRobots(ctx context.Context, productURL string) error {
	u, err := url.Parse(productURL)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", productURL, err)
	}

	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	res, err := f.client.R().
		SetContext(ctx).
		Get(robotsURL)
	if err != nil {
		log.Warnf("Could not fetch %s, assuming allowed: %v", robotsURL, err)
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(res.StatusCode(), res.Body())
	if err != nil {
		log.Warnf("Could not parse %s, assuming allowed: %v", robotsURL, err)
		return nil
	}

	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if !data.TestAgent(path, f.userAgent) {
		return fmt.Errorf("%w: %s", ErrDisallowed, productURL)
	}
	return nil
}
