package notebooklm

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// storageState is the browser storage file written by a Playwright login
// (context.storage_state). Only the cookies are used.
type storageState struct {
	Cookies []storageCookie `json:"cookies"`
}

type storageCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

func loadStorageState(path string) (*storageState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read credential file")
	}

	var st storageState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, errors.Wrapf(err, "decode credential file %s", path)
	}
	if len(st.Cookies) == 0 {
		return nil, errors.Errorf("credential file %s has no cookies", path)
	}
	return &st, nil
}

// cookiesFor returns the cookies that apply to host and have not expired.
// Expires <= 0 marks a session cookie.
func (s *storageState) cookiesFor(host string, now time.Time) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range s.Cookies {
		if c.Expires > 0 && time.Unix(int64(c.Expires), 0).Before(now) {
			continue
		}
		if !domainMatches(host, c.Domain) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

func domainMatches(host, domain string) bool {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	host = strings.ToLower(host)
	if domain == "" {
		return true
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
