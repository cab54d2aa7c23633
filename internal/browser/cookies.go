package browser

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/go-rod/rod/lib/proto"
)

// Cookie is the on-disk cookie format, the same shape browser extensions
// export.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// LoadCookies reads a cookie file. A missing file returns no cookies and no
// error.
func LoadCookies(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

func SaveCookies(path string, cookies []Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c Cookie) ToParam() *proto.NetworkCookieParam {
	p := &proto.NetworkCookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
	}
	if c.Expires > 0 {
		p.Expires = proto.TimeSinceEpoch(c.Expires)
	}
	switch c.SameSite {
	case "Lax":
		p.SameSite = proto.NetworkCookieSameSiteLax
	case "Strict":
		p.SameSite = proto.NetworkCookieSameSiteStrict
	case "None":
		p.SameSite = proto.NetworkCookieSameSiteNone
	}
	return p
}

func FromNetworkCookie(n *proto.NetworkCookie) Cookie {
	c := Cookie{
		Name:     n.Name,
		Value:    n.Value,
		Domain:   n.Domain,
		Path:     n.Path,
		HTTPOnly: n.HTTPOnly,
		Secure:   n.Secure,
		SameSite: string(n.SameSite),
	}
	if !n.Session && n.Expires > 0 {
		c.Expires = float64(n.Expires)
	}
	return c
}

func toParams(cookies []Cookie) []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		out = append(out, c.ToParam())
	}
	return out
}
