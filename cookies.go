package cdptab

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/network"
)

// Cookies returns the browser cookies visible to the given URLs. With no
// URLs it reports cookies for the page's current URL.
func (p *Page) Cookies(ctx context.Context, urls ...string) ([]*network.Cookie, error) {
	if len(urls) == 0 {
		urls = []string{p.URL()}
	}
	params := &network.GetCookiesParams{Urls: urls}
	res := new(network.GetCookiesReturns)
	if err := p.sess.Execute(ctx, network.CommandGetCookies, params, res); err != nil {
		return nil, err
	}
	return res.Cookies, nil
}

// SetCookies installs the given cookies. A cookie without a URL defaults to
// the page's current URL when that URL is an http(s) one. Each cookie is
// deleted before being set so stale attributes never survive.
func (p *Page) SetCookies(ctx context.Context, cookies ...*network.CookieParam) error {
	pageURL := p.URL()

	items := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		item := *c
		if item.URL == "" && strings.HasPrefix(pageURL, "http") {
			item.URL = pageURL
		}
		items = append(items, &item)
	}
	if err := p.deleteCookies(ctx, items); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	params := &network.SetCookiesParams{Cookies: items}
	return p.sess.Execute(ctx, network.CommandSetCookies, params, nil)
}

// DeleteCookies removes the given cookies, matching each by name plus its
// URL, domain and path attributes. A cookie without a URL defaults to the
// page's current URL when that URL is an http(s) one.
func (p *Page) DeleteCookies(ctx context.Context, cookies ...*network.CookieParam) error {
	return p.deleteCookies(ctx, cookies)
}

func (p *Page) deleteCookies(ctx context.Context, cookies []*network.CookieParam) error {
	pageURL := p.URL()
	for _, c := range cookies {
		url := c.URL
		if url == "" && strings.HasPrefix(pageURL, "http") {
			url = pageURL
		}
		params := &network.DeleteCookiesParams{
			Name:   c.Name,
			URL:    url,
			Domain: c.Domain,
			Path:   c.Path,
		}
		if err := p.sess.Execute(ctx, network.CommandDeleteCookies, params, nil); err != nil {
			return err
		}
	}
	return nil
}
