// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// ExtractLinks parses a results document and returns, per highlighted
// result row, the first anchor whose resolved URL matches pattern. Rows
// without such an anchor are skipped. Relative hrefs resolve against
// baseURL. Repeated URLs are kept once, at their first position.
func ExtractLinks(html, baseURL, rowSelector, linkSelector string, pattern *regexp.Regexp) ([]types.CandidateLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing results document: %w", err)
	}

	var base *url.URL
	if baseURL != "" {
		base, err = url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing results URL %q: %w", baseURL, err)
		}
	}

	seen := make(map[string]bool)
	var links []types.CandidateLink
	doc.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		row.Find(linkSelector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, ok := a.Attr("href")
			if !ok {
				return true
			}
			resolved := resolve(base, strings.TrimSpace(href))
			if resolved == "" || !pattern.MatchString(resolved) {
				return true
			}
			if !seen[resolved] {
				seen[resolved] = true
				links = append(links, types.CandidateLink{URL: resolved})
			}
			return false
		})
	})
	return links, nil
}

func resolve(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
