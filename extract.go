//  Copyright 2015 by Leipzig University Library, http://ub.uni-leipzig.de
//                    The Finc Authors, http://finc.info
//                    Martin Czygan, <martin.czygan@uni-leipzig.de>
//
// This file is part of some open source application.
//
// Some open source application is free software: you can redistribute
// it and/or modify it under the terms of the GNU General Public
// License as published by the Free Software Foundation, either
// version 3 of the License, or (at your option) any later version.
//
// Some open source application is distributed in the hope that it will
// be useful, but WITHOUT ANY WARRANTY; without even the implied warranty
// of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Foobar.  If not, see <http://www.gnu.org/licenses/>.
//
// @license GPL-3.0+ <http://spdx.org/licenses/GPL-3.0+>
//
package oaifetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Namespaces are available as prefixes in XPath expressions. Metadata
// fragments, which use these prefixes without declaring them, are parsed as
// if they did.
var Namespaces = map[string]string{
	"oai":    "http://www.openarchives.org/OAI/2.0/",
	"oai_dc": "http://www.openarchives.org/OAI/2.0/oai_dc/",
	"dc":     "http://purl.org/dc/elements/1.1/",
	"xsi":    "http://www.w3.org/2001/XMLSchema-instance",
}

// Extractor finds asset links in a record. Payloads already fetched for the
// record are passed along, keyed by format.
type Extractor interface {
	Extract(ctx context.Context, item Item, payloads map[string]string) ([]string, error)
}

// IsAssetLink reports whether s looks like a downloadable link.
func IsAssetLink(s string) bool {
	return strings.HasPrefix(s, "http")
}

// XPathExtractor evaluates an XPath expression against the payload of a
// single metadata format.
type XPathExtractor struct {
	Format string
	expr   *xpath.Expr
	source string
}

// NewXPathExtractor compiles expr, which may use the prefixes in Namespaces.
func NewXPathExtractor(format, expr string) (*XPathExtractor, error) {
	compiled, err := xpath.CompileWithNS(expr, Namespaces)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	return &XPathExtractor{Format: format, expr: compiled, source: expr}, nil
}

// String returns the source expression.
func (e *XPathExtractor) String() string { return e.source }

// Extract implements Extractor.
func (e *XPathExtractor) Extract(ctx context.Context, item Item, payloads map[string]string) ([]string, error) {
	payload, ok := payloads[e.Format]
	if !ok {
		var err error
		if payload, err = item.Payload(ctx, e.Format); err != nil {
			return nil, wrapErr(KindExtract, "payload", item.Identifier(), err)
		}
	}
	links, err := e.Links(payload)
	if err != nil {
		return nil, wrapErr(KindExtract, "xpath", item.Identifier(), err)
	}
	return links, nil
}

// Links returns the trimmed text of all matching nodes, that look like links.
// The expression is evaluated with the root element of the payload as
// context node.
func (e *XPathExtractor) Links(payload string) ([]string, error) {
	doc, err := xmlquery.Parse(strings.NewReader(wrapPayload(payload)))
	if err != nil {
		return nil, err
	}
	root := firstElement(firstElement(doc))
	if root == nil {
		return nil, nil
	}
	var links []string
	for _, n := range xmlquery.QuerySelectorAll(root, e.expr) {
		if s := strings.TrimSpace(n.InnerText()); IsAssetLink(s) {
			links = append(links, s)
		}
	}
	return links, nil
}

// firstElement returns the first child element of n, or nil.
func firstElement(n *xmlquery.Node) *xmlquery.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

// wrapPayload puts a payload into a synthetic root element, which declares
// the default namespaces.
func wrapPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "<?xml") {
		if i := strings.Index(payload, "?>"); i >= 0 {
			payload = payload[i+2:]
		}
	}
	var sb strings.Builder
	sb.WriteString("<oaifetch")
	for _, prefix := range []string{"oai", "oai_dc", "dc", "xsi"} {
		fmt.Fprintf(&sb, ` xmlns:%s="%s"`, prefix, Namespaces[prefix])
	}
	sb.WriteString(">")
	sb.WriteString(payload)
	sb.WriteString("</oaifetch>")
	return sb.String()
}

// ScanExtractor collects every value of a record's fields that looks like a
// link, regardless of the metadata schema.
type ScanExtractor struct{}

// Extract implements Extractor.
func (ScanExtractor) Extract(ctx context.Context, item Item, payloads map[string]string) ([]string, error) {
	m, err := item.Fields()
	if err != nil {
		return nil, wrapErr(KindExtract, "fields", item.Identifier(), err)
	}
	return ScanLinks(m), nil
}

// ScanLinks walks all values in order. Sequences contribute each string
// element that looks like a link, scalars contribute themselves.
func ScanLinks(m Metadata) []string {
	var links []string
	for _, f := range m {
		switch v := f.Value.(type) {
		case string:
			if IsAssetLink(v) {
				links = append(links, v)
			}
		case []string:
			for _, s := range v {
				if IsAssetLink(s) {
					links = append(links, s)
				}
			}
		case []any:
			for _, x := range v {
				if s, ok := x.(string); ok && IsAssetLink(s) {
					links = append(links, s)
				}
			}
		}
	}
	return links
}
