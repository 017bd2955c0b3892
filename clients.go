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
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrBadEndpoint      = errors.New("endpoint must be an absolute http(s) URL")
	ErrSessionClosed    = errors.New("session closed")
	ErrNoMetadata       = errors.New("record has no metadata")
)

// HttpRequestDoer lets us use pester, DefaultClient or other HTTP client
// implementations interchangably.
type HttpRequestDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is a simple client, that can turn a OAI request into a OAI response.
type Client struct {
	// MaxRequests limits the number of pages fetched for a single listing,
	// which prevents endless loops due to broken resumptionToken
	// implementations. Zero means no limit.
	MaxRequests int
	// AllFormats lets records offer every metadata format the repository
	// has for them, not just the one used for listing.
	AllFormats bool
	// doer is a delegate for HTTP requests.
	doer HttpRequestDoer
	// closeIdle releases pooled connections, if the doer supports it.
	closeIdle func()
}

// NewClientDoer creates a new OAI client with a user supplied http client,
// e.g. pester.Client, http.DefaultClient.
func NewClientDoer(doer HttpRequestDoer) *Client {
	c := &Client{doer: doer, MaxRequests: 16384}
	if ic, ok := doer.(interface{ CloseIdleConnections() }); ok {
		c.closeIdle = ic.CloseIdleConnections
	}
	return c
}

// NewClient creates a client with a resilient HTTP client on top of the given
// transport. Protocol requests are retried with exponential backoff, at most
// maxRetries times in total.
func NewClient(t Transport, maxRetries int) (*Client, error) {
	hc, err := t.HTTPClient()
	if err != nil {
		return nil, err
	}
	pc := pester.NewExtendedClient(hc)
	pc.MaxRetries = maxRetries
	pc.Backoff = pester.ExponentialBackoff
	pc.SetRetryOnHTTP429(true)
	c := NewClientDoer(pc)
	c.closeIdle = hc.CloseIdleConnections
	return c, nil
}

// Do takes an OAI request and turns it into at most one single OAI response.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	var response Response

	link, err := req.URL()
	if err != nil {
		return response, err
	}
	log.WithFields(log.Fields{"url": link}).Debug("oai request")

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return response, err
	}
	hreq.Header.Set("User-Agent", UserAgent)
	resp, err := c.doer.Do(hreq)
	if err != nil {
		return response, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response, fmt.Errorf("%w: %s: %d", ErrUnexpectedStatus, link, resp.StatusCode)
	}

	decoder := xml.NewDecoder(resp.Body)
	if err := decoder.Decode(&response); err != nil {
		return response, err
	}
	if response.Error.Code != "" {
		e := response.Error
		return response, OAIError{Code: e.Code, Message: strings.TrimSpace(e.Message)}
	}
	return response, nil
}

// Open starts a session with a repository. The session must be closed after
// use. A repository that does not answer Identify cannot be harvested, so
// this request is sent right away.
func (c *Client) Open(ctx context.Context, endpoint string) (*Session, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadEndpoint, endpoint)
	}
	resp, err := c.Do(ctx, Request{Endpoint: endpoint, Verb: "Identify"})
	if err != nil {
		return nil, err
	}
	return &Session{client: c, endpoint: endpoint, Identify: resp.Identify}, nil
}

// Session is an open conversation with a single repository.
type Session struct {
	// Identify is the repository's self description.
	Identify Identify

	client   *Client
	endpoint string
	closed   bool
}

// Endpoint returns the base URL of the repository.
func (s *Session) Endpoint() string { return s.endpoint }

// Close releases the connections held by the session. It is safe to call
// Close more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.client.closeIdle != nil {
		s.client.closeIdle()
	}
	return nil
}

// ListRecords returns a lazy sequence of the records in prefix format, which
// changed within the given windows. Pages are requested as the sequence is
// consumed. The sequence can be consumed once; list again for a new one.
func (s *Session) ListRecords(ctx context.Context, prefix, set string, windows ...Window) *Records {
	return &Records{
		ctx:     ctx,
		session: s,
		req: Request{
			Endpoint: s.endpoint,
			Verb:     "ListRecords",
			Prefix:   prefix,
			Set:      set,
		},
		windows: windows,
	}
}

// getRecord fetches a single record in a given format.
func (s *Session) getRecord(ctx context.Context, identifier, prefix string) (Record, error) {
	if s.closed {
		return Record{}, ErrSessionClosed
	}
	resp, err := s.client.Do(ctx, Request{
		Endpoint:   s.endpoint,
		Verb:       "GetRecord",
		Identifier: identifier,
		Prefix:     prefix,
	})
	if err != nil {
		return Record{}, err
	}
	r := resp.GetRecord.Record
	return Record{Header: r.Header, Metadata: r.Metadata.Verbatim, Prefix: prefix, session: s}, nil
}

// formats lists the metadata formats available for a record.
func (s *Session) formats(ctx context.Context, identifier string) ([]string, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	resp, err := s.client.Do(ctx, Request{
		Endpoint:   s.endpoint,
		Verb:       "ListMetadataFormats",
		Identifier: identifier,
	})
	if err != nil {
		return nil, err
	}
	var result []string
	for _, f := range resp.ListMetadataFormats.Formats {
		result = append(result, strings.TrimSpace(f.Prefix))
	}
	return result, nil
}

// Records iterates over a ListRecords result, following resumption tokens.
//
//	records := session.ListRecords(ctx, "oai_dc", "", w)
//	for records.Next() {
//		rec := records.Record()
//	}
//	if err := records.Err(); err != nil {
//	}
type Records struct {
	ctx      context.Context
	session  *Session
	req      Request
	windows  []Window
	token    string
	page     []recordXML
	current  Record
	requests int
	err      error
}

// Next advances to the next record, fetching the next page if needed. It
// returns false when the sequence is exhausted or an error occurred.
func (r *Records) Next() bool {
	for len(r.page) == 0 {
		if r.err != nil {
			return false
		}
		if r.session.closed {
			r.err = ErrSessionClosed
			return false
		}
		if r.token == "" {
			if len(r.windows) == 0 {
				return false
			}
			r.req.From, r.req.Until = r.windows[0].From, r.windows[0].Until
			r.windows = r.windows[1:]
		}
		r.req.ResumptionToken = r.token
		if limit := r.session.client.MaxRequests; limit > 0 && r.requests >= limit {
			r.err = ErrTooManyRequests
			return false
		}
		r.requests++
		resp, err := r.session.client.Do(r.ctx, r.req)
		if err != nil {
			var oerr OAIError
			if errors.As(err, &oerr) && oerr.Code == "noRecordsMatch" {
				r.token = ""
				continue
			}
			r.err = err
			return false
		}
		r.page = resp.ListRecords.Records
		r.token = strings.TrimSpace(resp.ListRecords.Token.Value)
		if len(r.page) == 0 && r.token != "" {
			log.WithFields(log.Fields{
				"endpoint": r.req.Endpoint,
				"token":    r.token,
			}).Warn("empty page with resumption token")
		}
	}
	x := r.page[0]
	r.page = r.page[1:]
	r.current = Record{
		Header:   x.Header,
		Metadata: x.Metadata.Verbatim,
		Prefix:   r.req.Prefix,
		session:  r.session,
	}
	return true
}

// Record returns the current record.
func (r *Records) Record() Record { return r.current }

// Err returns the first error encountered while listing.
func (r *Records) Err() error { return r.err }

// Record is a single harvested record. Its metadata is the verbatim XML
// payload of the format used for listing.
type Record struct {
	Header   Header
	Metadata string
	Prefix   string

	session *Session
}

// Identifier returns the OAI identifier.
func (r Record) Identifier() string { return strings.TrimSpace(r.Header.Identifier) }

// Deleted reports whether the record is marked deleted.
func (r Record) Deleted() bool { return r.Header.Deleted() }

// Formats returns the metadata formats this record can be retrieved in. The
// listing format always comes first.
func (r Record) Formats(ctx context.Context) ([]string, error) {
	if r.session == nil || !r.session.client.AllFormats {
		return []string{r.Prefix}, nil
	}
	available, err := r.session.formats(ctx, r.Identifier())
	if err != nil {
		return nil, err
	}
	result := []string{r.Prefix}
	for _, f := range available {
		if f != "" && f != r.Prefix {
			result = append(result, f)
		}
	}
	return result, nil
}

// Payload returns the raw metadata in a given format.
func (r Record) Payload(ctx context.Context, format string) (string, error) {
	if format == r.Prefix {
		if r.Deleted() {
			return "", ErrNoMetadata
		}
		return r.Metadata, nil
	}
	if r.session == nil {
		return "", fmt.Errorf("%w: %s in %s", ErrNoMetadata, r.Identifier(), format)
	}
	other, err := r.session.getRecord(ctx, r.Identifier(), format)
	if err != nil {
		return "", err
	}
	if other.Deleted() {
		return "", ErrNoMetadata
	}
	return other.Metadata, nil
}

// Fields decodes the listing payload into an ordered key-values mapping.
func (r Record) Fields() (Metadata, error) {
	return DecodeFields(r.Metadata)
}
