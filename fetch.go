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
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"path/filepath"

	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// FilesDir is the subdirectory of a record directory holding its assets.
const FilesDir = "files"

var ErrNoFilename = errors.New("cannot derive filename from link")

// Fetcher downloads assets into record directories. Every asset gets exactly
// one attempt.
type Fetcher struct {
	doer    HttpRequestDoer
	limiter *rate.Limiter
}

// NewFetcher creates a fetcher on top of the given transport. If rps is
// positive, at most rps downloads are started per second.
func NewFetcher(t Transport, rps float64) (*Fetcher, error) {
	hc, err := t.HTTPClient()
	if err != nil {
		return nil, err
	}
	pc := pester.NewExtendedClient(hc)
	pc.MaxRetries = 1
	return NewFetcherDoer(pc, rps), nil
}

// NewFetcherDoer creates a fetcher with a user supplied HTTP client.
func NewFetcherDoer(doer HttpRequestDoer, rps float64) *Fetcher {
	f := &Fetcher{doer: doer}
	if rps > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return f
}

// AssetName returns the filename for a link, which is the last segment of
// its path.
func AssetName(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	switch name {
	case "", ".", "/", "..":
		return "", fmt.Errorf("%w: %s", ErrNoFilename, link)
	}
	return name, nil
}

// Fetch downloads link into dir/files/<name> and returns the path written.
// An existing file of the same name is replaced.
func (f *Fetcher) Fetch(ctx context.Context, link, dir string) (string, error) {
	name, err := AssetName(link)
	if err != nil {
		return "", wrapErr(KindAsset, "fetch", link, err)
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", wrapErr(KindAsset, "fetch", link, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", wrapErr(KindAsset, "fetch", link, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	resp, err := f.doer.Do(req)
	if err != nil {
		return "", wrapErr(KindAsset, "fetch", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", wrapErr(KindAsset, "fetch", link, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}
	target := filepath.Join(dir, FilesDir)
	if err := mkdirAll(target); err != nil {
		return "", wrapErr(KindAsset, "store", link, err)
	}
	filename := filepath.Join(target, name)
	if err := copyFileAtomic(filename, resp.Body, 0644); err != nil {
		return "", wrapErr(KindAsset, "store", link, err)
	}
	log.WithFields(log.Fields{
		"link": link,
		"file": filename,
	}).Debug("fetched asset")
	return filename, nil
}
