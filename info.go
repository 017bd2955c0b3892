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
	"time"
)

// RepositoryInfo is a short description of a repository.
type RepositoryInfo struct {
	Identify Identify         `json:"id"`
	Formats  []MetadataFormat `json:"formats"`
	Errors   []string         `json:"errors,omitempty"`
	Elapsed  float64          `json:"elapsed"`
}

// AboutEndpoint asks a repository about itself and its metadata formats.
// Both requests run in parallel; it returns after at most timeout.
func AboutEndpoint(ctx context.Context, c *Client, endpoint string, timeout time.Duration) (RepositoryInfo, error) {
	var (
		info  RepositoryInfo
		start = time.Now()
	)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type message struct {
		resp Response
		err  error
	}
	verbs := []string{"Identify", "ListMetadataFormats"}
	ch := make(chan message, len(verbs))
	for _, verb := range verbs {
		go func(verb string) {
			resp, err := c.Do(ctx, Request{Endpoint: endpoint, Verb: verb})
			ch <- message{resp: resp, err: err}
		}(verb)
	}
	for range verbs {
		select {
		case msg := <-ch:
			if msg.err != nil {
				info.Errors = append(info.Errors, msg.err.Error())
				continue
			}
			if msg.resp.Identify.URL != "" || msg.resp.Identify.Name != "" {
				info.Identify = msg.resp.Identify
			}
			if len(msg.resp.ListMetadataFormats.Formats) > 0 {
				info.Formats = msg.resp.ListMetadataFormats.Formats
			}
		case <-ctx.Done():
			info.Elapsed = time.Since(start).Seconds()
			return info, ctx.Err()
		}
	}
	info.Elapsed = time.Since(start).Seconds()
	return info, nil
}
