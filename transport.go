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
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// DefaultTimeout bounds every single HTTP request.
const DefaultTimeout = 30 * time.Second

var ErrNoCertificates = errors.New("no certificates found in bundle")

// Transport describes how oaifetch talks HTTP. It is handed to both the OAI
// client and the asset fetcher; nothing is configured through the process
// environment.
type Transport struct {
	// CABundle is an optional PEM file with extra trusted certificates,
	// added to the system pool.
	CABundle string
	// Timeout per request, DefaultTimeout if zero.
	Timeout time.Duration
}

// TLSConfig returns a verifying TLS configuration.
func (t Transport) TLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if t.CABundle == "" {
		return cfg, nil
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	b, err := os.ReadFile(t.CABundle)
	if err != nil {
		return nil, fmt.Errorf("ca bundle: %w", err)
	}
	if !pool.AppendCertsFromPEM(b) {
		return nil, fmt.Errorf("%w: %s", ErrNoCertificates, t.CABundle)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// HTTPClient returns a new client with its own connection pool.
func (t Transport) HTTPClient() (*http.Client, error) {
	tc, err := t.TLSConfig()
	if err != nil {
		return nil, err
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = tc
	timeout := t.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Transport: tr, Timeout: timeout}, nil
}
