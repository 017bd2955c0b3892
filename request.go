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
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	ErrNoEndpoint      = errors.New("request: an endpoint is required")
	ErrNoVerb          = errors.New("no verb")
	ErrBadVerb         = errors.New("bad verb")
	ErrTooManyRequests = errors.New("too many requests")

	// UserAgent to use for requests.
	UserAgent = fmt.Sprintf("oaifetch/%s (https://github.com/miku/oaifetch)", Version)
)

// Version of oaifetch.
const Version = "0.2.0"

// verbArguments lists the arguments each verb takes (4. Protocol Requests
// and Responses), apart from the exclusive resumptionToken.
var verbArguments = map[string][]string{
	"Identify":            nil,
	"ListSets":            nil,
	"ListMetadataFormats": {"identifier"},
	"ListIdentifiers":     {"from", "until", "set", "metadataPrefix"},
	"ListRecords":         {"from", "until", "set", "metadataPrefix"},
	"GetRecord":           {"identifier", "metadataPrefix"},
}

// OAIError is an error reported by the repository, e.g. noRecordsMatch or
// cannotDisseminateFormat.
type OAIError struct {
	Code    string
	Message string
}

func (e OAIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Request can hold any parameter, that you want to send to an OAI server.
// Parameters a verb does not take are ignored.
type Request struct {
	Endpoint        string
	Verb            string
	From            time.Time
	Until           time.Time
	Set             string
	Prefix          string
	Identifier      string
	ResumptionToken string
}

// argument returns the value of a named request argument.
func (r Request) argument(name string) string {
	switch name {
	case "from":
		return formatDate(r.From)
	case "until":
		return formatDate(r.Until)
	case "set":
		return r.Set
	case "metadataPrefix":
		return r.Prefix
	case "identifier":
		return r.Identifier
	}
	return ""
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// URL returns the absolute URL for a given request. Catches basic errors like
// missing endpoint or bad verb.
func (r Request) URL() (string, error) {
	if r.Endpoint == "" {
		return "", ErrNoEndpoint
	}
	if r.Verb == "" {
		return "", ErrNoVerb
	}
	names, ok := verbArguments[r.Verb]
	if !ok {
		return "", ErrBadVerb
	}
	values := url.Values{"verb": {r.Verb}}
	if r.ResumptionToken != "" {
		// An exclusive argument (3.5), nothing else is sent along.
		values.Set("resumptionToken", r.ResumptionToken)
	} else {
		for _, name := range names {
			if v := r.argument(name); v != "" {
				values.Set(name, v)
			}
		}
	}
	return r.Endpoint + "?" + values.Encode(), nil
}

// resumptionToken is part of OAI flow control (3.5)
type resumptionToken struct {
	Value string `xml:",chardata"`
	// A UTCdatetime indicating when the resumptionToken ceases to be valid.
	ExpirationDate string `xml:"expirationDate,attr"`
	// A count of the number of elements of the complete list thus far
	// returned (i.e. cursor starts at 0).
	Cursor string `xml:"cursor,attr"`
	// An integer indicating the cardinality of the complete list, may be
	// only an estimate.
	CompleteListSize string `xml:"completeListSize,attr"`
}

// Header is transmitted with every record. A status of "deleted" means
// there is no metadata.
type Header struct {
	Status     string   `xml:"status,attr"`
	Identifier string   `xml:"identifier"`
	Datestamp  string   `xml:"datestamp"`
	Sets       []string `xml:"setSpec"`
}

// Deleted reports whether the repository marked this record deleted.
func (h Header) Deleted() bool {
	return h.Status == "deleted"
}

// recordXML is a single record as found in ListRecords and GetRecord.
type recordXML struct {
	Header   Header `xml:"header"`
	Metadata struct {
		Verbatim string `xml:",innerxml"`
	} `xml:"metadata"`
}

// Identify response.
type Identify struct {
	Name              string `xml:"repositoryName,omitempty" json:"name,omitempty"`
	URL               string `xml:"baseURL,omitempty" json:"url,omitempty"`
	Version           string `xml:"protocolVersion,omitempty" json:"version,omitempty"`
	AdminEmail        string `xml:"adminEmail,omitempty" json:"email,omitempty"`
	EarliestDatestamp string `xml:"earliestDatestamp,omitempty" json:"earliest,omitempty"`
	DeletePolicy      string `xml:"deletedRecord,omitempty" json:"delete,omitempty"`
	Granularity       string `xml:"granularity,omitempty" json:"granularity,omitempty"`
}

// MetadataFormat is a single entry of a ListMetadataFormats response.
type MetadataFormat struct {
	Prefix    string `xml:"metadataPrefix" json:"prefix"`
	Schema    string `xml:"schema" json:"schema"`
	Namespace string `xml:"metadataNamespace" json:"namespace"`
}

// ListMetadataFormats response.
type ListMetadataFormats struct {
	Formats []MetadataFormat `xml:"metadataFormat" json:"formats"`
}

// ListRecords response.
type ListRecords struct {
	Records []recordXML     `xml:"record"`
	Token   resumptionToken `xml:"resumptionToken"`
}

// GetRecord response.
type GetRecord struct {
	Record recordXML `xml:"record"`
}

// Response can hold the answers to the requests oaifetch sends.
type Response struct {
	xml.Name `xml:"OAI-PMH"`
	Date     string `xml:"responseDate"`
	Request  struct {
		Verb     string `xml:"verb,attr"`
		Endpoint string `xml:",chardata"`
	} `xml:"request"`
	Error struct {
		Code    string `xml:"code,attr"`
		Message string `xml:",chardata"`
	} `xml:"error"`
	Identify            Identify            `xml:"Identify"`
	ListMetadataFormats ListMetadataFormats `xml:"ListMetadataFormats"`
	ListRecords         ListRecords         `xml:"ListRecords"`
	GetRecord           GetRecord           `xml:"GetRecord"`
}
