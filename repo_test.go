package oaifetch

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRecord is served by fakeRepo. Formats maps a metadataPrefix to the
// metadata payload.
type fakeRecord struct {
	ID      string
	Deleted bool
	Formats map[string]string
}

// fakeRepo is a tiny OAI-PMH repository, which also serves assets below
// /files/. Assets named broken* answer with 500.
type fakeRepo struct {
	sync.Mutex
	Records  []fakeRecord
	PageSize int
	// FailListing makes ListRecords answer with 500.
	FailListing bool
	// FailAfter lets ListRecords fail after that many successful pages.
	FailAfter int

	server   *httptest.Server
	requests []url.Values
}

func newFakeRepo(t *testing.T) *fakeRepo {
	t.Helper()
	repo := &fakeRepo{PageSize: 2}
	repo.server = httptest.NewServer(repo)
	t.Cleanup(repo.server.Close)
	return repo
}

// Endpoint is the OAI base URL.
func (f *fakeRepo) Endpoint() string { return f.server.URL + "/oai" }

// Asset returns the link to an asset of the repository.
func (f *fakeRepo) Asset(name string) string { return f.server.URL + "/files/" + name }

func (f *fakeRepo) client() *Client { return NewClientDoer(f.server.Client()) }

func (f *fakeRepo) fetcher() *Fetcher { return NewFetcherDoer(f.server.Client(), 0) }

// Requests returns the query of all OAI requests with a given verb.
func (f *fakeRepo) Requests(verb string) []url.Values {
	f.Lock()
	defer f.Unlock()
	var result []url.Values
	for _, q := range f.requests {
		if q.Get("verb") == verb {
			result = append(result, q)
		}
	}
	return result
}

func (f *fakeRepo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/files/") {
		name := strings.TrimPrefix(r.URL.Path, "/files/")
		if strings.HasPrefix(name, "broken") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "content of %s", name)
		return
	}
	q := r.URL.Query()
	f.Lock()
	f.requests = append(f.requests, q)
	f.Unlock()

	switch q.Get("verb") {
	case "Identify":
		f.write(w, "Identify", `<Identify><repositoryName>Fake</repositoryName>`+
			`<baseURL>`+f.Endpoint()+`</baseURL><protocolVersion>2.0</protocolVersion>`+
			`<earliestDatestamp>2000-01-01</earliestDatestamp><deletedRecord>persistent</deletedRecord>`+
			`<granularity>YYYY-MM-DD</granularity></Identify>`)
	case "ListRecords":
		f.listRecords(w, q)
	case "GetRecord":
		for _, rec := range f.Records {
			if rec.ID != q.Get("identifier") {
				continue
			}
			if _, ok := rec.Formats[q.Get("metadataPrefix")]; !ok {
				f.write(w, "GetRecord", `<error code="cannotDisseminateFormat">no such format</error>`)
				return
			}
			f.write(w, "GetRecord", "<GetRecord>"+recordXMLString(rec, q.Get("metadataPrefix"))+"</GetRecord>")
			return
		}
		f.write(w, "GetRecord", `<error code="idDoesNotExist">unknown</error>`)
	case "ListMetadataFormats":
		var sb strings.Builder
		sb.WriteString("<ListMetadataFormats>")
		if q.Get("identifier") == "" {
			sb.WriteString("<metadataFormat><metadataPrefix>oai_dc</metadataPrefix>" +
				"<schema>http://www.openarchives.org/OAI/2.0/oai_dc.xsd</schema></metadataFormat>")
		}
		for _, rec := range f.Records {
			if rec.ID != q.Get("identifier") {
				continue
			}
			var prefixes []string
			for p := range rec.Formats {
				prefixes = append(prefixes, p)
			}
			sort.Strings(prefixes)
			for _, p := range prefixes {
				fmt.Fprintf(&sb, "<metadataFormat><metadataPrefix>%s</metadataPrefix><schema>http://example.org/%s.xsd</schema></metadataFormat>", p, p)
			}
		}
		sb.WriteString("</ListMetadataFormats>")
		f.write(w, "ListMetadataFormats", sb.String())
	default:
		f.write(w, q.Get("verb"), `<error code="badVerb">illegal verb</error>`)
	}
}

func (f *fakeRepo) listRecords(w http.ResponseWriter, q url.Values) {
	f.Lock()
	fail := f.FailListing
	if f.FailAfter > 0 {
		var n int
		for _, q := range f.requests {
			if q.Get("verb") == "ListRecords" {
				n++
			}
		}
		fail = fail || n > f.FailAfter
	}
	f.Unlock()
	if fail {
		http.Error(w, "listing broken", http.StatusInternalServerError)
		return
	}
	if len(f.Records) == 0 {
		f.write(w, "ListRecords", `<error code="noRecordsMatch">nothing here</error>`)
		return
	}
	start := 0
	if token := q.Get("resumptionToken"); token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := start + f.PageSize
	if end > len(f.Records) {
		end = len(f.Records)
	}
	var sb strings.Builder
	sb.WriteString("<ListRecords>")
	for _, rec := range f.Records[start:end] {
		sb.WriteString(recordXMLString(rec, "oai_dc"))
	}
	if end < len(f.Records) {
		fmt.Fprintf(&sb, `<resumptionToken completeListSize="%d" cursor="%d">%d</resumptionToken>`, len(f.Records), start, end)
	} else {
		sb.WriteString(`<resumptionToken completeListSize="0" cursor="0"/>`)
	}
	sb.WriteString("</ListRecords>")
	f.write(w, "ListRecords", sb.String())
}

func recordXMLString(rec fakeRecord, prefix string) string {
	var sb strings.Builder
	sb.WriteString("<record>")
	if rec.Deleted {
		sb.WriteString(`<header status="deleted">`)
	} else {
		sb.WriteString(`<header>`)
	}
	fmt.Fprintf(&sb, "<identifier>%s</identifier><datestamp>2024-01-02</datestamp><setSpec>test</setSpec></header>", rec.ID)
	if !rec.Deleted {
		fmt.Fprintf(&sb, "<metadata>%s</metadata>", rec.Formats[prefix])
	}
	sb.WriteString("</record>")
	return sb.String()
}

func (f *fakeRepo) write(w http.ResponseWriter, verb, body string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>`+
		`<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">`+
		`<responseDate>%s</responseDate><request verb="%s">%s</request>%s</OAI-PMH>`,
		time.Now().UTC().Format(time.RFC3339), verb, f.Endpoint(), body)
}

// dcPayload returns an oai_dc record with a title and the given identifiers.
func dcPayload(identifiers ...string) string {
	var sb strings.Builder
	sb.WriteString(`<oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/" xmlns:dc="http://purl.org/dc/elements/1.1/">`)
	sb.WriteString(`<dc:title>A title</dc:title>`)
	for _, id := range identifiers {
		fmt.Fprintf(&sb, `<dc:identifier>%s</dc:identifier>`, id)
	}
	sb.WriteString(`</oai_dc:dc>`)
	return sb.String()
}

func mustParseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
