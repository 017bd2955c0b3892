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

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxRecords caps the records processed in a single run.
const DefaultMaxRecords = 100

// Harvest runs one incremental harvest: list the records of a window, write
// their metadata and download the assets they link to.
type Harvest struct {
	Client   *Client
	Endpoint string
	// Prefix is the metadataPrefix used for listing.
	Prefix string
	Set    string
	Window Window
	// Split requests the window in weekly or monthly slices.
	Split string
	// MaxRecords, DefaultMaxRecords if zero.
	MaxRecords   int
	Materializer Materializer
	// Extractor is optional, without it no assets are fetched.
	Extractor Extractor
	Fetcher   *Fetcher
}

// Report summarizes a run.
type Report struct {
	RunID          string
	Window         Window
	Started        time.Time
	Finished       time.Time
	Records        int
	Deleted        int
	MetadataFiles  int
	Assets         int
	AssetFailures  int
	RecordFailures int
	// Capped is set, when the run stopped at the record limit.
	Capped bool
	// Err is the session level failure, if any. Records processed before
	// the failure stay on disk.
	Err error
}

// Committable tells whether the window may be marked as done. A failed
// session only counts as done, if advanceOnFailure is set.
func (r Report) Committable(advanceOnFailure bool) bool {
	return r.Err == nil || advanceOnFailure
}

func (r Report) fields() log.Fields {
	f := log.Fields{
		"run":             r.RunID,
		"window":          r.Window.String(),
		"records":         r.Records,
		"deleted":         r.Deleted,
		"metadata_files":  r.MetadataFiles,
		"assets":          r.Assets,
		"asset_failures":  r.AssetFailures,
		"record_failures": r.RecordFailures,
		"capped":          r.Capped,
		"elapsed":         r.Finished.Sub(r.Started).String(),
	}
	if r.Err != nil {
		f["error"] = r.Err.Error()
	}
	return f
}

// Run executes the harvest. It does not fail: session errors end up in
// Report.Err, record and asset errors are logged and counted.
func (h Harvest) Run(ctx context.Context) Report {
	report := Report{
		RunID:   uuid.New().String(),
		Window:  h.Window,
		Started: time.Now(),
	}
	logger := log.WithFields(log.Fields{"run": report.RunID, "endpoint": h.Endpoint})
	logger.WithFields(log.Fields{
		"prefix": h.Prefix,
		"set":    h.Set,
		"window": h.Window.String(),
	}).Info("starting harvest")

	report.Err = h.run(ctx, logger, &report)
	report.Finished = time.Now()
	if report.Err != nil {
		logger.WithFields(report.fields()).Error("harvest failed")
	} else {
		logger.WithFields(report.fields()).Info("harvest done")
	}
	return report
}

func (h Harvest) run(ctx context.Context, logger *log.Entry, report *Report) error {
	limit := h.MaxRecords
	if limit <= 0 {
		limit = DefaultMaxRecords
	}
	windows, err := h.Window.Split(h.Split)
	if err != nil {
		return wrapErr(KindSession, "split", h.Window.String(), err)
	}
	session, err := h.Client.Open(ctx, h.Endpoint)
	if err != nil {
		return wrapErr(KindSession, "open", h.Endpoint, err)
	}
	defer session.Close()

	records := session.ListRecords(ctx, h.Prefix, h.Set, windows...)
	for records.Next() {
		report.Records++
		rec := records.Record()
		switch {
		case rec.Deleted():
			report.Deleted++
			logger.WithFields(log.Fields{"id": rec.Identifier()}).Debug("skipping deleted record")
		default:
			if err := h.process(ctx, logger, rec, report); err != nil {
				report.RecordFailures++
				logger.WithFields(log.Fields{
					"id":    rec.Identifier(),
					"error": err,
				}).Warn("record failed")
			}
		}
		if report.Records == limit {
			report.Capped = true
			logger.WithFields(log.Fields{"limit": limit}).Warn("record limit reached, closing session")
			return nil
		}
	}
	if err := records.Err(); err != nil {
		return wrapErr(KindSession, "list records", h.Endpoint, err)
	}
	return nil
}

// process handles a single record. Asset failures are counted, but do not
// fail the record.
func (h Harvest) process(ctx context.Context, logger *log.Entry, item Item, report *Report) error {
	m, err := h.Materializer.Materialize(ctx, item)
	report.MetadataFiles += len(m.Files)
	if err != nil {
		return err
	}
	if h.Extractor == nil || h.Fetcher == nil {
		return nil
	}
	links, err := h.Extractor.Extract(ctx, item, m.Payloads)
	if err != nil {
		return err
	}
	for _, link := range links {
		if _, err := h.Fetcher.Fetch(ctx, link, m.Dir); err != nil {
			report.AssetFailures++
			logger.WithFields(log.Fields{
				"id":    item.Identifier(),
				"link":  link,
				"error": err,
			}).Warn("asset failed")
			continue
		}
		report.Assets++
	}
	return nil
}
