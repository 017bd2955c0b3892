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
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/now"
)

const oneDay = 24 * time.Hour

var (
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrUnknownSplit     = errors.New("unknown window split")
)

// Window is the span of time harvested in one run, From and Until inclusive.
// Both are sent to the repository with day granularity.
type Window struct {
	From  time.Time
	Until time.Time
}

// String formats the window the way it goes over the wire.
func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.From.Format("2006-01-02"), w.Until.Format("2006-01-02"))
}

// Empty is true for a window that starts and ends on the same day.
func (w Window) Empty() bool {
	return w.From.Format("2006-01-02") == w.Until.Format("2006-01-02")
}

// period maps a point in time to the first or last instant of the period
// (week, month) it falls into.
type period func(time.Time) time.Time

// cut splits the window at period boundaries. The first slice starts at the
// beginning of From's day, the last one ends at the end of Until's day.
func (w Window) cut(begin, end period) ([]Window, error) {
	if w.From.After(w.Until) {
		return nil, ErrInvalidDateRange
	}
	var (
		slices []Window
		last   = now.New(w.Until).EndOfDay()
		t      = now.New(w.From).BeginningOfDay()
	)
	for {
		stop := end(t)
		if !stop.Before(last) {
			return append(slices, Window{From: t, Until: last}), nil
		}
		slices = append(slices, Window{From: t, Until: stop})
		t = begin(stop.Add(oneDay))
	}
}

// Monthly splits the window at month boundaries.
func (w Window) Monthly() ([]Window, error) {
	return w.cut(
		func(t time.Time) time.Time { return now.New(t).BeginningOfMonth() },
		func(t time.Time) time.Time { return now.New(t).EndOfMonth() },
	)
}

// Weekly splits the window at week boundaries, weeks start on Sunday.
func (w Window) Weekly() ([]Window, error) {
	return w.cut(
		func(t time.Time) time.Time { return now.New(t).BeginningOfWeek() },
		func(t time.Time) time.Time { return now.New(t).EndOfWeek() },
	)
}

// Split returns the windows to request for a split mode: "" or "none" keeps
// the window as is, "weekly" and "monthly" cut it into slices.
func (w Window) Split(mode string) ([]Window, error) {
	switch mode {
	case "", "none":
		if w.From.After(w.Until) {
			return nil, ErrInvalidDateRange
		}
		return []Window{w}, nil
	case "weekly":
		return w.Weekly()
	case "monthly":
		return w.Monthly()
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSplit, mode)
}
