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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jinzhu/now"
	log "github.com/sirupsen/logrus"
)

// DefaultStateFile keeps the last covered date, relative to the working
// directory.
const DefaultStateFile = "state.txt"

// State keeps track of the date through which harvesting is complete. The
// file holds a single YYYY-MM-DD value.
type State struct {
	Path string
	// Now returns the current time, time.Now if nil.
	Now func() time.Time
}

func (s State) today() time.Time {
	t := time.Now()
	if s.Now != nil {
		t = s.Now()
	}
	return now.New(t).BeginningOfDay()
}

// ReadWindow returns the window for the next run: from the last covered
// date until today. A missing or unreadable state is not an error, from
// becomes today, which means the first run covers a single day only.
func (s State) ReadWindow() Window {
	today := s.today()
	from, err := s.last()
	if err != nil {
		log.WithFields(log.Fields{
			"path":  s.Path,
			"error": err,
		}).Warn("no usable harvest state, starting from today")
		from = today
	}
	if from.After(today) {
		log.WithFields(log.Fields{
			"path": s.Path,
			"from": from.Format("2006-01-02"),
		}).Warn("harvest state lies in the future, starting from today")
		from = today
	}
	return Window{From: from, Until: today}
}

// last reads and parses the state file.
func (s State) last() (time.Time, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(string(b)), s.today().Location())
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// Commit records t as the date through which harvesting is complete. The
// previous value is replaced atomically.
func (s State) Commit(t time.Time) error {
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := mkdirAll(dir); err != nil {
			return wrapErr(KindState, "commit", s.Path, err)
		}
	}
	if err := WriteFileAtomic(s.Path, []byte(t.Format("2006-01-02")+"\n"), 0644); err != nil {
		return wrapErr(KindState, "commit", s.Path, err)
	}
	log.WithFields(log.Fields{
		"path": s.Path,
		"date": t.Format("2006-01-02"),
	}).Info("updated harvest state")
	return nil
}
