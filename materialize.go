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
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

var ErrNoIdentifier = errors.New("record without identifier")

// Item is what the pipeline needs from a harvested record. Record implements
// it.
type Item interface {
	Identifier() string
	Formats(ctx context.Context) ([]string, error)
	Payload(ctx context.Context, format string) (string, error)
	Fields() (Metadata, error)
}

// SanitizeIdentifier turns an OAI identifier into a single, safe path
// component, e.g. "oai:repo:123" becomes "oai_repo_123".
func SanitizeIdentifier(id string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`:/\*?"<>|`, r):
			return '_'
		case unicode.IsSpace(r), unicode.IsControl(r):
			return '_'
		}
		return r
	}, strings.TrimSpace(id))
	if strings.Trim(s, ".") == "" {
		return "_"
	}
	return s
}

// Materialized describes the files written for a single record.
type Materialized struct {
	Dir string
	// Files written, in format order.
	Files []string
	// Payloads by format.
	Payloads map[string]string
}

// Materializer writes record metadata below a root directory, one directory
// per record and one file per metadata format.
type Materializer struct {
	Root string
}

// Dir returns the storage directory for an identifier.
func (m Materializer) Dir(identifier string) string {
	return filepath.Join(m.Root, SanitizeIdentifier(identifier))
}

// Materialize writes all metadata formats of a record to disk and returns
// the record directory. An empty directory left over from an interrupted run
// is recreated, a directory with content is kept and its metadata files are
// overwritten in place.
func (m Materializer) Materialize(ctx context.Context, item Item) (Materialized, error) {
	id := item.Identifier()
	if id == "" {
		return Materialized{}, wrapErr(KindRecord, "materialize", id, ErrNoIdentifier)
	}
	var (
		name   = SanitizeIdentifier(id)
		dir    = filepath.Join(m.Root, name)
		result = Materialized{Dir: dir, Payloads: make(map[string]string)}
	)
	// Fails for non-empty directories, which is fine.
	_ = os.Remove(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return result, wrapErr(KindRecord, "materialize", id, err)
	}
	formats, err := item.Formats(ctx)
	if err != nil {
		return result, wrapErr(KindRecord, "list formats", id, err)
	}
	for _, format := range formats {
		payload, err := item.Payload(ctx, format)
		if err != nil {
			return result, wrapErr(KindRecord, "payload", id, fmt.Errorf("%s: %w", format, err))
		}
		filename := filepath.Join(dir, fmt.Sprintf("%s.%s", name, SanitizeIdentifier(format)))
		if err := WriteFileAtomic(filename, []byte(payload), 0644); err != nil {
			return result, wrapErr(KindRecord, "write", id, err)
		}
		result.Files = append(result.Files, filename)
		result.Payloads[format] = payload
	}
	return result, nil
}
