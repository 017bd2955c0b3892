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
	"io"
	"strings"
)

// Field is a single key with a scalar (string) or sequence ([]string, []any)
// value.
type Field struct {
	Key   string
	Value any
}

// Metadata is a flat mapping from keys to values, in order of appearance.
type Metadata []Field

// Get returns the value for a key, or nil.
func (m Metadata) Get(key string) any {
	for _, f := range m {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// DecodeFields flattens an XML payload into Metadata. Every element without
// child elements becomes a value under its local name, so an oai_dc record
// turns into {"title": [...], "creator": [...], "identifier": [...]}. Values
// are always []string, keys appear in the order they were first seen.
func DecodeFields(payload string) (Metadata, error) {
	var (
		m       Metadata
		index   = make(map[string]int)
		dec     = xml.NewDecoder(strings.NewReader(payload))
		text    strings.Builder
		leaf    bool
		current string
	)
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current, leaf = t.Name.Local, true
			text.Reset()
		case xml.CharData:
			if leaf {
				text.Write(t)
			}
		case xml.EndElement:
			if !leaf {
				continue
			}
			leaf = false
			v := strings.TrimSpace(text.String())
			if v == "" || t.Name.Local != current {
				continue
			}
			i, ok := index[current]
			if !ok {
				i = len(m)
				index[current] = i
				m = append(m, Field{Key: current, Value: []string{}})
			}
			m[i].Value = append(m[i].Value.([]string), v)
		}
	}
	return m, nil
}
