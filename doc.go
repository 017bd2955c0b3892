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

// Package oaifetch harvests OAI repositories incrementally and materializes
// the result on disk. The Open Archives Initiative Protocol for Metadata
// Harvesting (OAI-PMH) is a low-barrier mechanism for repository
// interoperability.
//
// Every run covers the window from the last covered date until today. Each
// record gets a directory named after its identifier, holding one file per
// metadata format. Links to files found in the metadata, via XPath or by
// scanning all values, are downloaded into a files subdirectory.
//
//	storage/oai_repo_123/oai_repo_123.oai_dc
//	storage/oai_repo_123/files/paper.pdf
//
// Basic usage:
//
//	$ oaifetch -config config.txt
package oaifetch
