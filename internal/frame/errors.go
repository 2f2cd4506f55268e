// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package frame

import "errors"

// Error kinds. Callers match them with errors.Is, the returned errors wrap them with context.
var (
	ErrGeometry        = errors.New("invalid sensor geometry")
	ErrSizeMismatch    = errors.New("size mismatch")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrFileExists      = errors.New("file already exists")
)
