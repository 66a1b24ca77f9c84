// Copyright (C) 2025 efchat.net <tj@efchat.net>
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

package relay

import "time"

const (
	timeOfDayLayout = "3:04 PM"
	dateLayout      = "1/2/2006"
)

// stamp renders t as a 12-hour time of day and a month/day/year date in loc.
func stamp(t time.Time, loc *time.Location) (timeOfDay, date string) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return local.Format(timeOfDayLayout), local.Format(dateLayout)
}
