// Calendar date/time values and their bit-packed 32-bit on-disk form.
//
// Every timestamp field in the catalog (account creation, repository
// creation/update/last-commit, commit time) is validated against a minimum
// epoch and the current UTC instant, then packed into a single uint32 for
// binary storage, matching the teacher's fixed-width header-encoding idiom
// applied here to a bitfield layout instead of a padded JSON blob.
package ghcatalog

import "time"

// minEpoch is the earliest timestamp this catalog accepts, chosen to match
// the packed form's 6-bit year field (year-2005, 0..63).
var minEpoch = time.Date(2005, time.April, 7, 0, 0, 0, 0, time.UTC)

// Date is a validated calendar value: year, month, day, hour, minute,
// second, all UTC.
type Date struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

// ParseDate parses "YYYY-MM-DD HH:MM:SS" or "YYYY-MM-DD" (hour/minute/
// second default to zero) and validates it against the catalog's valid
// range: [minEpoch, now].
func ParseDate(token string) (Date, bool) {
	layouts := []string{"2006-01-02 15:04:05", "2006-01-02"}
	var t time.Time
	var err error
	for _, layout := range layouts {
		t, err = time.ParseInLocation(layout, token, time.UTC)
		if err == nil {
			break
		}
	}
	if err != nil {
		return Date{}, false
	}
	d := Date{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()}
	if !d.valid() {
		return Date{}, false
	}
	return d, true
}

// valid reports whether d falls within [minEpoch, now].
func (d Date) valid() bool {
	t := d.time()
	return !t.Before(minEpoch) && !t.After(time.Now().UTC())
}

func (d Date) time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Minute, d.Second, 0, time.UTC)
}

// Before reports whether d chronologically precedes other.
func (d Date) Before(other Date) bool {
	return d.time().Before(other.time())
}

// String renders d as "YYYY-MM-DD HH:MM:SS".
func (d Date) String() string {
	return d.time().Format("2006-01-02 15:04:05")
}

// Pack encodes d into the spec's 32-bit layout:
// year-2005:6 bits, month:4, day:5, hour:5, minute:6, second:6.
func (d Date) Pack() uint32 {
	var v uint32
	v |= uint32(d.Year-2005) & 0x3F
	v <<= 4
	v |= uint32(d.Month) & 0xF
	v <<= 5
	v |= uint32(d.Day) & 0x1F
	v <<= 5
	v |= uint32(d.Hour) & 0x1F
	v <<= 6
	v |= uint32(d.Minute) & 0x3F
	v <<= 6
	v |= uint32(d.Second) & 0x3F
	return v
}

// UnpackDate decodes a 32-bit packed value back into a Date.
func UnpackDate(v uint32) Date {
	second := int(v & 0x3F)
	v >>= 6
	minute := int(v & 0x3F)
	v >>= 6
	hour := int(v & 0x1F)
	v >>= 5
	day := int(v & 0x1F)
	v >>= 5
	month := int(v & 0xF)
	v >>= 4
	year := int(v&0x3F) + 2005
	return Date{year, month, day, hour, minute, second}
}
