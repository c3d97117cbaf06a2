// Package clock implements the virtual wall-clock services behind INT
// 21h/2Ah-2Dh: a host-time view shifted by independently settable date and
// time offsets, and the bit-exact DOS date/time encodings.
package clock

import "time"

// NowFunc is injected so tests don't depend on the real wall clock.
type NowFunc func() time.Time

// Clock serves the guest's notion of date and time, offset from host time.
type Clock struct {
	now        NowFunc
	dateOffset time.Duration
	timeOffset time.Duration
}

// New returns a Clock backed by the real wall clock.
func New() *Clock {
	return &Clock{now: time.Now}
}

// NewWithNow returns a Clock backed by the given now function, for tests.
func NewWithNow(now NowFunc) *Clock {
	return &Clock{now: now}
}

// Now returns the guest's current time: host time shifted by the
// accumulated date/time offsets.
func (c *Clock) Now() time.Time {
	return c.now().Add(c.dateOffset).Add(c.timeOffset)
}

// SetDate adjusts the date offset so that Now() reports the given date
// (INT 21h/2Bh), keeping the time-of-day component from host time.
func (c *Clock) SetDate(year int, month time.Month, day int) {
	want := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	have := time.Date(c.now().Year(), c.now().Month(), c.now().Day(), 0, 0, 0, 0, time.UTC)
	c.dateOffset = want.Sub(have)
}

// SetTime adjusts the time offset so that Now() reports the given
// time-of-day (INT 21h/2Dh), keeping the date component from host time.
func (c *Clock) SetTime(hour, minute, second, hundredths int) {
	n := c.now()
	want := time.Duration(hour)*time.Hour +
		time.Duration(minute)*time.Minute +
		time.Duration(second)*time.Second +
		time.Duration(hundredths)*10*time.Millisecond
	have := time.Duration(n.Hour())*time.Hour +
		time.Duration(n.Minute())*time.Minute +
		time.Duration(n.Second())*time.Second
	c.timeOffset = want - have
}

// EncodeDate packs a date into the DOS directory-entry encoding:
// bits 0-4 day, 5-8 month, 9-15 (year-1980).
func EncodeDate(year int, month time.Month, day int) uint16 {
	return uint16(day&0x1F) | uint16(int(month)&0x0F)<<5 | uint16((year-1980)&0x7F)<<9
}

// DecodeDate unpacks a DOS date word into year/month/day.
func DecodeDate(d uint16) (year int, month time.Month, day int) {
	day = int(d & 0x1F)
	month = time.Month((d >> 5) & 0x0F)
	year = 1980 + int((d>>9)&0x7F)
	return
}

// EncodeTime packs a time into the DOS directory-entry encoding:
// bits 0-4 seconds/2, 5-10 minutes, 11-15 hours.
func EncodeTime(hour, minute, second int) uint16 {
	return uint16((second/2)&0x1F) | uint16(minute&0x3F)<<5 | uint16(hour&0x1F)<<11
}

// DecodeTime unpacks a DOS time word into hour/minute/second (even seconds
// only: the format truncates odd seconds to the preceding even value).
func DecodeTime(t uint16) (hour, minute, second int) {
	second = int(t&0x1F) * 2
	minute = int((t >> 5) & 0x3F)
	hour = int((t >> 11) & 0x1F)
	return
}

// DirEntry returns the packed (date, time) pair used in DTA/directory
// records for the given moment.
func DirEntry(t time.Time) (date, tm uint16) {
	date = EncodeDate(t.Year(), t.Month(), t.Day())
	tm = EncodeTime(t.Hour(), t.Minute(), t.Second())
	return
}
