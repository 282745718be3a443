package xbdm

import "time"

// epochFileTime is 1970-01-01 in 100ns ticks since 1601-01-01.
const epochFileTime = 116444736000000000

// FileTime converts the hi/lo halves of a Windows FILETIME, as sent in
// createhi/createlo style fields, to UTC. A zero FILETIME means the time
// is unset and gives the zero time.Time.
func FileTime(hi, lo uint32) time.Time {
	ft := uint64(hi)<<32 | uint64(lo)
	if ft == 0 {
		return time.Time{}
	}
	ticks := int64(ft - epochFileTime)
	if ft < epochFileTime {
		ticks = -int64(epochFileTime - ft)
	}
	sec, rem := ticks/1e7, ticks%1e7
	return time.Unix(sec, rem*100).UTC()
}
