package cve

import (
	"time"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
)

// NextScan returns when the scan after one taken at last is due. A cron
// scanSchedule wins over scanIntervalSecs; an unparsable schedule falls back
// to the interval.
func NextScan(s stellarv1alpha1.CVESettings, last time.Time) time.Time {
	if s.ScanSchedule != "" {
		if sched, err := stellarv1alpha1.ParseScanSchedule(s.ScanSchedule); err == nil {
			return sched.Next(last)
		}
	}
	return last.Add(time.Duration(s.ScanIntervalSecs) * time.Second)
}

// ScanDue reports whether a scan should run at now.
func ScanDue(status *stellarv1alpha1.CVEStatus, now time.Time) bool {
	if status == nil || status.NextScanTime == nil {
		return true
	}
	return !now.Before(status.NextScanTime.Time)
}
