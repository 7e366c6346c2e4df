package cve

import (
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
)

func TestNextScan(t *testing.T) {
	last := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		name     string
		settings stellarv1alpha1.CVESettings
		want     time.Time
	}{
		{
			name:     "interval",
			settings: stellarv1alpha1.CVESettings{ScanIntervalSecs: 600},
			want:     last.Add(10 * time.Minute),
		},
		{
			name:     "cron wins over interval",
			settings: stellarv1alpha1.CVESettings{ScanIntervalSecs: 600, ScanSchedule: "0 */6 * * *"},
			want:     time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		},
		{
			name:     "invalid cron falls back",
			settings: stellarv1alpha1.CVESettings{ScanIntervalSecs: 3600, ScanSchedule: "not a schedule"},
			want:     last.Add(time.Hour),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextScan(tt.settings, last); !got.Equal(tt.want) {
				t.Errorf("NextScan() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestScanDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *stellarv1alpha1.CVEStatus {
		next := metav1.NewTime(now.Add(d))
		return &stellarv1alpha1.CVEStatus{NextScanTime: &next}
	}

	if !ScanDue(nil, now) {
		t.Error("nil status should be due")
	}
	if !ScanDue(&stellarv1alpha1.CVEStatus{}, now) {
		t.Error("unscheduled status should be due")
	}
	if ScanDue(at(time.Minute), now) {
		t.Error("future scan should not be due")
	}
	if !ScanDue(at(0), now) {
		t.Error("scan at now should be due")
	}
}
