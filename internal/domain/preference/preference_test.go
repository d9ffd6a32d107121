package preference

import (
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestMerge(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	base := Defaults("u1")
	base.Notifications.QuietHours = &QuietHours{Start: "22:00", End: "06:00"}

	tests := []struct {
		name    string
		patch   Patch
		check   func(t *testing.T, got Preferences)
		wantErr bool
	}{
		{
			name:  "empty patch keeps base",
			patch: Patch{},
			check: func(t *testing.T, got Preferences) {
				if got.Language != "en" || got.Units != UnitsMetric || !got.Notifications.Push {
					t.Errorf("unexpected result: %+v", got)
				}
				if got.Notifications.QuietHours == nil {
					t.Error("quiet hours should be kept")
				}
			},
		},
		{
			name:  "language canonicalized",
			patch: Patch{Language: ptr("hi-IN")},
			check: func(t *testing.T, got Preferences) {
				if got.Language != "hi" {
					t.Errorf("Language = %q, want hi", got.Language)
				}
			},
		},
		{
			name: "partial notifications",
			patch: Patch{Notifications: &NotificationPatch{
				Email:         ptr(true),
				DiseaseAlerts: ptr(false),
			}},
			check: func(t *testing.T, got Preferences) {
				n := got.Notifications
				if !n.Email || n.DiseaseAlerts || !n.Push || !n.WeatherAlerts {
					t.Errorf("unexpected notifications: %+v", n)
				}
			},
		},
		{
			name:  "clear quiet hours",
			patch: Patch{Notifications: &NotificationPatch{ClearQuietHours: true, QuietHours: &QuietHours{Start: "bad"}}},
			check: func(t *testing.T, got Preferences) {
				if got.Notifications.QuietHours != nil {
					t.Error("quiet hours should be cleared")
				}
			},
		},
		{
			name:    "invalid units",
			patch:   Patch{Units: ptr(Units("furlongs"))},
			wantErr: true,
		},
		{
			name:    "invalid language",
			patch:   Patch{Language: ptr("not a tag!")},
			wantErr: true,
		},
		{
			name:    "invalid quiet hours",
			patch:   Patch{Notifications: &NotificationPatch{QuietHours: &QuietHours{Start: "25:00", End: "06:00"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge(base, tt.patch, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Merge() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if !got.UpdatedAt.Equal(now) {
				t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, now)
			}
			tt.check(t, got)
		})
	}
}

func TestMerge_DoesNotAliasPatch(t *testing.T) {
	qh := &QuietHours{Start: "21:00", End: "05:00"}
	got, err := Merge(Defaults("u1"), Patch{Notifications: &NotificationPatch{QuietHours: qh}}, time.Now())
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	qh.Start = "00:00"
	if got.Notifications.QuietHours.Start != "21:00" {
		t.Error("merged preferences must not share the patch's quiet hours")
	}
}

func TestNormalize(t *testing.T) {
	p := Preferences{Language: "", Units: "cubits", Notifications: NotificationSettings{QuietHours: &QuietHours{Start: "x"}}}
	got := p.Normalize()

	if got.Language != DefaultLanguage {
		t.Errorf("Language = %q, want %q", got.Language, DefaultLanguage)
	}
	if got.Units != DefaultUnits {
		t.Errorf("Units = %q, want %q", got.Units, DefaultUnits)
	}
	if got.Notifications.QuietHours != nil {
		t.Error("invalid quiet hours should be dropped")
	}
}
