// Package preference provides user preference entities and their merge rules.
package preference

import (
	"fmt"
	"regexp"
	"time"

	"golang.org/x/text/language"
)

// Defaults applied when a stored or patched value is missing.
const (
	DefaultLanguage = "en"
	DefaultUnits    = UnitsMetric
)

// Units is the measurement system used for display.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// IsValid reports whether the unit system is known.
func (u Units) IsValid() bool {
	return u == UnitsMetric || u == UnitsImperial
}

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// QuietHours silences push notifications between Start and End (HH:MM, local time).
type QuietHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks both bounds are HH:MM.
func (q *QuietHours) Validate() error {
	if !clockPattern.MatchString(q.Start) {
		return fmt.Errorf("quiet hours start %q must be HH:MM", q.Start)
	}
	if !clockPattern.MatchString(q.End) {
		return fmt.Errorf("quiet hours end %q must be HH:MM", q.End)
	}
	return nil
}

// NotificationSettings controls which alerts a farmer receives.
type NotificationSettings struct {
	Push          bool        `json:"push"`
	Email         bool        `json:"email"`
	WeatherAlerts bool        `json:"weather_alerts"`
	DiseaseAlerts bool        `json:"disease_alerts"`
	QuietHours    *QuietHours `json:"quiet_hours,omitempty"`
}

// DefaultNotifications returns the settings a new account starts with.
func DefaultNotifications() NotificationSettings {
	return NotificationSettings{
		Push:          true,
		Email:         false,
		WeatherAlerts: true,
		DiseaseAlerts: true,
	}
}

// Preferences is one row of the user_preferences table.
type Preferences struct {
	UserID        string               `json:"user_id"`
	Language      string               `json:"language"`
	Units         Units                `json:"units"`
	Notifications NotificationSettings `json:"notification_settings"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Defaults returns the preferences for a user with nothing stored.
func Defaults(userID string) Preferences {
	return Preferences{
		UserID:        userID,
		Language:      DefaultLanguage,
		Units:         DefaultUnits,
		Notifications: DefaultNotifications(),
	}
}

// Normalize fills missing or unrecognized fields with defaults.
func (p Preferences) Normalize() Preferences {
	if tag, err := CanonicalLanguage(p.Language); err == nil {
		p.Language = tag
	} else {
		p.Language = DefaultLanguage
	}
	if !p.Units.IsValid() {
		p.Units = DefaultUnits
	}
	if p.Notifications.QuietHours != nil && p.Notifications.QuietHours.Validate() != nil {
		p.Notifications.QuietHours = nil
	}
	return p
}

// NotificationPatch carries partial updates to NotificationSettings.
type NotificationPatch struct {
	Push          *bool       `json:"push,omitempty"`
	Email         *bool       `json:"email,omitempty"`
	WeatherAlerts *bool       `json:"weather_alerts,omitempty"`
	DiseaseAlerts *bool       `json:"disease_alerts,omitempty"`
	QuietHours    *QuietHours `json:"quiet_hours,omitempty"`
	// ClearQuietHours removes quiet hours; it wins over QuietHours.
	ClearQuietHours bool `json:"clear_quiet_hours,omitempty"`
}

// Patch is a partial update; nil fields leave the base value untouched.
type Patch struct {
	Language      *string            `json:"language,omitempty"`
	Units         *Units             `json:"units,omitempty"`
	Notifications *NotificationPatch `json:"notification_settings,omitempty"`
}

// Validate rejects values that cannot be stored.
func (p *Patch) Validate() error {
	if p.Language != nil {
		if _, err := CanonicalLanguage(*p.Language); err != nil {
			return err
		}
	}
	if p.Units != nil && !p.Units.IsValid() {
		return fmt.Errorf("unknown units %q", *p.Units)
	}
	if n := p.Notifications; n != nil && n.QuietHours != nil && !n.ClearQuietHours {
		if err := n.QuietHours.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Merge applies patch on top of a normalized base and stamps UpdatedAt.
func Merge(base Preferences, patch Patch, now time.Time) (Preferences, error) {
	if err := patch.Validate(); err != nil {
		return base, err
	}
	out := base.Normalize()
	if patch.Language != nil {
		out.Language, _ = CanonicalLanguage(*patch.Language)
	}
	if patch.Units != nil {
		out.Units = *patch.Units
	}
	if n := patch.Notifications; n != nil {
		if n.Push != nil {
			out.Notifications.Push = *n.Push
		}
		if n.Email != nil {
			out.Notifications.Email = *n.Email
		}
		if n.WeatherAlerts != nil {
			out.Notifications.WeatherAlerts = *n.WeatherAlerts
		}
		if n.DiseaseAlerts != nil {
			out.Notifications.DiseaseAlerts = *n.DiseaseAlerts
		}
		switch {
		case n.ClearQuietHours:
			out.Notifications.QuietHours = nil
		case n.QuietHours != nil:
			qh := *n.QuietHours
			out.Notifications.QuietHours = &qh
		}
	}
	out.UpdatedAt = now.UTC()
	return out, nil
}

// CanonicalLanguage parses a BCP 47 tag and returns its canonical base language.
func CanonicalLanguage(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("language is empty")
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", s, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}
