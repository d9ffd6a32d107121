package commands

import (
	"strings"

	"github.com/spf13/cobra"

	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/domain/preference"
)

// NewPrefsCmd creates the prefs command group.
func NewPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"preferences"},
		Short:   "Show or change your preferences",
		Long: `Show or change language, units and notification settings. Changes made
offline apply immediately on this device and reach the backend on next sync;
the most recent change wins.`,
	}

	cmd.AddCommand(newPrefsShowCmd())
	cmd.AddCommand(newPrefsSetCmd())
	cmd.AddCommand(newPrefsResetCmd())

	return cmd
}

func newPrefsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show your preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := connected(cmd)
			if err != nil {
				return err
			}
			prefs, err := c.Preferences().Get(cmd.Context())
			if err != nil {
				return err
			}
			return formatter.Preferences(prefs)
		},
	}
}

// prefsFlags holds the raw values of prefs set.
type prefsFlags struct {
	language      string
	units         string
	push          bool
	email         bool
	weatherAlerts bool
	diseaseAlerts bool
	quietHours    string
	noQuietHours  bool
}

func newPrefsSetCmd() *cobra.Command {
	var v prefsFlags

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change preferences",
		Example: `  cropcare prefs set --language hi --units metric
  cropcare prefs set --quiet-hours 22:00-06:00 --email=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := buildPatch(cmd, v)
			if err != nil {
				return err
			}

			c, formatter, err := connected(cmd)
			if err != nil {
				return err
			}
			prefs, err := c.Preferences().Update(cmd.Context(), patch)
			if err != nil {
				return err
			}
			if !formatter.IsJSON() && !c.Monitor().Online() {
				formatter.Info("Saved on this device; it will sync when you are back online")
			}
			return formatter.Preferences(prefs)
		},
	}

	f := cmd.Flags()
	f.StringVar(&v.language, "language", "", "preferred language tag, e.g. hi")
	f.StringVar(&v.units, "units", "", "metric or imperial")
	f.BoolVar(&v.push, "push", true, "push notifications")
	f.BoolVar(&v.email, "email", false, "email notifications")
	f.BoolVar(&v.weatherAlerts, "weather-alerts", true, "weather alerts")
	f.BoolVar(&v.diseaseAlerts, "disease-alerts", true, "disease alerts")
	f.StringVar(&v.quietHours, "quiet-hours", "", "silence notifications, START-END as HH:MM-HH:MM")
	f.BoolVar(&v.noQuietHours, "no-quiet-hours", false, "remove quiet hours")

	return cmd
}

// buildPatch turns the flags that were set into a preferences patch.
func buildPatch(cmd *cobra.Command, v prefsFlags) (preference.Patch, error) {
	var patch preference.Patch
	f := cmd.Flags()

	if f.Changed("language") {
		patch.Language = &v.language
	}
	if f.Changed("units") {
		units := preference.Units(strings.ToLower(v.units))
		patch.Units = &units
	}

	var n preference.NotificationPatch
	touched := false
	for name, dst := range map[string]**bool{
		"push":           &n.Push,
		"email":          &n.Email,
		"weather-alerts": &n.WeatherAlerts,
		"disease-alerts": &n.DiseaseAlerts,
	} {
		if !f.Changed(name) {
			continue
		}
		val, err := f.GetBool(name)
		if err != nil {
			return patch, err
		}
		*dst = &val
		touched = true
	}

	if f.Changed("quiet-hours") && v.noQuietHours {
		return patch, domainerrors.Validation("--quiet-hours and --no-quiet-hours conflict")
	}
	if f.Changed("quiet-hours") {
		start, end, ok := strings.Cut(v.quietHours, "-")
		if !ok {
			return patch, domainerrors.Validation("quiet hours must look like 22:00-06:00")
		}
		n.QuietHours = &preference.QuietHours{Start: strings.TrimSpace(start), End: strings.TrimSpace(end)}
		touched = true
	}
	if v.noQuietHours {
		n.ClearQuietHours = true
		touched = true
	}
	if touched {
		patch.Notifications = &n
	}

	if patch.Language == nil && patch.Units == nil && patch.Notifications == nil {
		return patch, domainerrors.Validation("nothing to change; see 'cropcare prefs set --help'")
	}
	if err := patch.Validate(); err != nil {
		return patch, domainerrors.Validation("%s", err.Error())
	}
	return patch, nil
}

func newPrefsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore default preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := connected(cmd)
			if err != nil {
				return err
			}
			if err := c.Preferences().Reset(cmd.Context()); err != nil {
				return err
			}
			if formatter.IsJSON() {
				return formatter.JSON(map[string]bool{"reset": true})
			}
			return formatter.Success("Preferences restored to defaults")
		},
	}
}
