package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/application/offline"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/analysis"
	"github.com/jbctechsolutions/cropcare/internal/domain/preference"
)

const dateLayout = "2006-01-02 15:04"

// statusLabel returns the display status of an analysis; queued analyses
// show as queued whatever their stored status.
func statusLabel(a *analysis.CropAnalysis, queued bool) string {
	if queued {
		return "queued"
	}
	return string(a.Status)
}

func (f *Formatter) statusBadge(label string) string {
	if c, ok := statusColors[label]; ok {
		return f.Colorize(label, c)
	}
	return label
}

func (f *Formatter) severity(s *analysis.Severity) string {
	if s == nil {
		return "-"
	}
	if c, ok := severityColors[string(*s)]; ok {
		return f.Colorize(string(*s), c)
	}
	return string(*s)
}

func confidence(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *v*100)
}

// AnalysisResult prints one analysis with its treatment plan.
func (f *Formatter) AnalysisResult(res *analysis.Result) error {
	if f.IsJSON() {
		return f.JSON(res)
	}
	a := res.Analysis
	f.Header(fmt.Sprintf("%s analysis", a.CropType))
	f.Item("ID", a.ID)
	f.Item("Status", f.statusBadge(statusLabel(a, res.Queued)))
	f.Item("Date", a.AnalysisDate.Local().Format(dateLayout))
	if a.Location != nil {
		loc := fmt.Sprintf("%.4f, %.4f", a.Location.Lat, a.Location.Lng)
		if a.Location.Name != "" {
			loc = a.Location.Name + " (" + loc + ")"
		}
		f.Item("Location", loc)
	}

	if res.Queued {
		f.Println("")
		return f.Info("Saved offline. The photo will be analyzed when the connection returns.")
	}
	if a.Status != analysis.StatusCompleted {
		return nil
	}

	f.Item("Prediction", a.Prediction())
	f.Item("Confidence", confidence(a.ConfidenceScore))
	f.Item("Severity", f.severity(a.SeverityLevel))

	rec := res.Recommendation
	if rec == nil {
		return nil
	}
	sections := []struct {
		title string
		items []string
	}{
		{"Treatment", rec.TreatmentSteps},
		{"Precautions", rec.PrecautionaryMeasures},
		{"Products", rec.ProductsRecommended},
		{"Expert tips", rec.ExpertTips},
	}
	for _, s := range sections {
		if len(s.items) == 0 {
			continue
		}
		f.Println("")
		f.SubHeader(s.title)
		for i, item := range s.items {
			f.Println("  %d. %s", i+1, item)
		}
	}
	if rec.Timeline != nil && *rec.Timeline != "" {
		f.Println("")
		f.Item("Expected recovery", *rec.Timeline)
	}
	return nil
}

// AnalysisList prints analyses newest first. Analyses whose ids are in
// queued have not reached the backend yet.
func (f *Formatter) AnalysisList(list []*analysis.CropAnalysis, queued map[string]bool) error {
	if f.IsJSON() {
		return f.JSON(list)
	}
	if len(list) == 0 {
		return f.Info("No analyses yet. Run 'cropcare analyze <photo>' to start.")
	}
	table := TableData{Columns: []TableColumn{
		{Header: "ID"},
		{Header: "DATE"},
		{Header: "CROP"},
		{Header: "STATUS"},
		{Header: "PREDICTION"},
		{Header: "CONFIDENCE", Align: AlignRight},
	}}
	for _, a := range list {
		table.Rows = append(table.Rows, []string{
			shortID(a.ID),
			a.AnalysisDate.Local().Format(dateLayout),
			a.CropType,
			statusLabel(a, queued[a.ID]),
			truncate(a.Prediction(), 40),
			confidence(a.ConfidenceScore),
		})
	}
	return f.Table(table)
}

// Forecast prints current conditions and the daily outlook.
func (f *Formatter) Forecast(fc *ports.Forecast) error {
	if f.IsJSON() {
		return f.JSON(fc)
	}
	title := "Weather"
	if fc.Location != "" {
		title += " for " + fc.Location
	}
	f.Header(title)
	cur := fc.Current
	f.Item("Now", fmt.Sprintf("%.1f°C, %s", cur.TemperatureC, cur.Summary))
	f.Item("Humidity", fmt.Sprintf("%.0f%%", cur.Humidity))
	f.Item("Wind", fmt.Sprintf("%.0f km/h", cur.WindKPH))
	f.Item("Rainfall", fmt.Sprintf("%.1f mm", cur.RainfallMM))
	for _, alert := range fc.Alerts {
		f.Warning("%s", alert)
	}
	if len(fc.Daily) == 0 {
		return nil
	}
	f.Println("")
	table := TableData{Columns: []TableColumn{
		{Header: "DATE"},
		{Header: "MIN", Align: AlignRight},
		{Header: "MAX", Align: AlignRight},
		{Header: "RAIN", Align: AlignRight},
		{Header: "SUMMARY"},
	}}
	for _, d := range fc.Daily {
		table.Rows = append(table.Rows, []string{
			d.Date,
			fmt.Sprintf("%.0f°", d.MinC),
			fmt.Sprintf("%.0f°", d.MaxC),
			fmt.Sprintf("%.0f%%", d.RainPct),
			d.Summary,
		})
	}
	return f.Table(table)
}

// Preferences prints the user's settings.
func (f *Formatter) Preferences(p preference.Preferences) error {
	if f.IsJSON() {
		return f.JSON(p)
	}
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	f.Header("Preferences")
	f.Item("Language", p.Language)
	f.Item("Units", string(p.Units))
	f.Item("Push", onOff(p.Notifications.Push))
	f.Item("Email", onOff(p.Notifications.Email))
	f.Item("Weather alerts", onOff(p.Notifications.WeatherAlerts))
	f.Item("Disease alerts", onOff(p.Notifications.DiseaseAlerts))
	if qh := p.Notifications.QuietHours; qh != nil {
		f.Item("Quiet hours", qh.Start+"-"+qh.End)
	}
	return nil
}

// DrainResult prints the outcome of a sync pass.
func (f *Formatter) DrainResult(res offline.DrainResult) error {
	if f.IsJSON() {
		return f.JSON(res)
	}
	if res.Skipped {
		return f.Warning("A sync is already running")
	}
	if res.Queued == 0 {
		return f.Success("Nothing to sync")
	}
	msg := fmt.Sprintf("Synced %d of %d changes in %s", res.Applied, res.Queued, res.Duration.Round(time.Millisecond))
	if res.Failed > 0 || res.Dropped > 0 {
		return f.Warning("%s (%d will retry, %d dropped)", msg, res.Failed, res.Dropped)
	}
	return f.Success("%s", msg)
}

// CacheStats prints local cache usage.
func (f *Formatter) CacheStats(stats *ports.LocalCacheStats, translations int) error {
	if f.IsJSON() {
		return f.JSON(map[string]any{"cache": stats, "translations": translations})
	}
	f.Header("Local cache")
	f.Item("Entries", fmt.Sprintf("%d (%d expired)", stats.Entries, stats.Expired))
	f.Item("Size", humanBytes(stats.Bytes))
	if !stats.Oldest.IsZero() {
		f.Item("Oldest", stats.Oldest.Local().Format(dateLayout))
		f.Item("Newest", stats.Newest.Local().Format(dateLayout))
	}
	f.Item("Translations", fmt.Sprintf("%d", translations))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// PendingSummary prints queued operations grouped by entity and action.
func (f *Formatter) PendingSummary(online bool, counts map[string]int, total int) error {
	if f.IsJSON() {
		return f.JSON(map[string]any{"online": online, "pending": total, "by_operation": counts})
	}
	state := f.Colorize("offline", ColorYellow)
	if online {
		state = f.Colorize("online", ColorGreen)
	}
	f.Item("Connection", state)
	f.Item("Pending changes", fmt.Sprintf("%d", total))
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f.BulletItem(fmt.Sprintf("%s: %d", strings.ReplaceAll(k, "/", " "), counts[k]))
	}
	return nil
}
