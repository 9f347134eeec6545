package scanning

import (
	"log/slog"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// dateLayout is day.month.2-digit-year, the only shape receipts are read in.
// Other tokens the date pattern matches fall back to today.
const dateLayout = "2.1.06"

// NormalizeDate converts a matched date token to YYYY-MM-DD. An empty or
// unparseable token yields now's date; the failure is logged, not returned.
func NormalizeDate(token string, now time.Time) string {
	token = strings.TrimSpace(token)
	if token == "" {
		slog.Debug("No date found on receipt, using today")
		return now.Format(isoDate)
	}

	d, err := time.Parse(dateLayout, token)
	if err != nil {
		slog.Warn("Failed to parse receipt date, using today", "token", token, "error", err)
		return now.Format(isoDate)
	}

	year := pivotYear(d.Year()%100, now.Year())
	dated := time.Date(year, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	if dated.Day() != d.Day() {
		// 29 February moved into a non-leap century
		slog.Warn("Failed to parse receipt date, using today", "token", token)
		return now.Format(isoDate)
	}
	return dated.Format(isoDate)
}

// pivotYear places a two digit year in the century nearest ref: up to 49
// years ahead of ref, otherwise behind it.
func pivotYear(yy, ref int) int {
	rangeEnd := ref + 50
	century := rangeEnd / 100 * 100
	if yy >= rangeEnd%100 {
		century -= 100
	}
	return century + yy
}
