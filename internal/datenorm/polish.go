package datenorm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit tokens. RE2 word boundaries are ASCII-only, so the trailing boundary is spelled as
// "next rune is not a letter".
const (
	secondUnits = `(?:sek(?:und(?:y)?)?|sek\.?|s)`
	minuteUnits = `(?:min(?:ut(?:y|ę)?)?|min\.?|m)`
	hourUnits   = `(?:godz(?:in(?:y|ę)?)?|godz\.?)`
	unitEnd     = `(?:[^\p{L}]|$)`
)

var (
	combinedRe = regexp.MustCompile(`(\d{1,3})\s*` + hourUnits + `[^\d]*(\d{1,3})\s*` + minuteUnits + unitEnd)
	minutesRe  = regexp.MustCompile(`(\d{1,3})\s*` + minuteUnits + unitEnd)
	hoursRe    = regexp.MustCompile(`(\d{1,3})\s*` + hourUnits + unitEnd)
	secondsRe  = regexp.MustCompile(`(\d{1,3})\s*` + secondUnits + unitEnd)
	clockRe    = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	absoluteRe = regexp.MustCompile(`(\d{1,2})\s+(\p{L}+)\s*(\d{4})?.*?(\d{1,2}):(\d{2})`)
)

var polishMonths = map[string]time.Month{
	"stycznia": time.January, "styczen": time.January, "styczeń": time.January,
	"lutego": time.February, "luty": time.February,
	"marca": time.March, "marzec": time.March,
	"kwietnia": time.April, "kwiecien": time.April, "kwiecień": time.April,
	"maja": time.May, "maj": time.May,
	"czerwca": time.June, "czerwiec": time.June,
	"lipca": time.July, "lipiec": time.July,
	"sierpnia": time.August, "sierpien": time.August, "sierpień": time.August,
	"września": time.September, "wrzesnia": time.September, "wrzesień": time.September, "wrzesien": time.September,
	"października": time.October, "pazdziernika": time.October, "październik": time.October, "pazdziernik": time.October,
	"listopada": time.November, "listopad": time.November,
	"grudnia": time.December, "grudzien": time.December, "grudzień": time.December,
}

// rule is one step of the Polish cascade; rules run in order and the first hit wins.
type rule func(n *Normalizer, low string, now time.Time) (time.Time, bool)

// The combined rule precedes the single-unit rules: "1 godz. 16 minut temu" would otherwise be
// read as 16 minutes by the minutes rule.
var polishRules = []rule{
	combinedAgo,
	unitAgo(minutesRe, time.Minute),
	unitAgo(hoursRe, time.Hour),
	unitAgo(secondsRe, time.Second),
	todayOrYesterday,
	dayMonthTime,
}

// ParsePolish applies the Polish relative and absolute rules.
func (n *Normalizer) ParsePolish(raw string) (time.Time, bool) {
	low := strings.ToLower(Clean(raw))
	if low == "" {
		return time.Time{}, false
	}
	now := n.now()
	for _, r := range polishRules {
		if t, ok := r(n, low, now); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func combinedAgo(_ *Normalizer, low string, now time.Time) (time.Time, bool) {
	m := combinedRe.FindStringSubmatch(low)
	if m == nil {
		return time.Time{}, false
	}
	hrs, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	return now.Add(-(time.Duration(hrs)*time.Hour + time.Duration(mins)*time.Minute)), true
}

func unitAgo(re *regexp.Regexp, unit time.Duration) rule {
	return func(_ *Normalizer, low string, now time.Time) (time.Time, bool) {
		m := re.FindStringSubmatch(low)
		if m == nil {
			return time.Time{}, false
		}
		v, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(v) * unit), true
	}
}

func todayOrYesterday(n *Normalizer, low string, now time.Time) (time.Time, bool) {
	var day time.Time
	switch {
	case strings.Contains(low, "dzis"), strings.Contains(low, "dziś"):
		day = now
	case strings.Contains(low, "wczoraj"):
		day = now.AddDate(0, 0, -1)
	default:
		return time.Time{}, false
	}
	hour, minute := 0, 0
	if m := clockRe.FindStringSubmatch(low); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return time.Time{}, false
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, n.loc), true
}

func dayMonthTime(n *Normalizer, low string, now time.Time) (time.Time, bool) {
	m := absoluteRe.FindStringSubmatch(low)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := polishMonths[m[2]]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	year := now.Year()
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
	}
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	if day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, hour, minute, 0, 0, n.loc)
	if t.Day() != day {
		// e.g. 31 lutego normalizes into March
		return time.Time{}, false
	}
	return t, true
}
