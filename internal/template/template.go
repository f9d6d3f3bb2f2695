// Package template renders announcement text from wind measurements.
// It is the single authority for spoken text: preview, planning and
// transmission all go through Render with identical inputs.
package template

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// directionNames is keyed by round(deg/22.5) mod 16. "Este" and "Oueste"
// replace the standard spellings so the TTS engine articulates the liaison.
var directionNames = [16]string{
	"Nord",
	"Nord-Nord-Este",
	"Nord-Este",
	"Este-Nord-Este",
	"Este",
	"Este-Sud-Este",
	"Sud-Este",
	"Sud-Sud-Este",
	"Sud",
	"Sud-Sud-Oueste",
	"Sud-Oueste",
	"Oueste-Sud-Oueste",
	"Oueste",
	"Oueste-Nord-Oueste",
	"Nord-Oueste",
	"Nord-Nord-Oueste",
}

var directionCardinals = [16]string{
	"N", "NNE", "NE", "ENE",
	"E", "ESE", "SE", "SSE",
	"S", "SSO", "SO", "OSO",
	"O", "ONO", "NO", "NNO",
}

// DirectionName returns the spoken French name for a wind direction.
func DirectionName(deg float64) string {
	return directionNames[directionIndex(deg)]
}

// DirectionCardinal returns the 16-point abbreviation for a wind direction.
func DirectionCardinal(deg float64) string {
	return directionCardinals[directionIndex(deg)]
}

func directionIndex(deg float64) int {
	i := int(math.Round(deg/22.5)) % 16
	if i < 0 {
		i += 16
	}
	return i
}

// Input carries everything Render needs. Optional fields are nil when the
// provider did not report them.
type Input struct {
	StationName      string
	WindAvgKmh       float64
	WindMaxKmh       float64
	WindMinKmh       *float64
	WindDirectionDeg *float64
	MeasurementAt    time.Time // naive UTC
}

// roundInt rounds half away from zero. Wind speeds are non-negative so this
// matches the half-up behavior the rest of the system documents.
func roundInt(v float64) int {
	return int(math.Round(v))
}

// Render substitutes placeholders in tmpl. Placeholders with no value
// available (unknown names, or optional wind fields the provider skipped)
// are left in place untouched.
func Render(tmpl string, in Input, now time.Time) string {
	repl := []string{
		"{station_name}", in.StationName,
		"{wind_avg_kmh}", strconv.Itoa(roundInt(in.WindAvgKmh)),
		"{wind_max_kmh}", strconv.Itoa(roundInt(in.WindMaxKmh)),
		"{measurement_age_minutes}", ageMinutes(in.MeasurementAt, now),
	}
	if in.WindMinKmh != nil {
		repl = append(repl, "{wind_min_kmh}", strconv.Itoa(roundInt(*in.WindMinKmh)))
	}
	if in.WindDirectionDeg != nil {
		deg := *in.WindDirectionDeg
		repl = append(repl,
			"{wind_direction_deg}", strconv.Itoa(roundInt(deg)),
			"{wind_direction_name}", DirectionName(deg),
			"{wind_direction_cardinal}", DirectionCardinal(deg),
		)
	} else {
		repl = append(repl,
			"{wind_direction_name}", "variable",
			"{wind_direction_cardinal}", "variable",
		)
	}
	return strings.NewReplacer(repl...).Replace(tmpl)
}

// ageMinutes renders the measurement age. One minute is spoken as the French
// word "une" so the announcement reads naturally.
func ageMinutes(measuredAt, now time.Time) string {
	mins := roundInt(now.Sub(measuredAt).Seconds() / 60)
	if mins == 1 {
		return "une"
	}
	return strconv.Itoa(mins)
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

var supportedPlaceholders = map[string]bool{
	"station_name":            true,
	"wind_avg_kmh":            true,
	"wind_max_kmh":            true,
	"wind_min_kmh":            true,
	"wind_direction_deg":      true,
	"wind_direction_name":     true,
	"wind_direction_cardinal": true,
	"measurement_age_minutes": true,
}

// Validate reports unsupported placeholder names. Render tolerates them;
// Validate exists so the admin surface can reject a template before it ever
// reaches the air.
func Validate(tmpl string) error {
	var unknown []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		name := m[1]
		if !supportedPlaceholders[name] && !seen[name] {
			seen[name] = true
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unsupported placeholders: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// Placeholders lists the variable names used by a template.
func Placeholders(tmpl string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
