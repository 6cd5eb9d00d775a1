// Package almanac computes solar twilight instants and observable night hours
// for a site from the NOAA low-precision solar position equations
package almanac

import (
	"math"
	"time"

	"logrep/internal/core/dayobs"
)

// Sun altitudes in degrees that define each event
const (
	AltSunset       = -0.833
	AltCivil        = -6.0
	AltNautical     = -12.0
	AltAstronomical = -18.0
)

// Site is an observatory location; Lon is degrees east
type Site struct {
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat" validate:"min=-90,max=90"`
	Lon  float64 `json:"lon" yaml:"lon" validate:"min=-180,max=180"`
}

// CerroPachon is the Rubin Observatory summit
var CerroPachon = Site{Name: "Cerro Pachon", Lat: -30.2446, Lon: -70.7494}

// Night holds the evening and morning events around one dayobs. An event the
// sun never reaches (polar sites) is the zero time
type Night struct {
	Day             dayobs.Day `json:"dayobs" yaml:"dayobs"`
	Sunset          time.Time  `json:"sunset" yaml:"sunset"`
	CivilEvening    time.Time  `json:"civil_twilight_evening" yaml:"civil_twilight_evening"`
	NauticalEvening time.Time  `json:"nautical_twilight_evening" yaml:"nautical_twilight_evening"`
	AstroEvening    time.Time  `json:"astronomical_twilight_evening" yaml:"astronomical_twilight_evening"`
	AstroMorning    time.Time  `json:"astronomical_twilight_morning" yaml:"astronomical_twilight_morning"`
	NauticalMorning time.Time  `json:"nautical_twilight_morning" yaml:"nautical_twilight_morning"`
	CivilMorning    time.Time  `json:"civil_twilight_morning" yaml:"civil_twilight_morning"`
	Sunrise         time.Time  `json:"sunrise" yaml:"sunrise"`
	MoonIllum       float64    `json:"moon_illumination" yaml:"moon_illumination"`
}

// Hours is the astronomical-twilight-to-twilight span, NaN when undefined
func (n Night) Hours() float64 {
	if n.AstroEvening.IsZero() || n.AstroMorning.IsZero() {
		return math.NaN()
	}
	return n.AstroMorning.Sub(n.AstroEvening).Hours()
}

// Solar computes nights for one site
type Solar struct {
	Site Site
}

// NewSolar returns a provider for site; the zero Site means Cerro Pachon
func NewSolar(site Site) Solar {
	if site == (Site{}) {
		site = CerroPachon
	}
	return Solar{Site: site}
}

// Night computes the events of the night starting at local noon of d. The
// evening falls on the UTC date d and the morning on d+1 for western sites
func (s Solar) Night(d dayobs.Day) Night {
	eve := d.Date(time.UTC)
	morn := d.Add(1).Date(time.UTC)
	n := Night{
		Day:             d,
		Sunset:          s.event(eve, AltSunset, true),
		CivilEvening:    s.event(eve, AltCivil, true),
		NauticalEvening: s.event(eve, AltNautical, true),
		AstroEvening:    s.event(eve, AltAstronomical, true),
		AstroMorning:    s.event(morn, AltAstronomical, false),
		NauticalMorning: s.event(morn, AltNautical, false),
		CivilMorning:    s.event(morn, AltCivil, false),
		Sunrise:         s.event(morn, AltSunset, false),
	}
	mid := eve.Add(24 * time.Hour)
	if !n.AstroEvening.IsZero() && !n.AstroMorning.IsZero() {
		mid = n.AstroEvening.Add(n.AstroMorning.Sub(n.AstroEvening) / 2)
	}
	n.MoonIllum = MoonIllumination(mid)
	return n
}

// NightHours is Night(d).Hours()
func (s Solar) NightHours(d dayobs.Day) float64 { return s.Night(d).Hours() }

// Nights returns one Night per dayobs of the window
func (s Solar) Nights(w dayobs.Window) []Night {
	days := w.Days()
	out := make([]Night, 0, len(days))
	for _, d := range days {
		out = append(out, s.Night(d))
	}
	return out
}

// Window sums night hours over the window, skipping undefined nights
func (s Solar) Window(w dayobs.Window) float64 {
	var sum float64
	for _, n := range s.Nights(w) {
		if h := n.Hours(); !math.IsNaN(h) {
			sum += h
		}
	}
	return sum
}

// event finds when the sun crosses alt on the UTC date of day, evening
// (setting) or morning (rising). Two refinement passes evaluate the solar
// position at the previous estimate
func (s Solar) event(day time.Time, alt float64, setting bool) time.Time {
	t := day.Add(12 * time.Hour)
	for range 3 {
		decl, eot := solarPosition(t)
		noon := day.Add(time.Duration((720 - 4*s.Site.Lon - eot) * float64(time.Minute)))
		ha, ok := hourAngle(s.Site.Lat, decl, alt)
		if !ok {
			return time.Time{}
		}
		off := time.Duration(4 * ha * float64(time.Minute))
		if setting {
			t = noon.Add(off)
		} else {
			t = noon.Add(-off)
		}
	}
	return t.Truncate(time.Second)
}

// Altitude returns the sun's geometric altitude in degrees at t for the site
func (s Solar) Altitude(t time.Time) float64 {
	decl, eot := solarPosition(t)
	t = t.UTC()
	mins := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60
	tst := math.Mod(mins+eot+4*s.Site.Lon, 1440)
	ha := tst/4 - 180
	lat := rad(s.Site.Lat)
	sinAlt := math.Sin(lat)*math.Sin(rad(decl)) + math.Cos(lat)*math.Cos(rad(decl))*math.Cos(rad(ha))
	return deg(math.Asin(sinAlt))
}

// hourAngle in degrees for altitude alt, false when the sun never gets there
func hourAngle(lat, decl, alt float64) (float64, bool) {
	la, de := rad(lat), rad(decl)
	c := (math.Sin(rad(alt)) - math.Sin(la)*math.Sin(de)) / (math.Cos(la) * math.Cos(de))
	if c < -1 || c > 1 {
		return 0, false
	}
	return deg(math.Acos(c)), true
}

// solarPosition returns declination in degrees and the equation of time in minutes
func solarPosition(t time.Time) (decl, eot float64) {
	c := julianCentury(t)
	l0 := math.Mod(280.46646+c*(36000.76983+c*0.0003032), 360)
	m := 357.52911 + c*(35999.05029-0.0001537*c)
	e := 0.016708634 - c*(0.000042037+0.0000001267*c)
	mr := rad(m)
	center := math.Sin(mr)*(1.914602-c*(0.004817+0.000014*c)) +
		math.Sin(2*mr)*(0.019993-0.000101*c) +
		math.Sin(3*mr)*0.000289
	omega := rad(125.04 - 1934.136*c)
	lambda := rad(l0 + center - 0.00569 - 0.00478*math.Sin(omega))
	eps0 := 23 + (26+(21.448-c*(46.815+c*(0.00059-c*0.001813)))/60)/60
	eps := rad(eps0 + 0.00256*math.Cos(omega))

	decl = deg(math.Asin(math.Sin(eps) * math.Sin(lambda)))

	y := math.Pow(math.Tan(eps/2), 2)
	l0r := rad(l0)
	eot = 4 * deg(y*math.Sin(2*l0r)-2*e*math.Sin(mr)+4*e*y*math.Sin(mr)*math.Cos(2*l0r)-
		0.5*y*y*math.Sin(4*l0r)-1.25*e*e*math.Sin(2*mr))
	return decl, eot
}

// MoonIllumination is the lit fraction of the lunar disc at t (0..1), from
// the mean elongation with the main periodic terms
func MoonIllumination(t time.Time) float64 {
	d := julianDay(t) - 2451545.0
	tc := d / 36525
	elong := rad(297.8501921 + 445267.1114034*tc)
	msun := rad(357.5291092 + 35999.0502909*tc)
	mmoon := rad(134.9633964 + 477198.8675055*tc)
	phase := math.Pi - elong -
		rad(6.289)*math.Sin(mmoon) +
		rad(2.100)*math.Sin(msun) -
		rad(1.274)*math.Sin(2*elong-mmoon) -
		rad(0.658)*math.Sin(2*elong) -
		rad(0.214)*math.Sin(2*mmoon) -
		rad(0.110)*math.Sin(elong)
	return (1 + math.Cos(phase)) / 2
}

func julianDay(t time.Time) float64 {
	return float64(t.UTC().UnixNano())/float64(24*time.Hour) + 2440587.5
}

func julianCentury(t time.Time) float64 { return (julianDay(t) - 2451545.0) / 36525 }

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }
