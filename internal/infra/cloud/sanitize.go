package cloud

import (
	regexp "github.com/wasilibs/go-re2"
)

// Sanitization patterns. Digit runs of four or more, allowing the grouping
// separators seen on cards and IDs, and email local-parts are masked before
// any text leaves the device.
var (
	digitRunRe = regexp.MustCompile(`\d(?:[ -]?\d){3,}`)
	emailRe    = regexp.MustCompile(`[A-Za-z0-9._%+-]+(@[A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
)

// Sanitize masks the directly exploitable parts of recognized text: every
// digit in a run of four or more becomes '#' (separators survive so the
// classifier still sees the shape), and email local-parts become "***".
func Sanitize(text string) string {
	masked := digitRunRe.ReplaceAllStringFunc(text, func(m string) string {
		out := []byte(m)
		for i, c := range out {
			if c >= '0' && c <= '9' {
				out[i] = '#'
			}
		}
		return string(out)
	})
	return emailRe.ReplaceAllString(masked, "***$1")
}
