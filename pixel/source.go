// Package pixel reports conversion events (InitiateCheckout, Purchase) to
// external analytics sinks. Dispatch is gated by a paid-traffic classifier
// and a once-per-session guard, and is always fire-and-forget.
package pixel

import "net/url"

// Click-id parameters the ad networks append to paid placements.
var paidClickIDs = []string{"fbclid", "gclid", "ttclid"}

// UTM mediums that indicate a paid placement.
var paidMediums = map[string]bool{
	"cpc":         true,
	"ppc":         true,
	"paid":        true,
	"paid-social": true,
}

// IsPaidTraffic classifies a landing URL as paid-ads traffic: a click id is
// present, or the UTM source/medium combination indicates a paid placement.
// Unparseable URLs classify as organic.
func IsPaidTraffic(landingURL string) bool {
	u, err := url.Parse(landingURL)
	if err != nil {
		return false
	}
	q := u.Query()

	for _, id := range paidClickIDs {
		if q.Get(id) != "" {
			return true
		}
	}

	medium := q.Get("utm_medium")
	if paidMediums[medium] {
		return true
	}
	if q.Get("utm_source") == "facebook" && medium == "paid" {
		return true
	}

	return false
}
