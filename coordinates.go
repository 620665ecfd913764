package kmlsummary

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ParseCoordinates parses KML coordinate text into a line.
// KML format: "lng,lat[,alt] lng,lat[,alt] ..." (whitespace-separated tuples,
// comma-separated fields). Fields after the latitude are ignored.
//
// Any tuple without a numeric longitude and latitude fails the whole line;
// no partial result is returned.
func ParseCoordinates(text string) (orb.LineString, error) {
	tokens := strings.Fields(text)
	line := make(orb.LineString, 0, len(tokens))

	for _, token := range tokens {
		values := strings.Split(token, ",")
		if len(values) < 2 {
			return nil, &CoordinateError{Token: token}
		}

		lng, err := strconv.ParseFloat(strings.TrimSpace(values[0]), 64)
		if err != nil {
			return nil, &CoordinateError{Token: token, Err: err}
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(values[1]), 64)
		if err != nil {
			return nil, &CoordinateError{Token: token, Err: err}
		}

		line = append(line, orb.Point{lng, lat})
	}

	return line, nil
}
