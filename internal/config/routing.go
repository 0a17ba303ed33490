package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

// ErrUnroutedFile marks an input file whose name does not match the capture
// convention. Batch runs skip and report these, they never abort.
var ErrUnroutedFile = errors.New("file name does not match {facility}_{MM}-{DD}-{YYYY} convention")

var fileNameRE = regexp.MustCompile(`^([A-Za-z0-9]+)_(\d{2})-(\d{2})-(\d{4})`)

// Route identifies where one input file belongs.
type Route struct {
	Facility Facility
	Chain    Chain
	Date     time.Time // capture date from the file name
}

// RouteFile resolves an input path against the registry. The base name must
// start with "{facilityKey}_{MM}-{DD}-{YYYY}"; anything after the date
// (suffixes, extension) is ignored.
func (r *Registry) RouteFile(path string) (Route, error) {
	base := filepath.Base(path)
	m := fileNameRE.FindStringSubmatch(base)
	if m == nil {
		return Route{}, fmt.Errorf("%s: %w", base, ErrUnroutedFile)
	}

	facility, ok := r.Facility(m[1])
	if !ok {
		return Route{}, fmt.Errorf("%s: unknown facility key %q", base, m[1])
	}
	chain, ok := r.Chain(facility.Chain)
	if !ok {
		return Route{}, fmt.Errorf("%s: facility %q has unknown chain %q", base, facility.Key, facility.Chain)
	}

	date, err := time.Parse("01-02-2006", m[2]+"-"+m[3]+"-"+m[4])
	if err != nil {
		return Route{}, fmt.Errorf("%s: bad capture date: %w", base, err)
	}

	return Route{Facility: facility, Chain: chain, Date: date}, nil
}
