package registry

import (
	"fmt"

	"github.com/star/skywatch/internal/ephem"
)

// Static group names.
const (
	GroupSolarSystem = "solar_system"
	GroupStars       = "stars"
)

// LoadStatic adds the sun, moon, planets and the named stars. vsop87Dir may
// be empty to use the built-in planetary elements.
func (r *Registry) LoadStatic(vsop87Dir string, stars []string) error {
	planets, err := ephem.Planets(vsop87Dir)
	if err != nil {
		return err
	}
	solar := []ephem.Target{ephem.Sun{}, ephem.Moon{}}
	for _, p := range planets {
		solar = append(solar, p)
	}
	r.ReplaceGroup(GroupSolarSystem, solar)

	var fixed []ephem.Target
	for _, name := range stars {
		s, ok := ephem.LookupStar(name)
		if !ok {
			return fmt.Errorf("unknown star %q", name)
		}
		fixed = append(fixed, s)
	}
	r.ReplaceGroup(GroupStars, fixed)
	return nil
}
