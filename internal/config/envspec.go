package config

import "reflect"

// EnvVar describes one configuration variable for documentation purposes.
type EnvVar struct {
	Name        string // short name under the BITLIFT_ prefix (e.g., "DATADIR")
	FullName    string // e.g., "BITLIFT_DATADIR"
	Type        string // Go type
	Default     string // default value as a string ("" if none)
	Description string // one-liner for docs
}

// EnvSpecs lists every environment variable the daemon reads, in declaration
// order, derived from the Config struct tags.
func EnvSpecs() []EnvVar {
	const prefix = "BITLIFT_"

	t := reflect.TypeOf(Config{})
	specs := make([]EnvVar, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("mapstructure")
		specs = append(specs, EnvVar{
			Name:        name,
			FullName:    prefix + name,
			Type:        f.Type.String(),
			Default:     f.Tag.Get("envDefault"),
			Description: f.Tag.Get("envInfo"),
		})
	}
	return specs
}
