package container

// ComponentInfo is a serializable snapshot of a record.
type ComponentInfo struct {
	Key          string   `yaml:"key" json:"key"`
	State        string   `yaml:"state" json:"state"`
	Module       string   `yaml:"module,omitempty" json:"module,omitempty"`
	Tracked      bool     `yaml:"tracked" json:"tracked"`
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Optional     []string `yaml:"optional,omitempty" json:"optional,omitempty"`
	Children     []string `yaml:"children,omitempty" json:"children,omitempty"`
}

// Describe returns a snapshot of every registered component in registration
// order.
func (c *Container) Describe() []ComponentInfo {
	recs := c.registry.Records()
	out := make([]ComponentInfo, 0, len(recs))
	for _, rec := range recs {
		module, _ := rec.BoundModule()
		out = append(out, ComponentInfo{
			Key:          rec.key.String(),
			State:        rec.State().String(),
			Module:       module,
			Tracked:      rec.Tracked(),
			Dependencies: keyStrings(rec.Dependencies()),
			Optional:     keyStrings(rec.OptionalDependencies()),
			Children:     keyStrings(rec.Children()),
		})
	}
	return out
}

func keyStrings(keys []Key) []string {
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
