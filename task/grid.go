package task

// Axis is one parameter of a sweep and the values it takes.
type Axis struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

// Expand returns the cartesian product of axes as rows with ids 0..n-1.
// The first axis varies slowest. An axis without values yields no rows.
func Expand(axes []Axis, requiredRuns int) []Row {
	if len(axes) == 0 {
		return nil
	}
	if requiredRuns < 1 {
		requiredRuns = 1
	}
	configs := []Config{{}}
	for _, a := range axes {
		next := make([]Config, 0, len(configs)*len(a.Values))
		for _, c := range configs {
			for _, v := range a.Values {
				nc := make(Config, len(c), len(c)+1)
				copy(nc, c)
				next = append(next, append(nc, Param{Name: a.Name, Value: v}))
			}
		}
		configs = next
	}
	rows := make([]Row, len(configs))
	for i, c := range configs {
		rows[i] = Row{ID: i, Config: c, RequiredRuns: requiredRuns}
	}
	return rows
}
