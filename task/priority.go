package task

import (
	"math"
	"strconv"
)

// UnknownRank is the rank given to a categorical value missing from its rule's order.
const UnknownRank = 999

// Key is a lexicographically ordered priority key, lower sorts first.
// Keys of different lengths compare as if the shorter were padded with zeros.
type Key []float64

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool {
	return k.Compare(o) < 0
}

// Compare returns -1, 0 or 1. NaN components compare equal to each other and
// greater than any number.
func (k Key) Compare(o Key) int {
	n := len(k)
	if len(o) > n {
		n = len(o)
	}
	for i := 0; i < n; i++ {
		a, b := k.at(i), o.at(i)
		switch {
		case math.IsNaN(a) && math.IsNaN(b):
			continue
		case math.IsNaN(a):
			return 1
		case math.IsNaN(b):
			return -1
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

func (k Key) at(i int) float64 {
	if i < len(k) {
		return k[i]
	}
	return 0
}

// PriorityFunc computes the ordering key of a row. It is evaluated once per
// row, when the queue is loaded.
type PriorityFunc func(Row) Key

// ByID orders tasks by id alone.
func ByID(Row) Key { return nil }

// Rule maps one config parameter to one key component.
//
// With Order set the parameter is categorical: its rank is its index in Order,
// UnknownRank when absent from Order or from the config.
// Without Order the parameter is parsed as a number; missing or unparsable
// values sort last.
type Rule struct {
	Field string   `mapstructure:"field" yaml:"field"`
	Order []string `mapstructure:"order" yaml:"order,omitempty"`
}

func (r Rule) component(c Config) float64 {
	v, ok := c.Get(r.Field)
	if len(r.Order) > 0 {
		if ok {
			for i, o := range r.Order {
				if o == v {
					return float64(i + 1)
				}
			}
		}
		return UnknownRank
	}
	if !ok {
		return math.Inf(1)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.Inf(1)
	}
	return f
}

// ByFields builds a PriorityFunc applying rules in order. No rules is ByID.
func ByFields(rules ...Rule) PriorityFunc {
	if len(rules) == 0 {
		return ByID
	}
	rs := append([]Rule(nil), rules...)
	return func(r Row) Key {
		k := make(Key, len(rs))
		for i, rule := range rs {
			k[i] = rule.component(r.Config)
		}
		return k
	}
}
