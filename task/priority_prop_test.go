package task

import (
	"math"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

type sliceStore []Row

func (s sliceStore) LoadAll() ([]Row, error)     { return s, nil }
func (s sliceStore) IncrementRunCount(int) error { return nil }

var methods = []string{"GST", "GOAT", "GDO", "GAS", "other"}

// genRows packs method, domain, required and completed runs into one int per row.
func genRows() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, 799)).Map(func(specs []int) []Row {
		rows := make([]Row, len(specs))
		for i, n := range specs {
			rows[i] = Row{
				ID: len(specs) - i,
				Config: Config{
					{Name: "method_name", Value: methods[n%5]},
					{Name: "domain_num", Value: strconv.Itoa((n / 5) % 10)},
				},
				RequiredRuns: (n / 50) % 4,
				RunCount:     (n / 200) % 4,
			}
		}
		return rows
	})
}

func TestQueueOrderProperties(t *testing.T) {
	prio := ByFields(
		Rule{Field: "method_name", Order: []string{"GST", "GOAT", "GDO", "GAS"}},
		Rule{Field: "domain_num"},
	)
	properties := gopter.NewProperties(nil)

	properties.Property("Next yields non-decreasing (key, id)", prop.ForAll(
		func(rows []Row) bool {
			q, err := NewQueue(sliceStore(rows), prio)
			if err != nil {
				return false
			}
			keys := map[int]Key{}
			for _, r := range rows {
				keys[r.ID] = prio(r)
			}
			prev := item{id: math.MinInt32, key: Key{math.Inf(-1)}}
			for {
				id, _, ok := q.Next()
				if !ok {
					return true
				}
				cur := item{id: id, key: keys[id]}
				if (idHeap{}).less(cur, prev) {
					return false
				}
				prev = cur
			}
		},
		genRows(),
	))

	properties.Property("Queue holds exactly the remaining runs", prop.ForAll(
		func(rows []Row) bool {
			q, err := NewQueue(sliceStore(rows), prio)
			if err != nil {
				return false
			}
			want := 0
			for _, r := range rows {
				want += r.Remaining()
			}
			return q.Len() == want
		},
		genRows(),
	))

	properties.Property("Key.Compare is antisymmetric", prop.ForAll(
		func(a, b []float64) bool {
			return Key(a).Compare(Key(b)) == -Key(b).Compare(Key(a))
		},
		gen.SliceOfN(3, gen.Float64Range(-5, 5)),
		gen.SliceOfN(3, gen.Float64Range(-5, 5)),
	))

	properties.TestingRun(t)
}

func TestCategoricalRanks(t *testing.T) {
	rule := Rule{Field: "model_name", Order: []string{"cnn", "resnet", "vgg"}}
	assert.Equal(t, 1.0, rule.component(Config{{Name: "model_name", Value: "cnn"}}))
	assert.Equal(t, 3.0, rule.component(Config{{Name: "model_name", Value: "vgg"}}))
	assert.Equal(t, float64(UnknownRank), rule.component(Config{{Name: "model_name", Value: "mlp"}}))
	assert.Equal(t, float64(UnknownRank), rule.component(Config{}))

	num := Rule{Field: "seed"}
	assert.Equal(t, 4.0, num.component(Config{{Name: "seed", Value: "4"}}))
	assert.True(t, math.IsInf(num.component(Config{{Name: "seed", Value: "x"}}), 1))

	assert.True(t, Key{1, 2}.Less(Key{1, 3}))
	assert.True(t, Key{1}.Less(Key{1, 0.5}))
	assert.Equal(t, 0, Key(nil).Compare(Key{0, 0}))
	assert.True(t, Key{math.NaN()}.Compare(Key{1e9}) > 0)
}
