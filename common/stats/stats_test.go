package stats

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPrecisionChange(t *testing.T) {
	stat := DefaultStatsReceiver().(*defaultStatsReceiver)
	if stat.precision != time.Millisecond {
		t.Fatal("Default precision should be millis.")
	}

	statp := stat.Precision(time.Second).(*defaultStatsReceiver)
	if stat.precision != time.Millisecond {
		t.Fatal("Default precision should still be millis.")
	}
	if statp.precision != time.Second {
		t.Fatal("New stat precision should be seconds.")
	}
}

func TestScopeChange(t *testing.T) {
	stat := DefaultStatsReceiver().(*defaultStatsReceiver)
	if len(stat.scope) != 0 {
		t.Fatal("Default scope should be empty.")
	}

	statp := stat.Scope("gpu/0", "pool").(*defaultStatsReceiver)
	if len(stat.scope) != 0 {
		t.Fatal("Default scope should still be empty.")
	}
	if len(statp.scope) != 2 || statp.scope[0] != "gpu_SLASH_0" || statp.scope[1] != "pool" {
		t.Fatal("Invalid scope value: ", statp.scope)
	}
	if statp.scopedName("x") != "gpu_SLASH_0/pool/x" {
		t.Fatal("Invalid scope name: " + statp.scopedName("x"))
	}

	// Sibling scopes must not share a backing array.
	a := statp.Scope("a").(*defaultStatsReceiver)
	b := statp.Scope("b").(*defaultStatsReceiver)
	if a.scopedName() != "gpu_SLASH_0/pool/a" || b.scopedName() != "gpu_SLASH_0/pool/b" {
		t.Fatalf("Scopes interfered: %s %s", a.scopedName(), b.scopedName())
	}
}

func TestRender(t *testing.T) {
	start := time.Unix(0, 0)
	calls := 0
	Now = func() time.Time {
		calls++
		return start.Add(time.Duration(calls) * 10 * time.Millisecond)
	}
	defer func() { Now = time.Now }()

	stat := DefaultStatsReceiver().Scope("sched")
	stat.Counter(SchedDispatchedCounter).Inc(2)
	stat.Gauge(SchedQueueLenGauge).Update(7)
	stat.Latency(SchedStepLatency_ms).Time().Stop()

	data := map[string]interface{}{}
	if err := json.Unmarshal(stat.Render(false), &data); err != nil {
		t.Fatal(err)
	}
	if data["sched/dispatchedCounter"].(float64) != 2 {
		t.Fatalf("Unexpected counter: %v", data)
	}
	if data["sched/queueLenGauge"].(float64) != 7 {
		t.Fatalf("Unexpected gauge: %v", data)
	}
	if data["sched/stepLatency_ms.count"].(float64) != 1 || data["sched/stepLatency_ms.max"].(float64) != 10 {
		t.Fatalf("Unexpected latency: %v", data)
	}
}

func TestNilReceiver(t *testing.T) {
	stat := NilStatsReceiver().Scope("a")
	stat.Counter("c").Inc(1)
	stat.Latency("l").Time().Stop()
	if len(stat.Render(true)) != 0 {
		t.Fatal("Nil receiver should render nothing")
	}
}
