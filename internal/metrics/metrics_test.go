package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/tiervault/tiervault/internal/staking"
)

func TestCollector_PublishDeposit(t *testing.T) {
	c := NewCollector()

	c.Publish(&staking.Event{Seq: 1, Kind: staking.EventDeposited, Amount: 1000})
	c.Publish(&staking.Event{Seq: 2, Kind: staking.EventDeposited, Amount: 500})

	if v := counterValue(t, c.deposits); v != 2 {
		t.Errorf("deposits = %f, want 2", v)
	}
	if v := counterValue(t, c.depositedAmount); v != 1500 {
		t.Errorf("deposited amount = %f, want 1500", v)
	}
	if v := gaugeValue(t, c.eventSeq); v != 2 {
		t.Errorf("event seq = %f, want 2", v)
	}
}

func TestCollector_PublishClaim(t *testing.T) {
	c := NewCollector()

	c.Publish(&staking.Event{Seq: 1, Kind: staking.EventClaimed, Payout: 1050})

	if v := counterValue(t, c.claims); v != 1 {
		t.Errorf("claims = %f, want 1", v)
	}
	if v := counterValue(t, c.payouts); v != 1050 {
		t.Errorf("payouts = %f, want 1050", v)
	}
}

func TestCollector_PublishAdminEvents(t *testing.T) {
	c := NewCollector()

	c.Publish(&staking.Event{Seq: 1, Kind: staking.EventTierUpdated})
	c.Publish(&staking.Event{Seq: 2, Kind: staking.EventWhitelistChanged})
	c.Publish(&staking.Event{Seq: 3, Kind: staking.EventWhitelistChanged})

	if v := counterValue(t, c.tierUpdates); v != 1 {
		t.Errorf("tier updates = %f, want 1", v)
	}
	if v := counterValue(t, c.approvalChanges); v != 2 {
		t.Errorf("approval changes = %f, want 2", v)
	}
}

func TestCollector_RecordRejection(t *testing.T) {
	c := NewCollector()

	c.RecordRejection("not_approved")
	c.RecordRejection("not_approved")
	c.RecordRejection("stake_still_locked")

	if v := counterVecValue(t, c.rejections, "not_approved"); v != 2 {
		t.Errorf("not_approved rejections = %f, want 2", v)
	}
	if v := counterVecValue(t, c.rejections, "stake_still_locked"); v != 1 {
		t.Errorf("stake_still_locked rejections = %f, want 1", v)
	}
}

func TestCollector_RecordRPCRequest(t *testing.T) {
	c := NewCollector()

	c.RecordRPCRequest("staking_deposit", 10*time.Millisecond)
	c.RecordRPCRequest("staking_deposit", 50*time.Millisecond)

	observer := c.rpcDuration.WithLabelValues("staking_deposit")
	metric := &dto.Metric{}
	if err := observer.(prometheus.Metric).Write(metric); err != nil {
		t.Fatalf("read histogram: %v", err)
	}
	hist := metric.GetHistogram()
	if hist.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", hist.GetSampleCount())
	}
	if hist.GetSampleSum() < 0.05 || hist.GetSampleSum() > 0.07 {
		t.Errorf("sample sum = %f, want ~0.060", hist.GetSampleSum())
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()

	c.Publish(&staking.Event{Seq: 1, Kind: staking.EventDeposited, Amount: 1000})
	c.RecordRejection("cooldown_active")
	c.RecordRPCRequest("staking_getInfo", time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body, err := io.ReadAll(rr.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	bodyStr := string(body)

	expected := []string{
		"tiervault_deposits_total",
		"tiervault_deposited_amount_total",
		"tiervault_rejections_total",
		"tiervault_rpc_duration_seconds",
		"tiervault_event_seq",
		"tiervault_uptime_seconds",
	}
	for _, name := range expected {
		if !strings.Contains(bodyStr, name) {
			t.Errorf("expected metric %q in output", name)
		}
	}
	if !strings.Contains(bodyStr, `reason="cooldown_active"`) {
		t.Error("expected reason label in output")
	}
}

func TestCollector_Registry(t *testing.T) {
	c := NewCollector()

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one metric family")
	}
}

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func counterVecValue(t *testing.T, cv *prometheus.CounterVec, label string) float64 {
	t.Helper()
	counter := cv.WithLabelValues(label)
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		t.Fatalf("read gauge: %v", err)
	}
	return metric.GetGauge().GetValue()
}
