package normalize

import (
	"testing"

	"github.com/waflens/waflens/internal/model"
)

func TestRecord_MissingCorrelationID(t *testing.T) {
	raws := []Raw{
		{},
		{"Datetime": "2024-02-17T10:00:00Z", "Action": "block"},
		{"RayID": "", "Datetime": "2024-02-17T10:00:00Z"},
		{"RayID": nil, "Datetime": "2024-02-17T10:00:00Z"},
	}
	for i, raw := range raws {
		if _, ok := Record(raw); ok {
			t.Errorf("raw %d: expected skip, got event", i)
		}
	}
}

func TestRecord_UnparseableTimestamp(t *testing.T) {
	raws := []Raw{
		{"RayID": "abc123"},
		{"RayID": "abc123", "Datetime": "not-a-date"},
		{"RayID": "abc123", "Datetime": ""},
		{"RayID": "abc123", "timestamp": map[string]any{"nested": true}},
	}
	for i, raw := range raws {
		if _, ok := Record(raw); ok {
			t.Errorf("raw %d: expected skip, got event", i)
		}
	}
}

func TestRecord_SecondsAndMillisEquivalent(t *testing.T) {
	secs, ok := Record(Raw{"RayID": "a", "Datetime": float64(945000000)})
	if !ok {
		t.Fatal("seconds record skipped")
	}
	ms, ok := Record(Raw{"RayID": "b", "Datetime": float64(945000000000)})
	if !ok {
		t.Fatal("millis record skipped")
	}
	if secs.EventTS != ms.EventTS {
		t.Fatalf("expected equal event_ts, got %d and %d", secs.EventTS, ms.EventTS)
	}
	if secs.EventTS != 945000000000 {
		t.Fatalf("expected 945000000000, got %d", secs.EventTS)
	}
}

func TestRecord_NumericStringTimestamp(t *testing.T) {
	ev, ok := Record(Raw{"RayID": "a", "Datetime": "945000000"})
	if !ok {
		t.Fatal("record skipped")
	}
	if ev.EventTS != 945000000000 {
		t.Fatalf("expected seconds heuristic on numeric string, got %d", ev.EventTS)
	}
}

func TestRecord_ISOTimestamp(t *testing.T) {
	ev, ok := Record(Raw{"RayID": "a", "Datetime": "2024-02-17T10:30:00Z"})
	if !ok {
		t.Fatal("record skipped")
	}
	if ev.EventTS != 1708165800000 {
		t.Fatalf("unexpected event_ts %d", ev.EventTS)
	}
}

func TestRecord_MixedAliasCasingsPerField(t *testing.T) {
	// One record may use PascalCase for one field and camelCase or
	// snake_case for another; resolution is per field.
	ev, ok := Record(Raw{
		"rayId":              "mixed1",
		"Datetime":           "2024-02-17T10:00:00Z",
		"client_ip":          "203.0.113.9",
		"ClientCountry":      "NL",
		"clientRequestPath":  "/login",
		"EdgeResponseStatus": float64(403),
	})
	if !ok {
		t.Fatal("record skipped")
	}
	if ev.CorrelationID != "mixed1" || ev.SrcIP != "203.0.113.9" || ev.SrcCountry != "NL" || ev.Path != "/login" {
		t.Fatalf("alias resolution failed: %+v", ev)
	}
	if ev.Status == nil || *ev.Status != 403 {
		t.Fatalf("expected status 403, got %v", ev.Status)
	}
}

func TestRecord_AliasOrderFirstWins(t *testing.T) {
	ev, ok := Record(Raw{
		"RayID":    "primary",
		"rayId":    "secondary",
		"Datetime": "2024-02-17T10:00:00Z",
	})
	if !ok {
		t.Fatal("record skipped")
	}
	if ev.CorrelationID != "primary" {
		t.Fatalf("expected first alias to win, got %q", ev.CorrelationID)
	}
}

func TestNormalizeAction(t *testing.T) {
	cases := map[string]model.Action{
		"Blocked":           model.ActionBlock,
		"BLOCK":             model.ActionBlock,
		"block":             model.ActionBlock,
		"deny":              model.ActionBlock,
		"managed_challenge": model.ActionChallenge,
		"js-challenge":      model.ActionChallenge,
		"Challenge":         model.ActionChallenge,
		"LOG":               model.ActionLog,
		"simulate":          model.ActionLog,
		"bypass":            model.ActionSkip,
		"allow":             model.ActionAllow,
		"Allowed":           model.ActionAllow,
		"frobnicate":        model.ActionUnknown,
		"":                  model.ActionUnknown,
	}
	for in, want := range cases {
		if got := NormalizeAction(in); got != want {
			t.Errorf("NormalizeAction(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInferRuleType(t *testing.T) {
	cases := []struct {
		ruleID, service string
		want            model.RuleType
	}{
		{"", "firewallmanaged", model.RuleTypeUnknown},
		{"custom_5f2a", "", model.RuleTypeCustom},
		{"9003", "firewallcustom", model.RuleTypeCustom},
		{"e3a1b2c4d5f60718293a4b5c6d7e8f90", "", model.RuleTypeManaged},
		{"981176", "waf", model.RuleTypeManaged},
		{"981176", "firewallmanaged", model.RuleTypeManaged},
		{"981176", "", model.RuleTypeUnknown},
	}
	for _, c := range cases {
		if got := InferRuleType(c.ruleID, c.service); got != c.want {
			t.Errorf("InferRuleType(%q, %q) = %q, want %q", c.ruleID, c.service, got, c.want)
		}
	}
}

func TestRecord_NumericCoercion(t *testing.T) {
	ev, ok := Record(Raw{
		"RayID":              "n1",
		"Datetime":           "2024-02-17T10:00:00Z",
		"ClientASN":          "13335",
		"WAFAttackScore":     float64(81),
		"ClientRequestBytes": "not-a-number",
	})
	if !ok {
		t.Fatal("record skipped")
	}
	if ev.SrcASN == nil || *ev.SrcASN != 13335 {
		t.Fatalf("expected ASN 13335 from numeric string, got %v", ev.SrcASN)
	}
	if ev.ThreatScore == nil || *ev.ThreatScore != 81 {
		t.Fatalf("expected threat score 81, got %v", ev.ThreatScore)
	}
	if ev.Bytes != nil {
		t.Fatalf("expected absent bytes on unparseable value, got %v", *ev.Bytes)
	}
}

func TestRecord_ListFieldsCollapseToFirst(t *testing.T) {
	ev, ok := Record(Raw{
		"RayID":           "l1",
		"Datetime":        "2024-02-17T10:00:00Z",
		"MatchedRuleIDs":  []any{"custom_aa", "custom_bb"},
		"SecurityActions": []any{"block", "log"},
		"SecuritySources": []any{"firewallcustom", "waf"},
	})
	if !ok {
		t.Fatal("record skipped")
	}
	if ev.RuleID != "custom_aa" {
		t.Fatalf("expected first rule id, got %q", ev.RuleID)
	}
	if ev.Action != model.ActionBlock {
		t.Fatalf("expected block from first action, got %q", ev.Action)
	}
	if ev.Service != "firewallcustom" {
		t.Fatalf("expected first source, got %q", ev.Service)
	}
	if ev.RuleType != model.RuleTypeCustom {
		t.Fatalf("expected custom rule type, got %q", ev.RuleType)
	}
}

func TestRecord_ScalarBeatsListVariant(t *testing.T) {
	ev, ok := Record(Raw{
		"RayID":    "l2",
		"Datetime": "2024-02-17T10:00:00Z",
		"Action":   "skip",
		"actions":  []any{"block"},
	})
	if !ok {
		t.Fatal("record skipped")
	}
	if ev.Action != model.ActionSkip {
		t.Fatalf("expected scalar action to win, got %q", ev.Action)
	}
}
