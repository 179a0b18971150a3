// Package normalize maps loosely-typed vendor log records onto the
// canonical Event shape. Export formats have drifted across versions,
// so every canonical field carries an ordered list of known key
// spellings; the first present, non-empty value wins, resolved
// independently per field (one record may mix casings).
package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/waflens/waflens/internal/model"
)

// Alias lists, ordered by how commonly each spelling appears in
// exports. Keep new spellings at the end unless they dominate.
var (
	correlationIDKeys = []string{"RayID", "rayId", "ray_id", "RayName", "rayName"}
	timestampKeys     = []string{"Datetime", "datetime", "Timestamp", "timestamp", "EdgeStartTimestamp", "occurredAt"}
	srcIPKeys         = []string{"ClientIP", "clientIP", "clientIp", "client_ip"}
	srcCountryKeys    = []string{"ClientCountry", "clientCountryName", "clientCountry", "client_country"}
	srcASNKeys        = []string{"ClientASN", "clientAsn", "client_asn"}
	coloKeys          = []string{"ColoCode", "coloCode", "EdgeColoCode", "colo"}
	hostKeys          = []string{"ClientRequestHost", "clientRequestHTTPHost", "client_request_host", "host"}
	pathKeys          = []string{"ClientRequestPath", "clientRequestPath", "client_request_path", "path"}
	methodKeys        = []string{"ClientRequestMethod", "clientRequestHTTPMethodName", "client_request_method", "method"}
	statusKeys        = []string{"EdgeResponseStatus", "edgeResponseStatus", "OriginResponseStatus", "responseStatus", "status"}
	ruleIDKeys        = []string{"RuleID", "ruleId", "rule_id", "RuleId"}
	ruleIDListKeys    = []string{"MatchedRuleIDs", "matchedRuleIds", "rule_ids"}
	ruleNameKeys      = []string{"RuleDescription", "ruleName", "rule_description", "description"}
	actionKeys        = []string{"Action", "action", "SecurityAction", "securityAction"}
	actionListKeys    = []string{"SecurityActions", "securityActions", "actions"}
	serviceKeys       = []string{"Source", "source", "SecuritySource", "securitySource", "service"}
	serviceListKeys   = []string{"SecuritySources", "securitySources", "sources"}
	reasonKeys        = []string{"MitigationReason", "mitigationReason", "mitigation_reason"}
	userAgentKeys     = []string{"ClientRequestUserAgent", "clientRequestHTTPUserAgent", "userAgent", "user_agent"}
	tlsFPKeys         = []string{"JA3Fingerprint", "ja3Fingerprint", "ClientJA3Hash", "ja3_hash"}
	bytesKeys         = []string{"ClientRequestBytes", "clientRequestBytes", "client_request_bytes", "requestBytes"}
	threatScoreKeys   = []string{"WAFAttackScore", "wafAttackScore", "ThreatScore", "threatScore", "attack_score"}
)

// actionSynonyms maps candidate actions after lowercasing and stripping
// underscores/hyphens. Anything not listed normalizes to unknown.
var actionSynonyms = map[string]model.Action{
	"block":            model.ActionBlock,
	"blocked":          model.ActionBlock,
	"drop":             model.ActionBlock,
	"deny":             model.ActionBlock,
	"challenge":        model.ActionChallenge,
	"challengesolved":  model.ActionChallenge,
	"challengefailed":  model.ActionChallenge,
	"jschallenge":      model.ActionChallenge,
	"managedchallenge": model.ActionChallenge,
	"log":              model.ActionLog,
	"logged":           model.ActionLog,
	"simulate":         model.ActionLog,
	"skip":             model.ActionSkip,
	"bypass":           model.ActionSkip,
	"allowlist":        model.ActionSkip,
	"whitelist":        model.ActionSkip,
	"allow":            model.ActionAllow,
	"allowed":          model.ActionAllow,
	"permit":           model.ActionAllow,
}

// Raw is one vendor record as decoded from JSON: arbitrary keys,
// arbitrary value types. Extraction is type-checked per field.
type Raw map[string]any

// Record maps a raw vendor record to a canonical Event. ok is false
// when the record has no usable correlation id or no parseable
// timestamp; that is an expected outcome for irrelevant or truncated
// entries, not an error. All other fields degrade to absent.
//
// Records carrying list-valued rule/action/source fields are collapsed
// to their first element; secondary matches are discarded.
func Record(raw Raw) (ev model.Event, ok bool) {
	id := firstString(raw, correlationIDKeys)
	if id == "" {
		return model.Event{}, false
	}
	ts, tsOK := firstTimestamp(raw, timestampKeys)
	if !tsOK {
		return model.Event{}, false
	}

	ev = model.Event{
		CorrelationID:    id,
		EventTS:          ts,
		SrcIP:            firstString(raw, srcIPKeys),
		SrcCountry:       firstString(raw, srcCountryKeys),
		SrcASN:           firstInt(raw, srcASNKeys),
		Colo:             firstString(raw, coloKeys),
		Host:             firstString(raw, hostKeys),
		Path:             firstString(raw, pathKeys),
		Method:           firstString(raw, methodKeys),
		Status:           firstInt(raw, statusKeys),
		RuleName:         firstString(raw, ruleNameKeys),
		MitigationReason: firstString(raw, reasonKeys),
		UserAgent:        firstString(raw, userAgentKeys),
		TLSFingerprint:   firstString(raw, tlsFPKeys),
		Bytes:            firstInt(raw, bytesKeys),
		ThreatScore:      firstInt(raw, threatScoreKeys),
	}

	ev.RuleID = firstString(raw, ruleIDKeys)
	if ev.RuleID == "" {
		ev.RuleID = firstListString(raw, ruleIDListKeys)
	}
	ev.Service = firstString(raw, serviceKeys)
	if ev.Service == "" {
		ev.Service = firstListString(raw, serviceListKeys)
	}
	action := firstString(raw, actionKeys)
	if action == "" {
		action = firstListString(raw, actionListKeys)
	}
	ev.Action = NormalizeAction(action)
	ev.RuleType = InferRuleType(ev.RuleID, ev.Service)
	return ev, true
}

// NormalizeAction folds a raw action string onto the closed action set.
// Unrecognized and empty inputs map to unknown.
func NormalizeAction(s string) model.Action {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "_", "")
	key = strings.ReplaceAll(key, "-", "")
	if a, ok := actionSynonyms[key]; ok {
		return a
	}
	return model.ActionUnknown
}

// InferRuleType guesses rule provenance from the rule id and the
// service label. Best effort only: a "custom_" prefix or a custom
// service wins, a managed-sounding service or a 32-hex managed rule id
// follows, everything else is unknown.
func InferRuleType(ruleID, service string) model.RuleType {
	if ruleID == "" {
		return model.RuleTypeUnknown
	}
	svc := strings.ToLower(service)
	if strings.HasPrefix(ruleID, "custom_") || strings.Contains(svc, "custom") {
		return model.RuleTypeCustom
	}
	if strings.Contains(svc, "managed") || strings.Contains(svc, "waf") || isHex32(ruleID) {
		return model.RuleTypeManaged
	}
	return model.RuleTypeUnknown
}

func isHex32(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}

// secondsThreshold separates seconds-scale epochs from millisecond
// ones: anything below 10 digits is treated as seconds.
const secondsThreshold = 1e10

// epochMillis widens a numeric epoch to milliseconds.
func epochMillis(v float64) int64 {
	if v < secondsThreshold {
		return int64(v * 1000)
	}
	return int64(v)
}

// parseTimestamp accepts a numeric epoch, an ISO-8601 string, or a
// numeric string. ok is false when the value cannot be interpreted.
func parseTimestamp(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 {
			return 0, false
		}
		return epochMillis(t), true
	case int64:
		if t <= 0 {
			return 0, false
		}
		return epochMillis(float64(t)), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			if n <= 0 {
				return 0, false
			}
			return epochMillis(n), true
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UnixMilli(), true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

func firstTimestamp(raw Raw, keys []string) (int64, bool) {
	for _, k := range keys {
		v, present := raw[k]
		if !present || v == nil {
			continue
		}
		if ts, ok := parseTimestamp(v); ok {
			return ts, true
		}
	}
	return 0, false
}

// firstString returns the first present, non-empty string value among
// keys. Numeric values are rendered to their decimal form so records
// that serialize ids as numbers still resolve.
func firstString(raw Raw, keys []string) string {
	for _, k := range keys {
		v, present := raw[k]
		if !present || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}

// firstInt returns the first value among keys coercible to an integer.
// Non-numeric values are skipped rather than defaulted to zero.
func firstInt(raw Raw, keys []string) *int64 {
	for _, k := range keys {
		v, present := raw[k]
		if !present || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			n := int64(t)
			return &n
		case int64:
			n := t
			return &n
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return &n
			}
		}
	}
	return nil
}

// firstListString returns the first element of the first present,
// non-empty list among keys.
func firstListString(raw Raw, keys []string) string {
	for _, k := range keys {
		v, present := raw[k]
		if !present {
			continue
		}
		list, isList := v.([]any)
		if !isList || len(list) == 0 {
			continue
		}
		if s, isStr := list[0].(string); isStr && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
