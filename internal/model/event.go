package model

import (
	"time"

	"github.com/google/uuid"
)

// RuleType classifies how a matched rule was provisioned.
type RuleType string

const (
	RuleTypeManaged RuleType = "managed"
	RuleTypeCustom  RuleType = "custom"
	RuleTypeUnknown RuleType = "unknown"
)

// Action is the normalized disposition a security rule applied to a request.
type Action string

const (
	ActionBlock     Action = "block"
	ActionChallenge Action = "challenge"
	ActionLog       Action = "log"
	ActionSkip      Action = "skip"
	ActionAllow     Action = "allow"
	ActionUnknown   Action = "unknown"
)

// Event is the canonical, vendor-agnostic representation of one security
// log record. CorrelationID and EventTS are mandatory; the pair is the
// dedup key. Everything else is optional and degrades to its zero value
// (pointer fields stay nil when the source record had no usable value).
type Event struct {
	ID               int64     `db:"id"`
	CorrelationID    string    `db:"correlation_id"`
	EventTS          int64     `db:"event_ts"` // milliseconds since epoch
	SrcIP            string    `db:"src_ip"`
	SrcCountry       string    `db:"src_country"`
	SrcASN           *int64    `db:"src_asn"`
	Colo             string    `db:"colo"`
	Host             string    `db:"host"`
	Path             string    `db:"path"`
	Method           string    `db:"method"`
	Status           *int64    `db:"status"`
	RuleID           string    `db:"rule_id"`
	RuleName         string    `db:"rule_name"`
	RuleType         RuleType  `db:"rule_type"`
	Action           Action    `db:"action"`
	Service          string    `db:"service"`
	MitigationReason string    `db:"mitigation_reason"`
	UserAgent        string    `db:"ua"`
	TLSFingerprint   string    `db:"tls_fingerprint"`
	Bytes            *int64    `db:"bytes"`
	ThreatScore      *int64    `db:"threat_score"`
	FileID           uuid.UUID `db:"file_id"`
	IngestedAt       time.Time `db:"ingested_at"`
}
