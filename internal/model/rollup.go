package model

import "time"

// DailyActionCount is one row of the date × action rollup.
type DailyActionCount struct {
	Day    time.Time `db:"day"`
	Action Action    `db:"action"`
	Count  int64     `db:"count"`
}

// RuleCount is one row of the per-rule rollup.
type RuleCount struct {
	RuleID   string   `db:"rule_id"`
	RuleName string   `db:"rule_name"`
	RuleType RuleType `db:"rule_type"`
	Count    int64    `db:"count"`
	LastSeen int64    `db:"last_seen"`
}

// SourceCount is one row of the per-source-IP rollup. Countries and
// ASNs hold the distinct values seen for the IP, unioned across updates.
type SourceCount struct {
	SrcIP     string   `db:"src_ip"`
	Count     int64    `db:"count"`
	Countries []string `db:"countries"`
	ASNs      []int64  `db:"asns"`
	LastSeen  int64    `db:"last_seen"`
}

// PathCount is one row of the path × method × status rollup.
type PathCount struct {
	Path     string `db:"path"`
	Method   string `db:"method"`
	Status   int64  `db:"status"`
	Count    int64  `db:"count"`
	LastSeen int64  `db:"last_seen"`
}
