package models

import (
	"encoding/json"
	"time"
)

// SortOrder represents the sort order for snapshot rankings
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// Sort keys understood by the snapshot aggregator besides indicator keys
const (
	SortByChangePct = "change_pct"
	SortByClose     = "close"
	SortByVolume    = "volume"
	SortByCode      = "code"
)

// SnapshotRow is one instrument's indicator values on the snapshot date
type SnapshotRow struct {
	Code       string                 `json:"code"`
	Name       string                 `json:"name,omitempty"`
	Sector     string                 `json:"sector,omitempty"`
	Date       time.Time              `json:"date"`
	Close      float64                `json:"close"`
	PrevClose  float64                `json:"prev_close"`
	Volume     float64                `json:"volume"`
	ChangePct  Value                  `json:"change_pct"`
	Indicators map[IndicatorKey]Value `json:"indicators"`
	Signals    []Signal               `json:"signals,omitempty"`
}

// Metric returns the value used to rank the row by key
func (r *SnapshotRow) Metric(key string) Value {
	switch key {
	case SortByChangePct:
		return r.ChangePct
	case SortByClose:
		return NewValue(r.Close)
	case SortByVolume:
		return NewValue(r.Volume)
	}
	ik, err := ParseIndicatorKey(key)
	if err != nil {
		return Undefined
	}
	return r.Indicators[ik]
}

// ExcludedInstrument records why an instrument is missing from a snapshot
type ExcludedInstrument struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// SnapshotTable is the cross-sectional view of many instruments at one date
type SnapshotTable struct {
	Date     time.Time            `json:"date"`
	SortKey  string               `json:"sort_key"`
	Order    SortOrder            `json:"order"`
	Rows     []SnapshotRow        `json:"rows"`
	Excluded []ExcludedInstrument `json:"excluded,omitempty"`
}

// SnapshotRanking represents a single entry of a published ranking
type SnapshotRanking struct {
	Code  string  `json:"code"`
	Rank  int     `json:"rank"`
	Value float64 `json:"value"`
}

// SnapshotUpdate is the message announced after a snapshot is published
type SnapshotUpdate struct {
	Date      string    `json:"date"`
	Metrics   []string  `json:"metrics"`
	Rows      int       `json:"rows"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotRankingRedisKey returns the sorted-set key for one metric and date
func SnapshotRankingRedisKey(date time.Time, metric string) string {
	return "snapshot:" + date.Format("2006-01-02") + ":rank:" + metric
}

// SnapshotTableRedisKey returns the key holding the full JSON table
func SnapshotTableRedisKey(date time.Time) string {
	return "snapshot:" + date.Format("2006-01-02") + ":table"
}

// ToJSON converts a SnapshotTable to JSON bytes
func (t *SnapshotTable) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// SnapshotTableFromJSON decodes a SnapshotTable
func SnapshotTableFromJSON(data []byte) (*SnapshotTable, error) {
	var table SnapshotTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	return &table, nil
}
