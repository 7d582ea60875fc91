package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
)

func strVal(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func intVal(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	n, _ := v.(int64)
	return n
}

func timeVal(rec *neo4j.Record, key string) time.Time {
	v, _ := rec.Get(key)
	switch t := v.(type) {
	case time.Time:
		return t
	case neo4j.LocalDateTime:
		return t.Time()
	}
	return time.Time{}
}

func turnFromRecord(rec *neo4j.Record) (domain.ConversationTurn, error) {
	t := domain.ConversationTurn{
		ID:        strVal(rec, "id"),
		ChatID:    strVal(rec, "chat_id"),
		UserID:    strVal(rec, "user_id"),
		VehicleID: strVal(rec, "vehicle_id"),
		Prompt:    strVal(rec, "prompt"),
		CreatedAt: timeVal(rec, "created_at"),
	}
	if err := json.Unmarshal([]byte(strVal(rec, "response")), &t.Response); err != nil {
		return t, fmt.Errorf("graph: decode response of turn %s: %w", t.ID, err)
	}
	return t, nil
}

func summaryFromRecord(rec *neo4j.Record) domain.ChatIssueSummary {
	return domain.ChatIssueSummary{
		ChatID:    strVal(rec, "chat_id"),
		VehicleID: strVal(rec, "vehicle_id"),
		Summary:   strVal(rec, "summary"),
		Severity:  domain.SeverityLabel(strVal(rec, "severity")),
		UpdatedAt: timeVal(rec, "updated_at"),
	}
}

func issueFromRecord(rec *neo4j.Record) domain.VehicleIssueRecord {
	return domain.VehicleIssueRecord{
		VehicleID: strVal(rec, "vehicle_id"),
		IssueKey:  strVal(rec, "issue_key"),
		Title:     strVal(rec, "title"),
		Summary:   strVal(rec, "summary"),
		Severity:  domain.SeverityLabel(strVal(rec, "severity")),
		CreatedAt: timeVal(rec, "created_at"),
		UpdatedAt: timeVal(rec, "updated_at"),
	}
}
