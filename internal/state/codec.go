package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/animus-labs/freezer/internal/domain"
)

const (
	keyAffectedFiles  = "affected-files"
	keyAppliedTags    = "applied-tags"
	keyFreezefileTags = "freezefile-tags"
	keyRuleAt         = "rule-at"
)

var recordKeys = []string{keyAffectedFiles, keyAppliedTags, keyFreezefileTags, keyRuleAt}

// recordPayload field order is alphabetical so the encoding is stable.
type recordPayload struct {
	AffectedFiles  []string          `json:"affected-files"`
	AppliedTags    map[string]string `json:"applied-tags"`
	FreezefileTags map[string]string `json:"freezefile-tags"`
	RuleAt         string            `json:"rule-at"`
}

// SchemaError reports a record that could not be decoded or does not match
// the record schema.
type SchemaError struct {
	Issues []string
}

func (e *SchemaError) Error() string {
	if len(e.Issues) == 0 {
		return "record schema validation failed"
	}
	return "record schema validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *SchemaError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *SchemaError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// Marshal encodes a record with sorted keys and four-space indentation.
func Marshal(rec domain.Record) ([]byte, error) {
	payload := recordPayload{
		AffectedFiles:  rec.AffectedFiles,
		AppliedTags:    rec.AppliedTags,
		FreezefileTags: rec.MarkerTags,
		RuleAt:         rec.RuleOrigin,
	}
	if payload.AffectedFiles == nil {
		payload.AffectedFiles = []string{}
	}
	if payload.AppliedTags == nil {
		payload.AppliedTags = map[string]string{}
	}
	if payload.FreezefileTags == nil {
		payload.FreezefileTags = map[string]string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes and validates a record. Any failure is a *SchemaError.
func Unmarshal(raw []byte) (domain.Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.Record{}, &SchemaError{Issues: []string{"not a JSON object: " + err.Error()}}
	}
	if fields == nil {
		return domain.Record{}, &SchemaError{Issues: []string{"record is null"}}
	}

	issues := &SchemaError{}
	for _, key := range recordKeys {
		value, ok := fields[key]
		if !ok {
			issues.Add(key + " is required")
			continue
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			issues.Add(key + " must not be null")
		}
	}
	unknown := make([]string, 0)
	for key := range fields {
		if !isRecordKey(key) {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		issues.Add(fmt.Sprintf("unknown field %q", key))
	}
	if err := issues.OrNil(); err != nil {
		return domain.Record{}, err
	}

	var payload recordPayload
	decodeField(issues, fields, keyRuleAt, &payload.RuleAt, "a string")
	decodeField(issues, fields, keyAppliedTags, &payload.AppliedTags, "an object of string values")
	decodeField(issues, fields, keyFreezefileTags, &payload.FreezefileTags, "an object of string values")
	decodeField(issues, fields, keyAffectedFiles, &payload.AffectedFiles, "an array of strings")
	if err := issues.OrNil(); err != nil {
		return domain.Record{}, err
	}

	return domain.Record{
		RuleOrigin:    payload.RuleAt,
		AppliedTags:   domain.TagSet(payload.AppliedTags),
		MarkerTags:    domain.TagSet(payload.FreezefileTags),
		AffectedFiles: payload.AffectedFiles,
	}, nil
}

func decodeField(issues *SchemaError, fields map[string]json.RawMessage, key string, dst any, shape string) {
	if err := json.Unmarshal(fields[key], dst); err != nil {
		issues.Add(fmt.Sprintf("%s must be %s", key, shape))
	}
}

func isRecordKey(key string) bool {
	for _, k := range recordKeys {
		if k == key {
			return true
		}
	}
	return false
}
