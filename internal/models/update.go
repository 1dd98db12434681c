package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FieldUpdate replaces a single cv_data field wholesale (no deep-merge)
type FieldUpdate struct {
	FieldPath string          `json:"field_path"`
	Value     json.RawMessage `json:"value"`
}

// ConfirmUpdate sets confirmation flags
type ConfirmUpdate struct {
	ContactConfirmed   *bool `json:"contact_confirmed,omitempty"`
	EducationConfirmed *bool `json:"education_confirmed,omitempty"`
}

// Update is the tagged variant accepted by update_cv_field. The handler
// applies the populated forms in a fixed order (Confirm, Batch, Field,
// Patch) so ordering is observable.
type Update struct {
	Field   *FieldUpdate               `json:"-"`
	Batch   []FieldUpdate              `json:"-"`
	Patch   map[string]json.RawMessage `json:"-"`
	Confirm *ConfirmUpdate             `json:"-"`
}

// IsEmpty reports whether no form was provided
func (u *Update) IsEmpty() bool {
	return u.Field == nil && len(u.Batch) == 0 && len(u.Patch) == 0 && u.Confirm == nil
}

// ParseUpdate decodes the overlapping request forms into the tagged variant
func ParseUpdate(params json.RawMessage) (*Update, error) {
	var raw struct {
		FieldPath string                     `json:"field_path"`
		Value     json.RawMessage            `json:"value"`
		Edits     []FieldUpdate              `json:"edits"`
		CVPatch   map[string]json.RawMessage `json:"cv_patch"`
		Confirm   *ConfirmUpdate             `json:"confirm"`
	}
	if err := json.Unmarshal(params, &raw); err != nil {
		return nil, fmt.Errorf("malformed update params: %w", err)
	}

	update := &Update{
		Batch:   raw.Edits,
		Patch:   raw.CVPatch,
		Confirm: raw.Confirm,
	}
	if raw.FieldPath != "" {
		update.Field = &FieldUpdate{FieldPath: raw.FieldPath, Value: raw.Value}
	}
	return update, nil
}

// Apply mutates cv and flags in the fixed order Confirm, Batch, Field, Patch
func (u *Update) Apply(cv *CVData, flags *ConfirmedFlags) error {
	if u.Confirm != nil {
		if u.Confirm.ContactConfirmed != nil {
			flags.ContactConfirmed = *u.Confirm.ContactConfirmed
		}
		if u.Confirm.EducationConfirmed != nil {
			flags.EducationConfirmed = *u.Confirm.EducationConfirmed
		}
	}
	for _, edit := range u.Batch {
		if err := ApplyFieldPath(cv, edit.FieldPath, edit.Value); err != nil {
			return err
		}
	}
	if u.Field != nil {
		if err := ApplyFieldPath(cv, u.Field.FieldPath, u.Field.Value); err != nil {
			return err
		}
	}
	for section, value := range u.Patch {
		if err := ApplyFieldPath(cv, section, value); err != nil {
			return err
		}
	}
	return nil
}

// pathSegment is one step of a dotted/bracketed field path
type pathSegment struct {
	key   string
	index int // -1 when not an array index
}

// parseFieldPath splits paths like "work_experience[2].bullets" into segments
func parseFieldPath(path string) ([]pathSegment, error) {
	var segments []pathSegment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("empty segment in field path %q", path)
		}
		key := part
		for {
			open := strings.Index(key, "[")
			if open == -1 {
				if key != "" {
					segments = append(segments, pathSegment{key: key, index: -1})
				}
				break
			}
			closing := strings.Index(key, "]")
			if closing < open {
				return nil, fmt.Errorf("unbalanced brackets in field path %q", path)
			}
			if open > 0 {
				segments = append(segments, pathSegment{key: key[:open], index: -1})
			}
			idx, err := strconv.Atoi(key[open+1 : closing])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid index in field path %q", path)
			}
			segments = append(segments, pathSegment{index: idx})
			key = key[closing+1:]
		}
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty field path")
	}
	return segments, nil
}

// ApplyFieldPath replaces the value at a dotted/bracketed path into cv_data
// wholesale. The CV is round-tripped through its JSON form so paths address
// the wire field names.
func ApplyFieldPath(cv *CVData, path string, value json.RawMessage) error {
	segments, err := parseFieldPath(path)
	if err != nil {
		return err
	}

	data, err := json.Marshal(cv)
	if err != nil {
		return fmt.Errorf("failed to serialize cv_data: %w", err)
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to deserialize cv_data: %w", err)
	}

	var newValue interface{}
	if len(value) > 0 {
		if err := json.Unmarshal(value, &newValue); err != nil {
			return fmt.Errorf("invalid value for field path %q: %w", path, err)
		}
	}

	if err := setPath(tree, segments, newValue); err != nil {
		return err
	}

	merged, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to reserialize cv_data: %w", err)
	}
	var out CVData
	if err := json.Unmarshal(merged, &out); err != nil {
		return fmt.Errorf("value at %q does not fit the cv_data shape: %w", path, err)
	}
	*cv = out
	return nil
}

func setPath(node interface{}, segments []pathSegment, value interface{}) error {
	segment := segments[0]
	last := len(segments) == 1

	switch typed := node.(type) {
	case map[string]interface{}:
		if segment.key == "" {
			return fmt.Errorf("expected object key, got array index")
		}
		if last {
			typed[segment.key] = value
			return nil
		}
		child, ok := typed[segment.key]
		if !ok || child == nil {
			child = map[string]interface{}{}
			typed[segment.key] = child
		}
		return setPath(child, segments[1:], value)
	case []interface{}:
		if segment.index < 0 {
			return fmt.Errorf("expected array index, got key %q", segment.key)
		}
		if segment.index >= len(typed) {
			return fmt.Errorf("index %d out of range (len %d)", segment.index, len(typed))
		}
		if last {
			typed[segment.index] = value
			return nil
		}
		return setPath(typed[segment.index], segments[1:], value)
	default:
		return fmt.Errorf("cannot descend into scalar value")
	}
}
