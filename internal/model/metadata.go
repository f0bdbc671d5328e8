package model

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

const MetadataKindBill = "bill"

// JobMetadata is the tagged payload stored on a ScheduleJob. The kind
// discriminant selects the concrete variant at tick time.
type JobMetadata interface {
	MetadataKind() string
}

// BillScheduling is the metadata for recurring bill creation against one room.
type BillScheduling struct {
	TargetID    string `json:"target_id"`
	BillingType string `json:"billing_type"`
	Rule        string `json:"rule"`
	PrincipalID string `json:"principal_id"`
	Timezone    string `json:"timezone"`
}

func (BillScheduling) MetadataKind() string {
	return MetadataKindBill
}

func EncodeMetadata(meta JobMetadata) (datatypes.JSON, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job metadata: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode job metadata: %w", err)
	}
	fields["kind"] = meta.MetadataKind()
	raw, err = json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job metadata: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func DecodeMetadata(raw datatypes.JSON) (JobMetadata, error) {
	var envelope struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode job metadata: %w", err)
	}

	switch envelope.Kind {
	case MetadataKindBill:
		var meta BillScheduling
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode bill scheduling metadata: %w", err)
		}
		return meta, nil
	default:
		return nil, fmt.Errorf("unknown job metadata kind %q", envelope.Kind)
	}
}
