package trustfeed

import (
	"encoding/json"
	"fmt"
)

// record is the wire shape of one trust-data change event: an ASPA object
// upsert/flush, or a set of UpdateIDs whose ROA outcome may have changed
// (spec §6 collaborator contract: "an asynchronous change-notification
// delivering affected UpdateIDs").
type record struct {
	Type       string   `json:"type"`
	CustomerAS uint32   `json:"customer_as,omitempty"`
	Providers  []uint32 `json:"providers,omitempty"`
	Family     uint8    `json:"family,omitempty"`
	UpdateIDs  []uint32 `json:"update_ids,omitempty"`
}

const (
	typeASPAUpsert = "aspa_upsert"
	typeASPAFlush  = "aspa_flush"
	typeROAChange  = "roa_change"
)

func decodeRecord(data []byte) (record, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("trustfeed: decoding record: %w", err)
	}
	if rec.Type == "" {
		return record{}, fmt.Errorf("trustfeed: record missing type field")
	}
	return rec, nil
}
