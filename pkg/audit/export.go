package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

// exportEntry is the wire shape of one exported record. CreatedAt is
// rendered as ISO-8601 rather than Go's default time encoding so the
// artifact is consumable outside Go.
type exportEntry struct {
	ID          string                 `json:"id"`
	CreatedAt   string                 `json:"createdAt"`
	Handle      string                 `json:"handle"`
	Role        string                 `json:"role"`
	Category    Category               `json:"category"`
	Action      Action                 `json:"action"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func toExportEntry(e *Entry) exportEntry {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return exportEntry{
		ID:          e.ID,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		Handle:      e.Handle,
		Role:        e.Role,
		Category:    e.Category,
		Action:      e.Action,
		Description: e.Description,
		Metadata:    metadata,
	}
}

// exportJSON renders entries as a JSON array.
func exportJSON(entries []*Entry) ([]byte, error) {
	out := make([]exportEntry, len(entries))
	for i, e := range entries {
		out[i] = toExportEntry(e)
	}
	return json.MarshalIndent(out, "", "  ")
}

// exportCSV renders entries as CSV with a header row. Metadata is
// JSON-stringified into a single field; encoding/csv applies standard
// double-quote escaping.
func exportCSV(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"id", "createdAt", "handle", "role", "category", "action", "description", "metadata"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range entries {
		ee := toExportEntry(e)
		metadataJSON, err := json.Marshal(ee.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata for entry %s: %w", e.ID, err)
		}

		row := []string{
			ee.ID,
			ee.CreatedAt,
			ee.Handle,
			ee.Role,
			string(ee.Category),
			string(ee.Action),
			ee.Description,
			string(metadataJSON),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}
