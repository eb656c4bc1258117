package store

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"

	"github.com/serenitylabs/serenity/internal/models"
)

// encodeRun marshals a run to JSON and compresses it with snappy
func encodeRun(run *models.Run) ([]byte, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run: %w", err)
	}
	return snappy.Encode(nil, data), nil
}

// decodeRun reverses encodeRun
func decodeRun(data []byte) (*models.Run, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty run payload")
	}

	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress failed: %w", err)
	}

	var run models.Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}
