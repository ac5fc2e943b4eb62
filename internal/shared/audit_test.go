package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMovementMetaOmitsEmptyFields(t *testing.T) {
	meta := MovementMeta(10, 0, "", "")
	require.Equal(t, map[string]any{"qty": 10.0}, meta)
}

func TestMovementMetaCarriesWeightAndRef(t *testing.T) {
	meta := MovementMeta(4, 80, "batch", "batch:17")
	require.Equal(t, map[string]any{
		"qty":       4.0,
		"weight_kg": 80.0,
		"ref_type":  "batch",
		"ref_id":    "batch:17",
	}, meta)
}
