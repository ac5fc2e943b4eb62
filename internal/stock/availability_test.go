package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitPackagesLaw(t *testing.T) {
	cases := []struct {
		weight   float64
		capacity float64
	}{
		{60, 25}, {40, 25}, {505, 20}, {100, 100}, {99.5, 10}, {0.5, 25}, {75, 25},
	}
	for _, tc := range cases {
		split := SplitPackages(tc.weight, tc.capacity)
		var total float64
		for _, entry := range split {
			total += entry.WeightKg
			if entry.Kind == SplitPartial {
				require.Less(t, entry.WeightKg, tc.capacity)
				require.Greater(t, entry.WeightKg, 0.0)
			}
		}
		require.InDelta(t, tc.weight, total, 0.0001, "weight %.2f capacity %.2f", tc.weight, tc.capacity)
	}
}

func TestSplitPackagesExactMultipleHasNoPartial(t *testing.T) {
	split := SplitPackages(100, 25)
	require.Len(t, split, 1)
	require.Equal(t, SplitFull, split[0].Kind)
	require.Equal(t, 4, split[0].Packages)
}

func TestSplitPackagesZeroWeight(t *testing.T) {
	require.Nil(t, SplitPackages(0, 25))
	require.Nil(t, SplitPackages(10, 0))
}

func TestCheckFulfillmentDirect(t *testing.T) {
	sku := SKU{ID: 1, Name: "Gloss White 25kg", PackageCapacity: 25, Units: Balance{Available: 100}, Weight: Balance{Available: 100}}
	result := CheckFulfillment(sku, 60, nil)
	require.Equal(t, FulfillmentDirect, result.Status)
	require.InDelta(t, 40.0, result.SurplusKg, 0.0001)
	require.Len(t, result.Split, 2)
	require.Equal(t, SplitFull, result.Split[0].Kind)
	require.Equal(t, 2, result.Split[0].Packages)
	require.InDelta(t, 50.0, result.Split[0].WeightKg, 0.0001)
	require.Equal(t, SplitPartial, result.Split[1].Kind)
	require.InDelta(t, 10.0, result.Split[1].WeightKg, 0.0001)
	require.InDelta(t, 40.0, result.Split[1].PercentageFilled, 0.0001)
}

func TestCheckFulfillmentIndirect(t *testing.T) {
	sku := SKU{ID: 1, MasterMaterialID: 7, Name: "Gloss White 25kg", PackageCapacity: 25, Weight: Balance{Available: 40}}
	siblings := []SKU{
		sku,
		{ID: 2, MasterMaterialID: 7, Name: "Gloss White 10kg", PackageCapacity: 10, Weight: Balance{Available: 30}, Active: true},
		{ID: 3, MasterMaterialID: 7, Name: "Gloss White 5kg", PackageCapacity: 5, Weight: Balance{Available: 0}, Active: true},
	}
	result := CheckFulfillment(sku, 60, siblings)
	require.Equal(t, FulfillmentIndirect, result.Status)
	require.InDelta(t, 20.0, result.ShortfallKg, 0.0001)
	require.Len(t, result.Split, 2)
	require.Equal(t, 1, result.Split[0].Packages)
	require.InDelta(t, 25.0, result.Split[0].WeightKg, 0.0001)
	require.InDelta(t, 15.0, result.Split[1].WeightKg, 0.0001)
	// only the sibling with stock is offered
	require.Len(t, result.Alternatives, 1)
	require.Equal(t, int64(2), result.Alternatives[0].SKUID)
}

func TestCheckFulfillmentNotAvailable(t *testing.T) {
	sku := SKU{ID: 1, PackageCapacity: 25}
	result := CheckFulfillment(sku, 60, nil)
	require.Equal(t, FulfillmentNone, result.Status)
	require.Empty(t, result.Split)
}

func TestSummarise(t *testing.T) {
	sku := SKU{
		ID:              4,
		Name:            "Primer Red 20kg",
		PackageCapacity: 20,
		Units:           Balance{Available: 30, Reserved: 10},
		Weight:          Balance{Available: 610, Reserved: 200},
	}
	avail := Summarise(sku)
	require.Equal(t, 30, int(avail.AvailableQty))
	require.Equal(t, 30, avail.AvailablePackages)
	require.InDelta(t, 50.0, avail.PercentageFilled, 0.0001)
	require.InDelta(t, 20.0, avail.NetQty, 0.0001)
	require.InDelta(t, 410.0, avail.NetWeightKg, 0.0001)
}
