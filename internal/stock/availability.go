package stock

import "math"

// FulfillmentStatus classifies how a required weight can be covered.
type FulfillmentStatus string

const (
	// FulfillmentDirect means current stock covers the full requirement.
	FulfillmentDirect FulfillmentStatus = "DIRECT"
	// FulfillmentIndirect means stock covers part of the requirement; the
	// shortfall may be covered by sibling SKUs of other package sizes.
	FulfillmentIndirect FulfillmentStatus = "INDIRECT"
	// FulfillmentNone means no stock at all.
	FulfillmentNone FulfillmentStatus = "NOT_AVAILABLE"
)

// SplitKind tags a package split line.
type SplitKind string

const (
	SplitFull    SplitKind = "FULL"
	SplitPartial SplitKind = "PARTIAL"
)

// SplitEntry is one line of a package-capacity split. Descriptive only, used
// for operator display; never authoritative stock.
type SplitEntry struct {
	Kind             SplitKind `json:"kind"`
	Packages         int       `json:"packages"`
	WeightKg         float64   `json:"weight_kg"`
	PercentageFilled float64   `json:"percentage_filled"`
}

// Availability summarises one SKU's stock record.
type Availability struct {
	SKUID             int64   `json:"sku_id"`
	Name              string  `json:"name"`
	PackageCapacityKg float64 `json:"package_capacity_kg"`
	AvailableQty      float64 `json:"available_qty"`
	AvailableWeightKg float64 `json:"available_weight_kg"`
	AvailablePackages int     `json:"available_packages"`
	PercentageFilled  float64 `json:"percentage_filled"`
	ReservedQty       float64 `json:"reserved_qty"`
	ReservedWeightKg  float64 `json:"reserved_weight_kg"`
	NetQty            float64 `json:"net_qty"`
	NetWeightKg       float64 `json:"net_weight_kg"`
}

// Alternative is a sibling SKU whose stock could cover a shortfall.
type Alternative struct {
	SKUID             int64   `json:"sku_id"`
	Name              string  `json:"name"`
	PackageCapacityKg float64 `json:"package_capacity_kg"`
	AvailableWeightKg float64 `json:"available_weight_kg"`
}

// Fulfillment is the result of checking a required weight against one SKU.
type Fulfillment struct {
	Status       FulfillmentStatus `json:"status"`
	RequiredKg   float64           `json:"required_kg"`
	AvailableKg  float64           `json:"available_kg"`
	SurplusKg    float64           `json:"surplus_kg,omitempty"`
	ShortfallKg  float64           `json:"shortfall_kg,omitempty"`
	Split        []SplitEntry      `json:"split,omitempty"`
	Alternatives []Alternative     `json:"alternatives,omitempty"`
}

// SplitPackages divides weight into full packages of capacity plus one
// partial remainder. For any weight >= 0 and capacity > 0 the entries satisfy
// fullCount*capacity + remainder == weight with 0 <= remainder < capacity.
func SplitPackages(weightKg, capacityKg float64) []SplitEntry {
	if capacityKg <= 0 || weightKg <= 0 {
		return nil
	}
	fullCount := int(math.Floor(weightKg / capacityKg))
	remainder := weightKg - float64(fullCount)*capacityKg

	var split []SplitEntry
	if fullCount > 0 {
		split = append(split, SplitEntry{
			Kind:             SplitFull,
			Packages:         fullCount,
			WeightKg:         float64(fullCount) * capacityKg,
			PercentageFilled: 100,
		})
	}
	if remainder > 0 {
		split = append(split, SplitEntry{
			Kind:             SplitPartial,
			Packages:         1,
			WeightKg:         remainder,
			PercentageFilled: round2(remainder / capacityKg * 100),
		})
	}
	return split
}

// Summarise computes the availability view of a SKU record.
func Summarise(sku SKU) Availability {
	avail := Availability{
		SKUID:             sku.ID,
		Name:              sku.Name,
		PackageCapacityKg: sku.PackageCapacity,
		AvailableQty:      sku.Units.Available,
		AvailableWeightKg: sku.Weight.Available,
		ReservedQty:       sku.Units.Reserved,
		ReservedWeightKg:  sku.Weight.Reserved,
		NetQty:            sku.Units.Free(),
		NetWeightKg:       sku.Weight.Free(),
	}
	if sku.PackageCapacity > 0 {
		avail.AvailablePackages = int(math.Floor(sku.Weight.Available / sku.PackageCapacity))
		remainder := sku.Weight.Available - float64(avail.AvailablePackages)*sku.PackageCapacity
		avail.PercentageFilled = round2(remainder / sku.PackageCapacity * 100)
	}
	return avail
}

// CheckFulfillment classifies whether requiredKg can ship from the SKU now.
// Siblings are same-master SKUs of other package sizes; only those with stock
// are offered as alternatives on an INDIRECT result.
func CheckFulfillment(sku SKU, requiredKg float64, siblings []SKU) Fulfillment {
	available := sku.Weight.Available
	result := Fulfillment{
		RequiredKg:  requiredKg,
		AvailableKg: available,
	}
	switch {
	case available <= 0:
		result.Status = FulfillmentNone
	case available >= requiredKg:
		result.Status = FulfillmentDirect
		result.SurplusKg = round2(available - requiredKg)
		result.Split = SplitPackages(requiredKg, sku.PackageCapacity)
	default:
		result.Status = FulfillmentIndirect
		result.ShortfallKg = round2(requiredKg - available)
		result.Split = SplitPackages(available, sku.PackageCapacity)
		for _, sib := range siblings {
			if sib.ID == sku.ID || !sib.Active || sib.Weight.Available <= 0 {
				continue
			}
			result.Alternatives = append(result.Alternatives, Alternative{
				SKUID:             sib.ID,
				Name:              sib.Name,
				PackageCapacityKg: sib.PackageCapacity,
				AvailableWeightKg: sib.Weight.Available,
			})
		}
	}
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
