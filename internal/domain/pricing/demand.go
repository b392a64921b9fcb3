package pricing

import "hash/fnv"

// DemandFunc reports the current demand level for a product type as a value
// in [0, 0.20). It is the extension point for a real demand forecaster.
type DemandFunc func(productType string) float64

// defaultDemand derives a stable pseudo-demand level from the product type,
// keeping pricing reproducible in the absence of a live demand signal.
func defaultDemand(productType string) float64 {
	h := fnv.New32a()
	h.Write([]byte(productType))
	return float64(h.Sum32()%20) / 100
}
