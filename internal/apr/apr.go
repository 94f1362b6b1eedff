// Package apr holds the placeholder yield estimate. Real APR needs price
// feeds the coordinator does not consume.
package apr

// Estimate returns the annual percentage rate for one pair as
// annualRewards / (tvl * lpPrice) * 100, scaled by the pair's share of the
// total weight. Zero denominators yield zero.
func Estimate(annualRewards, tvl, lpPrice float64, weight, totalWeight uint64) float64 {
	if tvl <= 0 || lpPrice <= 0 || totalWeight == 0 {
		return 0
	}
	share := float64(weight) / float64(totalWeight)
	return annualRewards / (tvl * lpPrice) * 100 * share
}
