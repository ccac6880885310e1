package store

import (
	"github.com/bits-and-blooms/bloom/v3"
)

// negativeFilter is a bloom filter over live keys: a negative test is a
// definite miss and short-circuits lookups. Removals leave the filter
// stale-positive, which is safe; maintenance rebuilds it from the index.
type negativeFilter struct {
	filter        *bloom.BloomFilter
	expectedItems uint
	fpRate        float64
}

func newNegativeFilter(expectedItems uint, fpRate float64) *negativeFilter {
	return &negativeFilter{
		filter:        bloom.NewWithEstimates(expectedItems, fpRate),
		expectedItems: expectedItems,
		fpRate:        fpRate,
	}
}

func (f *negativeFilter) add(key string) {
	f.filter.Add([]byte(key))
}

func (f *negativeFilter) mayContain(key string) bool {
	return f.filter.Test([]byte(key))
}

func (f *negativeFilter) rebuild(keys []string) {
	fresh := bloom.NewWithEstimates(f.expectedItems, f.fpRate)
	for _, key := range keys {
		fresh.Add([]byte(key))
	}
	f.filter = fresh
}

func (f *negativeFilter) reset() {
	f.filter.ClearAll()
}
