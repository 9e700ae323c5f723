package state

// PostStepdownWards are the ward locations offered on a post-stepdown review.
var PostStepdownWards = []string{
	"3A", "3B", "3C", "3D", "4A", "4B", "4C", "4D", "5A", "5B", "5C", "5D",
	"6A", "6B", "6C", "6D", "7A", "7B", "7C", "7D", "SRS2A", "SRS1A", "SRSA", "SRSB",
	"Medihotel 5", "Medihotel 6", "Medihotel 7", "Medihotel 8",
	"Short Stay", "Transit Lounge", "Mental Health", "CCU",
}

// PreStepdownWards are the ICU locations offered on a pre-stepdown review.
var PreStepdownWards = []string{"ICU Pod 1", "ICU Pod 2", "ICU Pod 3", "ICU Pod 4"}

// IsKnownWard reports whether w is one of the listed locations.
func IsKnownWard(w string) bool {
	for _, list := range [][]string{PostStepdownWards, PreStepdownWards} {
		for _, x := range list {
			if x == w {
				return true
			}
		}
	}
	return false
}
