package keystore

import (
	"math/rand"
	"time"
)

func defaultRNG() RNG {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
