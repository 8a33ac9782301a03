// Package transceiver provides link collaborator implementations for
// the adaptation layer: an in-memory medium for tests and a UDP
// multicast transport simulating a shared radio channel.
package transceiver

import "firestige.xyz/lowpan/internal/core"

// Receiver is the inbound callback a transceiver drives for every
// frame addressed to the local node.
type Receiver func(src core.LinkAddr, frame []byte)

// Broadcast is the all-ones link address; every node accepts it.
var Broadcast = core.LinkAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
