// Package substrate is a minimal Substrate JSON-RPC client: storage key
// derivation (twox128, Blake2_128Concat), decoding of the SCALE shapes the
// subtensor pallet uses, SS58 addresses, and a WebSocket transport with
// endpoint fail-over. It implements only what the tracker reads.
package substrate
