// Package bittensor reads subnet, block and wallet state from the subtensor
// chain and shapes it into the records the tracker republishes.
package bittensor
