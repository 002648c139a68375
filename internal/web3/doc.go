// Package web3 holds what the EVM and Solana submission paths share: chain
// definitions loaded from configs/chains.yaml, the engine stage model, the
// Outcome reported at the engine boundary, the chain error codes, and the
// classifier that maps RPC transport failures onto those codes.
//
// The concrete chains live in the ethereum and solana sub-packages; the
// provider sub-package builds their RPC clients from chain definitions.
package web3
