package model

import "encoding/json"

// VaultMeta is the immutable pair of a vault, learned from VaultCreated or
// read from the vault contract.
type VaultMeta struct {
	Token0  string `json:"token0"`
	Token1  string `json:"token1"`
	VaultID uint64 `json:"vault_id,omitempty"`
}

// TypedEvent is a decoded vault event enriched with metadata.
type TypedEvent struct {
	ChainID     uint64     `json:"chain_id"`
	BlockNumber uint64     `json:"block_number"`
	BlockHash   string     `json:"block_hash"`
	TxHash      string     `json:"tx_hash"`
	LogIndex    uint64     `json:"log_index"`
	Address     string     `json:"address"`
	EventName   string     `json:"event_name"`
	Timestamp   uint64     `json:"timestamp"`
	Decoded     any        `json:"decoded"`
	VaultMeta   *VaultMeta `json:"vault_meta,omitempty"`
	Raw         *RawLogRef `json:"raw,omitempty"`
}

// TypedEventRecord is TypedEvent as read back for projection, with the
// payload left raw until the event name is known.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	VaultMeta   *VaultMeta      `json:"vault_meta,omitempty"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// RawLogRef keeps a minimal raw reference for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}
