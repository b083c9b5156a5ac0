// Package valkey provides a Valkey-backed implementation of all storage
// interfaces for production multi-instance deployments.
//
// # Key Schema
//
// All keys carry a configurable prefix (default "fpg:"):
//
//	{prefix}factpod:{site}        - fact pod enablement record (JSON, no TTL)
//	{prefix}client:{userID}:{site} - registered OAuth client (JSON, no TTL)
//	{prefix}state:{state}         - authorization state (JSON, TTL = expiry)
//	{prefix}categories            - sorted-set index of category names
//	{prefix}category:{name}       - category record (JSON, no TTL)
//
// # Atomicity
//
// Authorization state consumption uses a Lua script so the read and delete
// happen as one server-side operation; of two concurrent consumers exactly
// one receives the record. State insertion uses SET NX so an existing state
// is never overwritten.
//
// # Expiry
//
// Authorization states carry a native TTL, so Valkey reclaims them without
// a cleanup goroutine. The consume script still checks the stored expiry
// against the caller's clock, which keeps the contract exact even when a key
// lingers briefly past its TTL.
//
// # Pagination
//
// Category listing walks the sorted-set index with ZRANGEBYLEX using the
// last returned name as an exclusive lower bound. Unlike SCAN cursors this
// never returns a member twice, so pages cover the dataset exactly once.
package valkey
