// Package keys provides signer identities for the token registry.
//
// Stable:
//   - Pure, deterministic primitives: identity computation for each signature
//     scheme, role-seed derivation, signing and verification.
//
// Experimental:
//   - Filesystem-backed key storage (KeyStore). It is a local-first utility for
//     the CLI and is not part of the registry's wire contract.
package keys
