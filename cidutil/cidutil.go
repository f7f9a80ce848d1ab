package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// DigestSize is the length of a sha2-256 digest.
const DigestSize = 32

// SHA256 returns the sha2-256 digest of data, computed through multihash so the
// digest and its CID form can never disagree.
func SHA256(data []byte) ([DigestSize]byte, error) {
	var out [DigestSize]byte
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return out, err
	}
	dec, err := multihash.Decode(sum)
	if err != nil {
		return out, err
	}
	copy(out[:], dec.Digest)
	return out, nil
}

// FromDigest wraps a raw sha2-256 digest as a CIDv1 using the "raw" multicodec.
func FromDigest(digest [DigestSize]byte) cid.Cid {
	mh, err := multihash.Encode(digest[:], multihash.SHA2_256)
	if err != nil {
		// Encode only fails for unknown codes or bad lengths; neither applies here.
		return cid.Undef
	}
	return cid.NewCidV1(cid.Raw, mh)
}

// ToDigest extracts the sha2-256 digest from a CIDv1 raw CID.
func ToDigest(id cid.Cid) ([DigestSize]byte, error) {
	var out [DigestSize]byte
	if !id.Defined() {
		return out, fmt.Errorf("cidutil: undefined cid")
	}
	if id.Prefix().Codec != cid.Raw {
		return out, fmt.Errorf("cidutil: unexpected codec %d", id.Prefix().Codec)
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return out, err
	}
	if dec.Code != multihash.SHA2_256 || len(dec.Digest) != DigestSize {
		return out, fmt.Errorf("cidutil: unexpected multihash %s/%d", multihash.Codes[dec.Code], len(dec.Digest))
	}
	copy(out[:], dec.Digest)
	return out, nil
}
