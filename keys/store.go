package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"xdao.co/tokenreg/address"
)

// KeyStore is a local-first key store for CLI signers.
//
// EXPERIMENTAL: this filesystem-backed surface may change in MINOR releases.
//
// Each key is a 32-byte seed stored as hex. Dilithium3 seeds carry a
// "dilithium3:" prefix; unprefixed seeds are ed25519. Role keys are derived
// deterministically from a root seed and keep the root's scheme.
type KeyStore struct {
	Directory string
}

type KeyEntry struct {
	Identifier string
	Scheme     Scheme
	Identity   address.Address
	Roles      []string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".xdao", "tokenreg", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) getRootKeyFilePath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "root.key")
}

func (ks *KeyStore) getRoleKeyFilePath(identifier, role string) string {
	return filepath.Join(ks.Directory, identifier, "roles", role+".key")
}

func checkName(kind, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	for _, char := range s {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", char, kind)
	}
	return nil
}

func CheckKeyName(identifier string) error { return checkName("identifier", identifier) }

func CheckRole(role string) error { return checkName("role", role) }

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func encodeSeed(scheme Scheme, seed []byte) string {
	if scheme == SchemeEd25519 || scheme == "" {
		return hex.EncodeToString(seed) + "\n"
	}
	return string(scheme) + ":" + hex.EncodeToString(seed) + "\n"
}

func decodeSeed(line string) (Scheme, []byte, error) {
	line = strings.TrimSpace(line)
	scheme := SchemeEd25519
	if prefix, rest, ok := strings.Cut(line, ":"); ok {
		parsed, err := ParseScheme(prefix)
		if err != nil {
			return "", nil, err
		}
		scheme, line = parsed, rest
	}
	seed, err := ParseSeedHex(line)
	if err != nil {
		return "", nil, err
	}
	return scheme, seed, nil
}

func (ks *KeyStore) saveSeedToFile(filePath string, scheme Scheme, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(encodeSeed(scheme, seed)); err != nil {
		return err
	}
	return file.Close()
}

func (ks *KeyStore) loadSeedFromFile(filePath string) (Scheme, []byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", nil, err
	}
	return decodeSeed(string(data))
}

// InitializeRootKey writes a root seed for identifier and returns its identity.
func (ks *KeyStore) InitializeRootKey(identifier string, scheme Scheme, seed []byte, overwrite bool) (address.Address, string, error) {
	if err := CheckKeyName(identifier); err != nil {
		return address.Zero, "", err
	}
	signer, err := NewSigner(scheme, seed)
	if err != nil {
		return address.Zero, "", err
	}
	filePath := ks.getRootKeyFilePath(identifier)
	if err := ks.saveSeedToFile(filePath, signer.Scheme(), seed, overwrite); err != nil {
		return address.Zero, "", err
	}
	return signer.Identity(), filePath, nil
}

// DeriveKeyFromRole derives and stores a role key under the root key from.
func (ks *KeyStore) DeriveKeyFromRole(from, role string, overwrite bool) (address.Address, string, error) {
	if err := CheckKeyName(from); err != nil {
		return address.Zero, "", err
	}
	if err := CheckRole(role); err != nil {
		return address.Zero, "", err
	}
	scheme, rootSeed, err := ks.loadSeedFromFile(ks.getRootKeyFilePath(from))
	if err != nil {
		return address.Zero, "", err
	}
	roleSeed, err := DeriveRoleSeed(rootSeed, role)
	if err != nil {
		return address.Zero, "", err
	}
	signer, err := NewSigner(scheme, roleSeed)
	if err != nil {
		return address.Zero, "", err
	}
	filePath := ks.getRoleKeyFilePath(from, role)
	if err := ks.saveSeedToFile(filePath, scheme, roleSeed, overwrite); err != nil {
		return address.Zero, "", err
	}
	return signer.Identity(), filePath, nil
}

// LoadSigner resolves a signer from, in order: an explicit hex seed, a key
// file, or a named key (optionally a role under it).
func (ks *KeyStore) LoadSigner(seedHex, signerName, signerRole, keyFile string) (Signer, error) {
	var (
		scheme Scheme
		seed   []byte
		err    error
	)
	switch {
	case seedHex != "":
		scheme, seed, err = decodeSeed(seedHex)
	case keyFile != "":
		scheme, seed, err = ks.loadSeedFromFile(keyFile)
	case signerName != "":
		if err := CheckKeyName(signerName); err != nil {
			return nil, err
		}
		if signerRole == "" {
			scheme, seed, err = ks.loadSeedFromFile(ks.getRootKeyFilePath(signerName))
			break
		}
		if err := CheckRole(signerRole); err != nil {
			return nil, err
		}
		scheme, seed, err = ks.loadSeedFromFile(ks.getRoleKeyFilePath(signerName, signerRole))
	default:
		return nil, errors.New("no signer provided")
	}
	if err != nil {
		return nil, err
	}
	return NewSigner(scheme, seed)
}

func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var identifiers []string
	for _, entry := range entries {
		if entry.IsDir() {
			identifiers = append(identifiers, entry.Name())
		}
	}
	sort.Strings(identifiers)

	var result []KeyEntry
	for _, identifier := range identifiers {
		entry := KeyEntry{Identifier: identifier}
		if signer, err := ks.LoadSigner("", identifier, "", ""); err == nil {
			entry.Scheme = signer.Scheme()
			entry.Identity = signer.Identity()
		}
		roleEntries, rerr := os.ReadDir(filepath.Join(ks.Directory, identifier, "roles"))
		if rerr == nil {
			for _, roleEntry := range roleEntries {
				if roleEntry.IsDir() {
					continue
				}
				if strings.HasSuffix(roleEntry.Name(), ".key") {
					entry.Roles = append(entry.Roles, strings.TrimSuffix(roleEntry.Name(), ".key"))
				}
			}
			sort.Strings(entry.Roles)
		}
		result = append(result, entry)
	}
	return result, nil
}
