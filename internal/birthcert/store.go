package birthcert

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PersistedState is the on-disk blob for an agent's identity, spec §6:
// "single file keyed agent-state holding {secretKey, birthCert,
// personalityConfig?}". personalityConfig is carried through unread — the
// personality chat system itself is out of scope, but dropping the field
// would break the documented blob shape for anything that inspects it.
type PersistedState struct {
	SecretKey   []byte          `json:"secretKey"`
	BirthCert   BirthCertificate `json:"birthCert"`
	Personality json.RawMessage `json:"personalityConfig,omitempty"`
}

// Load reads and decodes a persisted identity blob. Returns os.IsNotExist
// errors verbatim so callers can distinguish "first boot" from corruption.
func Load(path string) (*PersistedState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("birthcert: decoding persisted state at %s: %w", path, err)
	}
	return &state, nil
}

// Save writes state atomically: encode, write to a sibling temp file, then
// rename over the destination, mirroring the load-or-create-and-save idiom
// used throughout the agent mesh's identity handling.
func Save(path string, state *PersistedState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("birthcert: encoding persisted state: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".agent-state-*.tmp")
	if err != nil {
		return fmt.Errorf("birthcert: creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("birthcert: writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("birthcert: closing temp state file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("birthcert: setting permissions on temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("birthcert: renaming temp state file into place: %w", err)
	}
	return nil
}

// DriftedRTMR3 reports whether the code measurement read from the TEE
// provider on this boot differs from the one baked into a previously
// persisted certificate. Per spec §4.2, drift is a warn-and-continue
// condition on the agent side — the Coordinator is the enforcement point,
// via the allowlist, on the next fresh registration.
func DriftedRTMR3(stored BirthCertificate, currentRTMR3 string) bool {
	return stored.RTMR3 != currentRTMR3
}
