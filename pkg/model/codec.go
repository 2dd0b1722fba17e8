package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ProtocolVersion is bumped whenever the encoded snapshot layout changes.
// Peers refuse snapshots carrying a different version.
const ProtocolVersion uint16 = 1

const maxTensorElements = 1 << 24

type envelope struct {
	Version  uint16   `cbor:"v"        json:"version"`
	Snapshot Snapshot `cbor:"snapshot" json:"snapshot"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{MaxArrayElements: maxTensorElements}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes a snapshot as versioned CBOR.
func Marshal(s Snapshot) ([]byte, error) {
	return encMode.Marshal(envelope{Version: ProtocolVersion, Snapshot: s})
}

// Unmarshal decodes versioned CBOR produced by Marshal.
func Unmarshal(data []byte) (Snapshot, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return checkEnvelope(env)
}

func MarshalJSON(s Snapshot) ([]byte, error) {
	return json.Marshal(envelope{Version: ProtocolVersion, Snapshot: s})
}

func UnmarshalJSON(data []byte) (Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return checkEnvelope(env)
}

// CheckVersion reports ErrVersionMismatch for any version other than ours.
func CheckVersion(v uint16) error {
	if v != ProtocolVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, v, ProtocolVersion)
	}

	return nil
}

// Save writes the CBOR encoding of s to path.
func Save(path string, s Snapshot) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	return nil
}

func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read model file: %w", err)
	}

	return Unmarshal(data)
}

func checkEnvelope(env envelope) (Snapshot, error) {
	if err := CheckVersion(env.Version); err != nil {
		return Snapshot{}, err
	}
	if err := env.Snapshot.Validate(); err != nil {
		return Snapshot{}, err
	}

	return env.Snapshot, nil
}
