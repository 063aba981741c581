package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumManifest is the sidecar written next to the config file by
// "hooksink config lock" and verified by "hooksink config check".
type ChecksumManifest struct {
	Version     int    `yaml:"version"`
	GeneratedAt string `yaml:"generated_at"`
	Blake3      string `yaml:"blake3"`
}

// ChecksumPath returns the sidecar path for a config file.
func ChecksumPath(configPath string) string {
	return configPath + ".sum"
}

// ComputeHash computes the BLAKE3 hash of a file as lowercase hex.
func ComputeHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WriteChecksum hashes the config file and writes the sidecar manifest.
// Returns the computed hash.
func WriteChecksum(configPath string) (string, error) {
	hash, err := ComputeHash(configPath)
	if err != nil {
		return "", err
	}

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Blake3:      hash,
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checksum: %w", err)
	}

	// Restrictive permissions: the manifest is the tamper baseline.
	if err := os.WriteFile(ChecksumPath(configPath), data, 0600); err != nil {
		return "", fmt.Errorf("failed to write checksum: %w", err)
	}
	return hash, nil
}

// VerifyChecksum compares the config file against its sidecar manifest.
func VerifyChecksum(configPath string) error {
	data, err := os.ReadFile(ChecksumPath(configPath))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("checksum file not found (run 'hooksink config lock')")
		}
		return fmt.Errorf("failed to read checksum: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse checksum: %w", err)
	}
	if manifest.Version != 1 {
		return fmt.Errorf("unsupported checksum version: %d", manifest.Version)
	}

	actual, err := ComputeHash(configPath)
	if err != nil {
		return err
	}
	if actual != manifest.Blake3 {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s\n"+
			"If you edited this file intentionally, run: hooksink config lock",
			configPath, manifest.Blake3, actual)
	}
	return nil
}
