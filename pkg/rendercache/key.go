package rendercache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// HashObject returns the SHA-256 of v's canonical JSON form.
//
// The value is marshalled, decoded into generic maps and marshalled again;
// encoding/json writes map keys in sorted order, so two deeply equal values
// hash the same regardless of field or key order.
func HashObject(v any) (string, error) {
	canonical, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal cache key input: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("normalize cache key input: %w", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical cache key input: %w", err)
	}
	return out, nil
}

// GenerateKey derives the cache key for an (input, settings) pair. It also
// returns the settings hash so callers can store it alongside the entry.
func GenerateKey(inputHash string, settings any) (key, settingsHash string, err error) {
	settingsHash, err = HashObject(settings)
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256([]byte(inputHash + ":" + settingsHash))
	return hex.EncodeToString(sum[:]), settingsHash, nil
}

// HashFile streams the file at path through SHA-256.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
