package wawire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brinkwave/wawire/internal/crypto"
)

// AuthInfo holds the credentials issued by pairing (an external
// collaborator). It is mutated only by LoadAuthInfo or cleared on
// logout/InvalidSession; a binary frame may be sent only once both
// EncKey and MacKey are present (spec.md §3).
type AuthInfo struct {
	ClientID    string
	ServerToken string
	ClientToken string
	EncKey      []byte
	MacKey      []byte
}

// HasKeys reports whether both crypto keys are present and correctly
// sized, the precondition for sending a binary frame.
func (a *AuthInfo) HasKeys() bool {
	return a != nil && len(a.EncKey) == crypto.KeySize && len(a.MacKey) == crypto.KeySize
}

type modernAuthFile struct {
	ClientID    string          `json:"clientID"`
	ServerToken string          `json:"serverToken"`
	ClientToken string          `json:"clientToken"`
	EncKey      json.RawMessage `json:"encKey"`
	MacKey      json.RawMessage `json:"macKey"`
}

type legacyAuthFile struct {
	WABrowserId    string          `json:"WABrowserId"`
	WAToken1       string          `json:"WAToken1"`
	WAToken2       string          `json:"WAToken2"`
	WASecretBundle json.RawMessage `json:"WASecretBundle"`
}

type legacySecretBundle struct {
	EncKey string `json:"encKey"`
	MacKey string `json:"macKey"`
}

// LoadAuthInfo parses an auth bootstrap file in either the modern
// {clientID, serverToken, clientToken, encKey, macKey} shape or the
// legacy {WABrowserId, WAToken1, WAToken2, WASecretBundle} shape
// (spec.md §6).
func LoadAuthInfo(data []byte) (*AuthInfo, error) {
	var modern modernAuthFile
	if err := json.Unmarshal(data, &modern); err == nil && modern.ClientID != "" && len(modern.EncKey) > 0 {
		encKey, err := decodeKeyField(modern.EncKey)
		if err != nil {
			return nil, fmt.Errorf("wawire: encKey: %w", err)
		}
		macKey, err := decodeKeyField(modern.MacKey)
		if err != nil {
			return nil, fmt.Errorf("wawire: macKey: %w", err)
		}
		return &AuthInfo{
			ClientID:    modern.ClientID,
			ServerToken: modern.ServerToken,
			ClientToken: modern.ClientToken,
			EncKey:      encKey,
			MacKey:      macKey,
		}, nil
	}

	var legacy legacyAuthFile
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("wawire: unrecognized auth bootstrap file: %w", err)
	}
	if legacy.WABrowserId == "" {
		return nil, fmt.Errorf("wawire: unrecognized auth bootstrap file shape")
	}

	encKey, macKey, err := decodeSecretBundle(legacy.WASecretBundle)
	if err != nil {
		return nil, fmt.Errorf("wawire: WASecretBundle: %w", err)
	}

	return &AuthInfo{
		ClientID:    stripQuotes(legacy.WABrowserId),
		ClientToken: stripQuotes(legacy.WAToken1),
		ServerToken: stripQuotes(legacy.WAToken2),
		EncKey:      encKey,
		MacKey:      macKey,
	}, nil
}

// BaseEncodedAuthInfo exports a serializable form with EncKey/MacKey
// base64-encoded, the other three fields as-is.
func (a *AuthInfo) BaseEncodedAuthInfo() ([]byte, error) {
	return json.Marshal(struct {
		ClientID    string `json:"clientID"`
		ServerToken string `json:"serverToken"`
		ClientToken string `json:"clientToken"`
		EncKey      string `json:"encKey"`
		MacKey      string `json:"macKey"`
	}{
		ClientID:    a.ClientID,
		ServerToken: a.ServerToken,
		ClientToken: a.ClientToken,
		EncKey:      base64.StdEncoding.EncodeToString(a.EncKey),
		MacKey:      base64.StdEncoding.EncodeToString(a.MacKey),
	})
}

func stripQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

// decodeKeyField accepts either a base64 JSON string or a JSON array
// of byte values for "raw bytes" files.
func decodeKeyField(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return base64.StdEncoding.DecodeString(s)
	}
	var nums []int
	if err := json.Unmarshal(raw, &nums); err == nil {
		out := make([]byte, len(nums))
		for i, n := range nums {
			out[i] = byte(n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unrecognized key encoding")
}

// decodeSecretBundle accepts WASecretBundle as either a JSON-encoded
// string or a plain object, both holding base64 encKey/macKey.
func decodeSecretBundle(raw json.RawMessage) (encKey, macKey []byte, err error) {
	var bundle legacySecretBundle
	if err := json.Unmarshal(raw, &bundle); err == nil && bundle.EncKey != "" {
		encKey, err = base64.StdEncoding.DecodeString(bundle.EncKey)
		if err != nil {
			return nil, nil, err
		}
		macKey, err = base64.StdEncoding.DecodeString(bundle.MacKey)
		return encKey, macKey, err
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return nil, nil, fmt.Errorf("unrecognized WASecretBundle shape")
	}
	if err := json.Unmarshal([]byte(asString), &bundle); err != nil {
		return nil, nil, fmt.Errorf("WASecretBundle string is not valid JSON: %w", err)
	}
	encKey, err = base64.StdEncoding.DecodeString(bundle.EncKey)
	if err != nil {
		return nil, nil, err
	}
	macKey, err = base64.StdEncoding.DecodeString(bundle.MacKey)
	return encKey, macKey, err
}
