package wawire

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func testKeys() (enc, mac []byte) {
	enc = make([]byte, 32)
	mac = make([]byte, 32)
	for i := range enc {
		enc[i] = byte(i)
		mac[i] = byte(i + 100)
	}
	return
}

func TestLoadAuthInfoModernShapeBase64Keys(t *testing.T) {
	enc, mac := testKeys()
	data, err := json.Marshal(map[string]any{
		"clientID":    "client-1",
		"serverToken": "srv-tok",
		"clientToken": "cli-tok",
		"encKey":      base64.StdEncoding.EncodeToString(enc),
		"macKey":      base64.StdEncoding.EncodeToString(mac),
	})
	if err != nil {
		t.Fatal(err)
	}

	info, err := LoadAuthInfo(data)
	if err != nil {
		t.Fatalf("LoadAuthInfo: %v", err)
	}
	if info.ClientID != "client-1" || info.ServerToken != "srv-tok" || info.ClientToken != "cli-tok" {
		t.Fatalf("info = %+v", info)
	}
	if !info.HasKeys() {
		t.Fatal("HasKeys() = false, want true")
	}
}

func TestLoadAuthInfoModernShapeRawByteKeys(t *testing.T) {
	enc, mac := testKeys()
	encNums := make([]int, len(enc))
	for i, b := range enc {
		encNums[i] = int(b)
	}
	macNums := make([]int, len(mac))
	for i, b := range mac {
		macNums[i] = int(b)
	}
	data, err := json.Marshal(map[string]any{
		"clientID":    "client-raw",
		"serverToken": "s",
		"clientToken": "c",
		"encKey":      encNums,
		"macKey":      macNums,
	})
	if err != nil {
		t.Fatal(err)
	}

	info, err := LoadAuthInfo(data)
	if err != nil {
		t.Fatalf("LoadAuthInfo: %v", err)
	}
	if len(info.EncKey) != 32 || info.EncKey[1] != 1 {
		t.Fatalf("EncKey = %v", info.EncKey)
	}
}

func TestLoadAuthInfoLegacyShapeWithObjectBundle(t *testing.T) {
	enc, mac := testKeys()
	bundle := map[string]string{
		"encKey": base64.StdEncoding.EncodeToString(enc),
		"macKey": base64.StdEncoding.EncodeToString(mac),
	}
	data, err := json.Marshal(map[string]any{
		"WABrowserId":    `"browser-id"`,
		"WAToken1":       `"tok1"`,
		"WAToken2":       `"tok2"`,
		"WASecretBundle": bundle,
	})
	if err != nil {
		t.Fatal(err)
	}

	info, err := LoadAuthInfo(data)
	if err != nil {
		t.Fatalf("LoadAuthInfo: %v", err)
	}
	if info.ClientID != "browser-id" {
		t.Fatalf("ClientID = %q, want quotes stripped", info.ClientID)
	}
	if info.ClientToken != "tok1" || info.ServerToken != "tok2" {
		t.Fatalf("tokens = %q / %q", info.ClientToken, info.ServerToken)
	}
	if !info.HasKeys() {
		t.Fatal("HasKeys() = false, want true")
	}
}

func TestLoadAuthInfoLegacyShapeWithStringBundle(t *testing.T) {
	enc, mac := testKeys()
	bundleJSON, _ := json.Marshal(map[string]string{
		"encKey": base64.StdEncoding.EncodeToString(enc),
		"macKey": base64.StdEncoding.EncodeToString(mac),
	})
	data, err := json.Marshal(map[string]any{
		"WABrowserId":    "browser-id",
		"WAToken1":       "tok1",
		"WAToken2":       "tok2",
		"WASecretBundle": string(bundleJSON),
	})
	if err != nil {
		t.Fatal(err)
	}

	info, err := LoadAuthInfo(data)
	if err != nil {
		t.Fatalf("LoadAuthInfo: %v", err)
	}
	if !info.HasKeys() {
		t.Fatal("HasKeys() = false, want true")
	}
}

func TestBaseEncodedAuthInfoRoundTrip(t *testing.T) {
	enc, mac := testKeys()
	info := &AuthInfo{ClientID: "c", ServerToken: "s", ClientToken: "t", EncKey: enc, MacKey: mac}

	data, err := info.BaseEncodedAuthInfo()
	if err != nil {
		t.Fatalf("BaseEncodedAuthInfo: %v", err)
	}

	var decoded struct {
		ClientID    string `json:"clientID"`
		ServerToken string `json:"serverToken"`
		ClientToken string `json:"clientToken"`
		EncKey      string `json:"encKey"`
		MacKey      string `json:"macKey"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if decoded.ClientID != "c" {
		t.Fatalf("ClientID = %q", decoded.ClientID)
	}
	gotEnc, err := base64.StdEncoding.DecodeString(decoded.EncKey)
	if err != nil || string(gotEnc) != string(enc) {
		t.Fatalf("EncKey round-trip failed: %v", err)
	}
}

func TestLoadAuthInfoUnrecognizedShapeErrors(t *testing.T) {
	if _, err := LoadAuthInfo([]byte(`{"nonsense":true}`)); err == nil {
		t.Fatal("expected an error for an unrecognized auth file shape")
	}
}
