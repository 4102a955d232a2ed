// Package signature implements the request and webhook signing schemes of
// the supported payment gateways.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/sjson"
)

var ErrMissingSign = errors.New("webhook payload has no sign field")

// CryptomusSign returns md5(base64(body) + apiKey) as lowercase hex. It signs
// outgoing API requests and is recomputed for incoming webhooks.
func CryptomusSign(body []byte, apiKey string) string {
	encoded := base64.StdEncoding.EncodeToString(body)
	sum := md5.Sum([]byte(encoded + apiKey))
	return hex.EncodeToString(sum[:])
}

// VerifyCryptomusWebhook recomputes the sign of a raw webhook body. The sign
// field is removed without reordering the remaining keys. Both the compact
// body and the variant with escaped slashes are accepted, since the gateway
// signs the latter.
func VerifyCryptomusWebhook(raw []byte, apiKey string) (bool, error) {
	var envelope struct {
		Sign string `json:"sign"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return false, fmt.Errorf("decode webhook payload: %w", err)
	}
	if envelope.Sign == "" {
		return false, ErrMissingSign
	}

	stripped, err := sjson.DeleteBytes(raw, "sign")
	if err != nil {
		return false, fmt.Errorf("strip sign field: %w", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, stripped); err != nil {
		return false, fmt.Errorf("compact webhook payload: %w", err)
	}

	candidates := [][]byte{
		compact.Bytes(),
		escapeSlashes(compact.Bytes()),
	}
	for _, c := range candidates {
		if equalHex(CryptomusSign(c, apiKey), envelope.Sign) {
			return true, nil
		}
	}
	return false, nil
}

// PaytmChecksum returns hex(HMAC-SHA256(key=mid, JSON{"MID","ORDERID"})).
// The gateway's status API keys the HMAC with the merchant id itself.
func PaytmChecksum(mid, orderID string) string {
	body, _ := json.Marshal(struct {
		MID     string `json:"MID"`
		ORDERID string `json:"ORDERID"`
	}{MID: mid, ORDERID: orderID})

	mac := hmac.New(sha256.New, []byte(mid))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func escapeSlashes(b []byte) []byte {
	if !bytes.Contains(b, []byte("/")) {
		return b
	}
	// Turn already-escaped slashes back first so they are not doubled.
	unescaped := bytes.ReplaceAll(b, []byte(`\/`), []byte("/"))
	return bytes.ReplaceAll(unescaped, []byte("/"), []byte(`\/`))
}

func equalHex(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
