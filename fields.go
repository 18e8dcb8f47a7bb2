package appsecurity

import (
	"encoding/json"

	"github.com/pkg/errors"
)

const encryptedFieldFlagSuffix = "_encrypted"

// EncryptSensitiveFields returns a copy of record in which each named field,
// if present and non-nil, is replaced by its encrypted token and marked with
// a sibling "<field>_encrypted" flag. Absent or nil fields are left
// untouched.
//
// The manager is an explicit parameter: helpers that construct their own
// manager can silently encrypt under a different primary key than the one a
// caller rotated moments earlier.
func EncryptSensitiveFields(m *Manager, record map[string]interface{}, fields []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = v
	}

	for _, field := range fields {
		value, ok := out[field]
		if !ok || value == nil {
			continue
		}

		token, err := encryptFieldValue(m, value)
		if err != nil {
			return nil, err
		}

		out[field] = string(token)
		out[field+encryptedFieldFlagSuffix] = true
	}

	return out, nil
}

// DecryptSensitiveFields returns a copy of record with every field marked by
// a "<field>_encrypted" flag decrypted and the flags removed.
func DecryptSensitiveFields(m *Manager, record map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = v
	}

	for k, v := range record {
		flagged, isFlag := v.(bool)
		if !isFlag || !flagged || len(k) <= len(encryptedFieldFlagSuffix) || k[len(k)-len(encryptedFieldFlagSuffix):] != encryptedFieldFlagSuffix {
			continue
		}

		field := k[:len(k)-len(encryptedFieldFlagSuffix)]

		token, ok := out[field].(string)
		if !ok {
			continue
		}

		value, err := m.DecryptValue([]byte(token))
		if err != nil {
			return nil, err
		}

		out[field] = value

		delete(out, k)
	}

	return out, nil
}

func encryptFieldValue(m *Manager, value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return m.EncryptString(v)
	case []byte:
		return m.Encrypt(v)
	case map[string]interface{}:
		return m.EncryptRecord(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errors.WithMessagef(ErrEncryption, "serializing field value: %v", err)
		}

		return m.Encrypt(data)
	}
}
