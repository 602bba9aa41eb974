// Package tagged reads and writes JSON objects whose first field is a "type"
// discriminator naming the concrete variant.
package tagged

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Field is the discriminator key.
const Field = "type"

// Marshal encodes v as a JSON object and prepends the discriminator.
func Marshal(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("tagged: %T does not encode to an object", v)
	}

	name, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(name) + 10)
	buf.WriteString(`{"` + Field + `":`)
	buf.Write(name)
	if rest := bytes.TrimSpace(body[1:]); len(rest) > 0 && rest[0] != '}' {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return buf.Bytes(), nil
}

// Peek returns the discriminator of a JSON object without decoding the rest.
func Peek(data []byte) (string, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", err
	}
	if head.Type == nil {
		return "", errors.New("tagged: missing type field")
	}
	return *head.Type, nil
}
