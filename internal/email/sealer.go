package email

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// SealedPayload - данные уведомления, зашифрованные AES-256-GCM
type SealedPayload struct {
	IV   string `json:"iv"`
	Tag  string `json:"tag"`
	Data string `json:"data"`
}

// PayloadSealer шифрует данные, которые встраиваются в письмо
type PayloadSealer struct {
	aead cipher.AEAD
}

func NewPayloadSealer(key []byte) (*PayloadSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("payload key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &PayloadSealer{aead: aead}, nil
}

// Seal сериализует value в JSON и шифрует со случайным IV
func (s *PayloadSealer) Seal(value any) (*SealedPayload, error) {
	plain, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	sealed := s.aead.Seal(nil, iv, plain, nil)
	tagStart := len(sealed) - s.aead.Overhead()

	return &SealedPayload{
		IV:   base64.StdEncoding.EncodeToString(iv),
		Tag:  base64.StdEncoding.EncodeToString(sealed[tagStart:]),
		Data: base64.StdEncoding.EncodeToString(sealed[:tagStart]),
	}, nil
}

// Open расшифровывает и проверяет тег
func (s *PayloadSealer) Open(p *SealedPayload, dst any) error {
	iv, err := base64.StdEncoding.DecodeString(p.IV)
	if err != nil {
		return err
	}
	tag, err := base64.StdEncoding.DecodeString(p.Tag)
	if err != nil {
		return err
	}
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return err
	}
	if len(iv) != s.aead.NonceSize() {
		return errors.New("invalid iv length")
	}

	plain, err := s.aead.Open(nil, iv, append(data, tag...), nil)
	if err != nil {
		return fmt.Errorf("payload authentication failed: %w", err)
	}
	return json.Unmarshal(plain, dst)
}
